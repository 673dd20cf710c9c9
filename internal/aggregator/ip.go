package aggregator

import (
	"context"
	"errors"
	"fmt"

	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/localstore"
)

// UnknownIP is recorded when the public IP cannot be resolved.
const UnknownIP = "unknown"

// resolveIP returns the cached public IP, looking it up on a miss. Successful
// lookups are cached without expiry; failures are not cached.
func (a *Aggregator) resolveIP(ctx context.Context) string {
	key := a.key(keyIP)

	cached, err := a.store.Get(ctx, key)
	if err == nil && len(cached) > 0 {
		return string(cached)
	}
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		a.log.Warn("Failed to read cached ip", logger.Error(err))
	}

	if a.ip == nil {
		return UnknownIP
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.cfg.RemoteTimeout)
	defer cancel()

	ip, err := a.ip.Lookup(lookupCtx)
	if err != nil {
		a.metrics.ipLookupFailed()
		a.log.Warn("Using unknown ip for this flush",
			logger.Error(fmt.Errorf("%w: %w", ErrIPResolutionFailed, err)))
		return UnknownIP
	}

	if err = a.store.Set(ctx, key, []byte(ip), 0); err != nil {
		a.log.Warn("Failed to cache ip", logger.Error(err))
	}
	return ip
}
