package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	infraerrors "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/errors"
	infrahttp "github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/http"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/logger"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/infrastructure/retry"
	"github.com/KeisukeYokoyama/mondai-frontend-sub000/internal/domain"
)

const (
	restPathPrefix = "/rest/v1/"

	// idsPerRequest bounds the in.(...) filter so the query string stays short.
	idsPerRequest = 100

	maxResponseBody = 1 << 20
)

// ErrMissingBaseURL is returned when the REST service has no endpoint configured.
var ErrMissingBaseURL = errors.New("remote base url is required")

// RESTConfig configures a PostgREST-compatible backend.
type RESTConfig struct {
	BaseURL string
	APIKey  string
	Tables  Tables
	Retry   retry.Config
}

// RESTService calls the backend's REST surface.
type RESTService struct {
	baseURL *url.URL
	apiKey  string
	tables  Tables
	retry   retry.Config
	client  *http.Client
	log     logger.Logger
}

// NewRESTService builds a REST service. A nil client gets the shared default client.
func NewRESTService(cfg RESTConfig, client *http.Client, log logger.Logger) (*RESTService, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if client == nil {
		client = infrahttp.NewClient(nil)
	}
	if log == nil {
		log = logger.NewNop()
	}
	cfg.Tables.SetDefaults()

	return &RESTService{
		baseURL: u,
		apiKey:  cfg.APIKey,
		tables:  cfg.Tables,
		retry:   cfg.Retry,
		client:  client,
		log:     log,
	}, nil
}

// ExistingItems queries ids in chunks of idsPerRequest.
func (s *RESTService) ExistingItems(ctx context.Context, ids []string) ([]string, error) {
	existing := make([]string, 0, len(ids))

	for start := 0; start < len(ids); start += idsPerRequest {
		end := min(start+idsPerRequest, len(ids))
		found, err := s.existingChunk(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		existing = append(existing, found...)
	}

	return existing, nil
}

func (s *RESTService) existingChunk(ctx context.Context, ids []string) ([]string, error) {
	query := url.Values{}
	query.Set("select", "id")
	query.Set("id", "in.("+inList(ids)+")")
	endpoint := s.endpoint(s.tables.Items, query)

	var rows []struct {
		ID json.RawMessage `json:"id"`
	}

	err := retry.Retry(ctx, s.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		s.setHeaders(req)

		body, err := s.do(req)
		if err != nil {
			return err
		}
		if err = json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("decode items: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query existing items: %w", err)
	}

	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, rawID(r.ID))
	}
	return out, nil
}

// UpsertViews posts all records as one JSON array.
func (s *RESTService) UpsertViews(ctx context.Context, records []domain.ViewRecord) error {
	if len(records) == 0 {
		return nil
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode views: %w", err)
	}

	query := url.Values{}
	query.Set("on_conflict", ConflictColumns)
	endpoint := s.endpoint(s.tables.Views, query)

	err = retry.Retry(ctx, s.retry, func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if reqErr != nil {
			return fmt.Errorf("build request: %w", reqErr)
		}
		s.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "resolution=ignore-duplicates,return=minimal")

		_, doErr := s.do(req)
		if doErr != nil {
			s.log.Debug("View upsert attempt failed", logger.Error(doErr))
		}
		return doErr
	})
	if err != nil {
		return fmt.Errorf("upsert views: %w", err)
	}
	return nil
}

func (s *RESTService) endpoint(table string, query url.Values) string {
	u := *s.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + restPathPrefix + table
	u.RawQuery = query.Encode()
	return u.String()
}

func (s *RESTService) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("apikey", s.apiKey)
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}

func (s *RESTService) do(req *http.Request) ([]byte, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		return nil, httpErr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// inList renders ids as a PostgREST in.() list with every value double-quoted.
func inList(ids []string) string {
	quoted := make([]string, len(ids))
	for i, id := range ids {
		escaped := strings.ReplaceAll(id, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		quoted[i] = `"` + escaped + `"`
	}
	return strings.Join(quoted, ",")
}

// rawID returns a JSON id as text; numeric ids are kept in their literal form.
func rawID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
