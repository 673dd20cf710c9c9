package aggregator

import "errors"

var (
	// ErrStorageUnavailable means the local store could not be read or written.
	ErrStorageUnavailable = errors.New("local storage unavailable")
	// ErrRemoteValidationFailed means the existence check against the backend failed.
	ErrRemoteValidationFailed = errors.New("remote validation failed")
	// ErrRemoteWriteFailed means the batched upsert failed.
	ErrRemoteWriteFailed = errors.New("remote write failed")
	// ErrIPResolutionFailed means the public IP could not be resolved; UnknownIP is used instead.
	ErrIPResolutionFailed = errors.New("ip resolution failed")
	// ErrFlushInProgress is returned by Flush when another flush is running.
	ErrFlushInProgress = errors.New("flush already in progress")
	// ErrClosed is returned by operations on a closed aggregator.
	ErrClosed = errors.New("aggregator closed")
)
