package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited rejects a request whose agent has spent its token
	// budget. No queueing; the caller decides whether to retry.
	ErrRateLimited = errors.New("rate limited")

	// ErrChainExhausted reports that every backend in the chain failed.
	ErrChainExhausted = errors.New("fallback chain exhausted")

	// ErrOrphaned discards a result whose requesting agent disappeared
	// while the call was in flight.
	ErrOrphaned = errors.New("requesting agent no longer exists")
)

// ErrorKind classifies a backend failure. Every kind advances the chain
// to the next backend.
type ErrorKind string

const (
	KindTimeout             ErrorKind = "timeout"
	KindUnavailable         ErrorKind = "unavailable"
	KindRateLimitedUpstream ErrorKind = "rate_limited_upstream"
	KindInvalidResponse     ErrorKind = "invalid_response"
)

// BackendError is one backend's failure, tagged with which backend and why.
type BackendError struct {
	Backend string
	Kind    ErrorKind
	Err     error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
