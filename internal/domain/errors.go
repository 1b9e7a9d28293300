package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoActiveSources is returned when a user has nothing to curate.
	ErrNoActiveSources = errors.New("no active sources")
	// ErrTimeout is returned when a fetch exceeds its client-side deadline.
	ErrTimeout = errors.New("request timed out")
	// ErrNotXML is returned when a feed response is empty or not XML.
	ErrNotXML = errors.New("response is not xml")
	// ErrNetwork covers DNS, connection and transport failures.
	ErrNetwork = errors.New("network error")
	// ErrNotFound is returned when a social handle cannot be resolved.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited is returned on an upstream 429.
	ErrRateLimited = errors.New("rate limited by upstream")
	// ErrDuplicateItem marks a re-insert of an existing (source, platform_id) pair.
	ErrDuplicateItem = errors.New("duplicate content item")
)

// ParseError reports a feed document that could not be parsed.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse feed: %s: %v", e.Reason, e.Err)
	}
	return "parse feed: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response other than 429.
type UpstreamError struct {
	Service    string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.Service, e.StatusCode)
}

// RateLimitExceededError is the ledger's denial for the local daily quota.
type RateLimitExceededError struct {
	Reason string
}

func (e *RateLimitExceededError) Error() string {
	return "rate limit exceeded: " + e.Reason
}

// SourceFetchError wraps the failure of a single source within a run.
type SourceFetchError struct {
	SourceID string
	Cause    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.SourceID, e.Cause)
}

func (e *SourceFetchError) Unwrap() error { return e.Cause }

// IsDuplicate reports whether err is a dedup-key violation, either ErrDuplicateItem
// or a driver error recognised by its message.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateItem) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate entry")
}
