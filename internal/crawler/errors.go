package crawler

import "errors"

var (
	// ErrRetriesExhausted is returned when a bounded backoff policy runs out of attempts.
	ErrRetriesExhausted = errors.New("fetch retries exhausted")
	// ErrUnknownField is returned for a field name Record does not carry.
	ErrUnknownField = errors.New("unknown record field")
	// ErrPermanentFetch marks a request that cannot succeed by repeating it,
	// such as a URL disallowed by robots.txt or one that does not parse.
	ErrPermanentFetch = errors.New("permanent fetch failure")
	// ErrRetryableStatus marks an HTTP status the server expects clients to retry.
	ErrRetryableStatus = errors.New("retryable http status")
)
