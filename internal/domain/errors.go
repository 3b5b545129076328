package domain

import "errors"

// Error taxonomy for outbound marketplace calls. The request pipeline
// classifies every failure into exactly one of these sentinels so callers
// can decide retry behaviour with errors.Is instead of string matching.
var (
	// ErrTransport covers network-level failures and request timeouts.
	// Retryable.
	ErrTransport = errors.New("transport error")

	// ErrRateLimited is a 429 from the upstream API. Retryable, honouring
	// Retry-After when the server provides one.
	ErrRateLimited = errors.New("rate limited by upstream")

	// ErrServer is a 5xx from the upstream API. Retryable.
	ErrServer = errors.New("upstream server error")

	// ErrClient is a 4xx other than 401/403/429. Not retryable; the request
	// itself is at fault.
	ErrClient = errors.New("client error")

	// ErrAuth is a 401 or 403. Not retryable; implies bad credentials or
	// clock skew on the signed date header.
	ErrAuth = errors.New("authentication rejected")

	// ErrSchemaMismatch means the response body did not decode into the
	// expected shape. Not retryable; surfaced loudly because it usually
	// means the upstream API changed underneath us.
	ErrSchemaMismatch = errors.New("response schema mismatch")

	// ErrCircuitOpen is a local fail-fast while an endpoint class's circuit
	// breaker is open. Safe to retry later.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrRateLimitTimeout means the caller gave up waiting for a local
	// rate-limiter slot. Safe to retry later.
	ErrRateLimitTimeout = errors.New("rate limit wait timed out")

	// ErrInvalidKeyFormat means a configured signing secret could not be
	// decoded into usable key material.
	ErrInvalidKeyFormat = errors.New("invalid key format")

	// ErrNotFound is returned by stores and caches for missing records.
	ErrNotFound = errors.New("not found")

	// ErrCheckpointRegressed means a checkpoint save attempted to lower the
	// processed count of an existing checkpoint.
	ErrCheckpointRegressed = errors.New("checkpoint progress regressed")

	// ErrQueueClosed is returned when enqueueing to or draining from a
	// closed notification queue.
	ErrQueueClosed = errors.New("queue closed")

	// ErrFeedDisabled signals that the real-time feed for a game has been
	// permanently disabled for this process after exhausting reconnects.
	ErrFeedDisabled = errors.New("feed disabled")
)

// Retryable reports whether err belongs to a transient class that the
// request pipeline retries locally.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServer)
}
