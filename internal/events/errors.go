package events

import (
	"fmt"
	"time"
)

// RateLimitedError marks a chunk attempt the provider throttled. It is
// recovered internally by backing off and retrying the same chunk; it
// only escapes wrapped in an EventQueryError once retries exhaust.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// EventQueryError means some chunk exhausted its retries. The whole
// aggregation fails with it; partial sums are discarded, never
// returned as a misleadingly low total.
type EventQueryError struct {
	FromBlock uint64
	ToBlock   uint64
	Attempts  int
	Err       error
}

func (e *EventQueryError) Error() string {
	return fmt.Sprintf("event query failed for blocks %d-%d after %d attempts: %v",
		e.FromBlock, e.ToBlock, e.Attempts, e.Err)
}

func (e *EventQueryError) Unwrap() error { return e.Err }
