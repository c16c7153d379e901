package harvest

import (
	"context"
	"time"
)

// Fetcher performs one attempt for one identifier. Implementations must be
// safe for concurrent use and must never fail: every transport or parse
// error is folded into the returned Outcome as status 0.
type Fetcher interface {
	Fetch(ctx context.Context, id ID) Outcome
}

// Sink persists settled outcomes. Append must survive process restarts
// without losing previously written records.
type Sink interface {
	Append(ctx context.Context, outcomes []Outcome) error
}

// Clock abstracts wall time and the inter-round cooldown sleep so the
// controller can be tested without waiting.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
