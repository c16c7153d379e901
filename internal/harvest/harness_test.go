package harvest

import (
	"context"
	"sync"
	"time"
)

// stubFetcher replays a scripted sequence of outcomes per identifier; once a
// script is exhausted the last outcome repeats.
type stubFetcher struct {
	mu      sync.Mutex
	scripts map[ID][]Outcome
	calls   map[ID]int
}

func newStubFetcher(scripts map[ID][]Outcome) *stubFetcher {
	return &stubFetcher{
		scripts: scripts,
		calls:   make(map[ID]int),
	}
}

func (f *stubFetcher) Fetch(_ context.Context, id ID) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	script := f.scripts[id]
	call := f.calls[id]
	f.calls[id]++
	if len(script) == 0 {
		return Outcome{ID: id, SecretCode: CodeError, Status: 0}
	}
	if call >= len(script) {
		call = len(script) - 1
	}
	out := script[call]
	out.ID = id
	return out
}

func (f *stubFetcher) callCount(id ID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// fakeClock advances a fixed step per Now call and records cooldown sleeps
// without waiting.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) sleepCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sleeps)
}

// memorySink records appended batches in order.
type memorySink struct {
	mu      sync.Mutex
	batches [][]Outcome
	err     error
}

func (s *memorySink) Append(_ context.Context, outcomes []Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, append([]Outcome(nil), outcomes...))
	return nil
}

func (s *memorySink) rows() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Outcome
	for _, batch := range s.batches {
		all = append(all, batch...)
	}
	return all
}
