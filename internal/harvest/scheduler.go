package harvest

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/codefetch/harvester/internal/progress"
)

// Scheduler runs one round: it dispatches fetches for a snapshot of pending
// identifiers with bounded concurrency, joins every completion, and splits
// the outcomes into settled and retry.
type Scheduler struct {
	fetcher     Fetcher
	concurrency int
	clock       Clock
	emitter     progress.Emitter
	runID       [16]byte
	logger      *zap.Logger
}

// NewScheduler constructs a Scheduler. Concurrency is the upper bound on
// simultaneously in-flight fetches.
func NewScheduler(
	fetcher Fetcher,
	concurrency int,
	clock Clock,
	emitter progress.Emitter,
	runID [16]byte,
	logger *zap.Logger,
) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		fetcher:     fetcher,
		concurrency: concurrency,
		clock:       clock,
		emitter:     emitter,
		runID:       runID,
		logger:      logger,
	}
}

// RunRound fetches every identifier in ids and partitions the outcomes.
// Terminal outcomes are returned as settled; transient ones as retry, so the
// controller can consult the last observed status when applying the attempt
// budget. The union of both slices covers ids exactly once; completion order
// is not deterministic.
func (s *Scheduler) RunRound(ctx context.Context, round int, ids []ID) (settled, retry []Outcome) {
	if len(ids) == 0 {
		return nil, nil
	}

	jobs := make(chan ID)
	results := make(chan Outcome, len(ids))

	workers := s.concurrency
	if len(ids) < workers {
		workers = len(ids)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				results <- s.attempt(ctx, round, id)
			}
		}()
	}

	for _, id := range ids {
		jobs <- id
	}
	close(jobs)
	wg.Wait()
	close(results)

	for out := range results {
		if out.Class.Terminal() {
			settled = append(settled, out)
		} else {
			retry = append(retry, out)
		}
	}

	s.logger.Info("round complete",
		zap.Int("round", round),
		zap.Int("dispatched", len(ids)),
		zap.Int("settled", len(settled)),
		zap.Int("retrying", len(retry)),
	)
	return settled, retry
}

func (s *Scheduler) attempt(ctx context.Context, round int, id ID) Outcome {
	start := s.clock.Now()
	out := s.fetcher.Fetch(ctx, id)
	out.ID = id
	out.Class = Classify(out.Status)

	if s.emitter != nil {
		s.emitter.Emit(progress.Event{
			RunID:  s.runID,
			TS:     s.clock.Now(),
			Stage:  progress.StageFetchDone,
			Round:  round,
			ID:     int(id),
			Status: out.Status,
			Class:  string(out.Class),
			Dur:    s.clock.Now().Sub(start),
		})
	}
	return out
}
