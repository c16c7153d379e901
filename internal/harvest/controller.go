package harvest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/codefetch/harvester/internal/progress"
)

// Controller drives successive scheduler rounds over the shrinking retry set
// until every identifier has settled. Between rounds it sleeps a static
// cooldown so rate limits can recover. When MaxAttempts is positive, an
// identifier that stays transient for that many rounds is settled as failed
// instead of retrying forever.
type Controller struct {
	scheduler   *Scheduler
	sink        Sink
	clock       Clock
	cooldown    time.Duration
	maxAttempts int
	emitter     progress.Emitter
	runID       [16]byte
	logger      *zap.Logger

	mu   sync.Mutex
	snap Snapshot
}

// ControllerConfig bundles the retry-loop knobs.
type ControllerConfig struct {
	Cooldown    time.Duration
	MaxAttempts int
	RunID       [16]byte
}

// NewController constructs a Controller.
func NewController(
	scheduler *Scheduler,
	sink Sink,
	clock Clock,
	emitter progress.Emitter,
	cfg ControllerConfig,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		scheduler:   scheduler,
		sink:        sink,
		clock:       clock,
		cooldown:    cfg.Cooldown,
		maxAttempts: cfg.MaxAttempts,
		emitter:     emitter,
		runID:       cfg.RunID,
		logger:      logger,
	}
}

// Run processes ids to completion. It returns an error only when the durable
// sink rejects an append or the context dies; per-identifier failures never
// abort the run. On a nil return every input identifier has exactly one
// persisted terminal outcome.
func (c *Controller) Run(ctx context.Context, ids []ID) error {
	attempts := make(map[ID]int, len(ids))
	pending := ids
	settledTotal := 0

	c.setSnapshot(Snapshot{State: StateRunning, Total: len(ids), Pending: len(pending)})
	c.emit(progress.Event{Stage: progress.StageRunStart, Pending: len(pending)})

	for round := 1; len(pending) > 0; round++ {
		c.setSnapshot(Snapshot{
			State:   StateRunning,
			Round:   round,
			Total:   len(ids),
			Settled: settledTotal,
			Pending: len(pending),
		})
		c.logger.Info("round started",
			zap.Int("round", round),
			zap.Int("pending", len(pending)),
		)

		settled, retry := c.scheduler.RunRound(ctx, round, pending)
		for i := range settled {
			settled[i].Attempt = attempts[settled[i].ID] + 1
		}
		settled, retry = c.applyAttemptBudget(attempts, settled, retry)

		if len(settled) > 0 {
			if err := c.sink.Append(ctx, settled); err != nil {
				return fmt.Errorf("append settled outcomes: %w", err)
			}
			settledTotal += len(settled)
		}

		next := make([]ID, 0, len(retry))
		for _, out := range retry {
			next = append(next, out.ID)
		}
		pending = next

		c.emit(progress.Event{
			Stage:   progress.StageRoundDone,
			Round:   round,
			Settled: len(settled),
			Pending: len(pending),
		})

		if len(pending) == 0 {
			break
		}

		c.setSnapshot(Snapshot{
			State:   StateDraining,
			Round:   round,
			Total:   len(ids),
			Settled: settledTotal,
			Pending: len(pending),
		})
		c.logger.Info("cooling down before retry",
			zap.Int("retrying", len(pending)),
			zap.Duration("cooldown", c.cooldown),
		)
		if err := c.clock.Sleep(ctx, c.cooldown); err != nil {
			return fmt.Errorf("cooldown interrupted: %w", err)
		}
	}

	c.setSnapshot(Snapshot{State: StateDone, Total: len(ids), Settled: settledTotal})
	c.emit(progress.Event{Stage: progress.StageRunDone, Settled: settledTotal})
	c.logger.Info("all identifiers settled", zap.Int("settled", settledTotal))
	return nil
}

// applyAttemptBudget counts the attempt each retry outcome just consumed and
// promotes exhausted identifiers to ClassFailed so they settle with their
// last observed status.
func (c *Controller) applyAttemptBudget(attempts map[ID]int, settled, retry []Outcome) ([]Outcome, []Outcome) {
	kept := retry[:0]
	for _, out := range retry {
		attempts[out.ID]++
		out.Attempt = attempts[out.ID]
		if c.maxAttempts > 0 && out.Attempt >= c.maxAttempts {
			out.Class = ClassFailed
			c.logger.Warn("identifier exhausted retry budget",
				zap.Int("id", int(out.ID)),
				zap.Int("attempts", out.Attempt),
				zap.Int("last_status", out.Status),
			)
			settled = append(settled, out)
			continue
		}
		kept = append(kept, out)
	}
	return settled, kept
}

// Snapshot returns the current progress view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *Controller) setSnapshot(s Snapshot) {
	c.mu.Lock()
	c.snap = s
	c.mu.Unlock()
}

func (c *Controller) emit(evt progress.Event) {
	if c.emitter == nil {
		return
	}
	evt.RunID = c.runID
	evt.TS = c.clock.Now()
	c.emitter.Emit(evt)
}
