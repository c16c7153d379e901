package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageRoundDone Stage = "ROUND_DONE"
	StageRunDone   Stage = "RUN_DONE"
	StageFetchDone Stage = "FETCH_DONE"
)

// Event captures a single milestone of harvest progress.
type Event struct {
	// RunID uniquely identifies a harvest run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Round is the retry round the event belongs to (1-based).
	Round int
	// ID is the activation identifier for fetch events.
	ID int
	// Status carries the HTTP status observed by a fetch (0 = transport error).
	Status int
	// Class is the classification label assigned to a fetch outcome.
	Class string
	// Settled is the number of outcomes persisted by a round, or the run total.
	Settled int
	// Pending is the retry-set size after a round.
	Pending int
	// Dur captures fetch latency.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRoundDone, StageRunDone:
	case StageFetchDone:
		if e.ID <= 0 {
			return errors.New("fetch done requires an identifier")
		}
		if e.Class == "" {
			return errors.New("fetch done requires a classification")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
