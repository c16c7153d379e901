// Package harvest defines core types shared across subsystems.
package harvest

import "fmt"

// ID is the numeric activation identifier driving one fetch attempt.
type ID int

// Padded renders the identifier zero-padded to the given width, matching the
// form used in target URLs and artifact names.
func (id ID) Padded(width int) string {
	return fmt.Sprintf("%0*d", width, int(id))
}

// Classification is the settlement decision derived from a fetch attempt.
type Classification string

// Classification values. Success, Absent, and Failed are terminal; a
// Transient outcome keeps the identifier alive for the next round.
const (
	ClassSuccess   Classification = "success"
	ClassAbsent    Classification = "absent"
	ClassTransient Classification = "transient"
	ClassFailed    Classification = "failed"
)

// Terminal reports whether an identifier with this classification is done.
func (c Classification) Terminal() bool {
	return c == ClassSuccess || c == ClassAbsent || c == ClassFailed
}

// Sentinel payload values recorded when no secret code could be extracted.
const (
	CodeNotFound = "Not Found"
	CodeError    = "Error"
)

// Outcome is the result of one fetch attempt for one identifier. An
// identifier may produce several Outcomes across rounds; exactly one, the
// first terminal one, is ever persisted.
type Outcome struct {
	ID         ID
	SecretCode string
	Status     int
	Class      Classification
	Attempt    int
}

// State describes the retry controller lifecycle.
type State string

// Controller states. Draining covers the cooldown between rounds.
const (
	StateRunning  State = "running"
	StateDraining State = "draining"
	StateDone     State = "done"
)

// Snapshot is a point-in-time view of controller progress, served by the
// optional HTTP endpoint. It is observability only.
type Snapshot struct {
	State   State `json:"state"`
	Round   int   `json:"round"`
	Total   int   `json:"total"`
	Settled int   `json:"settled"`
	Pending int   `json:"pending"`
}
