// Package reject defines the error type every validation function returns.
// A rejection carries a kind and an optional DoS score the dispatcher
// aggregates onto the originating peer.
package reject

import (
	"errors"
	"fmt"
)

// Kind classifies a rejection. The kind decides whether the object is
// dropped, stored as an orphan, or retried.
type Kind int

// The set of rejection kinds.
const (
	Malformed Kind = iota
	Consensus
	DoSLite
	MissingInputs
	Stale
	Transient
	CheckpointRejected
	DuplicateStake
	DuplicateBurn
	BurnImmature
	OutOfRange
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case Consensus:
		return "consensus"
	case DoSLite:
		return "dos-lite"
	case MissingInputs:
		return "missing-inputs"
	case Stale:
		return "stale"
	case Transient:
		return "transient"
	case CheckpointRejected:
		return "checkpoint-rejected"
	case DuplicateStake:
		return "duplicate-stake"
	case DuplicateBurn:
		return "duplicate-burn"
	case BurnImmature:
		return "burn-immature"
	case OutOfRange:
		return "out-of-range"
	}
	return "unknown"
}

// =============================================================================

// Error represents a validation rejection.
type Error struct {
	Kind   Kind
	Score  int
	Reason string
}

// New constructs a rejection with no DoS score.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// DoS constructs a rejection carrying the specified DoS score.
func DoS(kind Kind, score int, format string, args ...any) *Error {
	return &Error{Kind: kind, Score: score, Reason: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Score > 0 {
		return fmt.Sprintf("%s (dos %d): %s", e.Kind, e.Score, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

// =============================================================================

// IsKind reports whether err is a rejection of the specified kind.
func IsKind(err error, kind Kind) bool {
	var rej *Error
	if errors.As(err, &rej) {
		return rej.Kind == kind
	}
	return false
}

// ScoreOf extracts the DoS score carried by err, or zero.
func ScoreOf(err error) int {
	var rej *Error
	if errors.As(err, &rej) {
		return rej.Score
	}
	return 0
}
