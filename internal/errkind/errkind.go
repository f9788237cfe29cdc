// Package errkind classifies the fatal failures the core can raise, taking
// the place of the original's throw(0) (spec.md §7): every failure is a
// returned Go error carrying a Kind so a caller (or the CLI's top-level
// handler) can report what category of problem stopped the run without
// parsing message text.
package errkind

import "fmt"

// Kind categorizes a failure.
type Kind int

const (
	// Config covers a missing or malformed configuration key.
	Config Kind = iota
	// Data covers a malformed or out-of-range input row or column.
	Data
	// Split covers a splitter or tree-growth invariant violation.
	Split
	// Codec covers a malformed weights-file line.
	Codec
	// State covers an operation attempted in the wrong lifecycle state
	// (e.g. weighting a tree that has no final nodes).
	State
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "ConfigError"
	case Data:
		return "DataError"
	case Split:
		return "SplitError"
	case Codec:
		return "CodecError"
	case State:
		return "StateError"
	default:
		return "UnknownError"
	}
}

// Error wraps an underlying cause with a Kind and the component that raised
// it, so the CLI can print "[ConfigError] reweighter: ..." and a log
// consumer can filter by kind.
type Error struct {
	Kind      Kind
	Component string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Component, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error from a format string, mirroring fmt.Errorf.
func New(kind Kind, component, format string, args ...interface{}) error {
	return &Error{Kind: kind, Component: component, Cause: fmt.Errorf(format, args...)}
}

// Wrap attaches a Kind and component to an existing error.
func Wrap(kind Kind, component string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Cause: err}
}
