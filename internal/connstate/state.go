// Package connstate implements the slave connection state machine of
// spec.md §4.9: ABSENT → PENDING → ACTIVE → DEAD, with DEAD able to
// re-enter PENDING only via the bootstrap path.
package connstate

import "fmt"

// State is one point in a slave connection's lifecycle.
type State int

const (
	Absent State = iota
	Pending
	Active
	Dead
)

func (s State) String() string {
	switch s {
	case Absent:
		return "ABSENT"
	case Pending:
		return "PENDING"
	case Active:
		return "ACTIVE"
	case Dead:
		return "DEAD"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Transition is an edge in the state machine. Kind identifies which
// event, if any, the caller must synthesize after applying it.
type Transition int

const (
	// Silent transitions emit no event.
	Silent Transition = iota
	// EmitReconnect corresponds to PENDING→ACTIVE: the caller should
	// synthesize a SlaveReconnectEvent.
	EmitReconnect
	// EmitDisconnect corresponds to ACTIVE→DEAD: the caller should
	// synthesize a SlaveDisconnectEvent.
	EmitDisconnect
)

// ErrInvalidTransition is returned by Machine.To for any edge not in
// {ABSENT→PENDING, PENDING→ACTIVE, ACTIVE→DEAD, DEAD→PENDING}.
type ErrInvalidTransition struct {
	From, To State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("connstate: invalid transition %s -> %s", e.From, e.To)
}

// Machine holds one connection's current state. It is not safe for
// concurrent use without external synchronization; callers serialize
// transitions through the connection's own reader goroutine.
type Machine struct {
	current State
}

// New returns a Machine starting in ABSENT.
func New() *Machine {
	return &Machine{current: Absent}
}

// Current reports the machine's current state.
func (m *Machine) Current() State {
	return m.current
}

// To attempts to move the machine to next, returning the Transition
// kind the caller must act on, or an error if the edge is not legal.
// DEAD can only re-enter PENDING, per spec.md §4.9 — a fresh Machine
// (ABSENT) must be used for an entirely new socket instead.
func (m *Machine) To(next State) (Transition, error) {
	switch {
	case m.current == Absent && next == Pending:
		m.current = next
		return Silent, nil
	case m.current == Pending && next == Active:
		m.current = next
		return EmitReconnect, nil
	case m.current == Active && next == Dead:
		m.current = next
		return EmitDisconnect, nil
	case m.current == Dead && next == Pending:
		m.current = next
		return Silent, nil
	default:
		return Silent, &ErrInvalidTransition{From: m.current, To: next}
	}
}
