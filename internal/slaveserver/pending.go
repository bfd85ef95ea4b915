package slaveserver

import (
	"sync"

	"github.com/hyperion-cluster/hyperion/internal/events"
)

// PendingChecks correlates outstanding check_component bounded-waits
// with the CheckEvent that eventually answers them, keyed by comp_id
// rather than by a generated request ID — only one check_component
// call may be outstanding for a given comp_id at a time, mirroring the
// single check_buffer slot of the Python original. Grounded in the
// teacher's workermgr.PendingRequests request/response correlation map,
// adapted from a request-ID key to a comp_id key and from a generic
// response message to events.CheckState.
type PendingChecks struct {
	mu      sync.Mutex
	waiters map[string]chan events.CheckState
}

// NewPendingChecks builds an empty correlation map.
func NewPendingChecks() *PendingChecks {
	return &PendingChecks{waiters: make(map[string]chan events.CheckState)}
}

// Register opens a single-slot wait channel for compID, replacing any
// previous one still outstanding (a fresh check_component call
// supersedes an old one for the same component, just as the Python
// original's single check_buffer slot does). The returned channel
// receives exactly one value from a matching Complete call, or never
// fires if the caller's deadline elapses first.
func (p *PendingChecks) Register(compID string) chan events.CheckState {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan events.CheckState, 1)
	p.waiters[compID] = ch
	return ch
}

// Complete delivers state to the waiter registered for compID, if one
// is still outstanding, and reports whether a waiter was found. A
// late-arriving CheckEvent for a comp_id whose waiter already timed
// out and was cleared by Cancel is silently dropped, matching
// spec.md's cancellation contract for check_component.
func (p *PendingChecks) Complete(compID string, state events.CheckState) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.waiters[compID]
	if !ok {
		return false
	}
	delete(p.waiters, compID)
	ch <- state
	return true
}

// Cancel removes compID's waiter without delivering a value, used
// once the bounded wait's deadline has elapsed so a CheckEvent that
// arrives afterward is dropped instead of delivered to a channel
// nobody is reading from anymore.
func (p *PendingChecks) Cancel(compID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.waiters, compID)
}
