// Package controlcenter declares the out-of-scope collaborator the UI
// server delegates component lifecycle and configuration operations
// to, and supplies an in-memory reference implementation sufficient to
// exercise every UI action end-to-end without reimplementing the
// dependency engine or component executor.
package controlcenter

import (
	"sync"
	"time"

	"github.com/hyperion-cluster/hyperion/internal/util/timefmt"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

func init() {
	wire.Register(map[string]HostState{})
	wire.Register(map[string]HostStats{})
}

// HostState is the connection last-seen timestamp and connection
// state reported by get_host_states.
type HostState struct {
	LastSeen time.Time
	State    string
}

// LastSeenISO8601 formats LastSeen the way the core's own logs render
// it. get_host_states sends the HostState value itself, with LastSeen
// as a time.Time.
func (s HostState) LastSeenISO8601() string {
	return timefmt.Format(s.LastSeen)
}

// HostStats is the resource-usage snapshot reported by get_host_stats.
type HostStats struct {
	CPUPercent    float64
	MemoryPercent float64
}

// ControlCenter is the collaborator the dependency engine and
// component executor live behind. The UI server only ever calls
// through this interface; it never starts a process or resolves a
// dependency graph itself.
type ControlCenter interface {
	StartAll()
	StopAll()
	// Start looks up comp_id; it returns false if comp_id is unknown,
	// which the caller logs and drops rather than surfacing to the
	// client.
	Start(compID string, force bool) bool
	Stop(compID string) bool
	Check(compID string) bool
	ReloadConfig()
	ReconnectWithHost(host string) bool
	// RunsOnMaster reports whether compID is configured to run on the
	// master host itself, so start_clone_session can decide between a
	// local clone and a Slave server round trip.
	RunsOnMaster(compID string) bool
	StartCloneSessionLocal(compID string) bool
	// HostForComponent resolves which host a component is configured
	// to run on. ok is false for an unknown comp_id.
	HostForComponent(compID string) (host string, ok bool)
	ConfSnapshot() map[string]string
	HostStates() map[string]HostState
	HostStats() map[string]HostStats
	// MarkHostDisconnected is invoked by the UI server's fan-out loop
	// when it forwards a DisconnectEvent, so that a client querying
	// get_host_states right afterwards observes consistent state.
	MarkHostDisconnected(host string)
	Shutdown()
}

// Reference is an in-memory ControlCenter sufficient for tests and for
// a standalone single-host deployment with no slaves. It tracks a
// fixed component table and lets tests seed host state/stats directly.
type Reference struct {
	mu         sync.Mutex
	components map[string]bool // comp_id -> runs on master
	conf       map[string]string
	hostStates map[string]HostState
	hostStats  map[string]HostStats
}

// NewReference builds a Reference seeded with components, a map from
// comp_id to whether it runs on the master host.
func NewReference(components map[string]bool) *Reference {
	return &Reference{
		components: components,
		conf:       make(map[string]string),
		hostStates: make(map[string]HostState),
		hostStats:  make(map[string]HostStats),
	}
}

func (r *Reference) StartAll() {}
func (r *Reference) StopAll()  {}

func (r *Reference) Start(compID string, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.components[compID]
	return ok
}

func (r *Reference) Stop(compID string) bool {
	return r.Start(compID, false)
}

func (r *Reference) Check(compID string) bool {
	return r.Start(compID, false)
}

func (r *Reference) ReloadConfig() {}

func (r *Reference) ReconnectWithHost(host string) bool { return true }

func (r *Reference) RunsOnMaster(compID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.components[compID]
}

func (r *Reference) StartCloneSessionLocal(compID string) bool {
	return r.RunsOnMaster(compID)
}

func (r *Reference) HostForComponent(compID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.components[compID]
	if !ok {
		return "", false
	}
	return "localhost", true
}

// MarkHostDisconnected zeroes LastSeen as a sentinel for "unknown/stale"
// rather than stamping the disconnect time — a disconnected host has,
// by definition, nothing more recent to report.
func (r *Reference) MarkHostDisconnected(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostStates[host] = HostState{State: "DISCONNECTED", LastSeen: time.Time{}}
}

func (r *Reference) ConfSnapshot() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.conf))
	for k, v := range r.conf {
		out[k] = v
	}
	return out
}

// SetConf lets a test populate the configuration snapshot returned by
// get_conf.
func (r *Reference) SetConf(conf map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conf = conf
}

func (r *Reference) HostStates() map[string]HostState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]HostState, len(r.hostStates))
	for k, v := range r.hostStates {
		out[k] = v
	}
	return out
}

// SetHostState records or updates one host's last-seen/connection
// state. The UI server's fan-out loop does not call it; on a
// DisconnectEvent it calls MarkHostDisconnected instead.
func (r *Reference) SetHostState(host string, s HostState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostStates[host] = s
}

func (r *Reference) HostStats() map[string]HostStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]HostStats, len(r.hostStats))
	for k, v := range r.hostStats {
		out[k] = v
	}
	return out
}

func (r *Reference) SetHostStats(host string, s HostStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hostStats[host] = s
}

func (r *Reference) Shutdown() {}
