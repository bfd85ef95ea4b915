// Package events defines the tagged event variants that flow from slave
// agents through the slave server's notify queue to the UI server's
// fan-out loop.
package events

import (
	"fmt"

	"github.com/hyperion-cluster/hyperion/internal/wire"
)

func init() {
	wire.Register(CheckEvent{})
	wire.Register(DisconnectEvent{})
	wire.Register(SlaveReconnectEvent{})
	wire.Register(SlaveDisconnectEvent{})
	wire.Register(ComponentStateEvent{})
	wire.Register(StartedEvent{})
	wire.Register(StoppedEvent{})
}

// CheckState is the outcome of one component health check.
type CheckState int

const (
	Running CheckState = iota
	Stopped
	StoppedButSuccessful
	StartedByHand
	DepFailed
	Unreachable
	NotInstalled
)

func (s CheckState) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Stopped:
		return "STOPPED"
	case StoppedButSuccessful:
		return "STOPPED_BUT_SUCCESSFUL"
	case StartedByHand:
		return "STARTED_BY_HAND"
	case DepFailed:
		return "DEP_FAILED"
	case Unreachable:
		return "UNREACHABLE"
	case NotInstalled:
		return "NOT_INSTALLED"
	default:
		return fmt.Sprintf("CheckState(%d)", int(s))
	}
}

// Event is the sealed tagged-union of cluster events. Every concrete
// event type embeds marker() so only this package's types satisfy the
// interface; forwarding code type-switches on the concrete type rather
// than doing a runtime isinstance-style check.
type Event interface {
	marker()
	// Kind returns a stable, wire-independent name for the variant.
	// Used for logging and metrics labels.
	Kind() string
}

// CheckEvent reports the outcome of a component health check.
type CheckEvent struct {
	CompID     string
	CheckState CheckState
}

func (CheckEvent) marker()      {}
func (CheckEvent) Kind() string { return "check" }
func (e CheckEvent) String() string {
	return fmt.Sprintf("CheckEvent{comp_id=%s state=%s}", e.CompID, e.CheckState)
}

// DisconnectEvent reports that a host was lost.
type DisconnectEvent struct {
	HostName string
}

func (DisconnectEvent) marker()      {}
func (DisconnectEvent) Kind() string { return "disconnect" }
func (e DisconnectEvent) String() string {
	return fmt.Sprintf("DisconnectEvent{host=%s}", e.HostName)
}

// SlaveReconnectEvent reports a slave handshake succeeding after prior
// liveness (reconnect, not first connect).
type SlaveReconnectEvent struct {
	HostName string
	Port     int
}

func (SlaveReconnectEvent) marker()      {}
func (SlaveReconnectEvent) Kind() string { return "slave_reconnect" }
func (e SlaveReconnectEvent) String() string {
	return fmt.Sprintf("SlaveReconnectEvent{host=%s port=%d}", e.HostName, e.Port)
}

// SlaveDisconnectEvent reports a slave socket dying.
type SlaveDisconnectEvent struct {
	HostName string
	Port     int
}

func (SlaveDisconnectEvent) marker()      {}
func (SlaveDisconnectEvent) Kind() string { return "slave_disconnect" }
func (e SlaveDisconnectEvent) String() string {
	return fmt.Sprintf("SlaveDisconnectEvent{host=%s port=%d}", e.HostName, e.Port)
}

// ComponentStateEvent, StartedEvent and StoppedEvent are opaque further
// variants the core only forwards — component-state transitions and
// start/stop acknowledgements produced by the out-of-scope dependency
// engine and component executor.
type ComponentStateEvent struct {
	CompID string
	State  string
}

func (ComponentStateEvent) marker()      {}
func (ComponentStateEvent) Kind() string { return "component_state" }

type StartedEvent struct {
	CompID string
}

func (StartedEvent) marker()      {}
func (StartedEvent) Kind() string { return "started" }

type StoppedEvent struct {
	CompID string
}

func (StoppedEvent) marker()      {}
func (StoppedEvent) Kind() string { return "stopped" }
