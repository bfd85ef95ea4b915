// Package dispatch implements the handler-table/response-table request
// dispatcher shared by the UI server and the slave server (spec.md
// §4.4): one action name maps to one handler and, optionally, one
// response-routing rule.
package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/hyperion-cluster/hyperion/internal/metrics"
	"github.com/hyperion-cluster/hyperion/internal/registry"
	"github.com/hyperion-cluster/hyperion/internal/wire"
)

// ResponseType selects how a handler's return value is routed back out.
type ResponseType int

const (
	// NoResponse means the handler's return value, if any, is ignored.
	NoResponse ResponseType = iota
	// Single enqueues the response only on the connection that sent
	// the request.
	Single
	// All enqueues the response on every connection registered with
	// this dispatcher's server.
	All
)

// HandlerFunc implements one action. The returned value is only used
// when the action is registered with Single or All; a nil error means
// success. Returning an error is logged as a HandlerException: the
// connection stays open and no response is emitted, per spec.md §7.
type HandlerFunc func(c *registry.Conn, args []any) (any, error)

// SignatureMismatchError indicates a handler was invoked with fewer
// arguments than it requires. The action is dropped; the connection is
// not affected.
type SignatureMismatchError struct {
	Action   string
	Got      int
	Required int
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("dispatch: action %q requires %d args, got %d", e.Action, e.Required, e.Got)
}

// UnknownActionError indicates no handler is registered for an action.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("dispatch: unknown action %q", e.Action)
}

type entry struct {
	handler      HandlerFunc
	minArgs      int
	responseType ResponseType
}

// SpecialCase is consulted before the handler table on every dispatched
// action. Returning handled=true short-circuits the rest of Dispatch —
// used by the slave server's auth action, which records identity
// rather than invoking a registered handler.
type SpecialCase func(c *registry.Conn, env wire.Envelope) (handled bool)

// Dispatcher holds one server's handler table and response table and
// implements the 4-step dispatch algorithm of spec.md §4.4.
type Dispatcher struct {
	Registry    *registry.Registry
	SpecialCase SpecialCase
	Logger      *slog.Logger

	table map[string]entry
}

// New builds an empty Dispatcher bound to reg, whose Connections/Broadcast
// are used to route "all"-type responses.
func New(reg *registry.Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{Registry: reg, Logger: logger, table: make(map[string]entry)}
}

// Register adds action to the handler table. minArgs is the smallest
// number of Args elements the handler requires; fewer is a
// SignatureMismatchError. respType controls response routing.
func (d *Dispatcher) Register(action string, minArgs int, respType ResponseType, fn HandlerFunc) {
	d.table[action] = entry{handler: fn, minArgs: minArgs, responseType: respType}
}

// Dispatch runs the 4-step algorithm against one decoded frame:
//  1. "unsubscribe" short-circuits: unregister and close conn.
//  2. The dispatcher's SpecialCase hook, if any, is consulted.
//  3. The handler table is consulted; arity mismatches and panics are
//     recovered and logged, never propagated to the caller.
//  4. A registered response type encodes and routes the handler's
//     return value.
func (d *Dispatcher) Dispatch(c *registry.Conn, env wire.Envelope) {
	if env.Action == "unsubscribe" {
		c.MarkGraceful()
		d.Registry.Unregister(c)
		c.Net.Close()
		return
	}

	if d.SpecialCase != nil {
		if d.SpecialCase(c, env) {
			return
		}
	}

	e, ok := d.table[env.Action]
	if !ok {
		err := &UnknownActionError{Action: env.Action}
		d.Logger.Error("dropping unknown action", "error", err, "conn_id", c.ID)
		metrics.ActionsDispatchedTotal.WithLabelValues(env.Action, "unknown_action").Inc()
		return
	}

	if len(env.Args) < e.minArgs {
		err := &SignatureMismatchError{Action: env.Action, Got: len(env.Args), Required: e.minArgs}
		d.Logger.Error("dropping action", "error", err, "conn_id", c.ID)
		metrics.ActionsDispatchedTotal.WithLabelValues(env.Action, "signature_mismatch").Inc()
		return
	}

	result, err := d.invoke(e.handler, c, env.Args)
	if err != nil {
		d.Logger.Error("handler error", "action", env.Action, "conn_id", c.ID, "error", err)
		metrics.ActionsDispatchedTotal.WithLabelValues(env.Action, "handler_error").Inc()
		return
	}
	metrics.ActionsDispatchedTotal.WithLabelValues(env.Action, "ok").Inc()

	if e.responseType == NoResponse {
		return
	}

	frame, encErr := wire.Encode(env.Action+"_response", []any{result})
	if encErr != nil {
		d.Logger.Error("failed to encode response", "action", env.Action, "error", encErr)
		return
	}

	switch e.responseType {
	case Single:
		c.Send(frame)
	case All:
		d.Registry.Broadcast(frame)
	}
}

// invoke calls fn and converts a panic into a HandlerException-style
// error instead of crashing the connection's reader goroutine.
func (d *Dispatcher) invoke(fn HandlerFunc, c *registry.Conn, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return fn(c, args)
}
