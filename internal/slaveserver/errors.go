package slaveserver

import "errors"

// ErrSlaveNotReachable is returned by every outbound operation
// (start_component, stop_component, start_clone_session,
// check_component) when no connection is currently registered under
// the requested hostname.
var ErrSlaveNotReachable = errors.New("slaveserver: slave not reachable")
