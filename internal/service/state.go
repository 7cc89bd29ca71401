package service

// State is the lifecycle state of a managed process.
//
// Pending -> Starting -> Ready -> Running -> Stopping -> Stopped
// with Failed reachable from any non-terminal state. Stopped and Failed are
// terminal; records stay in the active set until the launcher exits so the
// final state table can be reported.
type State int32

const (
	StatePending State = iota
	StateStarting
	StateReady
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateStopped || s == StateFailed }

// StateNames lists every state string, in lifecycle order. Used by metrics
// to zero out gauges for inactive states.
func StateNames() []string {
	return []string{"pending", "starting", "ready", "running", "stopping", "stopped", "failed"}
}
