package monitor

// State of the monitor workflow. A run moves forward only.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateBreached
	StateAwaitingConfirmation
	StateRestoring
	StateTerminated
)

var stateNames = [...]string{
	StateIdle:                 "idle",
	StatePolling:              "polling",
	StateBreached:             "breached",
	StateAwaitingConfirmation: "awaiting_confirmation",
	StateRestoring:            "restoring",
	StateTerminated:           "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// States lists every state in workflow order.
func States() []State {
	return []State{StateIdle, StatePolling, StateBreached, StateAwaitingConfirmation, StateRestoring, StateTerminated}
}
