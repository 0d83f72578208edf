package orchestrator

// State identifies where a turn is in its lifecycle. A turn only moves
// forward; Blocked, Done, and Error are terminal.
type State int

const (
	StateStart State = iota
	StateModerating
	StateBlocked
	StateModelCall
	StateToolDispatch
	StateStreamingFinal
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateModerating:
		return "moderating"
	case StateBlocked:
		return "blocked"
	case StateModelCall:
		return "model_call"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateStreamingFinal:
		return "streaming_final"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateBlocked || s == StateDone || s == StateError
}
