package session

// State is the externally observable session lifecycle state. Start is only
// accepted in StateIdle; the state itself is the in-flight guard, so a guard
// flag can never desynchronize from the machine.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StatePushingAgent
	StateStartingAgent
	StateRunning
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StatePushingAgent:
		return "pushing-agent"
	case StateStartingAgent:
		return "starting-agent"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
