package session

// State is a session's position in its lifecycle.  A session moves
// strictly forward; it may jump from AwaitingName or Registered straight
// to Closing, and it reaches Closed exactly once.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingName
	StateRegistered
	StateRelaying
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingName:
		return "awaiting-name"
	case StateRegistered:
		return "registered"
	case StateRelaying:
		return "relaying"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
