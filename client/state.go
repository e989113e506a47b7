package client

// State is the connection controller's lifecycle state. Idle is both the
// entry point and the terminal state after an explicit Disconnect;
// Disconnected is the terminal failure state after retry exhaustion or a
// failed join, cleared only by a manual Reconnect.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}
