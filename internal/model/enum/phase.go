package enum

// Phase is the lifecycle position of a streaming feed connection.
type Phase uint8

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseAuthenticating
	PhaseSubscribed
	PhaseDegraded
)

func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseSubscribed:
		return "subscribed"
	case PhaseDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}
