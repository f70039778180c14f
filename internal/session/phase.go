package session

// Phase is the lifecycle phase of a session.
type Phase int

const (
	// PhaseIdle has no user and no push channel.
	PhaseIdle Phase = iota
	// PhaseAuthenticating has a login or register request in flight.
	PhaseAuthenticating
	// PhaseAuthenticated has an open push channel bound to the user.
	PhaseAuthenticated
	// PhaseDisconnecting is tearing down after a logout.
	PhaseDisconnecting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// State is a consistent snapshot of a session.
type State struct {
	// ID correlates log lines of one authenticated session. Empty unless
	// Phase is PhaseAuthenticated or PhaseDisconnecting.
	ID    string
	User  string
	Phase Phase
}
