package domain

// SessionState is the lifecycle of one client connection.
type SessionState int

const (
	Connecting SessionState = iota
	IdentityResolving
	Joining
	Replaying
	Live
	Closed
	Rejected
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case IdentityResolving:
		return "IDENTITY_RESOLVING"
	case Joining:
		return "JOINING"
	case Replaying:
		return "REPLAYING"
	case Live:
		return "LIVE"
	case Closed:
		return "CLOSED"
	case Rejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

func (s SessionState) IsTerminal() bool {
	return s == Closed || s == Rejected
}
