package domain

import "fmt"

type IdentityKind int

const (
	KindUser IdentityKind = iota
	KindDeveloper
)

func (k IdentityKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindDeveloper:
		return "developer"
	default:
		return "unknown"
	}
}

// ConnectingIdentity is either User(id) or Developer(id), decided once at connect time.
type ConnectingIdentity struct {
	Kind IdentityKind
	ID   int
}

func UserIdentity(id UserID) ConnectingIdentity {
	return ConnectingIdentity{Kind: KindUser, ID: int(id)}
}

func DeveloperIdentity(id DeveloperID) ConnectingIdentity {
	return ConnectingIdentity{Kind: KindDeveloper, ID: int(id)}
}

func (c ConnectingIdentity) String() string {
	return fmt.Sprintf("%s(%d)", c.Kind, c.ID)
}

// ResolvedIdentity carries the sender account and its display label rule
// for the whole lifetime of a session.
type ResolvedIdentity struct {
	Identity  ConnectingIdentity
	AccountID AccountID
	Name      string
	Label     string
}

func (r ResolvedIdentity) IsDeveloper() bool {
	return r.Identity.Kind == KindDeveloper
}

// Render builds the outbound payload for a text spoken by this identity.
func (r ResolvedIdentity) Render(text string) string {
	return r.Label + text
}

// ConnectParams are supplied by the client when opening a connection.
// Zero means absent. Exactly one of User and Dev must be set.
type ConnectParams struct {
	Chat int `validate:"required,gt=0"`
	User int `validate:"required_without=Dev,excluded_with=Dev,gte=0"`
	Dev  int `validate:"required_without=User,excluded_with=User,gte=0"`
}

// Identity returns the tagged identity. Params must have been validated.
func (p ConnectParams) Identity() ConnectingIdentity {
	if p.Dev != 0 {
		return DeveloperIdentity(DeveloperID(p.Dev))
	}
	return UserIdentity(UserID(p.User))
}

func (p ConnectParams) ChannelID() ChannelID {
	return ChannelID(p.Chat)
}
