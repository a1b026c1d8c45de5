package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessage_Body_Falls_Back_To_Attachment(t *testing.T) {
	req := require.New(t)

	req.Equal("hi", Message{Content: "hi", Attachment: "https://cdn/a.png"}.Body())
	req.Equal("https://cdn/a.png", Message{Attachment: "https://cdn/a.png"}.Body())
	req.Equal("", Message{}.Body())
}

func TestMessage_Before_Uses_Id_On_Equal_Timestamps(t *testing.T) {
	req := require.New(t)
	at := time.Now().UTC()

	first := Message{ID: 1, SentAt: at}
	second := Message{ID: 2, SentAt: at}
	later := Message{ID: 0, SentAt: at.Add(time.Second)}

	req.True(first.Before(second))
	req.False(second.Before(first))
	req.True(second.Before(later))
}

func TestDeveloper_Label(t *testing.T) {
	require.Equal(t, "Ann (app team): ", Developer{Name: "Ann"}.Label())
}

func TestResolvedIdentity_Render(t *testing.T) {
	req := require.New(t)

	user := ResolvedIdentity{Identity: UserIdentity(3), AccountID: 10}
	dev := ResolvedIdentity{Identity: DeveloperIdentity(4), AccountID: 11, Label: DeveloperLabel("Ann")}

	req.Equal("thanks", user.Render("thanks"))
	req.Equal("Ann (app team): hello", dev.Render("hello"))
	req.False(user.IsDeveloper())
	req.True(dev.IsDeveloper())
}

func TestConnectParams_Identity(t *testing.T) {
	req := require.New(t)

	req.Equal(UserIdentity(3), ConnectParams{Chat: 7, User: 3}.Identity())
	req.Equal(DeveloperIdentity(4), ConnectParams{Chat: 7, Dev: 4}.Identity())
	req.Equal(ChannelID(7), ConnectParams{Chat: 7, Dev: 4}.ChannelID())
}

func TestSessionState_Terminal(t *testing.T) {
	req := require.New(t)

	req.True(Closed.IsTerminal())
	req.True(Rejected.IsTerminal())
	req.False(Live.IsTerminal())
	req.Equal("REPLAYING", Replaying.String())
}
