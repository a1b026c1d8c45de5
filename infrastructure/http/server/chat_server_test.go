package server

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

type relayFixture struct {
	srv       *httptest.Server
	store     *repositories.Store
	indexSink *sink.IndexSink
	channel   domain.Channel
	user      domain.User
	developer domain.Developer
}

// newRelayFixture provisions channel with a user and the developer Ann,
// and a history of "hi" from the user then "hello" from Ann.
func newRelayFixture(t *testing.T) relayFixture {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	store, err := repositories.NewStore(db, log, nil)
	req.NoError(err)
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	req.NoError(err)
	t.Cleanup(func() {
		_ = writer.Close()
		store.Close()
		_ = db.Close()
	})

	company, err := store.CreateCompany("Acme")
	req.NoError(err)
	app, err := store.CreateApp(domain.App{CompanyID: company.ID, Name: "Acme Shop"})
	req.NoError(err)
	userAccount, err := store.CreateAccount()
	req.NoError(err)
	user, err := store.CreateUser(userAccount.ID, "cust-1")
	req.NoError(err)
	devAccount, err := store.CreateAccount()
	req.NoError(err)
	developer, err := store.CreateDeveloper(domain.Developer{AccountID: devAccount.ID, CompanyID: company.ID, Name: "Ann", Email: "ann@acme.test"})
	req.NoError(err)
	channel, err := store.CreateChannel(app.ID, user.ID)
	req.NoError(err)
	_, err = store.CreateMessage(channel.ID, userAccount.ID, "hi")
	req.NoError(err)
	_, err = store.CreateMessage(channel.ID, devAccount.ID, "hello")
	req.NoError(err)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	indexSink := sink.NewIndexSink(writer, log)
	queue := workers.NewIndexQueue(log, 16, metrics)
	go func() {
		_ = workers.NewIndexWorker(log, store, indexSink, queue.Jobs, time.Second, metrics).Run(ctx)
	}()

	identity := services.NewIdentityService(store, log)
	channels := runtime.NewRegistry(log, time.Second, metrics)
	replay := services.NewReplayService(store, identity, log, metrics)
	relay := services.NewRelayService(store, channels, queue, log, metrics)
	sessions := services.NewSessionService(store, identity, channels, replay, relay, log, metrics, 16)

	srv := httptest.NewServer(NewChatServer(ctx, log, sessions, indexSink, store, registry).Handler())
	t.Cleanup(srv.Close)

	return relayFixture{srv: srv, store: store, indexSink: indexSink, channel: channel, user: user, developer: developer}
}

func (f relayFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/socket?" + query
	conn, err := websocket.Dial(wsURL, "", f.srv.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) domain.Frame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var frame domain.Frame
	require.NoError(t, websocket.JSON.Receive(conn, &frame))
	return frame
}

func TestChatServer_Socket_Replay_Then_Relay(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	// When the user connects to its channel
	conn := f.dial(t, fmt.Sprintf("chat=%d&user=%d", f.channel.ID, f.user.ID))

	// Then the history is replayed with the developer label
	req.Equal(domain.ChatMessage("hi"), readFrame(t, conn))
	req.Equal(domain.ChatMessage("Ann (app team): hello"), readFrame(t, conn))

	// When a developer joins and the user says thanks
	dev := f.dial(t, fmt.Sprintf("chat=%d&dev=%d", f.channel.ID, f.developer.ID))
	req.Equal("hi", readFrame(t, dev).Data)
	req.Equal("Ann (app team): hello", readFrame(t, dev).Data)
	req.NoError(websocket.JSON.Send(conn, domain.ChatMessage("thanks")))

	// Then both members receive it, the sender included
	req.Equal(domain.ChatMessage("thanks"), readFrame(t, conn))
	req.Equal(domain.ChatMessage("thanks"), readFrame(t, dev))

	// And the developer answer is labeled for everyone
	req.NoError(websocket.JSON.Send(dev, domain.ChatMessage("you're welcome")))
	req.Equal("Ann (app team): you're welcome", readFrame(t, conn).Data)
	req.Equal("Ann (app team): you're welcome", readFrame(t, dev).Data)

	// And the message is indexed with its sender account
	req.Eventually(func() bool {
		docs, err := f.indexSink.Search(context.Background(), search.NewSearchQuery("thanks"))
		return err == nil && len(docs) == 1 && docs[0].SenderID == f.user.AccountID
	}, 2*time.Second, 20*time.Millisecond)

	// And persisted after the history
	messages, err := f.store.ListMessages(f.channel.ID)
	req.NoError(err)
	req.Len(messages, 4)
	req.Equal("thanks", messages[2].Content)
}

func TestChatServer_Socket_Rejects_Silently(t *testing.T) {
	testCases := map[string]string{
		"both identities":                 "chat=%d&user=1&dev=1",
		"no identity":                     "chat=%d",
		"not an integer":                  "chat=%d&user=abc",
		"invalid user beside a developer": "chat=%d&user=abc&dev=1",
		"unknown chat":                    "chat=99%d&user=1",
	}
	for name, query := range testCases {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			f := newRelayFixture(t)
			conn := f.dial(t, fmt.Sprintf(query, f.channel.ID))

			// The server closes the socket without sending anything
			_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
			var frame domain.Frame
			err := websocket.JSON.Receive(conn, &frame)
			req.ErrorIs(err, io.EOF)
		})
	}
}

func TestChatServer_Messages_Pages_Newest_First(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	resp, err := http.Get(fmt.Sprintf("%s/chats/%d/messages", f.srv.URL, f.channel.ID))
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var page messagesResponse
	req.NoError(json.NewDecoder(resp.Body).Decode(&page))
	req.Len(page.Messages, 2)
	req.Equal("hello", page.Messages[0].Content)
	req.Equal("hi", page.Messages[1].Content)
	req.NotNil(page.Cursor)
}

func TestChatServer_Up_And_Metrics(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture(t)

	resp, err := http.Get(f.srv.URL + "/up")
	req.NoError(err)
	_ = resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	resp, err = http.Get(f.srv.URL + "/metrics")
	req.NoError(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Contains(string(body), "relay_sessions_accepted_total")
}

func TestConnectParams(t *testing.T) {
	testCases := map[string]struct {
		query    string
		expected domain.ConnectParams
	}{
		"developer":                 {query: "chat=7&dev=5", expected: domain.ConnectParams{Chat: 7, Dev: 5}},
		"empty value is missing":    {query: "chat=7&user=3&dev=", expected: domain.ConnectParams{Chat: 7, User: 3}},
		"not an integer is invalid": {query: "chat=7&dev=5&user=x", expected: domain.ConnectParams{Chat: 7, User: invalidParam, Dev: 5}},
		"chat not an integer":       {query: "chat=seven&user=3", expected: domain.ConnectParams{Chat: invalidParam, User: 3}},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			r := httptest.NewRequest(http.MethodGet, "/socket?"+tc.query, nil)

			req.Equal(tc.expected, ConnectParams(r))
		})
	}
}

// slowSessions keeps a session busy after its context is canceled,
// like a relay still persisting when shutdown starts.
type slowSessions struct {
	started  chan struct{}
	finished atomic.Bool
}

func (s *slowSessions) Serve(ctx context.Context, _ domain.ConnectParams, _ contract.Connection) domain.SessionState {
	close(s.started)
	<-ctx.Done()
	time.Sleep(300 * time.Millisecond)
	s.finished.Store(true)
	return domain.Closed
}

func TestChatServer_Wait_For_Sessions_In_Flight(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given a live session still working when the server shuts down
	sessions := &slowSessions{started: make(chan struct{})}
	chatServer := NewChatServer(ctx, log, sessions, nil, nil, prometheus.NewRegistry())
	srv := httptest.NewServer(chatServer.Handler())
	defer srv.Close()
	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket?chat=1&user=1", "", srv.URL)
	req.NoError(err)
	defer conn.Close()
	<-sessions.started

	// When the process context is canceled and the HTTP server shut down
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	req.NoError(srv.Config.Shutdown(shutdownCtx))

	// Then Wait returns only once the session has finished
	req.NoError(chatServer.Wait(shutdownCtx))
	req.True(sessions.finished.Load())
}

func TestChatServer_Wait_Bounded_By_Context(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	// Given a session that never ends
	sessions := &slowSessions{started: make(chan struct{})}
	chatServer := NewChatServer(context.Background(), log, sessions, nil, nil, prometheus.NewRegistry())
	srv := httptest.NewServer(chatServer.Handler())
	defer srv.Close()
	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket?chat=1&user=1", "", srv.URL)
	req.NoError(err)
	defer conn.Close()
	<-sessions.started

	// When waiting with a short deadline
	waitCtx, stop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer stop()

	// Then Wait gives up with the deadline error
	req.ErrorIs(chatServer.Wait(waitCtx), context.DeadlineExceeded)
	req.False(sessions.finished.Load())
}

func TestChatServer_Refuses_Sessions_After_Wait(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	// Given a server already waiting for its sessions
	sessions := &slowSessions{started: make(chan struct{})}
	chatServer := NewChatServer(context.Background(), log, sessions, nil, nil, prometheus.NewRegistry())
	srv := httptest.NewServer(chatServer.Handler())
	defer srv.Close()
	req.NoError(chatServer.Wait(context.Background()))

	// When a client connects
	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/socket?chat=1&user=1", "", srv.URL)
	req.NoError(err)
	defer conn.Close()

	// Then it is closed without a session
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var frame domain.Frame
	req.ErrorIs(websocket.JSON.Receive(conn, &frame), io.EOF)
	select {
	case <-sessions.started:
		req.Fail("No session should have started")
	default:
	}
}
