package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/sink"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// SessionService drives one client connection from its handshake to its close.
type SessionService struct {
	store      contract.IRecordStore
	resolver   contract.IIdentityResolver
	registry   contract.IRegistry
	replay     IReplayService
	relay      IRelayService
	validator  *validator.Validate
	log        *slog.Logger
	metrics    *observability.Metrics
	bufferSize int
}

func NewSessionService(
	store contract.IRecordStore,
	resolver contract.IIdentityResolver,
	registry contract.IRegistry,
	replay IReplayService,
	relay IRelayService,
	log *slog.Logger,
	metrics *observability.Metrics,
	bufferSize int,
) *SessionService {
	return &SessionService{
		store:      store,
		resolver:   resolver,
		registry:   registry,
		replay:     replay,
		relay:      relay,
		validator:  validator.New(),
		log:        log,
		metrics:    metrics,
		bufferSize: bufferSize,
	}
}

// session is the per connection state; it lives as long as Serve.
type session struct {
	id       string
	state    domain.SessionState
	channel  domain.Channel
	identity domain.ResolvedIdentity
	log      *slog.Logger
}

func (s *session) transition(state domain.SessionState) {
	s.log.Debug("Session state changed", "from", s.state.String(), "to", state.String())
	s.state = state
}

// Serve runs a connection to completion and returns its terminal state.
// Rejections are silent for the client: the connection is closed without any frame.
func (s *SessionService) Serve(ctx context.Context, params domain.ConnectParams, conn contract.Connection) domain.SessionState {
	sess := &session{id: uuid.NewString(), state: domain.Connecting}
	sess.log = s.log.With("session_id", sess.id, "chat_id", params.Chat)
	defer func() {
		if err := conn.Close(); err != nil {
			sess.log.Debug("Connection already closed", "error", err)
		}
	}()

	if err := s.validator.Struct(params); err != nil {
		return s.reject(sess, "validation", err)
	}

	sess.transition(domain.IdentityResolving)
	channel, err := s.store.GetChannel(params.ChannelID())
	if err != nil {
		return s.reject(sess, "channel", err)
	}
	identity, err := s.resolver.ResolveConnecting(params.Identity())
	if err != nil {
		return s.reject(sess, "identity", err)
	}
	sess.channel, sess.identity = channel, identity
	sess.log = sess.log.With("identity", identity.Identity.String())

	sess.transition(domain.Joining)
	connectionSink := sink.NewConnectionSink(s.bufferSize)
	s.registry.Join(channel.ID, sess.id, connectionSink)

	// Receive blocks on the socket, closing it is the only way to unblock it on shutdown
	stopWatch := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopWatch()

	sess.transition(domain.Replaying)
	_, err = s.replay.Replay(ctx, channel, identity, func(payload string) error {
		return conn.Send(domain.ChatMessage(payload))
	})
	if err != nil {
		s.registry.Leave(channel.ID, sess.id)
		if stderrors.Is(err, errors.ErrStore) {
			return s.reject(sess, "replay", err)
		}
		sess.log.Info("Connection lost during replay", "error", err)
		sess.transition(domain.Closed)
		return sess.state
	}

	sess.transition(domain.Live)
	s.metrics.SessionAccepted()
	defer s.metrics.SessionClosed()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pump(sess, conn, connectionSink, done)
	}()

	s.readLoop(ctx, sess, conn)

	s.registry.Leave(channel.ID, sess.id)
	close(done)
	wg.Wait()
	sess.transition(domain.Closed)
	sess.log.Info("Session closed")
	return sess.state
}

// readLoop relays inbound chat messages until the client goes away.
// A failed relay is logged by the relay itself and keeps the session live.
func (s *SessionService) readLoop(ctx context.Context, sess *session, conn contract.Connection) {
	for {
		frame, err := conn.Receive()
		if err != nil {
			sess.log.Debug("Connection ended", "error", err)
			return
		}
		if !frame.IsChatMessage() {
			sess.log.Debug("Ignoring unsupported event", "event", frame.Event)
			continue
		}
		_ = s.relay.Relay(ctx, sess.channel, sess.identity, frame.Data)
	}
}

// pump writes live broadcasts to the socket. It only starts once history has been replayed,
// payloads broadcast in the meantime wait in the connection sink.
func (s *SessionService) pump(sess *session, conn contract.Connection, connectionSink *sink.ConnectionSink, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload := <-connectionSink.Payloads:
			if err := conn.Send(domain.ChatMessage(payload)); err != nil {
				sess.log.Debug("Live payload not written", "error", err)
				_ = conn.Close()
				return
			}
		}
	}
}

func (s *SessionService) reject(sess *session, reason string, err error) domain.SessionState {
	sess.log.Warn("Connection rejected", "reason", reason, "state", sess.state.String(), "error", err)
	s.metrics.SessionRejected(reason)
	sess.transition(domain.Rejected)
	return sess.state
}
