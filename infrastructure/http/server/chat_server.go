package server

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/search"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"
)

type ISessionService interface {
	Serve(ctx context.Context, params domain.ConnectParams, conn contract.Connection) domain.SessionState
}

type IMessagePager interface {
	GetMessages(channelID domain.ChannelID, cursor *string) ([]domain.Message, *string, error)
}

// ChatServer exposes the relay over websockets plus a few plain HTTP endpoints.
type ChatServer struct {
	ctx      context.Context
	sessions ISessionService
	index    contract.IIndexSink
	pager    IMessagePager
	gatherer prometheus.Gatherer
	log      *slog.Logger

	mu      sync.Mutex
	closing bool
	live    sync.WaitGroup // sessions still inside Serve
}

// NewChatServer binds every websocket session to ctx, canceling it closes them all.
func NewChatServer(
	ctx context.Context,
	log *slog.Logger,
	sessions ISessionService,
	index contract.IIndexSink,
	pager IMessagePager,
	gatherer prometheus.Gatherer,
) *ChatServer {
	return &ChatServer{ctx: ctx, log: log, sessions: sessions, index: index, pager: pager, gatherer: gatherer}
}

func (s *ChatServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /chats/{chat}/messages", s.handleMessages)
	mux.Handle("GET /socket", websocket.Server{
		// Clients are not browsers served from a known origin
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler:   s.handleSocket,
	})
	return mux
}

func (s *ChatServer) handleSocket(ws *websocket.Conn) {
	if !s.track() {
		_ = ws.Close()
		return
	}
	defer s.live.Done()

	params := ConnectParams(ws.Request())
	state := s.sessions.Serve(s.ctx, params, NewConnection(ws))
	s.log.Debug("Websocket done", "chat_id", params.Chat, "state", state.String())
}

// track registers a new session unless Wait has been called.
func (s *ChatServer) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.live.Add(1)
	return true
}

// Wait refuses new sessions then blocks until the running ones have returned,
// an in-flight relay included, or until ctx ends.
// Hijacked websocket connections are not awaited by http.Server.Shutdown.
func (s *ChatServer) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// invalidParam never passes validation.
const invalidParam = -1

// ConnectParams reads chat, user and dev from the query string.
// An absent or empty value is zero. A value that is not an integer is kept
// as invalid so the connection gets rejected.
func ConnectParams(r *http.Request) domain.ConnectParams {
	query := r.URL.Query()
	atoi := func(key string) int {
		value := query.Get(key)
		if value == "" {
			return 0
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalidParam
		}
		return n
	}
	return domain.ConnectParams{Chat: atoi("chat"), User: atoi("user"), Dev: atoi("dev")}
}

type searchResponse struct {
	Query string                 `json:"query"`
	Hits  []domain.IndexDocument `json:"hits"`
}

func (s *ChatServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := search.NewSearchQuery(r.URL.Query().Get("q"))
	docs, err := s.index.Search(r.Context(), query)
	if err != nil {
		s.log.Error("Search failed", "query", query.RawInput, "error", err)
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, searchResponse{Query: query.RawInput, Hits: docs})
}

type messageResponse struct {
	ID         domain.MessageID `json:"id"`
	SenderID   domain.AccountID `json:"sender_id"`
	Content    string           `json:"content,omitempty"`
	Attachment string           `json:"attachment,omitempty"`
	SentAt     string           `json:"sent_at"`
}

type messagesResponse struct {
	Messages []messageResponse `json:"messages"`
	Cursor   *string           `json:"cursor,omitempty"`
}

// handleMessages pages through a channel history, newest first.
func (s *ChatServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	chat, err := strconv.Atoi(r.PathValue("chat"))
	if err != nil || chat <= 0 {
		http.Error(w, "invalid chat", http.StatusBadRequest)
		return
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := s.pager.GetMessages(domain.ChannelID(chat), cursor)
	if err != nil {
		s.log.Error("History page failed", "chat_id", chat, "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	response := messagesResponse{Messages: make([]messageResponse, 0, len(messages))}
	for _, m := range messages {
		response.Messages = append(response.Messages, messageResponse{
			ID:         m.ID,
			SenderID:   m.SenderID,
			Content:    m.Content,
			Attachment: m.Attachment,
			SentAt:     m.SentAt.Format(time.RFC3339Nano),
		})
	}
	if len(messages) > 0 {
		response.Cursor = next
	}
	writeJSON(w, response)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Connection adapts a websocket to the session controller.
// Writes are serialized: replay, live pump and close may race.
type Connection struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{ws: ws}
}

// Receive returns an empty frame for a message that is not valid JSON,
// the session ignores it like any unsupported event.
func (c *Connection) Receive() (domain.Frame, error) {
	var raw string
	if err := websocket.Message.Receive(c.ws, &raw); err != nil {
		return domain.Frame{}, err
	}
	var frame domain.Frame
	if err := json.Unmarshal([]byte(raw), &frame); err != nil {
		return domain.Frame{}, nil
	}
	return frame, nil
}

func (c *Connection) Send(frame domain.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return websocket.JSON.Send(c.ws, frame)
}

func (c *Connection) Close() error {
	return c.ws.Close()
}
