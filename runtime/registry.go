package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"log/slog"
	"sync"
	"time"
)

type Set map[string]struct{}

// roomLock serializes the broadcasts of one channel.
// refs counts broadcasters holding or waiting for it, the lock is pruned
// only when it is unreferenced and the channel is empty.
type roomLock struct {
	sync.Mutex
	refs int
}

type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]contract.EventSink // map participant -> Sink
	roomMembers map[domain.ChannelID]Set      // map channel to participants
	roomLocks   map[domain.ChannelID]*roomLock
	sinkTimeout time.Duration
	log         *slog.Logger
	metrics     *observability.Metrics
}

func NewRegistry(log *slog.Logger, sinkTimeout time.Duration, metrics *observability.Metrics) *Registry {
	return &Registry{
		sessions:    make(map[string]contract.EventSink),
		roomMembers: make(map[domain.ChannelID]Set),
		roomLocks:   make(map[domain.ChannelID]*roomLock),
		sinkTimeout: sinkTimeout,
		log:         log,
		metrics:     metrics,
	}
}

// GetSinksForRoom retrieves all active sinks of a channel.
// It performs a two-step lookup:
// 1. Identifies participant IDs associated with the channel via roomMembers.
// 2. Resolves those IDs into actual EventSinks using the sessions map.
// Returns nil if the channel doesn't exist or has no members.
func (r *Registry) GetSinksForRoom(channelID domain.ChannelID) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[channelID]
	if !ok {
		return nil
	}
	var activeSinks []contract.EventSink
	for participantID := range members {
		if sink, exists := r.sessions[participantID]; exists {
			activeSinks = append(activeSinks, sink)
		}
	}
	return activeSinks
}

// Join registers a connection sink and adds it to the channel.
// Joining twice with the same participant replaces the sink.
func (r *Registry) Join(channelID domain.ChannelID, participantID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[participantID] = sink

	if _, ok := r.roomMembers[channelID]; !ok {
		r.roomMembers[channelID] = make(Set)
	}
	r.roomMembers[channelID][participantID] = struct{}{}
}

// Leave removes a participant from the registry and from its channel.
// Empty channels are dropped, leaving an unknown channel is a no-op.
func (r *Registry) Leave(channelID domain.ChannelID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, participantID)

	if members, ok := r.roomMembers[channelID]; ok {
		delete(members, participantID)

		// If no one is left in the channel, remove the entry entirely
		if len(members) == 0 {
			delete(r.roomMembers, channelID)
			r.pruneLock(channelID)
		}
	}
}

// Broadcast delivers a payload to every current member of the channel, the sender included.
// Broadcasts on the same channel never interleave so all members observe the same order.
// A member that cannot accept the payload within the sink timeout is skipped.
// It returns the number of members that received the payload.
func (r *Registry) Broadcast(ctx context.Context, channelID domain.ChannelID, payload string) int {
	lock := r.acquireRoom(channelID)
	defer r.releaseRoom(channelID, lock)

	delivered := 0
	for _, sink := range r.GetSinksForRoom(channelID) {
		if r.deliver(ctx, sink, payload) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) deliver(ctx context.Context, sink contract.EventSink, payload string) bool {
	sinkCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, payload); err != nil {
		r.log.Debug("Member sink did not accept payload", "error", err)
		r.metrics.BroadcastDrop()
		return false
	}
	return true
}

// acquireRoom returns the locked mutex of a channel.
// The reference is taken before waiting so Leave cannot prune the lock
// and hand a fresh one to the next broadcaster.
func (r *Registry) acquireRoom(channelID domain.ChannelID) *roomLock {
	r.mu.Lock()
	lock, ok := r.roomLocks[channelID]
	if !ok {
		lock = &roomLock{}
		r.roomLocks[channelID] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.Lock()
	return lock
}

func (r *Registry) releaseRoom(channelID domain.ChannelID, lock *roomLock) {
	lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	lock.refs--
	if _, ok := r.roomMembers[channelID]; !ok {
		r.pruneLock(channelID)
	}
}

// pruneLock must be called with r.mu held.
func (r *Registry) pruneLock(channelID domain.ChannelID) {
	if lock, ok := r.roomLocks[channelID]; ok && lock.refs == 0 {
		delete(r.roomLocks, channelID)
	}
}
