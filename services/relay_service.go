package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"time"
)

type IRelayService interface {
	Relay(ctx context.Context, channel domain.Channel, identity domain.ResolvedIdentity, text string) error
}

// RelayService persists a live message, broadcasts it to the channel, then
// hands it over for indexing.
type RelayService struct {
	store    contract.IRecordStore
	registry contract.IRegistry
	queue    contract.IIndexQueue
	log      *slog.Logger
	metrics  *observability.Metrics
}

func NewRelayService(
	store contract.IRecordStore,
	registry contract.IRegistry,
	queue contract.IIndexQueue,
	log *slog.Logger,
	metrics *observability.Metrics,
) *RelayService {
	return &RelayService{store: store, registry: registry, queue: queue, log: log, metrics: metrics}
}

// Relay never broadcasts a message that was not persisted.
// The broadcast is detached from ctx: a sender leaving mid-relay doesn't
// prevent the other members from receiving its last message.
// Indexing is fire and forget, its outcome never reaches the sender.
func (s *RelayService) Relay(ctx context.Context, channel domain.Channel, identity domain.ResolvedIdentity, text string) error {
	start := time.Now()
	message, err := s.store.CreateMessage(channel.ID, identity.AccountID, text)
	if err != nil {
		s.log.Error("Message not persisted, nothing relayed",
			"chat_id", channel.ID, "sender_id", identity.AccountID, "error", err)
		s.metrics.StoreFailed()
		return fmt.Errorf("%w: relay to chat %d: %v", errors.ErrStore, channel.ID, err)
	}

	delivered := s.registry.Broadcast(context.WithoutCancel(ctx), channel.ID, identity.Render(text))
	s.log.Debug("Message relayed", "chat_id", channel.ID, "message_id", message.ID, "delivered", delivered)

	_ = s.queue.Submit(domain.IndexJob{Message: message, Channel: channel, Sender: identity})
	s.metrics.MessageRelayed(time.Since(start).Seconds())
	return nil
}
