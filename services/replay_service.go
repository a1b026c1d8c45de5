package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"fmt"
	"log/slog"
	"slices"
)

type IReplayService interface {
	Replay(ctx context.Context, channel domain.Channel, identity domain.ResolvedIdentity, deliver func(payload string) error) ([]domain.Message, error)
}

// ReplayService sends the stored history of a channel to a connecting client.
type ReplayService struct {
	store    contract.IRecordStore
	resolver contract.IIdentityResolver
	log      *slog.Logger
	metrics  *observability.Metrics
}

func NewReplayService(
	store contract.IRecordStore,
	resolver contract.IIdentityResolver,
	log *slog.Logger,
	metrics *observability.Metrics,
) *ReplayService {
	return &ReplayService{store: store, resolver: resolver, log: log, metrics: metrics}
}

// Replay delivers every stored message of the channel, oldest first, one after the other.
// Messages of the connecting identity carry its own label, others are resolved
// through their sender account. A sender that cannot be resolved is shown unlabeled.
// It returns the replayed messages.
func (s *ReplayService) Replay(
	ctx context.Context,
	channel domain.Channel,
	identity domain.ResolvedIdentity,
	deliver func(payload string) error,
) ([]domain.Message, error) {
	messages, err := s.store.ListMessages(channel.ID)
	if err != nil {
		return nil, fmt.Errorf("replay chat %d: %w", channel.ID, err)
	}
	slices.SortStableFunc(messages, func(a, b domain.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		default:
			return 0
		}
	})

	labels := make(map[domain.AccountID]string)
	for _, message := range messages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		label := s.labelOf(message.SenderID, identity, labels)
		if err := deliver(label + message.Body()); err != nil {
			return nil, fmt.Errorf("replay chat %d, message %d: %w", channel.ID, message.ID, err)
		}
		s.metrics.MessageReplayed()
	}
	s.log.Debug("History replayed", "chat_id", channel.ID, "identity", identity.Identity.String(), "messages", len(messages))
	return messages, nil
}

// labelOf memoizes resolutions for the duration of one replay.
func (s *ReplayService) labelOf(sender domain.AccountID, identity domain.ResolvedIdentity, labels map[domain.AccountID]string) string {
	if sender == identity.AccountID {
		return identity.Label
	}
	if label, ok := labels[sender]; ok {
		return label
	}
	resolution, err := s.resolver.Resolve(sender)
	if err != nil {
		s.log.Warn("Sender not resolved, replaying unlabeled", "account_id", sender, "error", err)
		labels[sender] = ""
		return ""
	}
	labels[sender] = resolution.Label
	return resolution.Label
}
