package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestRelayService_Relay(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIRecordStore(ctrl)
	registry := mocks.NewMockIRegistry(ctrl)
	queue := mocks.NewMockIIndexQueue(ctrl)
	svc := NewRelayService(store, registry, queue, logs.GetLoggerFromLevel(slog.LevelError), nil)

	t.Run("should persist, then broadcast, then submit for indexing", func(t *testing.T) {
		req := require.New(t)
		persisted := domain.Message{ID: 3, ChannelID: 7, SenderID: accountA, Content: "thanks", SentAt: t0}

		gomock.InOrder(
			store.EXPECT().CreateMessage(domain.ChannelID(7), accountA, "thanks").Return(persisted, nil),
			registry.EXPECT().Broadcast(gomock.Any(), domain.ChannelID(7), "thanks").Return(2),
			queue.EXPECT().Submit(domain.IndexJob{Message: persisted, Channel: channel7(), Sender: userA()}).Return(nil),
		)

		req.NoError(svc.Relay(context.Background(), channel7(), userA(), "thanks"))
	})

	t.Run("should broadcast the developer label with the text", func(t *testing.T) {
		req := require.New(t)
		store.EXPECT().CreateMessage(gomock.Any(), accountB, "on it").Return(domain.Message{ID: 4}, nil)
		registry.EXPECT().Broadcast(gomock.Any(), domain.ChannelID(7), "Ann (app team): on it").Return(1)
		queue.EXPECT().Submit(gomock.Any()).Return(nil)

		req.NoError(svc.Relay(context.Background(), channel7(), developerAnn(), "on it"))
	})

	t.Run("should neither broadcast nor index when persistence fails", func(t *testing.T) {
		req := require.New(t)
		store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(domain.Message{}, fmt.Errorf("disk full"))
		registry.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		queue.EXPECT().Submit(gomock.Any()).Times(0)

		err := svc.Relay(context.Background(), channel7(), userA(), "lost")

		req.ErrorIs(err, errors.ErrStore)
	})

	t.Run("should ignore a full index queue", func(t *testing.T) {
		req := require.New(t)
		store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Message{ID: 5}, nil)
		registry.EXPECT().Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).Return(1)
		queue.EXPECT().Submit(gomock.Any()).Return(errors.ErrIndexQueueFull)

		req.NoError(svc.Relay(context.Background(), channel7(), userA(), "hello"))
	})

	t.Run("should still broadcast when the sender is gone", func(t *testing.T) {
		req := require.New(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.Message{ID: 6}, nil)
		registry.EXPECT().Broadcast(gomock.Any(), gomock.Any(), "bye").
			DoAndReturn(func(ctx context.Context, _ domain.ChannelID, _ string) int {
				req.NoError(ctx.Err())
				return 1
			})
		queue.EXPECT().Submit(gomock.Any()).Return(nil)

		req.NoError(svc.Relay(ctx, channel7(), userA(), "bye"))
	})
}
