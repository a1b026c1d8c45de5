package workers

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func indexJob() domain.IndexJob {
	return domain.IndexJob{
		Message: domain.Message{
			ID:        3,
			ChannelID: 7,
			SenderID:  12,
			Content:   "Thanks a lot, the refund arrived on my account this morning",
			SentAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		Channel: domain.Channel{ID: 7, AppID: 4, UserID: 9},
		Sender: domain.ResolvedIdentity{
			Identity:  domain.DeveloperIdentity(2),
			AccountID: 12,
			Name:      "Ann",
			Label:     domain.DeveloperLabel("Ann"),
		},
	}
}

func TestIndexWorker_BuildDocument_Denormalizes_Channel(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIRecordStore(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	store.EXPECT().GetApp(domain.AppID(4)).Return(domain.App{ID: 4, CompanyID: 1, Name: "Acme Shop"}, nil)
	store.EXPECT().GetCompany(domain.CompanyID(1)).Return(domain.Company{ID: 1, Name: "Acme"}, nil)
	store.EXPECT().GetUser(domain.UserID(9)).Return(domain.User{ID: 9, AccountID: 20, ExternalID: "cust-9"}, nil)

	worker := NewIndexWorker(log, store, mocks.NewMockIIndexSink(ctrl), nil, time.Second, nil)

	// When a developer message is turned into a document
	doc := worker.BuildDocument(indexJob())

	// Then channel, app, company and user are flattened into it
	req.Equal(domain.MessageID(3), doc.MessageID)
	req.Equal(domain.ChannelID(7), doc.ChatID)
	req.Equal(domain.AccountID(12), doc.SenderID)
	req.Equal(domain.CompanyID(1), doc.CompanyID)
	req.Equal("Acme", doc.CompanyName)
	req.Equal(domain.AppID(4), doc.AppID)
	req.Equal("Acme Shop", doc.AppName)
	req.Equal(domain.UserID(9), doc.UserID)
	req.Equal("cust-9", doc.UserExternalID)
	req.Equal("Ann", doc.SenderName)
	req.Equal("en", doc.Language)
	req.Empty(doc.Attachment)
}

func TestIndexWorker_BuildDocument_User_Sender_Has_No_Name(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIRecordStore(ctrl)

	// Given lookups that fail
	store.EXPECT().GetApp(gomock.Any()).Return(domain.App{}, errors.ErrNotFound)
	store.EXPECT().GetUser(gomock.Any()).Return(domain.User{}, errors.ErrNotFound)

	worker := NewIndexWorker(logs.GetLoggerFromLevel(slog.LevelError), store, mocks.NewMockIIndexSink(ctrl), nil, time.Second, nil)
	job := indexJob()
	job.Sender = domain.ResolvedIdentity{Identity: domain.UserIdentity(9), AccountID: 20}

	doc := worker.BuildDocument(job)

	// Then the document is still built with what is known
	req.Empty(doc.SenderName)
	req.Empty(doc.AppName)
	req.Empty(doc.CompanyName)
	req.Equal(domain.ChannelID(7), doc.ChatID)
}

func TestIndexWorker_Run_Indexes_Queued_Jobs_Once(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIRecordStore(ctrl)
	indexSink := mocks.NewMockIIndexSink(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	store.EXPECT().GetApp(gomock.Any()).Return(domain.App{}, errors.ErrNotFound).AnyTimes()
	store.EXPECT().GetUser(gomock.Any()).Return(domain.User{}, errors.ErrNotFound).AnyTimes()

	indexed := make(chan domain.IndexDocument, 2)
	// A refused document is never retried
	indexSink.EXPECT().
		IndexDocument(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, doc domain.IndexDocument) bool {
			_, hasDeadline := ctx.Deadline()
			req.True(hasDeadline)
			indexed <- doc
			return false
		}).
		Times(2)

	queue := NewIndexQueue(log, 10, nil)
	worker := NewIndexWorker(log, store, indexSink, queue.Jobs, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- worker.Run(ctx) }()

	job := indexJob()
	req.NoError(queue.Submit(job))
	job.Message.ID = 4
	req.NoError(queue.Submit(job))

	req.Equal(domain.MessageID(3), (<-indexed).MessageID)
	req.Equal(domain.MessageID(4), (<-indexed).MessageID)

	cancel()
	req.NoError(<-done)
}

func TestIndexWorker_Run_Drains_Queue_On_Stop(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	store := mocks.NewMockIRecordStore(ctrl)
	indexSink := mocks.NewMockIIndexSink(ctrl)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	store.EXPECT().GetApp(gomock.Any()).Return(domain.App{}, errors.ErrNotFound).AnyTimes()
	store.EXPECT().GetUser(gomock.Any()).Return(domain.User{}, errors.ErrNotFound).AnyTimes()
	indexSink.EXPECT().IndexDocument(gomock.Any(), gomock.Any()).Return(true).Times(3)

	// Given jobs accepted before shutdown
	queue := NewIndexQueue(log, 10, nil)
	for i := 0; i < 3; i++ {
		req.NoError(queue.Submit(indexJob()))
	}

	// When the worker starts with an already canceled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	worker := NewIndexWorker(log, store, indexSink, queue.Jobs, time.Second, nil)

	// Then every accepted job is still indexed
	req.NoError(worker.Run(ctx))
	req.Empty(queue.Jobs)
}

func TestIndexQueue_Submit_Full_Queue_Drops(t *testing.T) {
	req := require.New(t)
	queue := NewIndexQueue(logs.GetLoggerFromLevel(slog.LevelError), 1, nil)

	req.NoError(queue.Submit(indexJob()))

	// The relay is never blocked by a full queue
	err := queue.Submit(indexJob())
	req.ErrorIs(err, errors.ErrIndexQueueFull)
	req.Len(queue.Jobs, 1)
}
