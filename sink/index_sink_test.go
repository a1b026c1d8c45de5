package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/search"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func openIndexSink(t *testing.T) *IndexSink {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return NewIndexSink(writer, logs.GetLoggerFromLevel(slog.LevelError))
}

func TestIndexSink_IndexDocument_Then_Search(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	indexSink := openIndexSink(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Given a message from a developer
	doc := domain.IndexDocument{
		MessageID:      3,
		ChatID:         7,
		SenderID:       12,
		CompanyID:      1,
		CompanyName:    "Acme",
		AppID:          4,
		AppName:        "Acme Shop",
		UserID:         9,
		UserExternalID: "cust-9",
		Content:        "Your refund has been processed",
		SenderName:     "Ann",
		Language:       "en",
		SentAt:         at,
	}

	// When it is indexed
	req.True(indexSink.IndexDocument(ctx, doc))

	// Then a case insensitive search finds every stored field back
	docs, err := indexSink.Search(ctx, search.NewSearchQuery("REFUND"))
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal(doc, docs[0])
}

func TestIndexSink_Search_Filters_By_Chat_And_Language(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	indexSink := openIndexSink(t)
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	req.True(indexSink.IndexDocument(ctx, domain.IndexDocument{MessageID: 1, ChatID: 7, Content: "invoice please", Language: "en", SentAt: at}))
	req.True(indexSink.IndexDocument(ctx, domain.IndexDocument{MessageID: 2, ChatID: 8, Content: "invoice again", Language: "en", SentAt: at.Add(time.Minute)}))
	req.True(indexSink.IndexDocument(ctx, domain.IndexDocument{MessageID: 3, ChatID: 7, Content: "facture invoice", Language: "fr", SentAt: at.Add(2 * time.Minute)}))

	// When searching one channel
	docs, err := indexSink.Search(ctx, search.NewSearchQuery("invoice --chat 7"))
	req.NoError(err)

	// Then the newest comes first and other channels are excluded
	req.Len(docs, 2)
	req.Equal(domain.MessageID(3), docs[0].MessageID)
	req.Equal(domain.MessageID(1), docs[1].MessageID)

	// When also filtering the language
	docs, err = indexSink.Search(ctx, search.NewSearchQuery("invoice --chat 7 --lang en"))
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal(domain.MessageID(1), docs[0].MessageID)
}

func TestIndexSink_Reindex_Same_Message_Is_An_Upsert(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	indexSink := openIndexSink(t)
	at := time.Now().UTC()

	req.True(indexSink.IndexDocument(ctx, domain.IndexDocument{MessageID: 5, ChatID: 1, Content: "first", SentAt: at}))
	req.True(indexSink.IndexDocument(ctx, domain.IndexDocument{MessageID: 5, ChatID: 1, Content: "second", SentAt: at}))

	docs, err := indexSink.Search(ctx, search.NewSearchQuery("--chat 1"))
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("second", docs[0].Content)
}

func TestIndexSink_IndexDocument_Expired_Context(t *testing.T) {
	req := require.New(t)
	indexSink := openIndexSink(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A failure is reported, never raised
	req.False(indexSink.IndexDocument(ctx, domain.IndexDocument{MessageID: 1, ChatID: 1, SentAt: time.Now()}))
}

func TestConnectionSink_Consume_Buffers_Then_Times_Out(t *testing.T) {
	req := require.New(t)
	connectionSink := NewConnectionSink(1)

	// Given a buffer with room for one payload
	req.NoError(connectionSink.Consume(context.Background(), "first"))

	// When the buffer is full
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := connectionSink.Consume(ctx, "second")

	// Then the payload is refused once the deadline passes
	req.ErrorIs(err, context.DeadlineExceeded)
	req.Equal("first", <-connectionSink.Payloads)
}
