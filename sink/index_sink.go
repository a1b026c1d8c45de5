package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/search"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/analysis/analyzer"
)

const (
	fieldID             = "_id"
	fieldChatID         = "chat_id"
	fieldSenderID       = "sender_id"
	fieldCompanyID      = "company_id"
	fieldCompanyName    = "company_name"
	fieldAppID          = "app_id"
	fieldAppName        = "app_name"
	fieldUserID         = "user_id"
	fieldUserExternalID = "user_external_id"
	fieldContent        = "content"
	fieldAttachment     = "attachment"
	fieldSenderName     = "sender_name"
	fieldLanguage       = "language"
	fieldSentAt         = "sent_at"
)

var standardAnalyzer = analyzer.NewStandardAnalyzer()

// IndexSink is the Bluge implementation of the message search index.
type IndexSink struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewIndexSink(writer *bluge.Writer, log *slog.Logger) *IndexSink {
	return &IndexSink{writer: writer, log: log}
}

// IndexDocument upserts one message document. Failures are logged and reported as false,
// they never reach the caller as errors.
func (s *IndexSink) IndexDocument(ctx context.Context, doc domain.IndexDocument) bool {
	if err := ctx.Err(); err != nil {
		s.log.Warn("Index deadline exceeded before write", "message_id", doc.MessageID, "error", err)
		return false
	}
	document := toBlugeDocument(doc)
	if err := s.writer.Update(document.ID(), document); err != nil {
		s.log.Error("Failed to index message", "message_id", doc.MessageID, "error", err)
		return false
	}
	s.log.Debug("Message indexed", "message_id", doc.MessageID, "chat_id", doc.ChatID)
	return true
}

// Search returns the most recent documents matching the query, newest first.
func (s *IndexSink) Search(ctx context.Context, query search.Query) ([]domain.IndexDocument, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: open reader: %v", errors.ErrIndex, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	request := bluge.NewTopNSearch(limitOf(query), toBlugeQuery(query)).
		SortBy([]string{"-" + fieldSentAt})
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("%w: search %q: %v", errors.ErrIndex, query.RawInput, err)
	}

	var docs []domain.IndexDocument
	match, err := iterator.Next()
	for err == nil && match != nil {
		var doc domain.IndexDocument
		if err = match.VisitStoredFields(func(field string, value []byte) bool {
			fromStoredField(&doc, field, value)
			return true
		}); err != nil {
			break
		}
		docs = append(docs, doc)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: iterate %q: %v", errors.ErrIndex, query.RawInput, err)
	}
	return docs, nil
}

func limitOf(query search.Query) int {
	if query.Limit <= 0 {
		return search.DefaultLimit
	}
	return min(query.Limit, search.MaxLimit)
}

func toBlugeQuery(query search.Query) bluge.Query {
	boolean := bluge.NewBooleanQuery()
	clauses := 0
	if query.Terms != "" {
		boolean.AddMust(bluge.NewMatchQuery(query.Terms).
			SetField(fieldContent).
			SetAnalyzer(standardAnalyzer))
		clauses++
	}
	if query.ChatID > 0 {
		boolean.AddMust(bluge.NewTermQuery(strconv.Itoa(query.ChatID)).SetField(fieldChatID))
		clauses++
	}
	if query.AppID > 0 {
		boolean.AddMust(bluge.NewTermQuery(strconv.Itoa(query.AppID)).SetField(fieldAppID))
		clauses++
	}
	if query.Language != "" {
		boolean.AddMust(bluge.NewTermQuery(query.Language).SetField(fieldLanguage))
		clauses++
	}
	if clauses == 0 {
		return bluge.NewMatchAllQuery()
	}
	return boolean
}

func toBlugeDocument(doc domain.IndexDocument) *bluge.Document {
	document := bluge.NewDocument(strconv.Itoa(int(doc.MessageID))).
		AddField(keyword(fieldChatID, strconv.Itoa(int(doc.ChatID)))).
		AddField(keyword(fieldSenderID, strconv.Itoa(int(doc.SenderID)))).
		AddField(keyword(fieldCompanyID, strconv.Itoa(int(doc.CompanyID)))).
		AddField(text(fieldCompanyName, doc.CompanyName)).
		AddField(keyword(fieldAppID, strconv.Itoa(int(doc.AppID)))).
		AddField(text(fieldAppName, doc.AppName)).
		AddField(keyword(fieldUserID, strconv.Itoa(int(doc.UserID)))).
		AddField(keyword(fieldUserExternalID, doc.UserExternalID)).
		AddField(bluge.NewDateTimeField(fieldSentAt, doc.SentAt).StoreValue().Sortable())
	if doc.Content != "" {
		document.AddField(text(fieldContent, doc.Content))
	}
	if doc.Attachment != "" {
		document.AddField(keyword(fieldAttachment, doc.Attachment))
	}
	if doc.SenderName != "" {
		document.AddField(text(fieldSenderName, doc.SenderName))
	}
	if doc.Language != "" {
		document.AddField(keyword(fieldLanguage, doc.Language))
	}
	return document
}

func keyword(name, value string) *bluge.TermField {
	return bluge.NewKeywordField(name, value).StoreValue()
}

func text(name, value string) *bluge.TermField {
	return bluge.NewTextField(name, value).WithAnalyzer(standardAnalyzer).StoreValue()
}

func fromStoredField(doc *domain.IndexDocument, field string, value []byte) {
	atoi := func() int {
		n, _ := strconv.Atoi(string(value))
		return n
	}
	switch field {
	case fieldID:
		doc.MessageID = domain.MessageID(atoi())
	case fieldChatID:
		doc.ChatID = domain.ChannelID(atoi())
	case fieldSenderID:
		doc.SenderID = domain.AccountID(atoi())
	case fieldCompanyID:
		doc.CompanyID = domain.CompanyID(atoi())
	case fieldCompanyName:
		doc.CompanyName = string(value)
	case fieldAppID:
		doc.AppID = domain.AppID(atoi())
	case fieldAppName:
		doc.AppName = string(value)
	case fieldUserID:
		doc.UserID = domain.UserID(atoi())
	case fieldUserExternalID:
		doc.UserExternalID = string(value)
	case fieldContent:
		doc.Content = string(value)
	case fieldAttachment:
		doc.Attachment = string(value)
	case fieldSenderName:
		doc.SenderName = string(value)
	case fieldLanguage:
		doc.Language = string(value)
	case fieldSentAt:
		if at, err := bluge.DecodeDateTime(value); err == nil {
			doc.SentAt = at.UTC()
		}
	}
}
