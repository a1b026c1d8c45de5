package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
)

// IndexWorker turns persisted messages into search documents and pushes them
// to the index sink. One attempt per message: the sink reports failures, the
// worker only logs them.
type IndexWorker struct {
	log          *slog.Logger
	store        contract.IRecordStore
	sink         contract.IIndexSink
	jobs         <-chan domain.IndexJob
	indexTimeout time.Duration
	metrics      *observability.Metrics
}

func NewIndexWorker(
	log *slog.Logger,
	store contract.IRecordStore,
	sink contract.IIndexSink,
	jobs <-chan domain.IndexJob,
	indexTimeout time.Duration,
	metrics *observability.Metrics,
) *IndexWorker {
	return &IndexWorker{
		log:          log,
		store:        store,
		sink:         sink,
		jobs:         jobs,
		indexTimeout: indexTimeout,
		metrics:      metrics,
	}
}

func (w *IndexWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case job, ok := <-w.jobs:
			if !ok {
				return nil
			}
			w.handle(ctx, job)
		}
	}
}

// drain indexes what is already queued so that a shutdown doesn't lose accepted jobs.
func (w *IndexWorker) drain() {
	for {
		select {
		case job, ok := <-w.jobs:
			if !ok {
				return
			}
			w.handle(context.Background(), job)
		default:
			return
		}
	}
}

func (w *IndexWorker) handle(ctx context.Context, job domain.IndexJob) {
	doc := w.BuildDocument(job)
	indexCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.indexTimeout)
	defer cancel()
	ok := w.sink.IndexDocument(indexCtx, doc)
	w.metrics.Indexed(ok)
	if !ok {
		w.log.Warn("Message not indexed", "message_id", doc.MessageID, "chat_id", doc.ChatID)
	}
}

// BuildDocument denormalizes the channel's app, company and user into the document.
// Lookups that fail leave the corresponding fields empty.
func (w *IndexWorker) BuildDocument(job domain.IndexJob) domain.IndexDocument {
	doc := domain.IndexDocument{
		MessageID:  job.Message.ID,
		ChatID:     job.Channel.ID,
		SenderID:   job.Message.SenderID,
		AppID:      job.Channel.AppID,
		UserID:     job.Channel.UserID,
		Content:    job.Message.Content,
		Attachment: job.Message.Attachment,
		SentAt:     job.Message.SentAt,
	}
	if job.Sender.IsDeveloper() {
		doc.SenderName = job.Sender.Name
	}
	if app, err := w.store.GetApp(job.Channel.AppID); err != nil {
		w.log.Debug("App lookup failed while indexing", "app_id", job.Channel.AppID, "error", err)
	} else {
		doc.AppName = app.Name
		doc.CompanyID = app.CompanyID
		if company, err := w.store.GetCompany(app.CompanyID); err != nil {
			w.log.Debug("Company lookup failed while indexing", "company_id", app.CompanyID, "error", err)
		} else {
			doc.CompanyName = company.Name
		}
	}
	if user, err := w.store.GetUser(job.Channel.UserID); err != nil {
		w.log.Debug("User lookup failed while indexing", "user_id", job.Channel.UserID, "error", err)
	} else {
		doc.UserExternalID = user.ExternalID
	}
	doc.Language = detectLanguage(doc.Content)
	return doc
}

func detectLanguage(text string) string {
	if text == "" {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
