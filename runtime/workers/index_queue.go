package workers

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"fmt"
	"log/slog"
)

// IndexQueue hands persisted messages over to the index workers.
// Submit never blocks the relay: a full queue drops the job.
type IndexQueue struct {
	Jobs    chan domain.IndexJob
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewIndexQueue(log *slog.Logger, size int, metrics *observability.Metrics) *IndexQueue {
	return &IndexQueue{
		Jobs:    make(chan domain.IndexJob, size),
		log:     log,
		metrics: metrics,
	}
}

func (q *IndexQueue) Submit(job domain.IndexJob) error {
	select {
	case q.Jobs <- job:
		return nil
	default:
		q.log.Warn("Index queue full, message won't be indexed",
			"message_id", job.Message.ID, "chat_id", job.Channel.ID)
		q.metrics.IndexDrop()
		return fmt.Errorf("message %d: %w", job.Message.ID, errors.ErrIndexQueueFull)
	}
}
