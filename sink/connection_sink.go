package sink

import (
	"context"
)

// ConnectionSink buffers live payloads for one client connection.
// The session pumps Payloads to the socket once history has been replayed.
type ConnectionSink struct {
	Payloads chan string
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{Payloads: make(chan string, bufferSize)}
}

// Consume is called by the registry broadcast.
// It waits for room in the buffer until ctx is done; the registry bounds that wait.
func (s *ConnectionSink) Consume(ctx context.Context, payload string) error {
	select {
	case s.Payloads <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
