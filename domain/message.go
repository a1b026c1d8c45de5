// Package domain contains core concepts of the support chat relay.
// This file defines Message records and how they are rendered on the wire.
// Messages are immutable once persisted.
package domain

import (
	"time"
)

type MessageID int

// Message belongs to exactly one Channel.
// Content and Attachment are mutually exclusive in practice, not enforced.
type Message struct {
	ID         MessageID
	ChannelID  ChannelID
	SenderID   AccountID
	Content    string
	Attachment string
	SentAt     time.Time
	IsRead     bool
}

// Body is the text delivered for a message: its content, else its attachment
// reference, else an empty string.
func (m Message) Body() string {
	if m.Content != "" {
		return m.Content
	}
	return m.Attachment
}

// Before orders messages by sent time, then by id for equal timestamps.
func (m Message) Before(other Message) bool {
	if m.SentAt.Equal(other.SentAt) {
		return m.ID < other.ID
	}
	return m.SentAt.Before(other.SentAt)
}
