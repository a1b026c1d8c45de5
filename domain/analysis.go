package domain

import "time"

// IndexDocument is the shape of one message in the search index.
// Optional fields are empty when absent.
type IndexDocument struct {
	MessageID      MessageID `json:"message_id"`
	ChatID         ChannelID `json:"chat_id"`
	SenderID       AccountID `json:"sender_id"`
	CompanyID      CompanyID `json:"company_id"`
	CompanyName    string    `json:"company_name"`
	AppID          AppID     `json:"app_id"`
	AppName        string    `json:"app_name"`
	UserID         UserID    `json:"user_id"`
	UserExternalID string    `json:"user_external_id"`
	Content        string    `json:"content,omitempty"`
	Attachment     string    `json:"attachment,omitempty"`
	SenderName     string    `json:"sender_name,omitempty"`
	Language       string    `json:"language,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// IndexJob is what the relay hands to the indexing worker after persistence.
type IndexJob struct {
	Message Message
	Channel Channel
	Sender  ResolvedIdentity
}
