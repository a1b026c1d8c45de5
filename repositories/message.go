package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID         int       `json:"id"`
	Chat       int       `json:"chat_id"`
	SenderID   int       `json:"sender_id"`
	Content    string    `json:"content,omitempty"`
	Attachment string    `json:"attachment,omitempty"`
	IsRead     bool      `json:"is_read"`
	At         time.Time `json:"sent_at"`
}

func messagePrefix(chat int) string {
	return fmt.Sprintf("msg:%d:", chat)
}

// messageKey is formatted as "msg:{chat_id}:{timestamp_padded}:{id_padded}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Keep insertion order for two messages sent at the same nanosecond.
func messageKey(message DiskMessage) string {
	return fmt.Sprintf("%s%019d:%019d", messagePrefix(message.Chat), message.At.UnixNano(), message.ID)
}

// StoreMessage persists a message in BadgerDB.
func (m MessageRepository) StoreMessage(message DiskMessage) error {
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(messageKey(message)), bytes)
	})
	if err != nil {
		return fmt.Errorf("%w: store message %d: %v", errors.ErrStore, message.ID, err)
	}
	return nil
}

// ListMessages returns the whole conversation of a channel, oldest first.
// The padded timestamp in the key makes a forward prefix scan chronological.
func (m MessageRepository) ListMessages(channelID domain.ChannelID) ([]domain.Message, error) {
	var diskMessages []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix(int(channelID)))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var message DiskMessage
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				diskMessages = append(diskMessages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list messages of chat %d: %v", errors.ErrStore, channelID, err)
	}
	return lo.Map(diskMessages, func(item DiskMessage, _ int) domain.Message {
		return toMessage(item)
	}), nil
}

// GetMessages retrieves messages for a specific channel, newest first, using a reverse prefix scan.
// It stops collecting messages once the configured limitMessages is reached
// and returns a cursor to resume from.
func (m MessageRepository) GetMessages(channelID domain.ChannelID, cursor *string) ([]domain.Message, *string, error) {
	var diskMessages []DiskMessage
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(int(channelID))
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start past the newest possible key then walk back in time
			seekKey = append(prefix, []byte("9999999999999999999:9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(diskMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				var message DiskMessage
				if err := json.Unmarshal(value, &message); err != nil {
					return err
				}
				diskMessages = append(diskMessages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get messages of chat %d: %v", errors.ErrStore, channelID, err)
	}
	return lo.Map(diskMessages, func(item DiskMessage, _ int) domain.Message {
		return toMessage(item)
	}), &lastKey, nil
}

// CreateMessage stamps, numbers and persists a new text message.
func (s *Store) CreateMessage(channelID domain.ChannelID, senderID domain.AccountID, content string) (domain.Message, error) {
	id, err := s.nextID(seqMessage)
	if err != nil {
		return domain.Message{}, err
	}
	disk := DiskMessage{
		ID:       id,
		Chat:     int(channelID),
		SenderID: int(senderID),
		Content:  content,
		At:       s.now(),
	}
	if err = s.StoreMessage(disk); err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk), nil
}

func toMessage(message DiskMessage) domain.Message {
	return domain.Message{
		ID:         domain.MessageID(message.ID),
		ChannelID:  domain.ChannelID(message.Chat),
		SenderID:   domain.AccountID(message.SenderID),
		Content:    message.Content,
		Attachment: message.Attachment,
		SentAt:     message.At.UTC(),
		IsRead:     message.IsRead,
	}
}
