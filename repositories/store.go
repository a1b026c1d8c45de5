package repositories

import (
	"chat-relay/errors"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// sequenceBandwidth is the number of ids leased from Badger at once.
const sequenceBandwidth = 100

const (
	seqCompany   = "seq:company"
	seqApp       = "seq:app"
	seqAccount   = "seq:account"
	seqUser      = "seq:user"
	seqDeveloper = "seq:developer"
	seqChannel   = "seq:channel"
	seqMessage   = "seq:message"
)

// Store is the BadgerDB implementation of the relay record store.
// Reads never block writers; every write is a single Badger transaction.
type Store struct {
	db        *badger.DB
	log       *slog.Logger
	now       func() time.Time
	sequences map[string]*badger.Sequence

	MessageRepository
}

func NewStore(db *badger.DB, log *slog.Logger, limitMessages *int) (*Store, error) {
	store := &Store{
		db:        db,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
		sequences: make(map[string]*badger.Sequence),
	}
	for _, key := range []string{seqCompany, seqApp, seqAccount, seqUser, seqDeveloper, seqChannel, seqMessage} {
		seq, err := db.GetSequence([]byte(key), sequenceBandwidth)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("lease sequence %s: %w", key, err)
		}
		store.sequences[key] = seq
	}
	store.MessageRepository = NewMessageRepository(db, log, limitMessages)
	return store, nil
}

// NewReadOnlyStore serves reads only, it leases no sequence so it works on a
// read-only Badger. Every Create* call fails.
func NewReadOnlyStore(db *badger.DB, log *slog.Logger) *Store {
	return &Store{
		db:                db,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
		sequences:         make(map[string]*badger.Sequence),
		MessageRepository: NewMessageRepository(db, log, nil),
	}
}

// WithClock replaces the clock used to stamp new messages.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Close releases the leased sequences. The Badger DB stays open.
func (s *Store) Close() {
	for key, seq := range s.sequences {
		if err := seq.Release(); err != nil {
			s.log.Warn("Failed to release sequence", "key", key, "error", err)
		}
	}
}

// nextID returns a strictly positive id; Badger sequences start at zero.
func (s *Store) nextID(key string) (int, error) {
	seq, ok := s.sequences[key]
	if !ok {
		return 0, fmt.Errorf("unknown sequence %s", key)
	}
	next, err := seq.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: next %s: %v", errors.ErrStore, key, err)
	}
	return int(next) + 1, nil
}

func getJSON(txn *badger.Txn, key string, value any) error {
	item, err := txn.Get([]byte(key))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s: %w", key, errors.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: get %s: %v", errors.ErrStore, key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, value)
	})
}

func setJSON(txn *badger.Txn, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func exists(txn *badger.Txn, key string) (bool, error) {
	_, err := txn.Get([]byte(key))
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if err == nil || stderrors.Is(err, errors.ErrNotFound) ||
		stderrors.Is(err, errors.ErrAlreadyExists) || stderrors.Is(err, errors.ErrAccountAlreadyLinked) ||
		stderrors.Is(err, errors.ErrStore) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.ErrStore, err)
}
