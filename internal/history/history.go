// Package history persists chat exchanges per conversation in a bbolt
// database.
//
// Each conversation is a nested bucket under "conversations" whose keys are
// the bucket's big-endian sequence numbers, so a cursor walk returns the
// exchanges in the order they were recorded.
package history

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var bucketConversations = []byte("conversations")

// ErrEmptyConversationID is returned when an exchange has no conversation
var ErrEmptyConversationID = errors.New("conversation id cannot be empty")

// Exchange is one question and the answer given to it
type Exchange struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Query          string    `json:"query"`
	Response       string    `json:"response"`
	Confidence     float64   `json:"confidence"`
	Flags          []string  `json:"flags"`
	SourceIDs      []string  `json:"source_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is a bbolt-backed conversation log
type Store struct {
	db *bolt.DB
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConversations)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init history db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append records an exchange. ID and CreatedAt are filled in when empty.
func (s *Store) Append(ex Exchange) (Exchange, error) {
	if ex.ConversationID == "" {
		return ex, ErrEmptyConversationID
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ex)
	if err != nil {
		return ex, fmt.Errorf("marshal exchange: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		conv, err := tx.Bucket(bucketConversations).CreateBucketIfNotExists([]byte(ex.ConversationID))
		if err != nil {
			return err
		}
		seq, err := conv.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return conv.Put(key, data)
	})
	if err != nil {
		return ex, fmt.Errorf("append exchange: %w", err)
	}
	return ex, nil
}

// List returns the exchanges of a conversation, oldest first. An unknown
// conversation has no exchanges.
func (s *Store) List(conversationID string) ([]Exchange, error) {
	out := []Exchange{}
	err := s.db.View(func(tx *bolt.Tx) error {
		conv := tx.Bucket(bucketConversations).Bucket([]byte(conversationID))
		if conv == nil {
			return nil
		}
		return conv.ForEach(func(_, v []byte) error {
			var ex Exchange
			if err := json.Unmarshal(v, &ex); err != nil {
				return err
			}
			out = append(out, ex)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list conversation %q: %w", conversationID, err)
	}
	return out, nil
}

// Conversations returns all conversation IDs in key order
func (s *Store) Conversations() ([]string, error) {
	out := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEachBucket(func(k []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, err
}

// Delete removes a conversation. Deleting an unknown conversation is not
// an error.
func (s *Store) Delete(conversationID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketConversations).DeleteBucket([]byte(conversationID))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}
