package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/johndosdos/claudespark/internal/model"
)

var messagesBucket = []byte("messages")

// Bolt stores messages in a bbolt file, one nested bucket per viewer keyed
// by message ID.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens or creates the database at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(messagesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init bolt db: %w", err)
	}

	return &Bolt{db: db}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (b *Bolt) ListMessages(_ context.Context, viewerID uuid.UUID) ([]model.Message, error) {
	var msgs []model.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		vb := tx.Bucket(messagesBucket).Bucket(viewerID[:])
		if vb == nil {
			return nil
		}

		return vb.ForEach(func(_, v []byte) error {
			var msg model.Message
			if err := json.Unmarshal(v, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			msgs = append(msgs, msg)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}

	slices.SortStableFunc(msgs, func(a, b model.Message) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	return msgs, nil
}

func (b *Bolt) InsertMessage(_ context.Context, msg model.Message) (model.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.LocalID = 0

	err := b.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(messagesBucket)

		// IDs come from the root bucket so they are unique across viewers.
		id, err := root.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		msg.ID = int64(id)

		vb, err := root.CreateBucketIfNotExists(msg.ViewerID[:])
		if err != nil {
			return fmt.Errorf("create viewer bucket: %w", err)
		}

		v, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}

		return vb.Put(itob(id), v)
	})
	if err != nil {
		return model.Message{}, fmt.Errorf("store: insert message: %w", err)
	}

	return msg, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
