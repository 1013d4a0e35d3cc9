// Package storage keeps the queue snapshot of an observer in BadgerDB.
package storage

import (
	"chat-pair/domain"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// SnapshotKey holds the whole queue as one JSON array. The queue is small and always
// replaced as a whole, so a single key is enough.
const SnapshotKey = "queue:snapshot"

type SnapshotRepository struct {
	db  *badger.DB
	log *slog.Logger
	key []byte
}

// NewSnapshotRepository stores the snapshot under SnapshotKey, suffixed by namespace when one is given,
// so that several queues can share a database.
func NewSnapshotRepository(db *badger.DB, log *slog.Logger, namespace string) *SnapshotRepository {
	key := SnapshotKey
	if namespace != "" {
		key = fmt.Sprintf("%s:%s", SnapshotKey, namespace)
	}
	return &SnapshotRepository{db: db, log: log, key: []byte(key)}
}

// SaveSnapshot replaces the stored queue.
func (s *SnapshotRepository) SaveSnapshot(records []domain.SnapshotRecord) error {
	if records == nil {
		records = []domain.SnapshotRecord{}
	}
	bytes, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, bytes)
	})
}

// LoadSnapshot returns the stored queue, or nothing when no snapshot was ever saved.
func (s *SnapshotRepository) LoadSnapshot() ([]domain.SnapshotRecord, error) {
	var records []domain.SnapshotRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key)
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &records)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.log.Debug("No queue snapshot stored yet", "key", string(s.key))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load queue snapshot: %w", err)
	}
	return records, nil
}
