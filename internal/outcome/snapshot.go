// SPDX-License-Identifier: MIT

// Package outcome persists session results: a badger-backed hot snapshot
// of every session's latest lifecycle state, and a sqlite cold log of
// terminal summaries for offline analysis.
package outcome

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/moodpulse/moodpulse/internal/session"
)

// Record is the persisted view of one session's lifecycle.
type Record struct {
	SessionID string           `json:"session_id"`
	TenantID  string           `json:"tenant_id"`
	State     session.State    `json:"state"`
	Outcome   session.Outcome  `json:"outcome,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
	Summary   *session.Summary `json:"summary,omitempty"`
}

const snapshotKeyPrefix = "outcome:"

// SnapshotStore keeps the latest Record per session in badger. Reads are
// served to the dashboard API; the recorder is the only writer.
type SnapshotStore struct {
	db *badger.DB
}

// OpenSnapshotStore opens (or creates) the badger directory at path.
func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error { return s.db.Close() }

// Put upserts the session's record.
func (s *SnapshotStore) Put(rec Record) error {
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", rec.SessionID, err)
	}
	key := []byte(snapshotKeyPrefix + rec.SessionID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	})
}

// Get returns the stored record for a session.
func (s *SnapshotStore) Get(sessionID string) (Record, bool, error) {
	var rec Record
	key := []byte(snapshotKeyPrefix + sessionID)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}
