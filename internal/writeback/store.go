// Gridfleet - Fleet Operations Live Data Synchronization
// Copyright 2026 Gridfleet Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridfleet/gridfleet

package writeback

import (
	"fmt"
	"sort"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/gridfleet/gridfleet/internal/logging"
	"github.com/gridfleet/gridfleet/internal/models"
)

// FailureStore persists operations that exhausted their retry budget.
// Entries survive process restarts so reprocessing can pick them up.
type FailureStore interface {
	// Put stores or replaces the record, keyed by operation id.
	Put(record models.FailedSync) error
	// Delete removes the record for the operation id. Deleting a
	// missing record is not an error.
	Delete(operationID string) error
	// List returns all records ordered by failure time, oldest first.
	List() ([]models.FailedSync, error)
	// Len reports the number of stored records.
	Len() (int, error)
	Close() error
}

const failedKeyPrefix = "failed/"

// BadgerStore is the durable FailureStore backed by a badger database.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the failure queue at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening failure queue at %s: %w", dir, err)
	}
	logging.Info().Str("dir", dir).Msg("failure queue opened")
	return &BadgerStore{db: db}, nil
}

// Put implements FailureStore.
func (s *BadgerStore) Put(record models.FailedSync) error {
	if record.Operation.ID == "" {
		return fmt.Errorf("failed sync record without operation id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding failed sync %s: %w", record.Operation.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(failedKey(record.Operation.ID), data)
	})
}

// Delete implements FailureStore.
func (s *BadgerStore) Delete(operationID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(failedKey(operationID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

// List implements FailureStore.
func (s *BadgerStore) List() ([]models.FailedSync, error) {
	var records []models.FailedSync
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(failedKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec models.FailedSync
				if err := json.Unmarshal(val, &rec); err != nil {
					// A corrupt entry must not wedge reprocessing.
					logging.Warn().
						Str("key", string(it.Item().Key())).
						Err(err).
						Msg("skipping undecodable failure queue entry")
					return nil
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing failure queue: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// Len implements FailureStore.
func (s *BadgerStore) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(failedKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting failure queue: %w", err)
	}
	return n, nil
}

// Close implements FailureStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func failedKey(operationID string) []byte {
	return []byte(failedKeyPrefix + operationID)
}

// MemoryStore is an in-memory FailureStore for tests and ephemeral
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.FailedSync
}

// NewMemoryStore returns an empty in-memory failure queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.FailedSync)}
}

// Put implements FailureStore.
func (s *MemoryStore) Put(record models.FailedSync) error {
	if record.Operation.ID == "" {
		return fmt.Errorf("failed sync record without operation id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Operation.ID] = record
	return nil
}

// Delete implements FailureStore.
func (s *MemoryStore) Delete(operationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, operationID)
	return nil
}

// List implements FailureStore.
func (s *MemoryStore) List() ([]models.FailedSync, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.FailedSync, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Len implements FailureStore.
func (s *MemoryStore) Len() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

// Close implements FailureStore.
func (s *MemoryStore) Close() error { return nil }
