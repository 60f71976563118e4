package repository

import (
	"sync"
	"time"

	"federation-hub/models"
)

// SessionStore provides thread-safe in-memory storage of session records,
// keyed by (principal, provider). Records are stored and handed out by value,
// so callers never share memory with the store or with each other; all
// mutations of stored state go through store methods under the lock. All
// operations are O(1) map work; none perform I/O.
type SessionStore struct {
	mu      sync.RWMutex
	records map[models.SessionKey]models.SessionRecord
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		records: make(map[models.SessionKey]models.SessionRecord),
	}
}

// Put upserts a record, overwriting any existing record for the same key.
// The store keeps its own copy; later changes to the argument are not seen.
func (s *SessionStore) Put(record *models.SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key] = *record
}

// Get retrieves a snapshot of the current record for a key. Mutating the
// returned record does not affect the stored one.
func (s *SessionStore) Get(key models.SessionKey) (*models.SessionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, found := s.records[key]
	if !found {
		return nil, false
	}
	return &record, true
}

// Remove deletes the record for a key. Idempotent.
func (s *SessionStore) Remove(key models.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
}

// IncrementStaleServes bumps the stale-serve counter of the stored record
// under the lock and returns the new count, so concurrent callers each get a
// distinct count. Returns false when no record exists for the key.
func (s *SessionStore) IncrementStaleServes(key models.SessionKey) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, found := s.records[key]
	if !found {
		return 0, false
	}
	record.StaleServes++
	s.records[key] = record
	return record.StaleServes, true
}

// ListExpired returns the keys of records whose bundles expired before now.
func (s *SessionStore) ListExpired(now time.Time) []models.SessionKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []models.SessionKey
	for key, record := range s.records {
		if now.After(record.Bundle.ExpiresAt) {
			expired = append(expired, key)
		}
	}
	return expired
}

// Len returns the number of stored records.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
