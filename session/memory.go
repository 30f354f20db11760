package session

import (
	"context"
	"sync"
	"time"
)

// memoryStore implements Store using in-memory maps with optimistic
// locking. A single mutex covers sessions, the user index and quota
// records, which makes the combined session+quota commit trivially
// atomic. Suited to tests and single-instance deployments.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Data
	users    map[string]string // userID -> sessionID
	quotas   map[string]*QuotaRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions: make(map[string]*Data),
		users:    make(map[string]string),
		quotas:   make(map[string]*QuotaRecord),
	}
}

// CreateSession implements Store. The user bind and the session write
// happen under one lock, so concurrent creates for the same user cannot
// both succeed.
func (s *memoryStore) CreateSession(ctx context.Context, data *Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, bound := s.users[data.UserID]; bound {
		return ErrDuplicateSession
	}

	now := time.Now()
	data.CreatedAt = now
	data.UpdatedAt = now
	data.Version = 1

	s.sessions[data.ID] = data.clone()
	s.users[data.UserID] = data.ID
	return nil
}

// GetSession implements Store.
// Returns nil if the session is not found (not an error).
func (s *memoryStore) GetSession(ctx context.Context, id string) (*Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.sessions[id]
	if !exists {
		return nil, nil // Not found
	}
	return data.clone(), nil
}

// SessionIDByUser implements Store.
func (s *memoryStore) SessionIDByUser(ctx context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.users[userID], nil
}

// UpdateSession implements Store.
func (s *memoryStore) UpdateSession(ctx context.Context, data *Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateSessionLocked(data)
}

func (s *memoryStore) updateSessionLocked(data *Data) error {
	stored, exists := s.sessions[data.ID]
	if !exists {
		return ErrNotFound
	}

	// Check version for optimistic locking
	if stored.Version != data.Version {
		return ErrVersionConflict
	}

	data.Version++
	data.UpdatedAt = time.Now()

	s.sessions[data.ID] = data.clone()
	return nil
}

// DeleteSession implements Store.
func (s *memoryStore) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, exists := s.sessions[id]; exists {
		delete(s.users, stored.UserID)
	}
	delete(s.sessions, id)
	return nil
}

// GetQuota implements Store.
// Returns nil if the user has no quota record yet (not an error).
func (s *memoryStore) GetQuota(ctx context.Context, userID string) (*QuotaRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.quotas[userID]
	if !exists {
		return nil, nil
	}
	return rec.clone(), nil
}

// PutQuota implements Store.
func (s *memoryStore) PutQuota(ctx context.Context, rec *QuotaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.putQuotaLocked(rec)
}

func (s *memoryStore) putQuotaLocked(rec *QuotaRecord) error {
	stored, exists := s.quotas[rec.UserID]
	if exists && stored.Version != rec.Version {
		return ErrVersionConflict
	}
	if !exists && rec.Version != 0 {
		return ErrVersionConflict
	}

	rec.Version++
	s.quotas[rec.UserID] = rec.clone()
	return nil
}

// UpdateSessionAndQuota implements Store. Both writes happen under one
// lock section; if either version check fails nothing is written.
func (s *memoryStore) UpdateSessionAndQuota(ctx context.Context, data *Data, rec *QuotaRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.sessions[data.ID]
	if !exists {
		return ErrNotFound
	}
	if stored.Version != data.Version {
		return ErrVersionConflict
	}
	if q, qExists := s.quotas[rec.UserID]; qExists {
		if q.Version != rec.Version {
			return ErrVersionConflict
		}
	} else if rec.Version != 0 {
		return ErrVersionConflict
	}

	if err := s.updateSessionLocked(data); err != nil {
		return err
	}
	return s.putQuotaLocked(rec)
}

// Close implements Store.
func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	s.users = nil
	s.quotas = nil
	return nil
}
