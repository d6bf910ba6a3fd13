package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"referralintake/internal/accesskey/models"
	"referralintake/pkg/platform/sentinel"
)

// InMemoryStore implements Store with a single mutex, which fully serializes
// the count-and-insert and read-modify-write paths. Suitable for tests and
// single-instance deployments; distributed deployments use the Redis store.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*models.AccessKey
}

// NewInMemory creates an empty in-memory access-key store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{keys: make(map[uuid.UUID]*models.AccessKey)}
}

func (s *InMemoryStore) Create(ctx context.Context, key *models.AccessKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *key
	s.keys[key.ID] = &cp
	return nil
}

func (s *InMemoryStore) GetMostRecent(ctx context.Context, email string) (*models.AccessKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = models.NormalizeEmail(email)
	var found *models.AccessKey
	for _, k := range s.keys {
		if k.Email != email {
			continue
		}
		if found == nil || k.CreatedAt.After(found.CreatedAt) {
			found = k
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *found
	return &cp, nil
}

func (s *InMemoryStore) CountActive(ctx context.Context, email string, now time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email = models.NormalizeEmail(email)
	count := 0
	for _, k := range s.keys {
		if k.Email == email && k.IsActive(now) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return 0, sentinel.ErrNotFound
	}
	k.AttemptCount++
	return k.AttemptCount, nil
}

func (s *InMemoryStore) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[id]
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if k.IsConsumed {
		return false, nil
	}
	k.IsConsumed = true
	k.AttemptCount++
	return true, nil
}
