package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"referralintake/internal/provider/models"
	referral "referralintake/internal/referral/models"
	"referralintake/pkg/platform/sentinel"
)

// InMemoryStore is a mutex-guarded provider catalogue for tests and
// single-instance deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	providers map[uuid.UUID]*models.Provider
}

// NewInMemory creates an empty in-memory provider store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{providers: make(map[uuid.UUID]*models.Provider)}
}

func (s *InMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.providers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) ListByLevel(ctx context.Context, level referral.TriageLevel) ([]*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Provider
	for _, p := range s.providers {
		if p.AcceptsLevel(level) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Save(ctx context.Context, provider *models.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *provider
	s.providers[provider.ID] = &cp
	return nil
}
