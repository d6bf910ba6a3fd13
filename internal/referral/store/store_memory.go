package store

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"referralintake/internal/referral/models"
	"referralintake/pkg/platform/sentinel"
)

// InMemoryStore implements Store with a mutex-guarded map. The single mutex
// serializes the version check and write, so the optimistic-concurrency
// contract holds without a database.
type InMemoryStore struct {
	mu        sync.RWMutex
	referrals map[uuid.UUID]*models.Referral
}

// NewInMemory creates an empty in-memory referral store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{referrals: make(map[uuid.UUID]*models.Referral)}
}

func (s *InMemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.referrals[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyReferral(r), nil
}

func (s *InMemoryStore) GetLatestByNhsNumber(ctx context.Context, nhsNumber string) (*models.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest(func(r *models.Referral) bool {
		return r.NhsNumber == nhsNumber
	})
}

func (s *InMemoryStore) GetLatestByEmail(ctx context.Context, email string) (*models.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest(func(r *models.Referral) bool {
		return strings.EqualFold(r.Email, email)
	})
}

func (s *InMemoryStore) GetByUbrn(ctx context.Context, ubrn string) (*models.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.referrals {
		if r.Ubrn == ubrn {
			return copyReferral(r), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Create(ctx context.Context, referral *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.referrals[referral.ID]; exists {
		return sentinel.ErrConflict
	}
	referral.Version = 1
	s.referrals[referral.ID] = copyReferral(referral)
	return nil
}

func (s *InMemoryStore) Save(ctx context.Context, referral *models.Referral) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.referrals[referral.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Version != referral.Version {
		return sentinel.ErrConflict
	}
	referral.Version++
	s.referrals[referral.ID] = copyReferral(referral)
	return nil
}

// latest must be called with at least a read lock held.
func (s *InMemoryStore) latest(match func(*models.Referral) bool) (*models.Referral, error) {
	var found *models.Referral
	for _, r := range s.referrals {
		if !match(r) {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			found = r
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return copyReferral(found), nil
}

func copyReferral(r *models.Referral) *models.Referral {
	cp := *r
	if r.ProviderID != nil {
		id := *r.ProviderID
		cp.ProviderID = &id
	}
	if r.DateOfProviderSelection != nil {
		t := *r.DateOfProviderSelection
		cp.DateOfProviderSelection = &t
	}
	return &cp
}
