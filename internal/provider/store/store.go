// Package store provides provider catalogue storage.
package store

import (
	"context"

	"github.com/google/uuid"

	"referralintake/internal/provider/models"
	referral "referralintake/internal/referral/models"
)

// Store is the provider catalogue contract consumed by the lifecycle engine.
type Store interface {
	// GetByID returns a provider or sentinel.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)

	// ListByLevel returns the active providers accepting the given triage level.
	ListByLevel(ctx context.Context, level referral.TriageLevel) ([]*models.Provider, error)

	// Save inserts or updates a provider.
	Save(ctx context.Context, provider *models.Provider) error
}
