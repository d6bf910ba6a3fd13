// Package store provides referral persistence.
//
// Stores are pure I/O. The lifecycle engine owns every rule; the store's only
// contract beyond CRUD is the version guard on Save, which is what lets the
// engine emulate check-then-write atomicity with optimistic concurrency.
package store

import (
	"context"

	"github.com/google/uuid"

	"referralintake/internal/referral/models"
)

// Store is the referral persistence contract consumed by the lifecycle engine.
//
// All lookups return sentinel.ErrNotFound when nothing matches. Save returns
// sentinel.ErrConflict when the stored version has advanced since the load,
// and increments the record's version on success.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Referral, error)

	// GetLatestByNhsNumber returns the most recently created referral for an
	// NHS number.
	GetLatestByNhsNumber(ctx context.Context, nhsNumber string) (*models.Referral, error)

	// GetLatestByEmail returns the most recently created referral for an
	// email address. The comparison is case-insensitive.
	GetLatestByEmail(ctx context.Context, email string) (*models.Referral, error)

	GetByUbrn(ctx context.Context, ubrn string) (*models.Referral, error)

	// Create inserts a new referral at version 1.
	Create(ctx context.Context, referral *models.Referral) error

	// Save updates an existing referral, guarded by referral.Version.
	Save(ctx context.Context, referral *models.Referral) error
}
