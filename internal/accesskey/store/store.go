// Package store provides access-key persistence.
//
// The store owns the atomic read-modify-write primitives the engine's
// concurrency contract depends on: IncrementAttempts and Consume must be
// atomic per key so two concurrent validations can never both consume a code.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"referralintake/internal/accesskey/models"
)

// Store is the access-key persistence contract consumed by the engine.
// Lookups return sentinel.ErrNotFound when nothing matches. Keys are never
// deleted by the engine; expiry is time-based and evaluated by callers.
type Store interface {
	// Create inserts a new key record.
	Create(ctx context.Context, key *models.AccessKey) error

	// GetMostRecent returns the newest key for an email, consumed or not.
	GetMostRecent(ctx context.Context, email string) (*models.AccessKey, error)

	// CountActive counts unconsumed, unexpired keys for an email.
	CountActive(ctx context.Context, email string, now time.Time) (int, error)

	// IncrementAttempts atomically bumps the attempt counter and returns the
	// new count.
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)

	// Consume atomically marks the key used and counts the successful
	// attempt. Returns false when the key was already consumed, which is how
	// a lost validation race is detected.
	Consume(ctx context.Context, id uuid.UUID) (bool, error)
}
