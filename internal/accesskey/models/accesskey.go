// Package models holds the access-key record and validation outcomes.
//
// A key's state (active, consumed, expired, locked) is evaluated lazily from
// stored fields at validation time; there is no stored state enum, so a
// background sweep can never disagree with a live request about expiry.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	dErrors "referralintake/pkg/domain-errors"
)

// AccessKey is a short-lived one-time verification code bound to an email.
// The plaintext code is never stored; only its bcrypt hash is.
type AccessKey struct {
	ID       uuid.UUID
	Email    string
	CodeHash string

	CreatedAt time.Time
	ExpiresAt time.Time

	AttemptCount int
	IsConsumed   bool
}

// NewAccessKey hashes the code and builds a fresh key record.
func NewAccessKey(email, code string, now, expiresAt time.Time) (*AccessKey, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email cannot be empty")
	}
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "code cannot be empty")
	}
	if !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be in the future")
	}

	hash, err := HashCode(code)
	if err != nil {
		return nil, err
	}
	return &AccessKey{
		ID:        uuid.New(),
		Email:     email,
		CodeHash:  hash,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// IsExpired reports whether now is at or past the key's expiry.
func (k *AccessKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// IsActive reports whether the key is still usable: unconsumed and unexpired.
func (k *AccessKey) IsActive(now time.Time) bool {
	return !k.IsConsumed && !k.IsExpired(now)
}

// AttemptsExhausted reports whether the attempt counter has saturated.
func (k *AccessKey) AttemptsExhausted(maxAttempts int) bool {
	return k.AttemptCount >= maxAttempts
}

// Matches compares a presented code against the stored hash. Codes compare
// case-insensitively, so both sides normalize before hashing.
func (k *AccessKey) Matches(code string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(k.CodeHash), []byte(NormalizeCode(code)))
	return err == nil
}

// NormalizeEmail lower-cases and trims an email for storage and lookup.
// Matching is case-insensitive across local and domain parts.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeCode upper-cases and trims a presented code. The stored hash is
// computed over the same form, which is what makes comparison
// case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashCode bcrypt-hashes a normalized code for at-rest storage.
func HashCode(code string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(NormalizeCode(code)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("could not hash access key code: %w", err)
	}
	return string(hashed), nil
}

// IssuedKey is returned to the caller on issuance. Delivery (email/SMS) is an
// external collaborator; the engine only hands back the plaintext once.
type IssuedKey struct {
	Code      string
	ExpiresAt time.Time
}

// Outcome is the result of a validation attempt. The five failure outcomes
// are distinct on purpose: collapsing them would hide brute-force lockouts
// behind ordinary typos.
type Outcome string

const (
	OutcomeValid           Outcome = "Valid"
	OutcomeNotFound        Outcome = "NotFound"
	OutcomeAlreadyUsed     Outcome = "AlreadyUsed"
	OutcomeExpired         Outcome = "Expired"
	OutcomeTooManyAttempts Outcome = "TooManyAttempts"
	OutcomeIncorrect       Outcome = "Incorrect"
)

func (o Outcome) String() string {
	return string(o)
}

// ValidationResult pairs the outcome with the key's expiry on success.
type ValidationResult struct {
	Outcome   Outcome
	ExpiresAt time.Time
}

// MaxActiveAccessKeysError rejects issuance past the per-email ceiling.
// Existing keys are left untouched; the engine never evicts to make room.
type MaxActiveAccessKeysError struct {
	Email string
	Limit int
}

func (e *MaxActiveAccessKeysError) Error() string {
	return fmt.Sprintf("email %s already has %d active access keys", e.Email, e.Limit)
}
