// Package models holds the provider catalogue records used for
// provider-selection eligibility.
package models

import (
	"time"

	"github.com/google/uuid"

	referral "referralintake/internal/referral/models"
	dErrors "referralintake/pkg/domain-errors"
)

// Provider is a weight-management programme provider. The level flags declare
// which triage levels the provider takes referrals for; the lifecycle engine
// computes the candidate set for a referral from them.
type Provider struct {
	ID   uuid.UUID
	Name string

	AcceptsLow    bool
	AcceptsMedium bool
	AcceptsHigh   bool

	Active     bool
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// NewProvider creates a provider with domain invariant validation.
func NewProvider(name string, acceptsLow, acceptsMedium, acceptsHigh bool, now time.Time) (*Provider, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "provider name cannot be empty")
	}
	if !acceptsLow && !acceptsMedium && !acceptsHigh {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "provider must accept at least one triage level")
	}
	return &Provider{
		ID:            uuid.New(),
		Name:          name,
		AcceptsLow:    acceptsLow,
		AcceptsMedium: acceptsMedium,
		AcceptsHigh:   acceptsHigh,
		Active:        true,
		CreatedAt:     now,
		ModifiedAt:    now,
	}, nil
}

// AcceptsLevel reports whether the provider takes referrals at the given
// triage level. Inactive providers accept nothing.
func (p *Provider) AcceptsLevel(level referral.TriageLevel) bool {
	if !p.Active {
		return false
	}
	switch level {
	case referral.TriageLevelLow:
		return p.AcceptsLow
	case referral.TriageLevelMedium:
		return p.AcceptsMedium
	case referral.TriageLevelHigh:
		return p.AcceptsHigh
	}
	return false
}
