// Package audit captures structured events from the referral and access-key
// engines. Monitoring needs to distinguish outcomes precisely (a brute-force
// lockout is not a typo), so events carry the outcome verbatim rather than a
// collapsed success/failure flag.
package audit

import (
	"context"
	"time"
)

// Action identifies what happened.
type Action string

const (
	ActionReferralCreated    Action = "referral_created"
	ActionProviderSelected   Action = "provider_selected"
	ActionStatusTransitioned Action = "status_transitioned"
	ActionTriageSet          Action = "triage_set"

	ActionAccessKeyIssued    Action = "access_key_issued"
	ActionAccessKeyValidated Action = "access_key_validated"
	ActionAccessKeyLockout   Action = "access_key_lockout"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Action    Action    `json:"action"`
	Timestamp time.Time `json:"timestamp"`

	// Subject identifies the entity acted on: a referral id or an email.
	Subject string `json:"subject"`
	// Outcome records the precise result (a status name, a validation outcome,
	// a reuse decision). Empty for unconditional events.
	Outcome string `json:"outcome,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// ActorID tracks who performed the action when a caller identity is known.
	ActorID   string `json:"actor_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Publisher emits audit events. Implementations must be safe for concurrent use.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// Store is an append-only sink for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
