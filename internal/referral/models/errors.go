package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Typed domain errors for the referral lifecycle. Each carries the data a
// caller needs to render a precise message; transports map them to status
// codes with errors.As. None of these represent infrastructure failures —
// those surface as coded errors from pkg/domain-errors instead.

// NotFoundError reports that no referral exists for the given id.
type NotFoundError struct {
	ReferralID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("referral %s not found", e.ReferralID)
}

// InvalidStatusError reports an operation attempted against a status that
// does not permit it. RequestedStatus is zero for non-transition operations.
type InvalidStatusError struct {
	ReferralID      uuid.UUID
	CurrentStatus   ReferralStatus
	RequestedStatus ReferralStatus
}

func (e *InvalidStatusError) Error() string {
	if e.RequestedStatus != "" {
		return fmt.Sprintf("referral %s: transition from %s to %s is not allowed",
			e.ReferralID, e.CurrentStatus, e.RequestedStatus)
	}
	return fmt.Sprintf("referral %s: operation not allowed in status %s", e.ReferralID, e.CurrentStatus)
}

// TriageIncompleteError reports provider selection attempted before triage.
// Missing names the unset level(s): "completion", "weighted" or
// "completion and weighted".
type TriageIncompleteError struct {
	ReferralID uuid.UUID
	Missing    string
}

func (e *TriageIncompleteError) Error() string {
	return fmt.Sprintf("referral %s: triage incomplete, %s level not set", e.ReferralID, e.Missing)
}

// ProviderNotEligibleError reports a provider outside the candidate set for
// the referral's triage level.
type ProviderNotEligibleError struct {
	TriageLevel TriageLevel
	ProviderID  uuid.UUID
}

func (e *ProviderNotEligibleError) Error() string {
	return fmt.Sprintf("provider %s is not eligible for triage level %s", e.ProviderID, e.TriageLevel)
}

// ProviderAlreadySelectedError reports a second provider selection against a
// referral. Selection is a one-time event per referral.
type ProviderAlreadySelectedError struct {
	ReferralID         uuid.UUID
	ExistingProviderID uuid.UUID
}

func (e *ProviderAlreadySelectedError) Error() string {
	return fmt.Sprintf("referral %s already has provider %s selected", e.ReferralID, e.ExistingProviderID)
}

// NhsNumberBlockedError reports a create attempt against an NHS number whose
// existing referral blocks reuse.
type NhsNumberBlockedError struct {
	Reason          string
	ConflictingUbrn string
}

func (e *NhsNumberBlockedError) Error() string {
	return fmt.Sprintf("nhs number blocked: %s (conflicting ubrn %s)", e.Reason, e.ConflictingUbrn)
}

// NhsNumberCoolingDownError reports a create attempt inside the cool-down
// window that follows a cancelled, provider-committed referral.
type NhsNumberCoolingDownError struct {
	AvailableFrom   time.Time
	ConflictingUbrn string
}

func (e *NhsNumberCoolingDownError) Error() string {
	return fmt.Sprintf("nhs number in cool-down until %s (conflicting ubrn %s)",
		e.AvailableFrom.Format("2006-01-02"), e.ConflictingUbrn)
}

// EmailBlockedError mirrors NhsNumberBlockedError for the email identity.
type EmailBlockedError struct {
	Reason          string
	ConflictingUbrn string
}

func (e *EmailBlockedError) Error() string {
	return fmt.Sprintf("email blocked: %s (conflicting ubrn %s)", e.Reason, e.ConflictingUbrn)
}

// EmailCoolingDownError mirrors NhsNumberCoolingDownError for the email identity.
type EmailCoolingDownError struct {
	AvailableFrom   time.Time
	ConflictingUbrn string
}

func (e *EmailCoolingDownError) Error() string {
	return fmt.Sprintf("email in cool-down until %s (conflicting ubrn %s)",
		e.AvailableFrom.Format("2006-01-02"), e.ConflictingUbrn)
}
