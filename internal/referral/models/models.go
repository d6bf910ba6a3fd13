package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "referralintake/pkg/domain-errors"
)

// TriageLevel is the coarse weighting category produced by the scoring
// subsystem. An empty value means the referral has not been triaged yet.
type TriageLevel string

const (
	TriageLevelLow    TriageLevel = "Low"
	TriageLevelMedium TriageLevel = "Medium"
	TriageLevelHigh   TriageLevel = "High"
)

// IsValid checks if the triage level is one of the supported enum values.
func (l TriageLevel) IsValid() bool {
	switch l {
	case TriageLevelLow, TriageLevelMedium, TriageLevelHigh:
		return true
	}
	return false
}

// IsSet reports whether a level has been assigned.
func (l TriageLevel) IsSet() bool {
	return l != ""
}

func (l TriageLevel) String() string {
	return string(l)
}

// ParseTriageLevel creates a TriageLevel from a string, validating it.
func ParseTriageLevel(s string) (TriageLevel, error) {
	l := TriageLevel(s)
	if !l.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid triage level %q", s)
	}
	return l, nil
}

// ReferralSource identifies the intake channel that created a referral.
type ReferralSource string

const (
	SourceSelfReferral    ReferralSource = "SelfReferral"
	SourceGeneralReferral ReferralSource = "GeneralReferral"
	SourcePharmacy        ReferralSource = "Pharmacy"
	SourceMsk             ReferralSource = "Msk"
	SourceStaffReferral   ReferralSource = "StaffReferral"
	SourceGpReferral      ReferralSource = "GpReferral"
	SourceElectiveCare    ReferralSource = "ElectiveCare"
)

// IsValid checks if the referral source is one of the supported enum values.
func (s ReferralSource) IsValid() bool {
	switch s {
	case SourceSelfReferral, SourceGeneralReferral, SourcePharmacy, SourceMsk,
		SourceStaffReferral, SourceGpReferral, SourceElectiveCare:
		return true
	}
	return false
}

func (s ReferralSource) String() string {
	return string(s)
}

// ParseReferralSource creates a ReferralSource from a string, validating it.
func ParseReferralSource(s string) (ReferralSource, error) {
	src := ReferralSource(s)
	if !src.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid referral source %q", s)
	}
	return src, nil
}

// Referral is the shared record every intake channel funnels into.
//
// Invariants enforced here and in the lifecycle service:
//   - ProviderID is set if and only if DateOfProviderSelection is set.
//   - A provider is attached at most once, and only while the status allows
//     selection and both triage levels are set.
//   - Referrals are never deleted; cancellation is a status value.
type Referral struct {
	ID        uuid.UUID
	Ubrn      string
	NhsNumber string
	Email     string

	Source ReferralSource
	Status ReferralStatus

	TriagedCompletionLevel TriageLevel
	TriagedWeightedLevel   TriageLevel

	ProviderID              *uuid.UUID
	DateOfProviderSelection *time.Time

	CreatedAt        time.Time
	ModifiedAt       time.Time
	ModifiedByUserID string

	// Version guards optimistic-concurrency writes; the store rejects a Save
	// whose version no longer matches.
	Version int
}

// NewReferral creates a referral at status New with domain invariant validation.
func NewReferral(source ReferralSource, nhsNumber, email, ubrn string, now time.Time) (*Referral, error) {
	if !source.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "referral source is invalid")
	}
	if nhsNumber == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "nhs number cannot be empty")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email cannot be empty")
	}
	if source == SourceGpReferral && ubrn == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "gp referrals require a ubrn")
	}

	return &Referral{
		ID:         uuid.New(),
		Ubrn:       ubrn,
		NhsNumber:  nhsNumber,
		Email:      strings.ToLower(email),
		Source:     source,
		Status:     StatusNew,
		CreatedAt:  now,
		ModifiedAt: now,
	}, nil
}

// IsTriaged reports whether both triage levels have been assigned.
func (r *Referral) IsTriaged() bool {
	return r.TriagedCompletionLevel.IsSet() && r.TriagedWeightedLevel.IsSet()
}

// MissingTriageLevels names the unset levels for precise error messages.
func (r *Referral) MissingTriageLevels() string {
	switch {
	case !r.TriagedCompletionLevel.IsSet() && !r.TriagedWeightedLevel.IsSet():
		return "completion and weighted"
	case !r.TriagedCompletionLevel.IsSet():
		return "completion"
	case !r.TriagedWeightedLevel.IsSet():
		return "weighted"
	}
	return ""
}

// HasProviderSelected reports whether a provider selection has ever happened
// for this referral, regardless of where the status has since moved.
func (r *Referral) HasProviderSelected() bool {
	return r.DateOfProviderSelection != nil
}

// AttachProvider records the one-time provider selection, pairing ProviderID
// with DateOfProviderSelection atomically. Eligibility checks (status class,
// triage completeness, candidate set) belong to the service; the model only
// refuses a second selection.
func (r *Referral) AttachProvider(providerID uuid.UUID, now time.Time) error {
	if r.HasProviderSelected() {
		existing := uuid.Nil
		if r.ProviderID != nil {
			existing = *r.ProviderID
		}
		return &ProviderAlreadySelectedError{ReferralID: r.ID, ExistingProviderID: existing}
	}
	r.ProviderID = &providerID
	selectedAt := now
	r.DateOfProviderSelection = &selectedAt
	r.ModifiedAt = now
	return nil
}

// Transition moves the referral to a new status after checking the central
// transition table. Terminal statuses reject every request; nothing no-ops.
func (r *Referral) Transition(to ReferralStatus, now time.Time) error {
	if !r.Status.CanTransition(to) {
		return &InvalidStatusError{ReferralID: r.ID, CurrentStatus: r.Status, RequestedStatus: to}
	}
	if to == StatusProviderAccepted && !r.HasProviderSelected() {
		return dErrors.New(dErrors.CodeInvariantViolation, "cannot enter ProviderAccepted without a selected provider")
	}
	r.Status = to
	r.ModifiedAt = now
	return nil
}

// SetTriage assigns both triage levels. Triage may be revised while the
// referral is still awaiting contact, but not once the programme is underway.
func (r *Referral) SetTriage(completion, weighted TriageLevel, now time.Time) error {
	if !completion.IsValid() || !weighted.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "both triage levels must be Low, Medium or High")
	}
	if !r.Status.AllowsProviderSelection() {
		return &InvalidStatusError{ReferralID: r.ID, CurrentStatus: r.Status}
	}
	r.TriagedCompletionLevel = completion
	r.TriagedWeightedLevel = weighted
	r.ModifiedAt = now
	return nil
}
