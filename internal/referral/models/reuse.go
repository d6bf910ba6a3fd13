package models

import "time"

// ReuseOutcome classifies whether an identity (NHS number or email) may start
// a new referral.
type ReuseOutcome string

const (
	// ReuseAvailable: no prior referral restricts a new intake.
	ReuseAvailable ReuseOutcome = "Available"
	// ReuseBlocked: an in-progress or completed referral occupies the identity.
	ReuseBlocked ReuseOutcome = "Blocked"
	// ReuseCoolingDown: a cancelled, provider-committed referral restricts the
	// identity until the cool-down window elapses.
	ReuseCoolingDown ReuseOutcome = "CoolingDown"
)

// Blocked reasons reported to callers and monitoring.
const (
	BlockReasonInProgress = "in-progress referral"
	BlockReasonCompleted  = "previously completed"
)

// ReuseDecision is the arbitration result for an NHS number or email.
type ReuseDecision struct {
	Outcome ReuseOutcome

	// Reason is set when Outcome is ReuseBlocked.
	Reason string
	// AvailableFrom is set when Outcome is ReuseCoolingDown; it is truncated
	// to the date boundary and the boundary itself is available.
	AvailableFrom time.Time
	// ConflictingUbrn identifies the prior referral for Blocked and
	// CoolingDown outcomes.
	ConflictingUbrn string
}

// Available is the decision for an unrestricted identity.
func Available() ReuseDecision {
	return ReuseDecision{Outcome: ReuseAvailable}
}

// Blocked builds a blocked decision naming the conflicting referral.
func Blocked(reason, conflictingUbrn string) ReuseDecision {
	return ReuseDecision{Outcome: ReuseBlocked, Reason: reason, ConflictingUbrn: conflictingUbrn}
}

// CoolingDown builds a cool-down decision with the first available date.
func CoolingDown(availableFrom time.Time, conflictingUbrn string) ReuseDecision {
	return ReuseDecision{Outcome: ReuseCoolingDown, AvailableFrom: availableFrom, ConflictingUbrn: conflictingUbrn}
}
