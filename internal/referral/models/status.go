// Referral status state machine.
//
// Status graph (abbreviated; Cancelled* covers all three cancellation statuses):
//
//	New ──► RmcCall / RmcDelayed / TextMessage* / ChatBotCall* / ChatBotTransfer
//	 │                         │
//	 │                         ├──► ProviderAccepted ──► ProviderAwaitingStart ──► ProviderCompleted ──► Complete
//	 │                         ├──► FailedToContact ──► LetterSent
//	 └──► Exception / Cancelled*
//
// Complete and Cancelled* are terminal. Every legality check in the engine
// goes through this table; call sites must not keep their own allow-lists.
package models

import "fmt"

// ReferralStatus values mirror the referral_status enum in PostgreSQL.
type ReferralStatus string

const (
	StatusNew             ReferralStatus = "New"
	StatusRmcCall         ReferralStatus = "RmcCall"
	StatusRmcDelayed      ReferralStatus = "RmcDelayed"
	StatusTextMessage1    ReferralStatus = "TextMessage1"
	StatusTextMessage2    ReferralStatus = "TextMessage2"
	StatusChatBotCall1    ReferralStatus = "ChatBotCall1"
	StatusChatBotCall2    ReferralStatus = "ChatBotCall2"
	StatusChatBotTransfer ReferralStatus = "ChatBotTransfer"

	StatusProviderAccepted      ReferralStatus = "ProviderAccepted"
	StatusProviderAwaitingStart ReferralStatus = "ProviderAwaitingStart"
	StatusProviderCompleted     ReferralStatus = "ProviderCompleted"

	StatusFailedToContact ReferralStatus = "FailedToContact"
	StatusLetterSent      ReferralStatus = "LetterSent"
	StatusException       ReferralStatus = "Exception"

	StatusComplete ReferralStatus = "Complete"

	StatusCancelledByEreferrals         ReferralStatus = "CancelledByEreferrals"
	StatusCancelledDuplicate            ReferralStatus = "CancelledDuplicate"
	StatusCancelledDuplicateTextMessage ReferralStatus = "CancelledDuplicateTextMessage"
)

// awaitingContact statuses permit provider selection and movement between
// contact channels. Triage happens while a referral sits in this class.
var awaitingContact = []ReferralStatus{
	StatusNew,
	StatusRmcCall,
	StatusRmcDelayed,
	StatusTextMessage1,
	StatusTextMessage2,
	StatusChatBotCall1,
	StatusChatBotCall2,
	StatusChatBotTransfer,
}

var cancelled = []ReferralStatus{
	StatusCancelledByEreferrals,
	StatusCancelledDuplicate,
	StatusCancelledDuplicateTextMessage,
}

// validTransitions lists every allowed (from → to) pair. Complete and the
// Cancelled* statuses are terminal and have no outgoing transitions.
var validTransitions = buildTransitions()

func buildTransitions() map[ReferralStatus][]ReferralStatus {
	t := make(map[ReferralStatus][]ReferralStatus)

	// Awaiting-contact statuses may move to any other contact channel, enter
	// provider selection, fall out to failed-contact handling, or close out.
	for _, from := range awaitingContact {
		var targets []ReferralStatus
		for _, to := range awaitingContact {
			if to != from && to != StatusNew {
				targets = append(targets, to)
			}
		}
		targets = append(targets, StatusProviderAccepted, StatusFailedToContact, StatusException)
		targets = append(targets, cancelled...)
		t[from] = targets
	}

	// Provider-selected statuses progress through the programme. Cancellation
	// is allowed only before the programme starts.
	t[StatusProviderAccepted] = join([]ReferralStatus{StatusProviderAwaitingStart, StatusException}, cancelled)
	t[StatusProviderAwaitingStart] = join([]ReferralStatus{StatusProviderCompleted, StatusException}, cancelled)
	t[StatusProviderCompleted] = []ReferralStatus{StatusComplete, StatusException}

	// Failed-contact handling: a letter goes out, then the referral is either
	// re-engaged or closed.
	t[StatusFailedToContact] = join([]ReferralStatus{StatusLetterSent, StatusRmcCall, StatusException}, cancelled)
	t[StatusLetterSent] = join([]ReferralStatus{StatusRmcCall, StatusException}, cancelled)

	// Exceptions can be worked and returned to the call queue, or closed.
	t[StatusException] = join([]ReferralStatus{StatusRmcCall}, cancelled)

	return t
}

func join(a, b []ReferralStatus) []ReferralStatus {
	out := make([]ReferralStatus, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// ParseReferralStatus converts a raw string to a ReferralStatus, returning an
// error for unknown values.
func ParseReferralStatus(s string) (ReferralStatus, error) {
	st := ReferralStatus(s)
	if _, ok := validTransitions[st]; ok {
		return st, nil
	}
	if st.IsTerminal() {
		return st, nil
	}
	return "", fmt.Errorf("unknown referral status %q", s)
}

// IsCancelled reports whether the status is one of the Cancelled* family.
func (s ReferralStatus) IsCancelled() bool {
	for _, c := range cancelled {
		if s == c {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s ReferralStatus) IsTerminal() bool {
	return s == StatusComplete || s.IsCancelled()
}

// IsActive reports whether a referral in this status still occupies its NHS
// number: anything that is not Complete and not cancelled.
func (s ReferralStatus) IsActive() bool {
	return !s.IsTerminal()
}

// AllowsProviderSelection reports whether a provider may be attached while the
// referral sits in this status.
func (s ReferralStatus) AllowsProviderSelection() bool {
	for _, st := range awaitingContact {
		if s == st {
			return true
		}
	}
	return false
}

// CanTransition reports whether moving from s to the target status is
// permitted by the state machine. Terminal statuses allow nothing.
func (s ReferralStatus) CanTransition(to ReferralStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal targets from s. The slice is a copy.
func (s ReferralStatus) AllowedTransitions() []ReferralStatus {
	allowed := validTransitions[s]
	out := make([]ReferralStatus, len(allowed))
	copy(out, allowed)
	return out
}

func (s ReferralStatus) String() string {
	return string(s)
}
