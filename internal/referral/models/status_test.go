package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferralStatus(t *testing.T) {
	t.Run("accepts every known status", func(t *testing.T) {
		for _, raw := range []string{
			"New", "RmcCall", "RmcDelayed", "TextMessage1", "TextMessage2",
			"ChatBotCall1", "ChatBotCall2", "ChatBotTransfer",
			"ProviderAccepted", "ProviderAwaitingStart", "ProviderCompleted",
			"FailedToContact", "LetterSent", "Exception", "Complete",
			"CancelledByEreferrals", "CancelledDuplicate", "CancelledDuplicateTextMessage",
		} {
			status, err := ParseReferralStatus(raw)
			require.NoError(t, err, raw)
			assert.Equal(t, raw, status.String())
		}
	})

	t.Run("rejects unknown values", func(t *testing.T) {
		_, err := ParseReferralStatus("Paused")
		assert.Error(t, err)
	})

	t.Run("is case-sensitive", func(t *testing.T) {
		_, err := ParseReferralStatus("new")
		assert.Error(t, err)
	})
}

func TestStatusClasses(t *testing.T) {
	t.Run("terminal statuses", func(t *testing.T) {
		for _, status := range []ReferralStatus{
			StatusComplete, StatusCancelledByEreferrals, StatusCancelledDuplicate,
			StatusCancelledDuplicateTextMessage,
		} {
			assert.True(t, status.IsTerminal(), status)
			assert.False(t, status.IsActive(), status)
			assert.Empty(t, status.AllowedTransitions(), status)
		}
	})

	t.Run("cancelled excludes complete", func(t *testing.T) {
		assert.True(t, StatusCancelledDuplicate.IsCancelled())
		assert.False(t, StatusComplete.IsCancelled())
	})

	t.Run("provider selection is open exactly in the awaiting-contact class", func(t *testing.T) {
		open := []ReferralStatus{
			StatusNew, StatusRmcCall, StatusRmcDelayed, StatusTextMessage1,
			StatusTextMessage2, StatusChatBotCall1, StatusChatBotCall2,
			StatusChatBotTransfer,
		}
		for _, status := range open {
			assert.True(t, status.AllowsProviderSelection(), status)
		}
		closed := []ReferralStatus{
			StatusProviderAccepted, StatusProviderAwaitingStart, StatusProviderCompleted,
			StatusFailedToContact, StatusLetterSent, StatusException,
			StatusComplete, StatusCancelledByEreferrals,
		}
		for _, status := range closed {
			assert.False(t, status.AllowsProviderSelection(), status)
		}
	})
}

func TestCanTransition(t *testing.T) {
	allowed := []struct {
		from, to ReferralStatus
	}{
		{StatusNew, StatusRmcCall},
		{StatusNew, StatusProviderAccepted},
		{StatusNew, StatusFailedToContact},
		{StatusNew, StatusCancelledDuplicate},
		{StatusRmcCall, StatusRmcDelayed},
		{StatusTextMessage1, StatusTextMessage2},
		{StatusChatBotCall1, StatusChatBotTransfer},
		{StatusProviderAccepted, StatusProviderAwaitingStart},
		{StatusProviderAccepted, StatusCancelledByEreferrals},
		{StatusProviderAwaitingStart, StatusProviderCompleted},
		{StatusProviderCompleted, StatusComplete},
		{StatusProviderCompleted, StatusException},
		{StatusFailedToContact, StatusLetterSent},
		{StatusLetterSent, StatusRmcCall},
		{StatusException, StatusRmcCall},
		{StatusException, StatusCancelledByEreferrals},
	}
	for _, tc := range allowed {
		assert.True(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}

	forbidden := []struct {
		from, to ReferralStatus
	}{
		// Nothing re-enters New.
		{StatusRmcCall, StatusNew},
		{StatusException, StatusNew},
		// No self-transitions.
		{StatusRmcCall, StatusRmcCall},
		// The programme cannot be skipped or rewound.
		{StatusNew, StatusProviderAwaitingStart},
		{StatusNew, StatusComplete},
		{StatusProviderAccepted, StatusRmcCall},
		{StatusProviderAwaitingStart, StatusProviderAccepted},
		// Cancellation closes once the programme is complete.
		{StatusProviderCompleted, StatusCancelledByEreferrals},
		// Terminal statuses stay terminal.
		{StatusComplete, StatusRmcCall},
		{StatusCancelledDuplicate, StatusRmcCall},
		{StatusCancelledByEreferrals, StatusComplete},
	}
	for _, tc := range forbidden {
		assert.False(t, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
