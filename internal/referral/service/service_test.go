package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	providerModels "referralintake/internal/provider/models"
	providerStore "referralintake/internal/provider/store"
	"referralintake/internal/referral/models"
	"referralintake/internal/referral/store"
	"referralintake/pkg/testutil"
)

// =============================================================================
// Referral Lifecycle Service Test Suite
// =============================================================================
// Justification for unit tests: reuse arbitration and provider-selection
// ordering hinge on date boundaries and check ordering that E2E tests cannot
// pin down without real clock control. The suite runs against the in-memory
// stores with an injected request clock.

type ReferralServiceSuite struct {
	suite.Suite
	referrals *store.InMemoryStore
	providers *providerStore.InMemoryStore
	service   *Service
	start     time.Time

	anyProvider *providerModels.Provider
	lowOnly     *providerModels.Provider
	inactive    *providerModels.Provider
}

func TestReferralServiceSuite(t *testing.T) {
	suite.Run(t, new(ReferralServiceSuite))
}

func (s *ReferralServiceSuite) SetupTest() {
	s.referrals = store.NewInMemory()
	s.providers = providerStore.NewInMemory()
	s.start = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.service, err = New(s.referrals, s.providers)
	s.Require().NoError(err)

	ctx := context.Background()
	s.anyProvider, err = providerModels.NewProvider("Fern Health", true, true, true, s.start)
	s.Require().NoError(err)
	s.Require().NoError(s.providers.Save(ctx, s.anyProvider))

	s.lowOnly, err = providerModels.NewProvider("Lighter Steps", true, false, false, s.start)
	s.Require().NoError(err)
	s.Require().NoError(s.providers.Save(ctx, s.lowOnly))

	s.inactive, err = providerModels.NewProvider("Closed Clinic", true, true, true, s.start)
	s.Require().NoError(err)
	s.inactive.Active = false
	s.Require().NoError(s.providers.Save(ctx, s.inactive))
}

func (s *ReferralServiceSuite) at(offset time.Duration) context.Context {
	return testutil.ContextAt(s.start.Add(offset))
}

// newTriaged creates a referral and triages it Medium/Medium.
func (s *ReferralServiceSuite) newTriaged(nhsNumber, email string) *models.Referral {
	referral, err := s.service.Create(s.at(0), NewReferralRequest{
		Source:    models.SourceSelfReferral,
		NhsNumber: nhsNumber,
		Email:     email,
	})
	s.Require().NoError(err)
	referral, err = s.service.SetTriage(s.at(0), referral.ID, models.TriageLevelMedium, models.TriageLevelMedium)
	s.Require().NoError(err)
	return referral
}

// =============================================================================
// Create Tests
// =============================================================================

func (s *ReferralServiceSuite) TestCreate() {
	s.Run("creates a referral at status New", func() {
		referral, err := s.service.Create(s.at(0), NewReferralRequest{
			Source:    models.SourceGpReferral,
			NhsNumber: "9434765919",
			Email:     "gp-pat@example.com",
			Ubrn:      "000000000001",
		})
		s.Require().NoError(err)
		s.Equal(models.StatusNew, referral.Status)
		s.Equal("000000000001", referral.Ubrn)
	})

	s.Run("in-progress nhs number blocks a second referral", func() {
		s.newTriaged("1111111111", "one@example.com")

		_, err := s.service.Create(s.at(time.Hour), NewReferralRequest{
			Source:    models.SourceSelfReferral,
			NhsNumber: "1111111111",
			Email:     "different@example.com",
		})
		var blocked *models.NhsNumberBlockedError
		s.ErrorAs(err, &blocked)
		s.Equal(models.BlockReasonInProgress, blocked.Reason)
	})

	s.Run("in-progress email blocks a second referral", func() {
		s.newTriaged("2222222222", "shared@example.com")

		_, err := s.service.Create(s.at(time.Hour), NewReferralRequest{
			Source:    models.SourceSelfReferral,
			NhsNumber: "3333333333",
			Email:     "Shared@Example.com", // matching is case-insensitive
		})
		var blocked *models.EmailBlockedError
		s.ErrorAs(err, &blocked)
	})
}

// =============================================================================
// SelectProvider Tests
// =============================================================================

func (s *ReferralServiceSuite) TestSelectProvider() {
	s.Run("attaches provider and records selection date", func() {
		referral := s.newTriaged("4444444444", "select@example.com")

		selectedAt := s.start.Add(2 * time.Hour)
		updated, err := s.service.SelectProvider(testutil.ContextAt(selectedAt), referral.ID, s.anyProvider.ID)
		s.Require().NoError(err)
		s.Require().NotNil(updated.ProviderID)
		s.Equal(s.anyProvider.ID, *updated.ProviderID)
		s.Require().NotNil(updated.DateOfProviderSelection)
		s.Equal(selectedAt, *updated.DateOfProviderSelection)
	})

	s.Run("second selection always reports the existing provider", func() {
		referral := s.newTriaged("5555555555", "twice@example.com")

		_, err := s.service.SelectProvider(s.at(time.Hour), referral.ID, s.anyProvider.ID)
		s.Require().NoError(err)

		// Move the referral on; the selection check still wins over status.
		_, err = s.service.Transition(s.at(time.Hour), referral.ID, models.StatusProviderAccepted)
		s.Require().NoError(err)

		_, err = s.service.SelectProvider(s.at(2*time.Hour), referral.ID, s.lowOnly.ID)
		var already *models.ProviderAlreadySelectedError
		s.ErrorAs(err, &already)
		s.Equal(s.anyProvider.ID, already.ExistingProviderID)
	})

	s.Run("untriaged referral cannot select", func() {
		referral, err := s.service.Create(s.at(0), NewReferralRequest{
			Source:    models.SourceSelfReferral,
			NhsNumber: "6666666666",
			Email:     "untriaged@example.com",
		})
		s.Require().NoError(err)

		_, err = s.service.SelectProvider(s.at(time.Hour), referral.ID, s.anyProvider.ID)
		var incomplete *models.TriageIncompleteError
		s.ErrorAs(err, &incomplete)
		s.Equal("completion and weighted", incomplete.Missing)
	})

	s.Run("provider must accept the completion level", func() {
		referral := s.newTriaged("7777777777", "level@example.com")

		_, err := s.service.SelectProvider(s.at(time.Hour), referral.ID, s.lowOnly.ID)
		var ineligible *models.ProviderNotEligibleError
		s.ErrorAs(err, &ineligible)
		s.Equal(models.TriageLevelMedium, ineligible.TriageLevel)
	})

	s.Run("inactive provider is never eligible", func() {
		referral := s.newTriaged("8888888888", "inactive@example.com")

		_, err := s.service.SelectProvider(s.at(time.Hour), referral.ID, s.inactive.ID)
		var ineligible *models.ProviderNotEligibleError
		s.ErrorAs(err, &ineligible)
	})

	s.Run("unknown provider id surfaces as not eligible", func() {
		referral := s.newTriaged("9999999999", "ghost@example.com")

		_, err := s.service.SelectProvider(s.at(time.Hour), referral.ID, uuid.New())
		var ineligible *models.ProviderNotEligibleError
		s.ErrorAs(err, &ineligible)
	})

	s.Run("unknown referral id surfaces as not found", func() {
		_, err := s.service.SelectProvider(s.at(0), uuid.New(), s.anyProvider.ID)
		var notFound *models.NotFoundError
		s.ErrorAs(err, &notFound)
	})
}

// =============================================================================
// Transition Tests
// =============================================================================

func (s *ReferralServiceSuite) TestTransition() {
	s.Run("rejects transitions outside the table", func() {
		referral := s.newTriaged("1212121212", "table@example.com")

		_, err := s.service.Transition(s.at(time.Hour), referral.ID, models.StatusComplete)
		var invalid *models.InvalidStatusError
		s.ErrorAs(err, &invalid)
	})

	s.Run("full happy path to Complete", func() {
		referral := s.newTriaged("1313131313", "happy@example.com")

		_, err := s.service.SelectProvider(s.at(time.Hour), referral.ID, s.anyProvider.ID)
		s.Require().NoError(err)

		for _, to := range []models.ReferralStatus{
			models.StatusProviderAccepted,
			models.StatusProviderAwaitingStart,
			models.StatusProviderCompleted,
			models.StatusComplete,
		} {
			referral, err = s.service.Transition(s.at(2*time.Hour), referral.ID, to)
			s.Require().NoError(err, to)
			s.Equal(to, referral.Status)
		}

		_, err = s.service.Transition(s.at(3*time.Hour), referral.ID, models.StatusException)
		s.Error(err, "Complete is terminal")
	})
}

// =============================================================================
// Reuse Arbitration Tests
// =============================================================================

func (s *ReferralServiceSuite) TestCheckNhsNumberReuse() {
	s.Run("unknown number is available", func() {
		decision, err := s.service.CheckNhsNumberReuse(s.at(0), "0000000000")
		s.NoError(err)
		s.Equal(models.ReuseAvailable, decision.Outcome)
	})

	s.Run("cancelled without provider commitment is available", func() {
		referral := s.newTriaged("1414141414", "cancel-free@example.com")
		_, err := s.service.Transition(s.at(time.Hour), referral.ID, models.StatusCancelledByEreferrals)
		s.Require().NoError(err)

		decision, err := s.service.CheckNhsNumberReuse(s.at(2*time.Hour), "1414141414")
		s.NoError(err)
		s.Equal(models.ReuseAvailable, decision.Outcome)
	})

	s.Run("completed referral blocks for good", func() {
		referral := s.newTriaged("1515151515", "done@example.com")
		_, err := s.service.SelectProvider(s.at(time.Hour), referral.ID, s.anyProvider.ID)
		s.Require().NoError(err)
		for _, to := range []models.ReferralStatus{
			models.StatusProviderAccepted, models.StatusProviderAwaitingStart,
			models.StatusProviderCompleted, models.StatusComplete,
		} {
			_, err = s.service.Transition(s.at(time.Hour), referral.ID, to)
			s.Require().NoError(err)
		}

		decision, err := s.service.CheckNhsNumberReuse(s.at(24*365*time.Hour), "1515151515")
		s.NoError(err)
		s.Equal(models.ReuseBlocked, decision.Outcome)
		s.Equal(models.BlockReasonCompleted, decision.Reason)
	})
}

// TestCoolDownWindow pins the date-boundary arithmetic: selection at 12:00 on
// 1 Feb opens reuse at midnight on 15 Mar (42 days later), not at 12:00.
func (s *ReferralServiceSuite) TestCoolDownWindow() {
	referral := s.newTriaged("1616161616", "cooldown@example.com")

	_, err := s.service.SelectProvider(s.at(0), referral.ID, s.anyProvider.ID)
	s.Require().NoError(err)
	_, err = s.service.Transition(s.at(time.Hour), referral.ID, models.StatusProviderAccepted)
	s.Require().NoError(err)
	_, err = s.service.Transition(s.at(2*time.Hour), referral.ID, models.StatusCancelledByEreferrals)
	s.Require().NoError(err)

	boundary := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	s.Run("inside the window reports CoolingDown with the boundary", func() {
		decision, err := s.service.CheckNhsNumberReuse(s.at(24*time.Hour), "1616161616")
		s.NoError(err)
		s.Equal(models.ReuseCoolingDown, decision.Outcome)
		s.Equal(boundary, decision.AvailableFrom)
	})

	s.Run("one nanosecond before the boundary still cools down", func() {
		decision, err := s.service.CheckNhsNumberReuse(testutil.ContextAt(boundary.Add(-time.Nanosecond)), "1616161616")
		s.NoError(err)
		s.Equal(models.ReuseCoolingDown, decision.Outcome)
	})

	s.Run("the boundary instant itself is available", func() {
		decision, err := s.service.CheckNhsNumberReuse(testutil.ContextAt(boundary), "1616161616")
		s.NoError(err)
		s.Equal(models.ReuseAvailable, decision.Outcome)
	})

	s.Run("create inside the window returns the cooling-down error", func() {
		_, err := s.service.Create(s.at(48*time.Hour), NewReferralRequest{
			Source:    models.SourceSelfReferral,
			NhsNumber: "1616161616",
			Email:     "fresh@example.com",
		})
		var cooling *models.NhsNumberCoolingDownError
		s.ErrorAs(err, &cooling)
		s.Equal(boundary, cooling.AvailableFrom)
	})
}

func (s *ReferralServiceSuite) TestCheckEmailReuse() {
	s.Run("matching is case-insensitive", func() {
		s.newTriaged("1717171717", "mixed@example.com")

		decision, err := s.service.CheckEmailReuse(s.at(time.Hour), "MIXED@example.com")
		s.NoError(err)
		s.Equal(models.ReuseBlocked, decision.Outcome)
	})

	s.Run("completed without provider does not block email reuse", func() {
		// A referral driven to Complete without ever selecting a provider
		// cannot arise through transitions, so shape the record directly.
		referral, err := models.NewReferral(models.SourceSelfReferral, "1818181818", "noprov@example.com", "", s.start)
		s.Require().NoError(err)
		referral.Status = models.StatusComplete
		s.Require().NoError(s.referrals.Create(context.Background(), referral))

		decision, err := s.service.CheckEmailReuse(s.at(time.Hour), "noprov@example.com")
		s.NoError(err)
		s.Equal(models.ReuseAvailable, decision.Outcome)

		// The same record blocks by nhs number, where the relaxation does
		// not apply.
		decision, err = s.service.CheckNhsNumberReuse(s.at(time.Hour), "1818181818")
		s.NoError(err)
		s.Equal(models.ReuseBlocked, decision.Outcome)
	})

	s.Run("only the latest referral for an identity counts", func() {
		first := s.newTriaged("1919191919", "latest@example.com")
		_, err := s.service.SelectProvider(s.at(0), first.ID, s.anyProvider.ID)
		s.Require().NoError(err)
		_, err = s.service.Transition(s.at(time.Hour), first.ID, models.StatusProviderAccepted)
		s.Require().NoError(err)
		_, err = s.service.Transition(s.at(2*time.Hour), first.ID, models.StatusCancelledByEreferrals)
		s.Require().NoError(err)

		// After the cool-down a fresh referral goes in; the old cancelled
		// record no longer influences the decision.
		after := s.start.Add(50 * 24 * time.Hour)
		_, err = s.service.Create(testutil.ContextAt(after), NewReferralRequest{
			Source:    models.SourceSelfReferral,
			NhsNumber: "1919191919",
			Email:     "latest@example.com",
		})
		s.Require().NoError(err)

		decision, err := s.service.CheckEmailReuse(testutil.ContextAt(after.Add(time.Hour)), "latest@example.com")
		s.NoError(err)
		s.Equal(models.ReuseBlocked, decision.Outcome)
		s.Equal(models.BlockReasonInProgress, decision.Reason)
	})
}

// =============================================================================
// CandidateProviders Tests
// =============================================================================

func (s *ReferralServiceSuite) TestCandidateProviders() {
	s.Run("lists providers accepting the completion level", func() {
		referral := s.newTriaged("2020202020", "candidates@example.com")

		candidates, err := s.service.CandidateProviders(s.at(time.Hour), referral.ID)
		s.Require().NoError(err)
		s.Require().Len(candidates, 1)
		s.Equal(s.anyProvider.ID, candidates[0].ID)
	})

	s.Run("untriaged referral has no candidate set", func() {
		referral, err := s.service.Create(s.at(0), NewReferralRequest{
			Source:    models.SourceSelfReferral,
			NhsNumber: "2121212121",
			Email:     "nocands@example.com",
		})
		s.Require().NoError(err)

		_, err = s.service.CandidateProviders(s.at(time.Hour), referral.ID)
		var incomplete *models.TriageIncompleteError
		s.ErrorAs(err, &incomplete)
	})
}
