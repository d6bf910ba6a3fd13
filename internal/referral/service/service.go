// Package service implements the referral lifecycle engine: status
// transitions, provider-selection eligibility, and NHS-number/email reuse
// arbitration. It is stateless; all state lives behind the store interfaces
// and "now" comes from the request context.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"referralintake/internal/audit"
	providerModels "referralintake/internal/provider/models"
	"referralintake/internal/referral/metrics"
	"referralintake/internal/referral/models"
	dErrors "referralintake/pkg/domain-errors"
	"referralintake/pkg/platform/sentinel"
	"referralintake/pkg/requestcontext"
)

// saveRetries bounds the reload-and-retry loop around optimistic-concurrency
// conflicts. The precondition check and the write are logically one atomic
// unit; past this the caller gets a generic conflict.
const saveRetries = 2

// Store is the referral persistence contract (see internal/referral/store).
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Referral, error)
	GetLatestByNhsNumber(ctx context.Context, nhsNumber string) (*models.Referral, error)
	GetLatestByEmail(ctx context.Context, email string) (*models.Referral, error)
	GetByUbrn(ctx context.Context, ubrn string) (*models.Referral, error)
	Create(ctx context.Context, referral *models.Referral) error
	Save(ctx context.Context, referral *models.Referral) error
}

// ProviderCatalogue supplies the candidate-provider set for triage levels.
type ProviderCatalogue interface {
	GetByID(ctx context.Context, id uuid.UUID) (*providerModels.Provider, error)
	ListByLevel(ctx context.Context, level models.TriageLevel) ([]*providerModels.Provider, error)
}

// Config holds the lifecycle engine's tunables.
type Config struct {
	// MinDaysSinceProviderSelectionForReuse is the cool-down window after a
	// cancelled, provider-committed referral before its NHS number or email
	// may start a new referral.
	MinDaysSinceProviderSelectionForReuse int
}

// DefaultConfig returns the observed production values.
func DefaultConfig() Config {
	return Config{MinDaysSinceProviderSelectionForReuse: 42}
}

type Service struct {
	referrals Store
	providers ProviderCatalogue
	logger    *slog.Logger
	publisher audit.Publisher
	metrics   *metrics.Metrics
	config    Config
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Publisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func New(referrals Store, providers ProviderCatalogue, opts ...Option) (*Service, error) {
	if referrals == nil {
		return nil, errors.New("referral store is required")
	}
	if providers == nil {
		return nil, errors.New("provider catalogue is required")
	}

	svc := &Service{
		referrals: referrals,
		providers: providers,
		config:    DefaultConfig(),
		tracer:    otel.Tracer("referralintake/referral"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// NewReferralRequest carries the identity an intake channel submits.
type NewReferralRequest struct {
	Source    models.ReferralSource
	NhsNumber string
	Email     string
	Ubrn      string
}

// Create arbitrates NHS-number and email reuse, then persists a referral at
// status New. Staff-referral gating (the verified-email requirement) is a
// transport concern enforced before this call.
func (s *Service) Create(ctx context.Context, req NewReferralRequest) (*models.Referral, error) {
	ctx, span := s.tracer.Start(ctx, "referral.Create")
	defer span.End()

	now := requestcontext.Now(ctx)

	nhsDecision, err := s.CheckNhsNumberReuse(ctx, req.NhsNumber)
	if err != nil {
		return nil, err
	}
	switch nhsDecision.Outcome {
	case models.ReuseBlocked:
		s.countReuseBlocked(string(models.ReuseBlocked))
		return nil, &models.NhsNumberBlockedError{Reason: nhsDecision.Reason, ConflictingUbrn: nhsDecision.ConflictingUbrn}
	case models.ReuseCoolingDown:
		s.countReuseBlocked(string(models.ReuseCoolingDown))
		return nil, &models.NhsNumberCoolingDownError{AvailableFrom: nhsDecision.AvailableFrom, ConflictingUbrn: nhsDecision.ConflictingUbrn}
	}

	emailDecision, err := s.CheckEmailReuse(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	switch emailDecision.Outcome {
	case models.ReuseBlocked:
		s.countReuseBlocked(string(models.ReuseBlocked))
		return nil, &models.EmailBlockedError{Reason: emailDecision.Reason, ConflictingUbrn: emailDecision.ConflictingUbrn}
	case models.ReuseCoolingDown:
		s.countReuseBlocked(string(models.ReuseCoolingDown))
		return nil, &models.EmailCoolingDownError{AvailableFrom: emailDecision.AvailableFrom, ConflictingUbrn: emailDecision.ConflictingUbrn}
	}

	referral, err := models.NewReferral(req.Source, req.NhsNumber, req.Email, req.Ubrn, now)
	if err != nil {
		return nil, err
	}
	referral.ModifiedByUserID = requestcontext.CallerUserID(ctx)

	if err := s.referrals.Create(ctx, referral); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create referral")
	}

	s.logAudit(ctx, audit.Event{
		Action:  audit.ActionReferralCreated,
		Subject: referral.ID.String(),
		Outcome: string(referral.Status),
		Reason:  string(referral.Source),
	})
	if s.metrics != nil {
		s.metrics.IncrementCreated(string(referral.Source))
	}
	return referral, nil
}

// Get loads a referral by id.
func (s *Service) Get(ctx context.Context, referralID uuid.UUID) (*models.Referral, error) {
	referral, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &models.NotFoundError{ReferralID: referralID}
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load referral")
	}
	return referral, nil
}

// SelectProvider attaches a provider to a referral. This is the one-time
// pairing of ProviderID and DateOfProviderSelection; the caller's workflow
// performs the status transition afterwards.
//
// Checks run in this order: existence, prior selection, status class, triage
// completeness, candidate eligibility. A lost save race is re-read and
// reported as a prior selection, never as a second success.
func (s *Service) SelectProvider(ctx context.Context, referralID, providerID uuid.UUID) (*models.Referral, error) {
	ctx, span := s.tracer.Start(ctx, "referral.SelectProvider")
	defer span.End()

	now := requestcontext.Now(ctx)

	for attempt := 0; ; attempt++ {
		referral, err := s.Get(ctx, referralID)
		if err != nil {
			return nil, err
		}

		if referral.HasProviderSelected() {
			existing := uuid.Nil
			if referral.ProviderID != nil {
				existing = *referral.ProviderID
			}
			return nil, &models.ProviderAlreadySelectedError{ReferralID: referralID, ExistingProviderID: existing}
		}
		if !referral.Status.AllowsProviderSelection() {
			return nil, &models.InvalidStatusError{ReferralID: referralID, CurrentStatus: referral.Status}
		}
		if !referral.IsTriaged() {
			return nil, &models.TriageIncompleteError{ReferralID: referralID, Missing: referral.MissingTriageLevels()}
		}
		if err := s.checkEligibility(ctx, referral, providerID); err != nil {
			return nil, err
		}

		if err := referral.AttachProvider(providerID, now); err != nil {
			return nil, err
		}
		referral.ModifiedByUserID = requestcontext.CallerUserID(ctx)

		err = s.referrals.Save(ctx, referral)
		if err == nil {
			s.logAudit(ctx, audit.Event{
				Action:  audit.ActionProviderSelected,
				Subject: referral.ID.String(),
				Outcome: providerID.String(),
			})
			if s.metrics != nil {
				s.metrics.IncrementProviderSelected()
			}
			return referral, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save referral")
		}
		if s.metrics != nil {
			s.metrics.IncrementSaveConflict()
		}
		if attempt >= saveRetries {
			return nil, dErrors.New(dErrors.CodeConflict, "referral was modified concurrently, retry later")
		}
	}
}

// Transition moves a referral to a new status via the central transition
// table. Terminal statuses fail fast; nothing silently no-ops.
func (s *Service) Transition(ctx context.Context, referralID uuid.UUID, to models.ReferralStatus) (*models.Referral, error) {
	ctx, span := s.tracer.Start(ctx, "referral.Transition")
	defer span.End()

	now := requestcontext.Now(ctx)

	for attempt := 0; ; attempt++ {
		referral, err := s.Get(ctx, referralID)
		if err != nil {
			return nil, err
		}

		if err := referral.Transition(to, now); err != nil {
			return nil, err
		}
		referral.ModifiedByUserID = requestcontext.CallerUserID(ctx)

		err = s.referrals.Save(ctx, referral)
		if err == nil {
			s.logAudit(ctx, audit.Event{
				Action:  audit.ActionStatusTransitioned,
				Subject: referral.ID.String(),
				Outcome: string(to),
			})
			if s.metrics != nil {
				s.metrics.IncrementTransition(string(to))
			}
			return referral, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save referral")
		}
		if s.metrics != nil {
			s.metrics.IncrementSaveConflict()
		}
		if attempt >= saveRetries {
			return nil, dErrors.New(dErrors.CodeConflict, "referral was modified concurrently, retry later")
		}
	}
}

// SetTriage records both triage levels from the scoring subsystem.
func (s *Service) SetTriage(ctx context.Context, referralID uuid.UUID, completion, weighted models.TriageLevel) (*models.Referral, error) {
	ctx, span := s.tracer.Start(ctx, "referral.SetTriage")
	defer span.End()

	now := requestcontext.Now(ctx)

	for attempt := 0; ; attempt++ {
		referral, err := s.Get(ctx, referralID)
		if err != nil {
			return nil, err
		}

		if err := referral.SetTriage(completion, weighted, now); err != nil {
			return nil, err
		}
		referral.ModifiedByUserID = requestcontext.CallerUserID(ctx)

		err = s.referrals.Save(ctx, referral)
		if err == nil {
			s.logAudit(ctx, audit.Event{
				Action:  audit.ActionTriageSet,
				Subject: referral.ID.String(),
				Outcome: completion.String() + "/" + weighted.String(),
			})
			return referral, nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save referral")
		}
		if attempt >= saveRetries {
			return nil, dErrors.New(dErrors.CodeConflict, "referral was modified concurrently, retry later")
		}
	}
}

// CheckNhsNumberReuse arbitrates whether an NHS number may start a new
// referral:
//   - no prior referral, or a cancelled one that never committed to a
//     provider: Available
//   - an in-progress referral: Blocked
//   - a cancelled, provider-committed referral inside the cool-down window:
//     CoolingDown until the date boundary of selection + configured days
//   - a completed referral: Blocked
func (s *Service) CheckNhsNumberReuse(ctx context.Context, nhsNumber string) (models.ReuseDecision, error) {
	latest, err := s.referrals.GetLatestByNhsNumber(ctx, nhsNumber)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Available(), nil
		}
		return models.ReuseDecision{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load referral by nhs number")
	}
	return s.arbitrateReuse(ctx, latest, false), nil
}

// CheckEmailReuse mirrors CheckNhsNumberReuse for the email identity. The
// lookup is case-insensitive, and a completed referral that never committed
// to a provider does not block reuse.
func (s *Service) CheckEmailReuse(ctx context.Context, email string) (models.ReuseDecision, error) {
	latest, err := s.referrals.GetLatestByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return models.Available(), nil
		}
		return models.ReuseDecision{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load referral by email")
	}
	return s.arbitrateReuse(ctx, latest, true), nil
}

// arbitrateReuse applies the shared decision rules. completedNeedsProvider
// relaxes the Complete rule for email identities.
func (s *Service) arbitrateReuse(ctx context.Context, latest *models.Referral, completedNeedsProvider bool) models.ReuseDecision {
	now := requestcontext.Now(ctx)

	switch {
	case latest.Status.IsActive():
		return models.Blocked(models.BlockReasonInProgress, latest.Ubrn)

	case latest.Status.IsCancelled():
		if latest.DateOfProviderSelection == nil {
			// A cancelled referral with no provider commitment places no
			// restriction.
			return models.Available()
		}
		availableFrom := truncateToDate(latest.DateOfProviderSelection.AddDate(0, 0, s.config.MinDaysSinceProviderSelectionForReuse))
		if now.Before(availableFrom) {
			return models.CoolingDown(availableFrom, latest.Ubrn)
		}
		return models.Available()

	case latest.Status == models.StatusComplete:
		if completedNeedsProvider && !latest.HasProviderSelected() {
			return models.Available()
		}
		return models.Blocked(models.BlockReasonCompleted, latest.Ubrn)
	}
	return models.Available()
}

// CandidateProviders returns the providers a referral's triage level permits.
// Eligibility is keyed on the completion level, which is what provider
// matching weights on.
func (s *Service) CandidateProviders(ctx context.Context, referralID uuid.UUID) ([]*providerModels.Provider, error) {
	referral, err := s.Get(ctx, referralID)
	if err != nil {
		return nil, err
	}
	if !referral.IsTriaged() {
		return nil, &models.TriageIncompleteError{ReferralID: referralID, Missing: referral.MissingTriageLevels()}
	}
	candidates, err := s.providers.ListByLevel(ctx, referral.TriagedCompletionLevel)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list candidate providers")
	}
	return candidates, nil
}

func (s *Service) checkEligibility(ctx context.Context, referral *models.Referral, providerID uuid.UUID) error {
	level := referral.TriagedCompletionLevel
	provider, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.ProviderNotEligibleError{TriageLevel: level, ProviderID: providerID}
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load provider")
	}
	if !provider.AcceptsLevel(level) {
		return &models.ProviderNotEligibleError{TriageLevel: level, ProviderID: providerID}
	}
	return nil
}

func (s *Service) countReuseBlocked(outcome string) {
	if s.metrics != nil {
		s.metrics.IncrementReuseBlocked(outcome)
	}
}

func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	event.RequestID = requestcontext.RequestID(ctx)
	event.ActorID = requestcontext.CallerUserID(ctx)

	if s.logger != nil {
		s.logger.InfoContext(ctx, string(event.Action),
			"subject", event.Subject,
			"outcome", event.Outcome,
			"request_id", event.RequestID,
			"log_type", "audit",
		)
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Emit(ctx, event); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", event.Action,
			"error", err.Error(),
		)
	}
}

// truncateToDate drops the time-of-day component, keeping the date boundary
// in UTC. The cool-down window is date-granular and inclusive at the boundary.
func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
