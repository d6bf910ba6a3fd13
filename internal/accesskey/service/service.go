// Package service implements the access-key engine: issuance under a
// per-email ceiling, and one-time validation with distinct failure outcomes.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"referralintake/internal/accesskey/metrics"
	"referralintake/internal/accesskey/models"
	"referralintake/internal/audit"
	dErrors "referralintake/pkg/domain-errors"
	"referralintake/pkg/keycode"
	"referralintake/pkg/platform/sentinel"
	"referralintake/pkg/requestcontext"
)

// Store is the access-key persistence contract (see internal/accesskey/store).
// IncrementAttempts and Consume must be atomic: the service decides the
// outcome from its loaded snapshot, but the counters and the consumed flag are
// only ever advanced through these primitives.
type Store interface {
	Create(ctx context.Context, key *models.AccessKey) error
	GetMostRecent(ctx context.Context, email string) (*models.AccessKey, error)
	CountActive(ctx context.Context, email string, now time.Time) (int, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) (int, error)
	Consume(ctx context.Context, id uuid.UUID) (bool, error)
}

// Config holds the engine's tunables.
type Config struct {
	// MaxActiveAccessKeys caps unexpired, unconsumed keys per email.
	MaxActiveAccessKeys int
	// MaxAttempts is the lockout threshold per key.
	MaxAttempts int
	// ExpireAfter is how long an issued key stays valid.
	ExpireAfter time.Duration
	// CodeLength is the length of the generated one-time code.
	CodeLength int
}

// DefaultConfig returns the observed production values.
func DefaultConfig() Config {
	return Config{
		MaxActiveAccessKeys: 2,
		MaxAttempts:         3,
		ExpireAfter:         10 * time.Minute,
		CodeLength:          6,
	}
}

type Service struct {
	keys      Store
	codes     keycode.Generator
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

func New(keys Store, codes keycode.Generator, opts ...Option) (*Service, error) {
	if keys == nil {
		return nil, errors.New("access key store is required")
	}
	if codes == nil {
		return nil, errors.New("code generator is required")
	}

	svc := &Service{
		keys:   keys,
		codes:  codes,
		config: DefaultConfig(),
		tracer: otel.Tracer("referralintake/accesskey"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Issue generates a fresh one-time code for an email, subject to the
// active-key ceiling. Hitting the ceiling rejects the request and leaves the
// existing keys untouched; the code's plaintext is returned exactly once here
// and never stored. A non-positive expireAfter is clamped to the configured
// default; no upper bound is imposed here, callers own that.
func (s *Service) Issue(ctx context.Context, email string, expireAfter time.Duration) (*models.IssuedKey, error) {
	ctx, span := s.tracer.Start(ctx, "accesskey.Issue")
	defer span.End()

	now := requestcontext.Now(ctx)
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "email cannot be empty")
	}
	if expireAfter <= 0 {
		expireAfter = s.config.ExpireAfter
	}

	active, err := s.keys.CountActive(ctx, email, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to count active access keys")
	}
	if active >= s.config.MaxActiveAccessKeys {
		if s.metrics != nil {
			s.metrics.IncrementIssueRejected()
		}
		return nil, &models.MaxActiveAccessKeysError{Email: email, Limit: s.config.MaxActiveAccessKeys}
	}

	code, err := s.codes.NextCode(s.config.CodeLength)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate access key code")
	}

	key, err := models.NewAccessKey(email, code, now, now.Add(expireAfter))
	if err != nil {
		return nil, err
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store access key")
	}

	s.logAudit(ctx, audit.Event{
		Action:  audit.ActionAccessKeyIssued,
		Subject: key.ID.String(),
	})
	if s.metrics != nil {
		s.metrics.IncrementIssued()
	}
	return &models.IssuedKey{Code: code, ExpiresAt: key.ExpiresAt}, nil
}

// Validate checks a presented code against the email's most recent key and
// returns one of the distinct outcomes. Only the most recent key is ever
// consulted, consumed or not, so issuing a new key retires its predecessors.
//
// Counting rules: AlreadyUsed and TooManyAttempts do not advance the attempt
// counter (the first is state, the second means it is already saturated);
// Expired and Incorrect do. A successful match consumes the key atomically,
// and the loser of a consume race is told AlreadyUsed, never Valid.
func (s *Service) Validate(ctx context.Context, email, code string) (models.ValidationResult, error) {
	ctx, span := s.tracer.Start(ctx, "accesskey.Validate")
	defer span.End()

	now := requestcontext.Now(ctx)
	email = models.NormalizeEmail(email)

	key, err := s.keys.GetMostRecent(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.conclude(ctx, nil, models.OutcomeNotFound), nil
		}
		return models.ValidationResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load access key")
	}

	if key.IsConsumed {
		return s.conclude(ctx, key, models.OutcomeAlreadyUsed), nil
	}
	if key.AttemptsExhausted(s.config.MaxAttempts) {
		return s.conclude(ctx, key, models.OutcomeTooManyAttempts), nil
	}
	if key.IsExpired(now) {
		if _, err := s.keys.IncrementAttempts(ctx, key.ID); err != nil {
			return models.ValidationResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record attempt")
		}
		return s.conclude(ctx, key, models.OutcomeExpired), nil
	}

	if key.Matches(code) {
		consumed, err := s.keys.Consume(ctx, key.ID)
		if err != nil {
			return models.ValidationResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to consume access key")
		}
		if !consumed {
			// A concurrent validation won the race; exactly one caller may
			// ever see Valid for a given key.
			return s.conclude(ctx, key, models.OutcomeAlreadyUsed), nil
		}
		result := s.conclude(ctx, key, models.OutcomeValid)
		result.ExpiresAt = key.ExpiresAt
		return result, nil
	}

	count, err := s.keys.IncrementAttempts(ctx, key.ID)
	if err != nil {
		return models.ValidationResult{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record attempt")
	}
	if count >= s.config.MaxAttempts {
		s.logAudit(ctx, audit.Event{
			Action:  audit.ActionAccessKeyLockout,
			Subject: key.ID.String(),
		})
		if s.metrics != nil {
			s.metrics.IncrementLockout()
		}
	}
	return s.conclude(ctx, key, models.OutcomeIncorrect), nil
}

// conclude records the audit event and metric for a validation outcome.
func (s *Service) conclude(ctx context.Context, key *models.AccessKey, outcome models.Outcome) models.ValidationResult {
	subject := ""
	if key != nil {
		subject = key.ID.String()
	}
	s.logAudit(ctx, audit.Event{
		Action:  audit.ActionAccessKeyValidated,
		Subject: subject,
		Outcome: outcome.String(),
	})
	if s.metrics != nil {
		s.metrics.IncrementValidation(outcome.String())
	}
	return models.ValidationResult{Outcome: outcome}
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
