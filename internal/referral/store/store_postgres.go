package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"referralintake/internal/referral/models"
	"referralintake/pkg/platform/sentinel"
)

// PostgresStore persists referrals in PostgreSQL. Save uses a version-guarded
// UPDATE so concurrent mutations of the same referral surface as
// sentinel.ErrConflict instead of silently last-write-wins.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed referral store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const referralColumns = `
	id, ubrn, nhs_number, email, source, status,
	triaged_completion_level, triaged_weighted_level,
	provider_id, date_of_provider_selection,
	created_at, modified_at, modified_by_user_id, version
`

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE id = $1`
	r, err := scanReferral(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get referral: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetLatestByNhsNumber(ctx context.Context, nhsNumber string) (*models.Referral, error) {
	query := `
		SELECT ` + referralColumns + `
		FROM referrals
		WHERE nhs_number = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	r, err := scanReferral(s.db.QueryRowContext(ctx, query, nhsNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get latest referral by nhs number: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetLatestByEmail(ctx context.Context, email string) (*models.Referral, error) {
	query := `
		SELECT ` + referralColumns + `
		FROM referrals
		WHERE lower(email) = lower($1)
		ORDER BY created_at DESC
		LIMIT 1
	`
	r, err := scanReferral(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get latest referral by email: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) GetByUbrn(ctx context.Context, ubrn string) (*models.Referral, error) {
	query := `SELECT ` + referralColumns + ` FROM referrals WHERE ubrn = $1`
	r, err := scanReferral(s.db.QueryRowContext(ctx, query, ubrn))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get referral by ubrn: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, referral *models.Referral) error {
	query := `
		INSERT INTO referrals (` + referralColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
	`
	referral.Version = 1
	_, err := s.db.ExecContext(ctx, query,
		referral.ID,
		referral.Ubrn,
		referral.NhsNumber,
		referral.Email,
		referral.Source,
		referral.Status,
		nullableLevel(referral.TriagedCompletionLevel),
		nullableLevel(referral.TriagedWeightedLevel),
		referral.ProviderID,
		referral.DateOfProviderSelection,
		referral.CreatedAt,
		referral.ModifiedAt,
		referral.ModifiedByUserID,
	)
	if err != nil {
		return fmt.Errorf("create referral: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, referral *models.Referral) error {
	query := `
		UPDATE referrals SET
			status = $3,
			triaged_completion_level = $4,
			triaged_weighted_level = $5,
			provider_id = $6,
			date_of_provider_selection = $7,
			modified_at = $8,
			modified_by_user_id = $9,
			version = version + 1
		WHERE id = $1 AND version = $2
	`
	res, err := s.db.ExecContext(ctx, query,
		referral.ID,
		referral.Version,
		referral.Status,
		nullableLevel(referral.TriagedCompletionLevel),
		nullableLevel(referral.TriagedWeightedLevel),
		referral.ProviderID,
		referral.DateOfProviderSelection,
		referral.ModifiedAt,
		referral.ModifiedByUserID,
	)
	if err != nil {
		return fmt.Errorf("save referral: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save referral: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or the version advanced under us. Distinguish
		// for callers; a missing row is not a retryable conflict.
		if _, getErr := s.GetByID(ctx, referral.ID); errors.Is(getErr, sentinel.ErrNotFound) {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}
	referral.Version++
	return nil
}

func scanReferral(row rowScanner) (*models.Referral, error) {
	var (
		r          models.Referral
		completion sql.NullString
		weighted   sql.NullString
		providerID uuid.NullUUID
		selectedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID,
		&r.Ubrn,
		&r.NhsNumber,
		&r.Email,
		&r.Source,
		&r.Status,
		&completion,
		&weighted,
		&providerID,
		&selectedAt,
		&r.CreatedAt,
		&r.ModifiedAt,
		&r.ModifiedByUserID,
		&r.Version,
	)
	if err != nil {
		return nil, err
	}
	if completion.Valid {
		r.TriagedCompletionLevel = models.TriageLevel(completion.String)
	}
	if weighted.Valid {
		r.TriagedWeightedLevel = models.TriageLevel(weighted.String)
	}
	if providerID.Valid {
		id := providerID.UUID
		r.ProviderID = &id
	}
	if selectedAt.Valid {
		t := selectedAt.Time
		r.DateOfProviderSelection = &t
	}
	return &r, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullableLevel(level models.TriageLevel) sql.NullString {
	if !level.IsSet() {
		return sql.NullString{}
	}
	return sql.NullString{String: level.String(), Valid: true}
}
