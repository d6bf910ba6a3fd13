package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"referralintake/internal/provider/models"
	referral "referralintake/internal/referral/models"
	"referralintake/pkg/platform/sentinel"
)

// PostgresStore persists the provider catalogue in PostgreSQL.
// This store is pure I/O; eligibility logic belongs to the lifecycle engine.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed provider store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	query := `
		SELECT id, name, accepts_low, accepts_medium, accepts_high, active, created_at, modified_at
		FROM providers
		WHERE id = $1
	`
	p, err := scanProvider(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListByLevel(ctx context.Context, level referral.TriageLevel) ([]*models.Provider, error) {
	var column string
	switch level {
	case referral.TriageLevelLow:
		column = "accepts_low"
	case referral.TriageLevelMedium:
		column = "accepts_medium"
	case referral.TriageLevelHigh:
		column = "accepts_high"
	default:
		return nil, fmt.Errorf("list providers: unknown triage level %q", level)
	}

	query := fmt.Sprintf(`
		SELECT id, name, accepts_low, accepts_medium, accepts_high, active, created_at, modified_at
		FROM providers
		WHERE active AND %s
		ORDER BY name
	`, column)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var out []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("list providers: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, provider *models.Provider) error {
	query := `
		INSERT INTO providers (id, name, accepts_low, accepts_medium, accepts_high, active, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			accepts_low = EXCLUDED.accepts_low,
			accepts_medium = EXCLUDED.accepts_medium,
			accepts_high = EXCLUDED.accepts_high,
			active = EXCLUDED.active,
			modified_at = EXCLUDED.modified_at
	`
	_, err := s.db.ExecContext(ctx, query,
		provider.ID,
		provider.Name,
		provider.AcceptsLow,
		provider.AcceptsMedium,
		provider.AcceptsHigh,
		provider.Active,
		provider.CreatedAt,
		provider.ModifiedAt,
	)
	if err != nil {
		return fmt.Errorf("save provider: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*models.Provider, error) {
	var p models.Provider
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.AcceptsLow,
		&p.AcceptsMedium,
		&p.AcceptsHigh,
		&p.Active,
		&p.CreatedAt,
		&p.ModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
