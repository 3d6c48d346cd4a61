package casefile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("casefile: not found")
)

// Repository handles data access for cases. The write methods come in Tx
// variants so the review engine and finalizer can advance case status inside
// their own transactions.
type Repository interface {
	Get(ctx context.Context, caseID string) (Record, error)
	Create(ctx context.Context, claimantID, respondentID string) (Record, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, caseID string, status Status) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const caseColumns = `id, claimant_id, respondent_id, status::text, created_at, updated_at, decided_at`

func (r *PGRepository) Get(ctx context.Context, caseID string) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, caseID).
		Scan(&rec.ID, &rec.ClaimantID, &rec.RespondentID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.DecidedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("casefile: get: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) Create(ctx context.Context, claimantID, respondentID string) (Record, error) {
	const insertSQL = `
		INSERT INTO cases (claimant_id, respondent_id, status)
		VALUES ($1, $2, 'filed')
		RETURNING ` + caseColumns

	var rec Record
	err := r.pool.QueryRow(ctx, insertSQL, claimantID, respondentID).
		Scan(&rec.ID, &rec.ClaimantID, &rec.RespondentID, &rec.Status, &rec.CreatedAt, &rec.UpdatedAt, &rec.DecidedAt)
	if err != nil {
		return Record{}, fmt.Errorf("casefile: create: %w", err)
	}
	return rec, nil
}

// UpdateStatusTx advances the case status inside the caller's transaction.
// Moving to decided also stamps decided_at if not already set.
func (r *PGRepository) UpdateStatusTx(ctx context.Context, tx pgx.Tx, caseID string, status Status) error {
	const updateSQL = `
		UPDATE cases
		SET status = $2::case_status,
		    decided_at = CASE WHEN $2 = 'decided' THEN COALESCE(decided_at, now()) ELSE decided_at END,
		    updated_at = now()
		WHERE id = $1
		RETURNING id`

	var id string
	if err := tx.QueryRow(ctx, updateSQL, caseID, status).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("casefile: update status: %w", err)
	}
	return nil
}
