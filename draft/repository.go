package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals no draft award exists for the case.
	ErrNotFound = errors.New("draft: not found")
	// ErrDraftExists signals a draft award already exists for the case.
	ErrDraftExists = errors.New("draft: draft already exists for case")
)

// CreateParams carries the AI-generated content persisted as a new draft.
type CreateParams struct {
	CaseID     string
	Content    Content
	Confidence float64
	ModelUsed  string
}

// Repository handles data access for draft awards. Row-locking variants take
// the caller's transaction so review operations serialize per draft.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (DraftAward, error)
	GetByCase(ctx context.Context, caseID string) (DraftAward, error)
	GetByCaseForUpdateTx(ctx context.Context, tx pgx.Tx, caseID string) (DraftAward, error)
	SetReviewTx(ctx context.Context, tx pgx.Tx, draftID string, status ReviewStatus, notes *string, reviewedAt time.Time) error
	SetContentTx(ctx context.Context, tx pgx.Tx, draftID string, content Content) error
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const draftColumns = `id, case_id, findings, conclusions, decision, award_amount, prevailing_party,
	reasoning, confidence, model_used, review_status, review_notes, generated_at, reviewed_at`

func (r *PGRepository) Create(ctx context.Context, params CreateParams) (DraftAward, error) {
	if params.CaseID == "" {
		return DraftAward{}, fmt.Errorf("draft: case id required")
	}

	findings, conclusions, err := marshalContent(params.Content)
	if err != nil {
		return DraftAward{}, err
	}

	const insertSQL = `
		INSERT INTO draft_awards (case_id, findings, conclusions, decision, award_amount, prevailing_party,
			reasoning, confidence, model_used)
		VALUES ($1, $2::jsonb, $3::jsonb, $4, $5, $6, $7, $8, $9)
		RETURNING ` + draftColumns

	d, err := scanDraft(r.pool.QueryRow(ctx, insertSQL,
		params.CaseID, findings, conclusions, params.Content.Decision, params.Content.AwardAmount,
		params.Content.PrevailingParty, params.Content.Reasoning, params.Confidence, params.ModelUsed))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return DraftAward{}, ErrDraftExists
		}
		return DraftAward{}, fmt.Errorf("draft: create: %w", err)
	}
	return d, nil
}

func (r *PGRepository) GetByCase(ctx context.Context, caseID string) (DraftAward, error) {
	d, err := scanDraft(r.pool.QueryRow(ctx,
		`SELECT `+draftColumns+` FROM draft_awards WHERE case_id = $1`, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DraftAward{}, ErrNotFound
		}
		return DraftAward{}, fmt.Errorf("draft: get by case: %w", err)
	}
	return d, nil
}

// GetByCaseForUpdateTx locks the draft row for the duration of the caller's
// transaction. Review operations and revision appends serialize on this lock.
func (r *PGRepository) GetByCaseForUpdateTx(ctx context.Context, tx pgx.Tx, caseID string) (DraftAward, error) {
	d, err := scanDraft(tx.QueryRow(ctx,
		`SELECT `+draftColumns+` FROM draft_awards WHERE case_id = $1 FOR UPDATE`, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DraftAward{}, ErrNotFound
		}
		return DraftAward{}, fmt.Errorf("draft: get for update: %w", err)
	}
	return d, nil
}

func (r *PGRepository) SetReviewTx(ctx context.Context, tx pgx.Tx, draftID string, status ReviewStatus, notes *string, reviewedAt time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE draft_awards
		SET review_status = $2::review_status, review_notes = $3, reviewed_at = $4
		WHERE id = $1
	`, draftID, status, notes, reviewedAt)
	if err != nil {
		return fmt.Errorf("draft: set review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetContentTx(ctx context.Context, tx pgx.Tx, draftID string, content Content) error {
	findings, conclusions, err := marshalContent(content)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE draft_awards
		SET findings = $2::jsonb, conclusions = $3::jsonb, decision = $4, award_amount = $5,
		    prevailing_party = $6, reasoning = $7
		WHERE id = $1
	`, draftID, findings, conclusions, content.Decision, content.AwardAmount, content.PrevailingParty, content.Reasoning)
	if err != nil {
		return fmt.Errorf("draft: set content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalContent(c Content) ([]byte, []byte, error) {
	findings, err := json.Marshal(c.Findings)
	if err != nil {
		return nil, nil, fmt.Errorf("draft: marshal findings: %w", err)
	}
	conclusions, err := json.Marshal(c.Conclusions)
	if err != nil {
		return nil, nil, fmt.Errorf("draft: marshal conclusions: %w", err)
	}
	return findings, conclusions, nil
}

func scanDraft(row pgx.Row) (DraftAward, error) {
	var (
		d           DraftAward
		findings    []byte
		conclusions []byte
	)
	err := row.Scan(
		&d.ID,
		&d.CaseID,
		&findings,
		&conclusions,
		&d.Content.Decision,
		&d.Content.AwardAmount,
		&d.Content.PrevailingParty,
		&d.Content.Reasoning,
		&d.Confidence,
		&d.ModelUsed,
		&d.ReviewStatus,
		&d.ReviewNotes,
		&d.GeneratedAt,
		&d.ReviewedAt,
	)
	if err != nil {
		return DraftAward{}, err
	}
	if err := json.Unmarshal(findings, &d.Content.Findings); err != nil {
		return DraftAward{}, fmt.Errorf("draft: unmarshal findings: %w", err)
	}
	if err := json.Unmarshal(conclusions, &d.Content.Conclusions); err != nil {
		return DraftAward{}, fmt.Errorf("draft: unmarshal conclusions: %w", err)
	}
	return d, nil
}
