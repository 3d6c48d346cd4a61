package escalation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrActiveEscalation signals a PENDING/ASSIGNED escalation already exists
	// for the draft award.
	ErrActiveEscalation = errors.New("escalation: active escalation exists")
	// ErrNotFound signals the escalation does not exist.
	ErrNotFound = errors.New("escalation: not found")
	// ErrBadStatus signals a transition from an invalid status.
	ErrBadStatus = errors.New("escalation: invalid status transition")
)

// UpsertParams carries the fields of a new or re-activated escalation.
type UpsertParams struct {
	DraftAwardID string
	CaseID       string
	Reason       Reason
	Detail       *string
	Urgency      Urgency
	EscalatedBy  string
}

// Repository handles data access for escalations.
type Repository interface {
	// UpsertTx creates the escalation, or re-activates a RESOLVED/RETURNED row
	// for the same draft award, resetting resolution and assignment fields.
	// Returns ErrActiveEscalation when the existing row is still active.
	UpsertTx(ctx context.Context, tx pgx.Tx, params UpsertParams) (Record, error)
	// Assign moves a PENDING escalation to ASSIGNED.
	Assign(ctx context.Context, escalationID, reviewerID string) (Record, error)
	// Resolve closes an active escalation as RESOLVED or RETURNED.
	Resolve(ctx context.Context, escalationID string, status Status, resolution string) (Record, error)
	GetByDraft(ctx context.Context, draftAwardID string) (Record, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const escalationColumns = `id, draft_award_id, case_id, reason::text, detail, urgency::text, escalated_by,
	assigned_to, assigned_at, status::text, resolved_at, resolution, created_at, updated_at`

// UpsertTx is keyed on draft_award_id so two simultaneous escalations for the
// same draft collapse into one row. The DO UPDATE branch only fires for
// terminal rows; an active row yields no returned row, which maps to
// ErrActiveEscalation.
func (r *PGRepository) UpsertTx(ctx context.Context, tx pgx.Tx, params UpsertParams) (Record, error) {
	if params.DraftAwardID == "" || params.CaseID == "" {
		return Record{}, fmt.Errorf("escalation: draft award id and case id required")
	}
	if params.EscalatedBy == "" {
		return Record{}, fmt.Errorf("escalation: escalating user required")
	}

	const upsertSQL = `
		INSERT INTO award_escalations (draft_award_id, case_id, reason, detail, urgency, escalated_by, status)
		VALUES ($1, $2, $3::escalation_reason, $4, $5::escalation_urgency, $6, 'PENDING')
		ON CONFLICT (draft_award_id) DO UPDATE
		SET reason = EXCLUDED.reason,
		    detail = EXCLUDED.detail,
		    urgency = EXCLUDED.urgency,
		    escalated_by = EXCLUDED.escalated_by,
		    status = 'PENDING',
		    assigned_to = NULL,
		    assigned_at = NULL,
		    resolved_at = NULL,
		    resolution = NULL,
		    updated_at = now()
		WHERE award_escalations.status IN ('RESOLVED', 'RETURNED')
		RETURNING ` + escalationColumns

	rec, err := scanRecord(tx.QueryRow(ctx, upsertSQL,
		params.DraftAwardID, params.CaseID, params.Reason, params.Detail, params.Urgency, params.EscalatedBy))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrActiveEscalation
		}
		return Record{}, fmt.Errorf("escalation: upsert: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) Assign(ctx context.Context, escalationID, reviewerID string) (Record, error) {
	const assignSQL = `
		UPDATE award_escalations
		SET status = 'ASSIGNED', assigned_to = $2, assigned_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + escalationColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, assignSQL, escalationID, reviewerID))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("escalation: assign: %w", err)
	}
	return Record{}, r.classifyMiss(ctx, escalationID)
}

func (r *PGRepository) Resolve(ctx context.Context, escalationID string, status Status, resolution string) (Record, error) {
	if status != StatusResolved && status != StatusReturned {
		return Record{}, ErrBadStatus
	}

	const resolveSQL = `
		UPDATE award_escalations
		SET status = $2::escalation_status, resolution = $3, resolved_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ('PENDING', 'ASSIGNED')
		RETURNING ` + escalationColumns

	rec, err := scanRecord(r.pool.QueryRow(ctx, resolveSQL, escalationID, status, resolution))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("escalation: resolve: %w", err)
	}
	return Record{}, r.classifyMiss(ctx, escalationID)
}

func (r *PGRepository) GetByDraft(ctx context.Context, draftAwardID string) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx,
		`SELECT `+escalationColumns+` FROM award_escalations WHERE draft_award_id = $1`, draftAwardID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("escalation: get by draft: %w", err)
	}
	return rec, nil
}

// classifyMiss distinguishes a missing row from a status conflict after an
// UPDATE matched nothing.
func (r *PGRepository) classifyMiss(ctx context.Context, escalationID string) error {
	var status Status
	err := r.pool.QueryRow(ctx, `SELECT status::text FROM award_escalations WHERE id = $1`, escalationID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("escalation: fetch status: %w", err)
	}
	return ErrBadStatus
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.DraftAwardID,
		&rec.CaseID,
		&rec.Reason,
		&rec.Detail,
		&rec.Urgency,
		&rec.EscalatedBy,
		&rec.AssignedTo,
		&rec.AssignedAt,
		&rec.Status,
		&rec.ResolvedAt,
		&rec.Resolution,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
