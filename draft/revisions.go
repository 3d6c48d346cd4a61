package draft

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrRevisionNotFound signals the requested version does not exist.
	ErrRevisionNotFound = errors.New("draft: revision not found")
)

// AppendRevisionParams carries one new ledger entry. The snapshot is the full
// post-change content, not a diff.
type AppendRevisionParams struct {
	DraftAwardID  string
	Snapshot      Content
	ChangeType    ChangeType
	ChangeSummary string
	ChangedFields []string
	AuthorID      *string
}

// RevisionStore is the append-only ledger of draft content. There is no
// update or delete: this is the authoritative history for disputes about
// what changed and when.
type RevisionStore interface {
	// CreateInitial writes version 1 for a freshly generated draft. It is a
	// no-op when version 1 already exists.
	CreateInitial(ctx context.Context, draftAwardID string, snapshot Content, authorID *string) error
	// AppendTx inserts the next version. The version number is computed and
	// inserted in one statement inside the caller's transaction; callers must
	// hold the draft row lock so concurrent appends serialize.
	AppendTx(ctx context.Context, tx pgx.Tx, params AppendRevisionParams) (Revision, error)
	HasRevisionsTx(ctx context.Context, tx pgx.Tx, draftAwardID string) (bool, error)
	// History returns all versions, newest first.
	History(ctx context.Context, draftAwardID string) ([]Revision, error)
	Get(ctx context.Context, draftAwardID string, version int) (Revision, error)
}

type PGRevisionStore struct {
	pool *pgxpool.Pool
}

func NewRevisionStore(pool *pgxpool.Pool) *PGRevisionStore {
	return &PGRevisionStore{pool: pool}
}

const revisionColumns = `id, draft_award_id, version, snapshot, change_type::text, change_summary,
	changed_fields, author_id, created_at`

func (s *PGRevisionStore) CreateInitial(ctx context.Context, draftAwardID string, snapshot Content, authorID *string) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("draft: marshal initial snapshot: %w", err)
	}

	const insertSQL = `
		INSERT INTO draft_award_revisions (draft_award_id, version, snapshot, change_type, change_summary, changed_fields, author_id)
		VALUES ($1, 1, $2::jsonb, 'INITIAL', 'Initial AI-generated draft', '{}', $3)
		ON CONFLICT (draft_award_id, version) DO NOTHING`

	if _, err := s.pool.Exec(ctx, insertSQL, draftAwardID, body, authorID); err != nil {
		return fmt.Errorf("draft: create initial revision: %w", err)
	}
	return nil
}

func (s *PGRevisionStore) AppendTx(ctx context.Context, tx pgx.Tx, params AppendRevisionParams) (Revision, error) {
	if params.DraftAwardID == "" {
		return Revision{}, fmt.Errorf("draft: append revision: draft award id required")
	}
	if params.ChangeSummary == "" {
		return Revision{}, fmt.Errorf("draft: append revision: change summary required")
	}

	body, err := json.Marshal(params.Snapshot)
	if err != nil {
		return Revision{}, fmt.Errorf("draft: marshal snapshot: %w", err)
	}

	// Version allocation and insert happen in one statement; the unique
	// (draft_award_id, version) index is the backstop if a caller appends
	// without holding the draft row lock.
	const insertSQL = `
		INSERT INTO draft_award_revisions (draft_award_id, version, snapshot, change_type, change_summary, changed_fields, author_id)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2::jsonb, $3::revision_change_type, $4, $5, $6
		FROM draft_award_revisions
		WHERE draft_award_id = $1
		RETURNING ` + revisionColumns

	rev, err := scanRevision(tx.QueryRow(ctx, insertSQL,
		params.DraftAwardID, body, params.ChangeType, params.ChangeSummary, params.ChangedFields, params.AuthorID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Revision{}, fmt.Errorf("draft: concurrent revision append for %s: %w", params.DraftAwardID, err)
		}
		return Revision{}, fmt.Errorf("draft: append revision: %w", err)
	}
	return rev, nil
}

func (s *PGRevisionStore) HasRevisionsTx(ctx context.Context, tx pgx.Tx, draftAwardID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM draft_award_revisions WHERE draft_award_id = $1)`, draftAwardID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("draft: check revisions: %w", err)
	}
	return exists, nil
}

func (s *PGRevisionStore) History(ctx context.Context, draftAwardID string) ([]Revision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+revisionColumns+` FROM draft_award_revisions WHERE draft_award_id = $1 ORDER BY version DESC`,
		draftAwardID)
	if err != nil {
		return nil, fmt.Errorf("draft: revision history: %w", err)
	}
	defer rows.Close()

	out := make([]Revision, 0, 8)
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("draft: scan revision: %w", err)
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("draft: iterate revisions: %w", err)
	}
	return out, nil
}

func (s *PGRevisionStore) Get(ctx context.Context, draftAwardID string, version int) (Revision, error) {
	rev, err := scanRevision(s.pool.QueryRow(ctx,
		`SELECT `+revisionColumns+` FROM draft_award_revisions WHERE draft_award_id = $1 AND version = $2`,
		draftAwardID, version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Revision{}, ErrRevisionNotFound
		}
		return Revision{}, fmt.Errorf("draft: get revision: %w", err)
	}
	return rev, nil
}

func scanRevision(row pgx.Row) (Revision, error) {
	var (
		rev      Revision
		snapshot []byte
	)
	err := row.Scan(
		&rev.ID,
		&rev.DraftAwardID,
		&rev.Version,
		&snapshot,
		&rev.ChangeType,
		&rev.ChangeSummary,
		&rev.ChangedFields,
		&rev.AuthorID,
		&rev.CreatedAt,
	)
	if err != nil {
		return Revision{}, err
	}
	if err := json.Unmarshal(snapshot, &rev.Content); err != nil {
		return Revision{}, fmt.Errorf("draft: unmarshal snapshot: %w", err)
	}
	return rev, nil
}
