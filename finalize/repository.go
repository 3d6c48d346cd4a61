package finalize

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
	// ErrAlreadyIssued signals an award already exists for the case. The
	// unique constraint on awards.case_id is the real guard against double
	// finalization: of two racing inserts exactly one succeeds and the loser
	// surfaces this error.
	ErrAlreadyIssued = errors.New("finalize: award already issued for case")
	// ErrAwardNotFound signals no award exists for the case.
	ErrAwardNotFound = errors.New("finalize: award not found")
)

// AwardRepository handles data access for issued awards.
type AwardRepository interface {
	// Insert persists the binding award. This is the commit point of
	// finalization; a 23505 on case_id maps to ErrAlreadyIssued.
	Insert(ctx context.Context, award Award) (Award, error)
	GetByCase(ctx context.Context, caseID string) (Award, error)
	ExistsForCase(ctx context.Context, caseID string) (bool, error)
	// CountIssuedOn counts awards issued on the given UTC day, read
	// consistently at call time for reference-number allocation.
	CountIssuedOn(ctx context.Context, day time.Time) (int, error)
	// MarkPartyNotified stamps one party's notified-at field. Set only on
	// confirmed delivery, independently per party.
	MarkPartyNotified(ctx context.Context, awardID string, recipient Recipient, notifiedAt time.Time) error
}

type PGAwardRepository struct {
	pool *pgxpool.Pool
}

func NewAwardRepository(pool *pgxpool.Pool) *PGAwardRepository {
	return &PGAwardRepository{pool: pool}
}

const awardColumns = `id, case_id, reference_number, findings, conclusions, decision, award_amount,
	prevailing_party, reasoning, signing_arbitrator_id, signed_at, issued_at, signature_value,
	signature_algorithm, cert_fingerprint, timestamp_token, timestamp_time, timestamp_authority,
	document_url, document_hash, claimant_notified_at, respondent_notified_at, created_at`

func (r *PGAwardRepository) Insert(ctx context.Context, award Award) (Award, error) {
	findings, err := json.Marshal(award.Content.Findings)
	if err != nil {
		return Award{}, fmt.Errorf("finalize: marshal findings: %w", err)
	}
	conclusions, err := json.Marshal(award.Content.Conclusions)
	if err != nil {
		return Award{}, fmt.Errorf("finalize: marshal conclusions: %w", err)
	}

	const insertSQL = `
		INSERT INTO awards (case_id, reference_number, findings, conclusions, decision, award_amount,
			prevailing_party, reasoning, signing_arbitrator_id, signed_at, issued_at, signature_value,
			signature_algorithm, cert_fingerprint, timestamp_token, timestamp_time, timestamp_authority,
			document_url, document_hash)
		VALUES ($1, $2, $3::jsonb, $4::jsonb, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING ` + awardColumns

	inserted, err := scanAward(r.pool.QueryRow(ctx, insertSQL,
		award.CaseID, award.ReferenceNumber, findings, conclusions,
		award.Content.Decision, award.Content.AwardAmount, award.Content.PrevailingParty, award.Content.Reasoning,
		award.SigningArbitratorID, award.SignedAt, award.IssuedAt, award.SignatureValue,
		award.SignatureAlgorithm, award.CertFingerprint, award.TimestampToken, award.TimestampTime,
		award.TimestampAuthority, award.DocumentURL, award.DocumentHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Award{}, ErrAlreadyIssued
		}
		return Award{}, fmt.Errorf("finalize: insert award: %w", err)
	}
	return inserted, nil
}

func (r *PGAwardRepository) GetByCase(ctx context.Context, caseID string) (Award, error) {
	award, err := scanAward(r.pool.QueryRow(ctx,
		`SELECT `+awardColumns+` FROM awards WHERE case_id = $1`, caseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Award{}, ErrAwardNotFound
		}
		return Award{}, fmt.Errorf("finalize: get award: %w", err)
	}
	return award, nil
}

func (r *PGAwardRepository) ExistsForCase(ctx context.Context, caseID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM awards WHERE case_id = $1)`, caseID).Scan(&exists); err != nil {
		return false, fmt.Errorf("finalize: check award exists: %w", err)
	}
	return exists, nil
}

func (r *PGAwardRepository) CountIssuedOn(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM awards WHERE issued_at >= $1 AND issued_at < $2`, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("finalize: count issued: %w", err)
	}
	return count, nil
}

func (r *PGAwardRepository) MarkPartyNotified(ctx context.Context, awardID string, recipient Recipient, notifiedAt time.Time) error {
	var column string
	switch recipient {
	case RecipientClaimant:
		column = "claimant_notified_at"
	case RecipientRespondent:
		column = "respondent_notified_at"
	default:
		return fmt.Errorf("finalize: unknown recipient %q", recipient)
	}

	// The IS NULL guard keeps the first confirmed delivery time; a repeat
	// notification never overwrites it.
	_, err := r.pool.Exec(ctx,
		`UPDATE awards SET `+column+` = $2 WHERE id = $1 AND `+column+` IS NULL`, awardID, notifiedAt)
	if err != nil {
		return fmt.Errorf("finalize: mark %s notified: %w", recipient, err)
	}
	return nil
}

func scanAward(row pgx.Row) (Award, error) {
	var (
		a           Award
		findings    []byte
		conclusions []byte
	)
	err := row.Scan(
		&a.ID,
		&a.CaseID,
		&a.ReferenceNumber,
		&findings,
		&conclusions,
		&a.Content.Decision,
		&a.Content.AwardAmount,
		&a.Content.PrevailingParty,
		&a.Content.Reasoning,
		&a.SigningArbitratorID,
		&a.SignedAt,
		&a.IssuedAt,
		&a.SignatureValue,
		&a.SignatureAlgorithm,
		&a.CertFingerprint,
		&a.TimestampToken,
		&a.TimestampTime,
		&a.TimestampAuthority,
		&a.DocumentURL,
		&a.DocumentHash,
		&a.ClaimantNotifiedAt,
		&a.RespondentNotifiedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return Award{}, err
	}
	if err := json.Unmarshal(findings, &a.Content.Findings); err != nil {
		return Award{}, fmt.Errorf("finalize: unmarshal findings: %w", err)
	}
	if err := json.Unmarshal(conclusions, &a.Content.Conclusions); err != nil {
		return Award{}, fmt.Errorf("finalize: unmarshal conclusions: %w", err)
	}
	return a, nil
}
