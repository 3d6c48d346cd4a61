package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"awardflow/audit"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isTransient reports errors the chaos injector causes on purpose: terminated
// backends (class 57) and broken connections (class 08). Actors retry those.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := ""
		if len(pgErr.Code) >= 2 {
			class = pgErr.Code[:2]
		}
		return class == "57" || class == "08"
	}
	return pgconn.SafeToRetry(err)
}

func tolerable(err error) bool {
	return err == nil || isUniqueViolation(err) || isTransient(err)
}

// Finalizer races to issue the binding award for a case. Only one insert can
// win the UNIQUE (case_id) constraint; every other attempt must see 23505.
func Finalizer(ctx context.Context, pool *pgxpool.Pool, caseID, draftID, arbitratorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("finalizer begin: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO awards (case_id, reference_number, findings, conclusions, decision,
			                    prevailing_party, reasoning, signing_arbitrator_id,
			                    signed_at, issued_at, signature_value, signature_algorithm,
			                    cert_fingerprint, document_url, document_hash)
			SELECT d.case_id, 'AWD-STRESS-00001', d.findings, d.conclusions, d.decision,
			       d.prevailing_party, d.reasoning, $2,
			       now(), now(), 'stress-signature', 'ECDSA-SHA256',
			       repeat('f', 64), 'http://localhost/documents/stress.txt', repeat('a', 64)
			FROM draft_awards d WHERE d.id = $1`, draftID, arbitratorID)
		if err == nil {
			_, err = tx.Exec(ctx, `UPDATE cases SET status = 'decided', decided_at = now(), updated_at = now() WHERE id = $1`, caseID)
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if !tolerable(err) {
			return fmt.Errorf("finalizer insert: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Reviser appends revisions to a draft, allocating versions under the draft
// row lock. The UNIQUE (draft_award_id, version) pair is the backstop when two
// revisers slip past the lock, so 23505 is tolerated.
func Reviser(ctx context.Context, pool *pgxpool.Pool, draftID, authorID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("reviser begin: %w", err)
		}
		var id string
		err = tx.QueryRow(ctx, `SELECT id FROM draft_awards WHERE id = $1 FOR UPDATE`, draftID).Scan(&id)
		if err == nil {
			_, err = tx.Exec(ctx, `
				INSERT INTO draft_award_revisions (draft_award_id, version, snapshot, change_type, change_summary, changed_fields, author_id)
				SELECT $1, COALESCE(MAX(version), 0) + 1,
				       jsonb_build_object('decision', 'stress edit'), 'ARBITRATOR_EDIT'::revision_change_type,
				       'stress revision', ARRAY['decision'], $2
				FROM draft_award_revisions WHERE draft_award_id = $1`, draftID, authorID)
		}
		if err == nil {
			err = tx.Commit(ctx)
		}
		_ = tx.Rollback(ctx)
		if !tolerable(err) {
			return fmt.Errorf("reviser insert: %w", err)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Reviewer flips a draft between review outcomes, always stamping reviewed_at
// together with the status.
func Reviewer(ctx context.Context, pool *pgxpool.Pool, draftID string, stop <-chan struct{}) error {
	statuses := []string{"MODIFY", "REJECT"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		status := statuses[rand.Intn(len(statuses))]
		_, err := pool.Exec(ctx, `
			UPDATE draft_awards SET review_status = $2::review_status, review_notes = 'stress review', reviewed_at = now()
			WHERE id = $1`, draftID, status)
		if !tolerable(err) {
			return fmt.Errorf("reviewer update: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// AuditAppender drives the real chain writer so concurrent appends contend on
// the advisory lock the way production writers do.
func AuditAppender(ctx context.Context, chain *audit.Chain, caseID, actorID string, stop <-chan struct{}) error {
	actions := []audit.Action{audit.ActionDraftModified, audit.ActionCaseStatusChanged, audit.ActionUserLogin}
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := chain.Append(ctx, audit.AppendParams{
			Action:   actions[i%len(actions)],
			ActorID:  &actorID,
			CaseID:   &caseID,
			Metadata: map[string]any{"stress_seq": i},
		})
		if !tolerable(err) {
			return fmt.Errorf("audit append: %w", err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Escalator cycles a draft's escalation row: re-activate a terminal row in
// place, then resolve it. The UNIQUE (draft_award_id) constraint keeps a
// single row per draft regardless of how many escalators run.
func Escalator(ctx context.Context, pool *pgxpool.Pool, draftID, caseID, escalatedBy string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO award_escalations (draft_award_id, case_id, reason, urgency, escalated_by)
			VALUES ($1, $2, 'COMPLEX_LEGAL_ISSUE'::escalation_reason, 'NORMAL'::escalation_urgency, $3)
			ON CONFLICT (draft_award_id) DO UPDATE
			SET reason = EXCLUDED.reason, urgency = EXCLUDED.urgency, escalated_by = EXCLUDED.escalated_by,
			    status = 'PENDING'::escalation_status, assigned_to = NULL, assigned_at = NULL,
			    resolved_at = NULL, resolution = NULL, updated_at = now()
			WHERE award_escalations.status IN ('RESOLVED', 'RETURNED')`, draftID, caseID, escalatedBy)
		if !tolerable(err) {
			return fmt.Errorf("escalator upsert: %w", err)
		}

		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)

		_, err = pool.Exec(ctx, `
			UPDATE award_escalations
			SET status = 'RESOLVED'::escalation_status, resolved_at = now(), resolution = 'stress resolved', updated_at = now()
			WHERE draft_award_id = $1 AND status IN ('PENDING', 'ASSIGNED')`, draftID)
		if !tolerable(err) {
			return fmt.Errorf("escalator resolve: %w", err)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}
