package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"awardflow/audit"
	"awardflow/casefile"
	"awardflow/escalation"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrNoChanges signals a modify call with an empty or no-op change set.
	ErrNoChanges = errors.New("draft: no fields changed")
	// ErrMissingSummary signals a modify call without a change summary.
	ErrMissingSummary = errors.New("draft: change summary required")
	// ErrInvalidFeedback signals reject feedback missing required fields.
	ErrInvalidFeedback = errors.New("draft: invalid reject feedback")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CaseUpdater advances the case's external status inside the engine's
// transaction.
type CaseUpdater interface {
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, caseID string, status casefile.Status) error
}

// AuditRecorder appends to the tamper-evident chain, either inside the
// engine's transaction or standalone for post-commit events.
type AuditRecorder interface {
	AppendTx(ctx context.Context, tx pgx.Tx, params audit.AppendParams) (audit.Entry, error)
	Append(ctx context.Context, params audit.AppendParams) (audit.Entry, error)
}

// EscalationWriter performs the active-escalation upsert inside the engine's
// transaction.
type EscalationWriter interface {
	UpsertTx(ctx context.Context, tx pgx.Tx, params escalation.UpsertParams) (escalation.Record, error)
}

// EscalationAssigner routes a pending escalation to a senior reviewer after
// the engine's transaction commits.
type EscalationAssigner interface {
	Assign(ctx context.Context, rec escalation.Record, exclude []string) (escalation.Record, error)
}

// Service is the review decision engine: the state machine that takes a
// draft award through approve / modify / reject / escalate. Every operation
// runs in one transaction covering the draft update, the revision ledger,
// the case status, and the audit chain.
type Service struct {
	pool        TxBeginner
	drafts      Repository
	revisions   RevisionStore
	cases       CaseUpdater
	chain       AuditRecorder
	escalations EscalationWriter
	assignor    EscalationAssigner
	now         func() time.Time
}

func NewService(pool TxBeginner, drafts Repository, revisions RevisionStore, cases CaseUpdater,
	chain AuditRecorder, escalations EscalationWriter, assignor EscalationAssigner) *Service {
	return &Service{
		pool:        pool,
		drafts:      drafts,
		revisions:   revisions,
		cases:       cases,
		chain:       chain,
		escalations: escalations,
		assignor:    assignor,
		now:         time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Approve accepts the draft as-is. The case advances to decided review-wise;
// only from APPROVE can the finalizer issue the binding award.
func (s *Service) Approve(ctx context.Context, caseID string, notes *string, rc ReviewContext) (DraftAward, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return DraftAward{}, fmt.Errorf("draft: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.drafts.GetByCaseForUpdateTx(ctx, tx, caseID)
	if err != nil {
		return DraftAward{}, err
	}

	reviewedAt := s.now().UTC()
	if err := s.drafts.SetReviewTx(ctx, tx, d.ID, StatusApprove, notes, reviewedAt); err != nil {
		return DraftAward{}, err
	}

	hasRevisions, err := s.revisions.HasRevisionsTx(ctx, tx, d.ID)
	if err != nil {
		return DraftAward{}, err
	}
	if hasRevisions {
		if _, err := s.revisions.AppendTx(ctx, tx, AppendRevisionParams{
			DraftAwardID:  d.ID,
			Snapshot:      d.Content,
			ChangeType:    ChangeArbitratorEdit,
			ChangeSummary: "Award approved by arbitrator",
			ChangedFields: []string{"reviewStatus"},
			AuthorID:      rc.actor(),
		}); err != nil {
			return DraftAward{}, err
		}
	}

	if err := s.cases.UpdateStatusTx(ctx, tx, caseID, casefile.StatusDecided); err != nil {
		return DraftAward{}, err
	}

	if _, err := s.chain.AppendTx(ctx, tx, audit.AppendParams{
		Action:  audit.ActionDraftApproved,
		ActorID: rc.actor(),
		CaseID:  &caseID,
		Metadata: map[string]any{
			"draft_award_id": d.ID,
			"has_notes":      notes != nil && *notes != "",
		},
		IPAddress: rc.ip(),
		UserAgent: rc.userAgent(),
	}); err != nil {
		return DraftAward{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DraftAward{}, fmt.Errorf("draft: commit approve: %w", err)
	}

	status := StatusApprove
	d.ReviewStatus = &status
	d.ReviewNotes = notes
	d.ReviewedAt = &reviewedAt
	return d, nil
}

// Modify applies a partial edit, persists the full post-change snapshot as
// the next revision, and sets status MODIFY. A modified draft stays
// reviewable and can still be approved afterward.
func (s *Service) Modify(ctx context.Context, caseID string, changes FieldChanges, changeSummary string, rc ReviewContext) (Revision, error) {
	if strings.TrimSpace(changeSummary) == "" {
		return Revision{}, ErrMissingSummary
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Revision{}, fmt.Errorf("draft: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.drafts.GetByCaseForUpdateTx(ctx, tx, caseID)
	if err != nil {
		return Revision{}, err
	}

	content, changedFields := applyChanges(d.Content, changes)
	if len(changedFields) == 0 {
		return Revision{}, ErrNoChanges
	}

	if err := s.drafts.SetContentTx(ctx, tx, d.ID, content); err != nil {
		return Revision{}, err
	}
	if err := s.drafts.SetReviewTx(ctx, tx, d.ID, StatusModify, d.ReviewNotes, s.now().UTC()); err != nil {
		return Revision{}, err
	}

	rev, err := s.revisions.AppendTx(ctx, tx, AppendRevisionParams{
		DraftAwardID:  d.ID,
		Snapshot:      content,
		ChangeType:    ChangeArbitratorEdit,
		ChangeSummary: changeSummary,
		ChangedFields: changedFields,
		AuthorID:      rc.actor(),
	})
	if err != nil {
		return Revision{}, err
	}

	if _, err := s.chain.AppendTx(ctx, tx, audit.AppendParams{
		Action:  audit.ActionDraftModified,
		ActorID: rc.actor(),
		CaseID:  &caseID,
		Metadata: map[string]any{
			"draft_award_id": d.ID,
			"version":        rev.Version,
			"changed_fields": changedFields,
			"summary":        changeSummary,
		},
		IPAddress: rc.ip(),
		UserAgent: rc.userAgent(),
	}); err != nil {
		return Revision{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Revision{}, fmt.Errorf("draft: commit modify: %w", err)
	}
	return rev, nil
}

// Reject sends the draft back for regeneration with structured feedback.
// The case re-enters analysis; the draft-generation collaborator picks it up
// from there.
func (s *Service) Reject(ctx context.Context, caseID string, feedback RejectFeedback, rc ReviewContext) (DraftAward, error) {
	if err := validateFeedback(feedback); err != nil {
		return DraftAward{}, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return DraftAward{}, fmt.Errorf("draft: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.drafts.GetByCaseForUpdateTx(ctx, tx, caseID)
	if err != nil {
		return DraftAward{}, err
	}

	notes := formatFeedback(feedback)
	reviewedAt := s.now().UTC()
	if err := s.drafts.SetReviewTx(ctx, tx, d.ID, StatusReject, &notes, reviewedAt); err != nil {
		return DraftAward{}, err
	}
	if err := s.cases.UpdateStatusTx(ctx, tx, caseID, casefile.StatusAnalysis); err != nil {
		return DraftAward{}, err
	}

	if _, err := s.chain.AppendTx(ctx, tx, audit.AppendParams{
		Action:  audit.ActionDraftRejected,
		ActorID: rc.actor(),
		CaseID:  &caseID,
		Metadata: map[string]any{
			"draft_award_id":    d.ID,
			"category":          feedback.Category,
			"severity":          feedback.Severity,
			"affected_sections": feedback.AffectedSections,
		},
		IPAddress: rc.ip(),
		UserAgent: rc.userAgent(),
	}); err != nil {
		return DraftAward{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DraftAward{}, fmt.Errorf("draft: commit reject: %w", err)
	}

	status := StatusReject
	d.ReviewStatus = &status
	d.ReviewNotes = &notes
	d.ReviewedAt = &reviewedAt
	return d, nil
}

// Escalate routes the draft to a senior reviewer. The escalation upsert and
// status change commit first; assignment and the assignee notification run
// after commit and never roll the escalation back.
func (s *Service) Escalate(ctx context.Context, caseID string, reason escalation.Reason, detail *string, urgency escalation.Urgency, rc ReviewContext) (escalation.Record, error) {
	if reason == "" {
		return escalation.Record{}, fmt.Errorf("draft: escalation reason required")
	}
	if urgency == "" {
		urgency = escalation.UrgencyNormal
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return escalation.Record{}, fmt.Errorf("draft: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.drafts.GetByCaseForUpdateTx(ctx, tx, caseID)
	if err != nil {
		return escalation.Record{}, err
	}

	esc, err := s.escalations.UpsertTx(ctx, tx, escalation.UpsertParams{
		DraftAwardID: d.ID,
		CaseID:       caseID,
		Reason:       reason,
		Detail:       detail,
		Urgency:      urgency,
		EscalatedBy:  rc.ArbitratorID,
	})
	if err != nil {
		return escalation.Record{}, err
	}

	if err := s.drafts.SetReviewTx(ctx, tx, d.ID, StatusEscalate, d.ReviewNotes, s.now().UTC()); err != nil {
		return escalation.Record{}, err
	}

	if _, err := s.chain.AppendTx(ctx, tx, audit.AppendParams{
		Action:  audit.ActionDraftEscalated,
		ActorID: rc.actor(),
		CaseID:  &caseID,
		Metadata: map[string]any{
			"draft_award_id": d.ID,
			"escalation_id":  esc.ID,
			"reason":         reason,
			"urgency":        urgency,
		},
		IPAddress: rc.ip(),
		UserAgent: rc.userAgent(),
	}); err != nil {
		return escalation.Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return escalation.Record{}, fmt.Errorf("draft: commit escalate: %w", err)
	}

	if s.assignor != nil {
		assigned, err := s.assignor.Assign(ctx, esc, []string{rc.ArbitratorID})
		if err != nil {
			log.Printf("draft: assign escalation %s: %v", esc.ID, err)
			return esc, nil
		}
		if assigned.Status == escalation.StatusAssigned {
			if _, err := s.chain.Append(ctx, audit.AppendParams{
				Action: audit.ActionEscalationAssigned,
				CaseID: &caseID,
				Metadata: map[string]any{
					"escalation_id": assigned.ID,
					"assigned_to":   assigned.AssignedTo,
				},
			}); err != nil {
				log.Printf("draft: audit escalation assignment %s: %v", assigned.ID, err)
			}
		}
		return assigned, nil
	}
	return esc, nil
}

func (rc ReviewContext) actor() *string {
	if rc.ArbitratorID == "" {
		return nil
	}
	id := rc.ArbitratorID
	return &id
}

func (rc ReviewContext) ip() *string {
	if rc.IPAddress == "" {
		return nil
	}
	ip := rc.IPAddress
	return &ip
}

func (rc ReviewContext) userAgent() *string {
	if rc.UserAgent == "" {
		return nil
	}
	ua := rc.UserAgent
	return &ua
}

// applyChanges merges the partial update into the content, returning the
// post-change snapshot and the names of fields that actually changed.
func applyChanges(content Content, changes FieldChanges) (Content, []string) {
	changed := make([]string, 0, 6)

	if changes.Findings != nil && !sameJSON(content.Findings, changes.Findings) {
		content.Findings = changes.Findings
		changed = append(changed, "findingsOfFact")
	}
	if changes.Conclusions != nil && !sameJSON(content.Conclusions, changes.Conclusions) {
		content.Conclusions = changes.Conclusions
		changed = append(changed, "conclusionsOfLaw")
	}
	if changes.Decision != nil && *changes.Decision != content.Decision {
		content.Decision = *changes.Decision
		changed = append(changed, "decision")
	}
	if changes.AwardAmount != nil && (content.AwardAmount == nil || *content.AwardAmount != *changes.AwardAmount) {
		content.AwardAmount = changes.AwardAmount
		changed = append(changed, "awardAmount")
	}
	if changes.PrevailingParty != nil && *changes.PrevailingParty != content.PrevailingParty {
		content.PrevailingParty = *changes.PrevailingParty
		changed = append(changed, "prevailingParty")
	}
	if changes.Reasoning != nil && *changes.Reasoning != content.Reasoning {
		content.Reasoning = *changes.Reasoning
		changed = append(changed, "reasoning")
	}
	return content, changed
}

func sameJSON(a, b any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

func validateFeedback(f RejectFeedback) error {
	if strings.TrimSpace(f.Description) == "" {
		return fmt.Errorf("%w: description required", ErrInvalidFeedback)
	}
	switch f.Category {
	case FeedbackLegalError, FeedbackFactualError, FeedbackProceduralError, FeedbackCalculationError, FeedbackOtherError:
	default:
		return fmt.Errorf("%w: unknown category %q", ErrInvalidFeedback, f.Category)
	}
	switch f.Severity {
	case SeverityMinor, SeverityModerate, SeverityMajor:
	default:
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidFeedback, f.Severity)
	}
	return nil
}

// formatFeedback renders structured feedback into the draft's review-notes
// field, the form the regeneration prompt consumes.
func formatFeedback(f RejectFeedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s/%s] %s", f.Category, f.Severity, strings.TrimSpace(f.Description))
	if len(f.AffectedSections) > 0 {
		fmt.Fprintf(&b, " | Affected sections: %s", strings.Join(f.AffectedSections, ", "))
	}
	if strings.TrimSpace(f.SuggestedCorrection) != "" {
		fmt.Fprintf(&b, " | Suggested correction: %s", strings.TrimSpace(f.SuggestedCorrection))
	}
	return b.String()
}
