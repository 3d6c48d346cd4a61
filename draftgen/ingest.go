package draftgen

import (
	"context"
	"errors"
	"fmt"
	"log"

	"awardflow/audit"
	"awardflow/draft"
)

// DraftStore is the slice of the draft repository ingestion needs.
type DraftStore interface {
	Create(ctx context.Context, params draft.CreateParams) (draft.DraftAward, error)
	GetByCase(ctx context.Context, caseID string) (draft.DraftAward, error)
}

// RevisionInitializer seeds version 1 of the revision history.
type RevisionInitializer interface {
	CreateInitial(ctx context.Context, draftAwardID string, snapshot draft.Content, authorID *string) error
}

// AuditRecorder appends the generation entry to the chain.
type AuditRecorder interface {
	Append(ctx context.Context, params audit.AppendParams) (audit.Entry, error)
}

// Ingestor turns generator output into a persisted, reviewable draft: the
// draft row, its initial revision, and the audit entry.
type Ingestor struct {
	generator Generator
	drafts    DraftStore
	revisions RevisionInitializer
	chain     AuditRecorder
}

func NewIngestor(generator Generator, drafts DraftStore, revisions RevisionInitializer, chain AuditRecorder) *Ingestor {
	return &Ingestor{
		generator: generator,
		drafts:    drafts,
		revisions: revisions,
		chain:     chain,
	}
}

// GenerateDraft runs the model and persists the result. Rerunning after a
// partial failure is safe: a draft that already exists is reused, and the
// initial revision insert is a no-op when version 1 is present.
func (i *Ingestor) GenerateDraft(ctx context.Context, summary CaseSummary) (draft.DraftAward, error) {
	generated, err := i.generator.Generate(ctx, summary)
	if err != nil {
		return draft.DraftAward{}, err
	}

	created, err := i.drafts.Create(ctx, draft.CreateParams{
		CaseID:     summary.CaseID,
		Content:    generated.Content,
		Confidence: generated.Confidence,
		ModelUsed:  generated.ModelUsed,
	})
	if errors.Is(err, draft.ErrDraftExists) {
		existing, getErr := i.drafts.GetByCase(ctx, summary.CaseID)
		if getErr != nil {
			return draft.DraftAward{}, fmt.Errorf("draftgen: load existing draft: %w", getErr)
		}
		if err := i.revisions.CreateInitial(ctx, existing.ID, existing.Content, nil); err != nil {
			return draft.DraftAward{}, err
		}
		return existing, nil
	}
	if err != nil {
		return draft.DraftAward{}, err
	}

	if err := i.revisions.CreateInitial(ctx, created.ID, created.Content, nil); err != nil {
		return draft.DraftAward{}, err
	}

	caseID := summary.CaseID
	if _, err := i.chain.Append(ctx, audit.AppendParams{
		Action: audit.ActionDraftGenerated,
		CaseID: &caseID,
		Metadata: map[string]any{
			"draft_award_id": created.ID,
			"model_used":     created.ModelUsed,
			"confidence":     created.Confidence,
		},
	}); err != nil {
		log.Printf("draftgen: audit generation for case %s: %v", caseID, err)
	}

	return created, nil
}
