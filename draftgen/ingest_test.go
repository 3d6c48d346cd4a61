package draftgen

import (
	"context"
	"errors"
	"testing"

	"awardflow/audit"
	"awardflow/draft"
)

func generated() GeneratedDraft {
	amount := 800.0
	return GeneratedDraft{
		Content: draft.Content{
			Findings:        []draft.FindingOfFact{{Number: 1, Statement: "The invoice went unpaid"}},
			Conclusions:     []draft.ConclusionOfLaw{{Number: 1, LegalBasis: "Sale of goods act", Application: "Payment was due"}},
			Decision:        "Respondent shall pay 800.00",
			AwardAmount:     &amount,
			PrevailingParty: draft.PartyClaimant,
			Reasoning:       "Uncontested delivery records.",
		},
		Confidence: 0.91,
		ModelUsed:  "gemini-test",
	}
}

func TestGenerateDraft_PersistsDraftRevisionAndAudit(t *testing.T) {
	gen := &fakeGenerator{out: generated()}
	store := &fakeDraftStore{}
	revs := &fakeRevisions{}
	chain := &fakeChain{}
	ing := NewIngestor(gen, store, revs, chain)

	d, err := ing.GenerateDraft(context.Background(), CaseSummary{CaseID: "case-1", ClaimSummary: "unpaid invoice"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if d.ID == "" {
		t.Fatalf("expected created draft with id")
	}
	if d.ModelUsed != "gemini-test" || d.Confidence != 0.91 {
		t.Errorf("unexpected draft metadata: %s %f", d.ModelUsed, d.Confidence)
	}

	if revs.initialFor != d.ID {
		t.Errorf("expected initial revision for draft %s, got %q", d.ID, revs.initialFor)
	}
	if len(chain.entries) != 1 || chain.entries[0].Action != audit.ActionDraftGenerated {
		t.Fatalf("expected one DRAFT_GENERATED entry, got %v", chain.entries)
	}
	if chain.entries[0].Metadata["model_used"] != "gemini-test" {
		t.Errorf("expected model recorded in audit metadata")
	}
}

func TestGenerateDraft_GeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	store := &fakeDraftStore{}
	ing := NewIngestor(gen, store, &fakeRevisions{}, &fakeChain{})

	if _, err := ing.GenerateDraft(context.Background(), CaseSummary{CaseID: "case-1"}); err == nil {
		t.Fatalf("expected error from generator")
	}
	if store.created {
		t.Errorf("expected no draft created when generation fails")
	}
}

func TestGenerateDraft_RerunReusesExistingDraft(t *testing.T) {
	gen := &fakeGenerator{out: generated()}
	existing := draft.DraftAward{ID: "draft-existing", CaseID: "case-1", Content: generated().Content}
	store := &fakeDraftStore{createErr: draft.ErrDraftExists, existing: existing}
	revs := &fakeRevisions{}
	chain := &fakeChain{}
	ing := NewIngestor(gen, store, revs, chain)

	d, err := ing.GenerateDraft(context.Background(), CaseSummary{CaseID: "case-1"})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if d.ID != "draft-existing" {
		t.Errorf("expected existing draft reused, got %s", d.ID)
	}
	if revs.initialFor != "draft-existing" {
		t.Errorf("expected initial revision repaired for existing draft")
	}
	if len(chain.entries) != 0 {
		t.Errorf("expected no duplicate generation audit entry on rerun")
	}
}

func TestGenerateDraft_RevisionFailureSurfaces(t *testing.T) {
	gen := &fakeGenerator{out: generated()}
	store := &fakeDraftStore{}
	revs := &fakeRevisions{err: errors.New("insert failed")}
	ing := NewIngestor(gen, store, revs, &fakeChain{})

	if _, err := ing.GenerateDraft(context.Background(), CaseSummary{CaseID: "case-1"}); err == nil {
		t.Fatalf("expected revision failure to surface")
	}
}

type fakeGenerator struct {
	out GeneratedDraft
	err error
}

func (f *fakeGenerator) Generate(ctx context.Context, summary CaseSummary) (GeneratedDraft, error) {
	if f.err != nil {
		return GeneratedDraft{}, f.err
	}
	return f.out, nil
}

type fakeDraftStore struct {
	createErr error
	existing  draft.DraftAward
	created   bool
}

func (f *fakeDraftStore) Create(ctx context.Context, params draft.CreateParams) (draft.DraftAward, error) {
	if f.createErr != nil {
		return draft.DraftAward{}, f.createErr
	}
	f.created = true
	return draft.DraftAward{
		ID:         "draft-1",
		CaseID:     params.CaseID,
		Content:    params.Content,
		Confidence: params.Confidence,
		ModelUsed:  params.ModelUsed,
	}, nil
}

func (f *fakeDraftStore) GetByCase(ctx context.Context, caseID string) (draft.DraftAward, error) {
	if f.existing.ID == "" {
		return draft.DraftAward{}, draft.ErrNotFound
	}
	return f.existing, nil
}

type fakeRevisions struct {
	err        error
	initialFor string
}

func (f *fakeRevisions) CreateInitial(ctx context.Context, draftAwardID string, snapshot draft.Content, authorID *string) error {
	if f.err != nil {
		return f.err
	}
	f.initialFor = draftAwardID
	return nil
}

type fakeChain struct {
	entries []audit.AppendParams
}

func (f *fakeChain) Append(ctx context.Context, params audit.AppendParams) (audit.Entry, error) {
	f.entries = append(f.entries, params)
	return audit.Entry{ID: int64(len(f.entries)), Action: params.Action}, nil
}
