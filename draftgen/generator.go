package draftgen

import (
	"context"

	"awardflow/draft"
)

// CaseSummary is the analysis bundle handed to a generator: the distilled
// claim, response, and evidence produced by the upstream document pipeline,
// plus prior reviewer feedback when a rejected draft is being redone.
type CaseSummary struct {
	CaseID            string
	ClaimSummary      string
	ResponseSummary   string
	EvidenceSummaries []string
	PriorFeedback     string
}

// GeneratedDraft is the contract every generator must return: full decision
// content plus the model's self-reported confidence and identity.
type GeneratedDraft struct {
	Content    draft.Content
	Confidence float64
	ModelUsed  string
}

// Generator produces decision content for a case. Implementations make the
// actual model call; the ingest path persists whatever comes back.
type Generator interface {
	Generate(ctx context.Context, summary CaseSummary) (GeneratedDraft, error)
}
