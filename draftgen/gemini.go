package draftgen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"awardflow/draft"

	"github.com/google/generative-ai-go/genai"
)

// GeminiGenerator produces draft decisions with a Gemini model. The genai
// client is injected at construction; this package never creates one.
type GeminiGenerator struct {
	model     *genai.GenerativeModel
	modelName string
}

func NewGeminiGenerator(client *genai.Client, modelName string) *GeminiGenerator {
	model := client.GenerativeModel(modelName)
	model.ResponseMIMEType = "application/json"
	return &GeminiGenerator{model: model, modelName: modelName}
}

// generatedPayload is the JSON shape the model is instructed to emit.
type generatedPayload struct {
	FindingsOfFact   []draft.FindingOfFact   `json:"findings_of_fact"`
	ConclusionsOfLaw []draft.ConclusionOfLaw `json:"conclusions_of_law"`
	Decision         string                  `json:"decision"`
	AwardAmount      *float64                `json:"award_amount"`
	PrevailingParty  draft.PrevailingParty   `json:"prevailing_party"`
	Reasoning        string                  `json:"reasoning"`
	Confidence       float64                 `json:"confidence"`
}

func (g *GeminiGenerator) Generate(ctx context.Context, summary CaseSummary) (GeneratedDraft, error) {
	if summary.CaseID == "" {
		return GeneratedDraft{}, fmt.Errorf("draftgen: case id required")
	}

	resp, err := g.model.GenerateContent(ctx, genai.Text(buildPrompt(summary)))
	if err != nil {
		return GeneratedDraft{}, fmt.Errorf("draftgen: generate content: %w", err)
	}

	raw := collectText(resp)
	if raw == "" {
		return GeneratedDraft{}, fmt.Errorf("draftgen: model returned no text candidates")
	}

	var payload generatedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return GeneratedDraft{}, fmt.Errorf("draftgen: decode model output: %w", err)
	}
	if err := validatePayload(payload); err != nil {
		return GeneratedDraft{}, err
	}

	return GeneratedDraft{
		Content: draft.Content{
			Findings:        payload.FindingsOfFact,
			Conclusions:     payload.ConclusionsOfLaw,
			Decision:        payload.Decision,
			AwardAmount:     payload.AwardAmount,
			PrevailingParty: payload.PrevailingParty,
			Reasoning:       payload.Reasoning,
		},
		Confidence: payload.Confidence,
		ModelUsed:  g.modelName,
	}, nil
}

func buildPrompt(summary CaseSummary) string {
	var b strings.Builder
	b.WriteString("You are drafting a small-claims arbitration award. Respond with a single JSON object ")
	b.WriteString(`containing "findings_of_fact" (array of {number, statement, evidence_refs}), `)
	b.WriteString(`"conclusions_of_law" (array of {number, legal_basis, application}), "decision", `)
	b.WriteString(`"award_amount" (number or null), "prevailing_party" (CLAIMANT, RESPONDENT or SPLIT), `)
	b.WriteString(`"reasoning", and "confidence" (0 to 1).`)
	b.WriteString("\n\nCLAIM\n")
	b.WriteString(summary.ClaimSummary)
	b.WriteString("\n\nRESPONSE\n")
	b.WriteString(summary.ResponseSummary)
	if len(summary.EvidenceSummaries) > 0 {
		b.WriteString("\n\nEVIDENCE\n")
		for i, ev := range summary.EvidenceSummaries {
			fmt.Fprintf(&b, "%d. %s\n", i+1, ev)
		}
	}
	if summary.PriorFeedback != "" {
		b.WriteString("\nA previous draft was rejected with this feedback; address it:\n")
		b.WriteString(summary.PriorFeedback)
		b.WriteString("\n")
	}
	return b.String()
}

func collectText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func validatePayload(p generatedPayload) error {
	if len(p.FindingsOfFact) == 0 || len(p.ConclusionsOfLaw) == 0 {
		return fmt.Errorf("draftgen: model output missing findings or conclusions")
	}
	if p.Decision == "" || p.Reasoning == "" {
		return fmt.Errorf("draftgen: model output missing decision or reasoning")
	}
	switch p.PrevailingParty {
	case draft.PartyClaimant, draft.PartyRespondent, draft.PartySplit:
	default:
		return fmt.Errorf("draftgen: invalid prevailing party %q", p.PrevailingParty)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("draftgen: confidence %f out of range", p.Confidence)
	}
	return nil
}
