package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"awardflow/draft"
)

func sampleDocument() AwardDocument {
	amount := 1250.50
	return AwardDocument{
		ReferenceNumber: "AWD-20260301-00003",
		CaseID:          "case-1",
		Content: draft.Content{
			Findings: []draft.FindingOfFact{
				{Number: 1, Statement: "The goods were delivered late", EvidenceRefs: []string{"ev-1", "ev-2"}},
				{Number: 2, Statement: "No cure period was offered"},
			},
			Conclusions: []draft.ConclusionOfLaw{
				{Number: 1, LegalBasis: "Contract clause 7", Application: "Late delivery constitutes breach"},
			},
			Decision:        "Respondent shall pay claimant 1250.50",
			AwardAmount:     &amount,
			PrevailingParty: draft.PartyClaimant,
			Reasoning:       "The delivery records are uncontested.",
		},
		ArbitratorName: "Ines Arbitrator",
		IssuedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestTextRenderer_Deterministic(t *testing.T) {
	r := NewTextRenderer()
	doc := sampleDocument()

	first, err := r.Render(context.Background(), doc)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	second, err := r.Render(context.Background(), doc)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("expected identical bytes for identical input")
	}
}

func TestTextRenderer_ContainsAllSections(t *testing.T) {
	r := NewTextRenderer()

	out, err := r.Render(context.Background(), sampleDocument())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	text := string(out)

	for _, want := range []string{
		"FINAL ARBITRATION AWARD",
		"Reference: AWD-20260301-00003",
		"FINDINGS OF FACT",
		"1. The goods were delivered late",
		"Evidence: ev-1, ev-2",
		"CONCLUSIONS OF LAW",
		"Contract clause 7",
		"DECISION",
		"Prevailing party: CLAIMANT",
		"Award amount: 1250.50",
		"REASONING",
		"Arbitrator: Ines Arbitrator",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("rendered document missing %q", want)
		}
	}
}

func TestTextRenderer_OmitsAmountWhenNil(t *testing.T) {
	r := NewTextRenderer()
	doc := sampleDocument()
	doc.Content.AwardAmount = nil

	out, err := r.Render(context.Background(), doc)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(string(out), "Award amount:") {
		t.Errorf("expected no amount line for nil award amount")
	}
}

func TestTextRenderer_RequiresReference(t *testing.T) {
	r := NewTextRenderer()
	doc := sampleDocument()
	doc.ReferenceNumber = ""

	if _, err := r.Render(context.Background(), doc); err == nil {
		t.Fatalf("expected error for missing reference number")
	}
}
