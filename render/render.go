package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"awardflow/draft"
)

// AwardDocument is the structured content handed to a renderer.
type AwardDocument struct {
	ReferenceNumber string
	CaseID          string
	Content         draft.Content
	ArbitratorName  string
	IssuedAt        time.Time
}

// Renderer turns award content into the bytes that get signed and stored.
// The production deployment plugs a PDF renderer in here; the layout itself
// is out of this subsystem's hands.
type Renderer interface {
	Render(ctx context.Context, doc AwardDocument) ([]byte, error)
}

// TextRenderer produces a deterministic plain-text award document. Given the
// same input it emits identical bytes, so document hashes are reproducible.
type TextRenderer struct{}

func NewTextRenderer() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Render(_ context.Context, doc AwardDocument) ([]byte, error) {
	if doc.ReferenceNumber == "" || doc.CaseID == "" {
		return nil, fmt.Errorf("render: reference number and case id required")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FINAL ARBITRATION AWARD\n")
	fmt.Fprintf(&b, "Reference: %s\n", doc.ReferenceNumber)
	fmt.Fprintf(&b, "Case: %s\n", doc.CaseID)
	fmt.Fprintf(&b, "Issued: %s\n", doc.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Arbitrator: %s\n\n", doc.ArbitratorName)

	b.WriteString("FINDINGS OF FACT\n")
	for _, f := range doc.Content.Findings {
		fmt.Fprintf(&b, "%d. %s\n", f.Number, f.Statement)
		if len(f.EvidenceRefs) > 0 {
			fmt.Fprintf(&b, "   Evidence: %s\n", strings.Join(f.EvidenceRefs, ", "))
		}
	}

	b.WriteString("\nCONCLUSIONS OF LAW\n")
	for _, c := range doc.Content.Conclusions {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", c.Number, c.LegalBasis, c.Application)
	}

	b.WriteString("\nDECISION\n")
	b.WriteString(doc.Content.Decision)
	b.WriteString("\n")

	fmt.Fprintf(&b, "\nPrevailing party: %s\n", doc.Content.PrevailingParty)
	if doc.Content.AwardAmount != nil {
		fmt.Fprintf(&b, "Award amount: %.2f\n", *doc.Content.AwardAmount)
	}

	b.WriteString("\nREASONING\n")
	b.WriteString(doc.Content.Reasoning)
	b.WriteString("\n")

	return []byte(b.String()), nil
}
