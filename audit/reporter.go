package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// NameResolver maps actor IDs to display names for timeline rendering.
type NameResolver interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// TimelineEvent is one reconstructed step of a case's history.
type TimelineEvent struct {
	EntryID   int64          `json:"entry_id"`
	Action    Action         `json:"action"`
	Category  Category       `json:"category"`
	ActorID   *string        `json:"actor_id,omitempty"`
	ActorName string         `json:"actor_name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Timeline is the per-case report: events in insertion order plus the
// integrity status of the entries backing them.
type Timeline struct {
	CaseID     string            `json:"case_id"`
	Events     []TimelineEvent   `json:"events"`
	Categories map[Category]int  `json:"categories"`
	Integrity  TimelineIntegrity `json:"integrity"`
}

// TimelineIntegrity carries the verification result alongside the timeline.
// A broken chain is surfaced, never repaired.
type TimelineIntegrity struct {
	Verified     bool    `json:"verified"`
	InvalidCount int     `json:"invalid_count"`
	InvalidIDs   []int64 `json:"invalid_ids,omitempty"`
}

// ExportFormat selects the rendering of an exported timeline.
type ExportFormat string

const (
	FormatJSON  ExportFormat = "json"
	FormatCSV   ExportFormat = "csv"
	FormatPrint ExportFormat = "print"
)

// Reporter reconstructs case timelines from the audit chain. It is a
// read-only consumer: it never writes entries.
type Reporter struct {
	store Store
	names NameResolver
}

func NewReporter(store Store, names NameResolver) *Reporter {
	return &Reporter{store: store, names: names}
}

// CaseTimeline filters the global chain to one case, joins actor display
// names, and classifies each action. Integrity is checked over the full
// global chain because per-case hashes link across cases.
func (r *Reporter) CaseTimeline(ctx context.Context, caseID string) (Timeline, error) {
	if caseID == "" {
		return Timeline{}, fmt.Errorf("audit: case id required")
	}

	all, err := r.store.ListAll(ctx)
	if err != nil {
		return Timeline{}, err
	}
	report, err := Verify(all)
	if err != nil {
		return Timeline{}, err
	}

	entries := make([]Entry, 0, 16)
	actorIDs := make([]string, 0, 8)
	seen := make(map[string]bool)
	for _, e := range all {
		if e.CaseID == nil || *e.CaseID != caseID {
			continue
		}
		entries = append(entries, e)
		if e.ActorID != nil && !seen[*e.ActorID] {
			seen[*e.ActorID] = true
			actorIDs = append(actorIDs, *e.ActorID)
		}
	}

	names := map[string]string{}
	if r.names != nil && len(actorIDs) > 0 {
		names, err = r.names.DisplayNames(ctx, actorIDs)
		if err != nil {
			return Timeline{}, err
		}
	}

	timeline := Timeline{
		CaseID:     caseID,
		Events:     make([]TimelineEvent, 0, len(entries)),
		Categories: make(map[Category]int),
		Integrity: TimelineIntegrity{
			Verified:     report.IsValid(),
			InvalidCount: report.InvalidCount,
			InvalidIDs:   report.InvalidIDs,
		},
	}
	for _, e := range entries {
		event := TimelineEvent{
			EntryID:   e.ID,
			Action:    e.Action,
			Category:  Categorize(e.Action),
			ActorID:   e.ActorID,
			Metadata:  e.Metadata,
			Timestamp: e.CreatedAt,
		}
		if e.ActorID != nil {
			event.ActorName = names[*e.ActorID]
		}
		timeline.Events = append(timeline.Events, event)
		timeline.Categories[event.Category]++
	}
	return timeline, nil
}

// VerifyChain runs a full-chain integrity check.
func (r *Reporter) VerifyChain(ctx context.Context) (VerifyReport, error) {
	all, err := r.store.ListAll(ctx)
	if err != nil {
		return VerifyReport{}, err
	}
	return Verify(all)
}

// PrintSection is a print-ready grouping of a timeline by category.
type PrintSection struct {
	Category Category        `json:"category"`
	Events   []TimelineEvent `json:"events"`
}

// PrintDocument is the print-ready export structure.
type PrintDocument struct {
	CaseID    string            `json:"case_id"`
	Generated time.Time         `json:"generated_at"`
	Sections  []PrintSection    `json:"sections"`
	Integrity TimelineIntegrity `json:"integrity"`
}

// Export renders a case timeline in the requested format. CSV is the
// delimited-text form; print groups events by category.
func (r *Reporter) Export(ctx context.Context, caseID string, format ExportFormat) ([]byte, error) {
	timeline, err := r.CaseTimeline(ctx, caseID)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON, "":
		return json.MarshalIndent(timeline, "", "  ")
	case FormatCSV:
		return exportCSV(timeline)
	case FormatPrint:
		doc := buildPrintDocument(timeline)
		return json.MarshalIndent(doc, "", "  ")
	default:
		return nil, fmt.Errorf("audit: unsupported export format %q", format)
	}
}

func exportCSV(timeline Timeline) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"entry_id", "timestamp", "action", "category", "actor_id", "actor_name", "metadata"}); err != nil {
		return nil, fmt.Errorf("audit: write csv header: %w", err)
	}
	for _, e := range timeline.Events {
		actorID := ""
		if e.ActorID != nil {
			actorID = *e.ActorID
		}
		metadata := ""
		if len(e.Metadata) > 0 {
			b, err := json.Marshal(e.Metadata)
			if err != nil {
				return nil, fmt.Errorf("audit: marshal csv metadata: %w", err)
			}
			metadata = string(b)
		}
		record := []string{
			strconv.FormatInt(e.EntryID, 10),
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Action),
			string(e.Category),
			actorID,
			e.ActorName,
			metadata,
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("audit: write csv record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("audit: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func buildPrintDocument(timeline Timeline) PrintDocument {
	byCategory := make(map[Category][]TimelineEvent)
	for _, e := range timeline.Events {
		byCategory[e.Category] = append(byCategory[e.Category], e)
	}

	categories := make([]Category, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

	doc := PrintDocument{
		CaseID:    timeline.CaseID,
		Generated: time.Now().UTC(),
		Integrity: timeline.Integrity,
	}
	for _, c := range categories {
		doc.Sections = append(doc.Sections, PrintSection{Category: c, Events: byCategory[c]})
	}
	return doc
}
