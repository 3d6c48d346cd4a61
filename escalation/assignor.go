package escalation

import (
	"context"
	"fmt"
	"log"

	"awardflow/identity"
	"awardflow/notify"
)

// DefaultMinYears is the experience floor for taking escalations.
const DefaultMinYears = 10

// ReviewerDirectory lists qualified senior reviewers, ordered by
// completed-case count descending with id as the deterministic tie-breaker.
type ReviewerDirectory interface {
	ListSeniorReviewers(ctx context.Context, minYears int) ([]identity.User, error)
}

// Assignor routes a pending escalation to the most experienced available
// senior reviewer.
type Assignor struct {
	repo      Repository
	directory ReviewerDirectory
	notifier  notify.Notifier
	minYears  int
}

func NewAssignor(repo Repository, directory ReviewerDirectory, notifier notify.Notifier) *Assignor {
	return &Assignor{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		minYears:  DefaultMinYears,
	}
}

func (a *Assignor) WithMinYears(years int) *Assignor {
	a.minYears = years
	return a
}

// Assign selects a reviewer for the escalation and marks it ASSIGNED. Users
// in exclude (the escalating arbitrator, anyone already on the case) are
// skipped. When nobody qualifies the escalation stays PENDING with no
// assignee; a background sweep retries later. The assignee notification is
// best-effort and never rolls back the assignment.
func (a *Assignor) Assign(ctx context.Context, rec Record, exclude []string) (Record, error) {
	if rec.Status != StatusPending {
		return rec, fmt.Errorf("escalation: assign from status %s: %w", rec.Status, ErrBadStatus)
	}

	candidates, err := a.directory.ListSeniorReviewers(ctx, a.minYears)
	if err != nil {
		return rec, fmt.Errorf("escalation: list candidates: %w", err)
	}

	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	var reviewer *identity.User
	for i := range candidates {
		if !excluded[candidates[i].ID] {
			reviewer = &candidates[i]
			break
		}
	}
	if reviewer == nil {
		return rec, nil
	}

	assigned, err := a.repo.Assign(ctx, rec.ID, reviewer.ID)
	if err != nil {
		return rec, err
	}

	if a.notifier != nil {
		msg := notify.Message{
			UserID:   reviewer.ID,
			Template: "escalation_assigned",
			Subject:  "Award escalation assigned to you",
			Body:     fmt.Sprintf("Case %s was escalated (%s, urgency %s) and assigned to you for review.", rec.CaseID, rec.Reason, rec.Urgency),
			Metadata: map[string]any{
				"escalation_id": assigned.ID,
				"case_id":       rec.CaseID,
				"reason":        rec.Reason,
				"urgency":       rec.Urgency,
			},
		}
		if err := a.notifier.Send(ctx, msg); err != nil {
			log.Printf("escalation: notify assignee %s: %v", reviewer.ID, err)
		}
	}

	return assigned, nil
}
