package escalation

import "time"

// Reason categorizes why a draft award was escalated.
type Reason string

const (
	ReasonAIConfidenceLow   Reason = "AI_CONFIDENCE_LOW"
	ReasonComplexLegalIssue Reason = "COMPLEX_LEGAL_ISSUE"
	ReasonHighValue         Reason = "HIGH_VALUE"
	ReasonProceduralConcern Reason = "PROCEDURAL_CONCERN"
	ReasonPartyConduct      Reason = "PARTY_CONDUCT"
	ReasonOther             Reason = "OTHER"
)

type Urgency string

const (
	UrgencyLow      Urgency = "LOW"
	UrgencyNormal   Urgency = "NORMAL"
	UrgencyHigh     Urgency = "HIGH"
	UrgencyCritical Urgency = "CRITICAL"
)

// Status tracks an escalation's lifecycle. PENDING and ASSIGNED are the
// active states; at most one active escalation exists per draft award.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAssigned Status = "ASSIGNED"
	StatusResolved Status = "RESOLVED"
	StatusReturned Status = "RETURNED"
)

// Record mirrors the award_escalations table. One row per draft award: a
// re-escalation after RESOLVED/RETURNED reuses the row (upsert semantics).
type Record struct {
	ID           string
	DraftAwardID string
	CaseID       string
	Reason       Reason
	Detail       *string
	Urgency      Urgency
	EscalatedBy  string
	AssignedTo   *string
	AssignedAt   *time.Time
	Status       Status
	ResolvedAt   *time.Time
	Resolution   *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Active reports whether the escalation is in a non-terminal state.
func (r Record) Active() bool {
	return r.Status == StatusPending || r.Status == StatusAssigned
}
