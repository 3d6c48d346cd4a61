package casefile

import "time"

// Status represents the lifecycle of a small-claims case.
type Status string

const (
	StatusFiled          Status = "filed"
	StatusEvidence       Status = "evidence"
	StatusAnalysis       Status = "analysis"
	StatusDecisionReview Status = "decision_review"
	StatusDecided        Status = "decided"
	StatusClosed         Status = "closed"
)

// Record mirrors the cases table.
type Record struct {
	ID           string
	ClaimantID   string
	RespondentID string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DecidedAt    *time.Time
}
