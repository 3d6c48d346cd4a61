package main

import (
	"time"

	"awardflow/draft"
	"awardflow/escalation"
)

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type draftPayload struct {
	ID           string        `json:"id"`
	CaseID       string        `json:"case_id"`
	Content      draft.Content `json:"content"`
	Confidence   float64       `json:"confidence"`
	ModelUsed    string        `json:"model_used"`
	ReviewStatus *string       `json:"review_status,omitempty"`
	ReviewNotes  *string       `json:"review_notes,omitempty"`
	GeneratedAt  time.Time     `json:"generated_at"`
	ReviewedAt   *time.Time    `json:"reviewed_at,omitempty"`
}

func draftResponse(d draft.DraftAward) draftPayload {
	p := draftPayload{
		ID:          d.ID,
		CaseID:      d.CaseID,
		Content:     d.Content,
		Confidence:  d.Confidence,
		ModelUsed:   d.ModelUsed,
		ReviewNotes: d.ReviewNotes,
		GeneratedAt: d.GeneratedAt,
		ReviewedAt:  d.ReviewedAt,
	}
	if d.ReviewStatus != nil {
		status := string(*d.ReviewStatus)
		p.ReviewStatus = &status
	}
	return p
}

type revisionPayload struct {
	ID            string        `json:"id"`
	DraftAwardID  string        `json:"draft_award_id"`
	Version       int           `json:"version"`
	Content       draft.Content `json:"content"`
	ChangeType    string        `json:"change_type"`
	ChangeSummary string        `json:"change_summary"`
	ChangedFields []string      `json:"changed_fields"`
	AuthorID      *string       `json:"author_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

func revisionResponse(rev draft.Revision) revisionPayload {
	return revisionPayload{
		ID:            rev.ID,
		DraftAwardID:  rev.DraftAwardID,
		Version:       rev.Version,
		Content:       rev.Content,
		ChangeType:    string(rev.ChangeType),
		ChangeSummary: rev.ChangeSummary,
		ChangedFields: rev.ChangedFields,
		AuthorID:      rev.AuthorID,
		CreatedAt:     rev.CreatedAt,
	}
}

type escalationPayload struct {
	ID           string     `json:"id"`
	DraftAwardID string     `json:"draft_award_id"`
	CaseID       string     `json:"case_id"`
	Reason       string     `json:"reason"`
	Detail       *string    `json:"detail,omitempty"`
	Urgency      string     `json:"urgency"`
	EscalatedBy  string     `json:"escalated_by"`
	AssignedTo   *string    `json:"assigned_to,omitempty"`
	AssignedAt   *time.Time `json:"assigned_at,omitempty"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

func escalationResponse(rec escalation.Record) escalationPayload {
	return escalationPayload{
		ID:           rec.ID,
		DraftAwardID: rec.DraftAwardID,
		CaseID:       rec.CaseID,
		Reason:       string(rec.Reason),
		Detail:       rec.Detail,
		Urgency:      string(rec.Urgency),
		EscalatedBy:  rec.EscalatedBy,
		AssignedTo:   rec.AssignedTo,
		AssignedAt:   rec.AssignedAt,
		Status:       string(rec.Status),
		CreatedAt:    rec.CreatedAt,
	}
}
