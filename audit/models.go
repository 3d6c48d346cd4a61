package audit

import "time"

// Action is the closed set of recordable actions. New values may be appended
// but existing ones must never be renamed: stored entries hash over them.
type Action string

const (
	ActionCaseFiled         Action = "CASE_FILED"
	ActionCaseStatusChanged Action = "CASE_STATUS_CHANGED"
	ActionCaseClosed        Action = "CASE_CLOSED"

	ActionEvidenceUploaded   Action = "EVIDENCE_UPLOADED"
	ActionEvidenceClassified Action = "EVIDENCE_CLASSIFIED"

	ActionSettlementProposed Action = "SETTLEMENT_PROPOSED"
	ActionSettlementAccepted Action = "SETTLEMENT_ACCEPTED"

	ActionDraftGenerated        Action = "DRAFT_GENERATED"
	ActionRegenerationRequested Action = "DRAFT_REGENERATION_REQUESTED"

	ActionDraftApproved      Action = "DRAFT_APPROVED"
	ActionDraftModified      Action = "DRAFT_MODIFIED"
	ActionDraftRejected      Action = "DRAFT_REJECTED"
	ActionDraftEscalated     Action = "DRAFT_ESCALATED"
	ActionEscalationAssigned Action = "ESCALATION_ASSIGNED"
	ActionEscalationResolved Action = "ESCALATION_RESOLVED"

	ActionAwardSigned   Action = "AWARD_SIGNED"
	ActionAwardIssued   Action = "AWARD_ISSUED"
	ActionPartyNotified Action = "PARTY_NOTIFIED"

	ActionPaymentInitiated Action = "PAYMENT_INITIATED"
	ActionPaymentCompleted Action = "PAYMENT_COMPLETED"

	ActionUserRegistered Action = "USER_REGISTERED"
	ActionUserLogin      Action = "USER_LOGIN"
)

// Category groups actions for timeline summarization.
type Category string

const (
	CategoryCase        Category = "case_lifecycle"
	CategoryEvidence    Category = "evidence"
	CategoryAgreement   Category = "agreement"
	CategoryAnalysis    Category = "analysis"
	CategoryArbitration Category = "arbitration"
	CategoryAward       Category = "award"
	CategoryPayment     Category = "payment"
	CategoryUser        Category = "user"
)

// Categorize maps an action to its timeline category. Unknown actions fall
// into the case lifecycle bucket rather than being dropped.
func Categorize(a Action) Category {
	switch a {
	case ActionEvidenceUploaded, ActionEvidenceClassified:
		return CategoryEvidence
	case ActionSettlementProposed, ActionSettlementAccepted:
		return CategoryAgreement
	case ActionDraftGenerated, ActionRegenerationRequested:
		return CategoryAnalysis
	case ActionDraftApproved, ActionDraftModified, ActionDraftRejected,
		ActionDraftEscalated, ActionEscalationAssigned, ActionEscalationResolved:
		return CategoryArbitration
	case ActionAwardSigned, ActionAwardIssued, ActionPartyNotified:
		return CategoryAward
	case ActionPaymentInitiated, ActionPaymentCompleted:
		return CategoryPayment
	case ActionUserRegistered, ActionUserLogin:
		return CategoryUser
	default:
		return CategoryCase
	}
}

// Entry is one link of the global hash chain. EntryHash covers the logical
// fields plus PrevHash, so no stored entry can change without breaking every
// entry after it.
type Entry struct {
	ID        int64
	Action    Action
	ActorID   *string
	CaseID    *string
	Metadata  map[string]any
	IPAddress *string
	UserAgent *string
	EntryHash string
	PrevHash  string
	CreatedAt time.Time
}

// AppendParams carries the caller-supplied fields of a new entry.
type AppendParams struct {
	Action    Action
	ActorID   *string
	CaseID    *string
	Metadata  map[string]any
	IPAddress *string
	UserAgent *string
}
