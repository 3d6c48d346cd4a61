package draft

import "time"

// ReviewStatus is the arbitrator's verdict on a draft award. A draft with no
// verdict yet carries a nil status.
type ReviewStatus string

const (
	StatusApprove  ReviewStatus = "APPROVE"
	StatusModify   ReviewStatus = "MODIFY"
	StatusReject   ReviewStatus = "REJECT"
	StatusEscalate ReviewStatus = "ESCALATE"
)

// PrevailingParty identifies who the decision favours.
type PrevailingParty string

const (
	PartyClaimant   PrevailingParty = "CLAIMANT"
	PartyRespondent PrevailingParty = "RESPONDENT"
	PartySplit      PrevailingParty = "SPLIT"
)

// FindingOfFact is a single factual determination with the evidence it rests on.
type FindingOfFact struct {
	Number       int      `json:"number"`
	Statement    string   `json:"statement"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// ConclusionOfLaw applies a legal basis to the established facts.
type ConclusionOfLaw struct {
	Number      int    `json:"number"`
	LegalBasis  string `json:"legal_basis"`
	Application string `json:"application"`
}

// Content is the full decision payload of a draft award. Revisions snapshot
// this struct whole; the finalizer copies it into the binding award.
type Content struct {
	Findings        []FindingOfFact   `json:"findings_of_fact"`
	Conclusions     []ConclusionOfLaw `json:"conclusions_of_law"`
	Decision        string            `json:"decision"`
	AwardAmount     *float64          `json:"award_amount,omitempty"`
	PrevailingParty PrevailingParty   `json:"prevailing_party"`
	Reasoning       string            `json:"reasoning"`
}

// DraftAward is the mutable, pre-binding decision for one case. Exactly one
// exists per case.
type DraftAward struct {
	ID           string
	CaseID       string
	Content      Content
	Confidence   float64
	ModelUsed    string
	ReviewStatus *ReviewStatus
	ReviewNotes  *string
	GeneratedAt  time.Time
	ReviewedAt   *time.Time
}

// ChangeType labels why a revision snapshot was taken.
type ChangeType string

const (
	ChangeInitial        ChangeType = "INITIAL"
	ChangeArbitratorEdit ChangeType = "ARBITRATOR_EDIT"
)

// Revision is an immutable snapshot of a draft award at a given version.
// Versions start at 1 and increase without gaps; rows are never updated or
// deleted.
type Revision struct {
	ID            string
	DraftAwardID  string
	Version       int
	Content       Content
	ChangeType    ChangeType
	ChangeSummary string
	ChangedFields []string
	AuthorID      *string
	CreatedAt     time.Time
}

// FieldChanges is the partial update accepted by Modify. Nil pointers and nil
// slices mean "leave unchanged"; clearing the award amount is not a modify
// operation (it would require a reject + regeneration).
type FieldChanges struct {
	Findings        []FindingOfFact
	Conclusions     []ConclusionOfLaw
	Decision        *string
	AwardAmount     *float64
	PrevailingParty *PrevailingParty
	Reasoning       *string
}

// RejectFeedback is the structured feedback an arbitrator supplies when
// sending a draft back for regeneration.
type RejectFeedback struct {
	Category            FeedbackCategory
	Severity            FeedbackSeverity
	Description         string
	AffectedSections    []string
	SuggestedCorrection string
}

type FeedbackCategory string

const (
	FeedbackLegalError       FeedbackCategory = "LEGAL_ERROR"
	FeedbackFactualError     FeedbackCategory = "FACTUAL_ERROR"
	FeedbackProceduralError  FeedbackCategory = "PROCEDURAL_ERROR"
	FeedbackCalculationError FeedbackCategory = "CALCULATION_ERROR"
	FeedbackOtherError       FeedbackCategory = "OTHER_ERROR"
)

type FeedbackSeverity string

const (
	SeverityMinor    FeedbackSeverity = "MINOR"
	SeverityModerate FeedbackSeverity = "MODERATE"
	SeverityMajor    FeedbackSeverity = "MAJOR"
)

// ReviewContext identifies who performed a review action and from where, for
// the audit chain.
type ReviewContext struct {
	ArbitratorID string
	IPAddress    string
	UserAgent    string
}
