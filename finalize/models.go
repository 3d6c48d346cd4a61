package finalize

import (
	"time"

	"awardflow/draft"
)

// Recipient names a notified party on an issued award.
type Recipient string

const (
	RecipientClaimant   Recipient = "claimant"
	RecipientRespondent Recipient = "respondent"
)

// Award is the final, binding, signed decision. Created exactly once per
// case; after creation only the per-party notification timestamps are ever
// written.
type Award struct {
	ID                   string
	CaseID               string
	ReferenceNumber      string
	Content              draft.Content
	SigningArbitratorID  string
	SignedAt             time.Time
	IssuedAt             time.Time
	SignatureValue       string
	SignatureAlgorithm   string
	CertFingerprint      string
	TimestampToken       []byte
	TimestampTime        *time.Time
	TimestampAuthority   *string
	DocumentURL          string
	DocumentHash         string
	ClaimantNotifiedAt   *time.Time
	RespondentNotifiedAt *time.Time
	CreatedAt            time.Time
}

// TimestampGranted reports whether the RFC 3161 step succeeded at issuance.
func (a Award) TimestampGranted() bool {
	return len(a.TimestampToken) > 0
}

// CanIssueResult is the precondition check outcome. Reason is empty when
// issuance is permitted.
type CanIssueResult struct {
	CanIssue bool   `json:"can_issue"`
	Reason   string `json:"reason,omitempty"`
}

// Result is returned to the caller after a successful finalization.
type Result struct {
	AwardID            string     `json:"award_id"`
	ReferenceNumber    string     `json:"reference_number"`
	DocumentURL        string     `json:"document_url"`
	DocumentHash       string     `json:"document_hash"`
	SignatureAlgorithm string     `json:"signature_algorithm"`
	CertFingerprint    string     `json:"certificate_fingerprint"`
	TimestampGranted   bool       `json:"timestamp_granted"`
	TimestampTime      *time.Time `json:"timestamp_time,omitempty"`
}
