package finalize

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"awardflow/audit"
	"awardflow/casefile"
	"awardflow/draft"
	"awardflow/identity"
	"awardflow/notify"
	"awardflow/render"
	"awardflow/signing"
	"awardflow/storage"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotIssuable signals a failed precondition; the wrapped message
	// carries the human-readable reason.
	ErrNotIssuable = errors.New("finalize: award cannot be issued")
)

// allowedCaseStatuses are the external case states finalization accepts:
// the pre-decision review state, or already-decided for re-issuance
// scenarios.
var allowedCaseStatuses = map[casefile.Status]bool{
	casefile.StatusDecisionReview: true,
	casefile.StatusDecided:        true,
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DraftReader reads the approved draft whose content becomes the award.
type DraftReader interface {
	GetByCase(ctx context.Context, caseID string) (draft.DraftAward, error)
}

// CaseStore reads case state and advances it after issuance.
type CaseStore interface {
	Get(ctx context.Context, caseID string) (casefile.Record, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, caseID string, status casefile.Status) error
}

// UserReader resolves the signing arbitrator for document rendering.
type UserReader interface {
	GetUserByID(ctx context.Context, userID string) (identity.User, error)
}

// AuditRecorder appends the signing and issuance entries to the chain.
type AuditRecorder interface {
	Append(ctx context.Context, params audit.AppendParams) (audit.Entry, error)
}

// Service orchestrates conversion of an approved draft into the binding
// award: reference allocation, rendering, signing, timestamping, storage,
// the single-shot insert, case advancement, party notification, and audit.
type Service struct {
	pool     TxBeginner
	awards   AwardRepository
	drafts   DraftReader
	cases    CaseStore
	users    UserReader
	creds    signing.CredentialsProvider
	tsa      signing.Timestamper
	renderer render.Renderer
	store    storage.Store
	notifier notify.Notifier
	chain    AuditRecorder
	now      func() time.Time
}

func NewService(pool TxBeginner, awards AwardRepository, drafts DraftReader, cases CaseStore,
	users UserReader, creds signing.CredentialsProvider, tsa signing.Timestamper,
	renderer render.Renderer, store storage.Store, notifier notify.Notifier, chain AuditRecorder) *Service {
	return &Service{
		pool:     pool,
		awards:   awards,
		drafts:   drafts,
		cases:    cases,
		users:    users,
		creds:    creds,
		tsa:      tsa,
		renderer: renderer,
		store:    store,
		notifier: notifier,
		chain:    chain,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CanIssue evaluates the issuance preconditions in order and returns the
// first failing reason. Callers use it for UI gating; Finalize re-checks
// everything itself to close the race window between check and act.
func (s *Service) CanIssue(ctx context.Context, caseID string) (CanIssueResult, error) {
	exists, err := s.awards.ExistsForCase(ctx, caseID)
	if err != nil {
		return CanIssueResult{}, err
	}
	if exists {
		return CanIssueResult{Reason: "An award has already been issued for this case"}, nil
	}

	d, err := s.drafts.GetByCase(ctx, caseID)
	if err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			return CanIssueResult{Reason: "No draft award exists for this case"}, nil
		}
		return CanIssueResult{}, err
	}

	if d.ReviewStatus == nil || *d.ReviewStatus != draft.StatusApprove {
		status := "NONE"
		if d.ReviewStatus != nil {
			status = string(*d.ReviewStatus)
		}
		return CanIssueResult{Reason: fmt.Sprintf("Draft award status is %s, must be APPROVE", status)}, nil
	}

	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		if errors.Is(err, casefile.ErrNotFound) {
			return CanIssueResult{Reason: "Case does not exist"}, nil
		}
		return CanIssueResult{}, err
	}
	if !allowedCaseStatuses[c.Status] {
		return CanIssueResult{Reason: fmt.Sprintf("Case status is %s, must be %s or %s",
			c.Status, casefile.StatusDecisionReview, casefile.StatusDecided)}, nil
	}

	return CanIssueResult{CanIssue: true}, nil
}

// Finalize runs the issuance sequence. Steps through signing and storage
// abort on failure with no partial award persisted; the award insert is the
// commit point; everything after it is log-and-continue.
func (s *Service) Finalize(ctx context.Context, caseID, arbitratorID, ipAddress, userAgent string) (Result, error) {
	check, err := s.CanIssue(ctx, caseID)
	if err != nil {
		return Result{}, err
	}
	if !check.CanIssue {
		return Result{}, fmt.Errorf("%w: %s", ErrNotIssuable, check.Reason)
	}

	d, err := s.drafts.GetByCase(ctx, caseID)
	if err != nil {
		return Result{}, err
	}
	c, err := s.cases.Get(ctx, caseID)
	if err != nil {
		return Result{}, err
	}
	arbitrator, err := s.users.GetUserByID(ctx, arbitratorID)
	if err != nil {
		return Result{}, fmt.Errorf("finalize: resolve arbitrator: %w", err)
	}

	issuedAt := s.now().UTC()

	// Step 1: reference number, scoped to the current UTC day. Two same-day
	// issuances racing here may allocate the same sequence for different
	// cases; the case_id uniqueness constraint is what prevents duplicate
	// awards, not this counter.
	issuedToday, err := s.awards.CountIssuedOn(ctx, issuedAt)
	if err != nil {
		return Result{}, err
	}
	refNumber := FormatReferenceNumber(issuedAt, issuedToday+1)

	// Step 2: render.
	document, err := s.renderer.Render(ctx, render.AwardDocument{
		ReferenceNumber: refNumber,
		CaseID:          caseID,
		Content:         d.Content,
		ArbitratorName:  arbitrator.FullName,
		IssuedAt:        issuedAt,
	})
	if err != nil {
		return Result{}, fmt.Errorf("finalize: render document: %w", err)
	}

	// Step 3: signature plus best-effort RFC 3161 timestamp.
	creds, err := s.creds.CredentialsFor(ctx, arbitratorID)
	if err != nil {
		return Result{}, fmt.Errorf("finalize: obtain signing credentials: %w", err)
	}
	signature, err := signing.Sign(creds, document)
	if err != nil {
		return Result{}, fmt.Errorf("finalize: sign document: %w", err)
	}
	signedAt := s.now().UTC()

	var (
		tsToken     []byte
		tsTime      *time.Time
		tsAuthority *string
	)
	if s.tsa != nil {
		digest := sha256.Sum256(document)
		ts, err := s.tsa.Timestamp(ctx, digest[:])
		if err != nil {
			log.Printf("finalize: timestamp for case %s not granted: %v", caseID, err)
		} else {
			tsToken = ts.Token
			t := ts.Time
			tsTime = &t
			authority := ts.Authority
			tsAuthority = &authority
		}
	}

	// Step 4: durable storage.
	stored, err := s.store.Put(ctx, storage.PutParams{
		Folder:      "awards",
		CaseID:      caseID,
		Filename:    refNumber + ".txt",
		ContentType: "text/plain",
		Body:        document,
	})
	if err != nil {
		return Result{}, fmt.Errorf("finalize: store document: %w", err)
	}

	// Step 5: the commit point. One insert carries the content copy and all
	// signature/timestamp/document metadata; a duplicate-case race loses
	// here with ErrAlreadyIssued.
	award, err := s.awards.Insert(ctx, Award{
		CaseID:              caseID,
		ReferenceNumber:     refNumber,
		Content:             d.Content,
		SigningArbitratorID: arbitratorID,
		SignedAt:            signedAt,
		IssuedAt:            issuedAt,
		SignatureValue:      signature.Value,
		SignatureAlgorithm:  signature.Algorithm,
		CertFingerprint:     signature.CertFingerprint,
		TimestampToken:      tsToken,
		TimestampTime:       tsTime,
		TimestampAuthority:  tsAuthority,
		DocumentURL:         stored.URL,
		DocumentHash:        stored.SHA256,
	})
	if err != nil {
		return Result{}, err
	}

	// Step 6: advance the case. The award is already binding; a failure
	// here is repaired out-of-band, not rolled back.
	if err := s.advanceCase(ctx, caseID); err != nil {
		log.Printf("finalize: advance case %s to decided: %v", caseID, err)
	}

	// Step 7: notify the parties independently.
	notified := s.notifyParties(ctx, award, c)

	// Step 8: audit entries for the signing and issuance acts.
	actor := arbitratorID
	ip := optional(ipAddress)
	ua := optional(userAgent)
	if _, err := s.chain.Append(ctx, audit.AppendParams{
		Action:  audit.ActionAwardSigned,
		ActorID: &actor,
		CaseID:  &caseID,
		Metadata: map[string]any{
			"award_id":         award.ID,
			"reference_number": award.ReferenceNumber,
			"algorithm":        award.SignatureAlgorithm,
			"cert_fingerprint": award.CertFingerprint,
		},
		IPAddress: ip,
		UserAgent: ua,
	}); err != nil {
		log.Printf("finalize: audit signing for award %s: %v", award.ID, err)
	}
	if _, err := s.chain.Append(ctx, audit.AppendParams{
		Action:  audit.ActionAwardIssued,
		ActorID: &actor,
		CaseID:  &caseID,
		Metadata: map[string]any{
			"award_id":          award.ID,
			"reference_number":  award.ReferenceNumber,
			"timestamp_granted": award.TimestampGranted(),
			"notified_parties":  notified,
		},
		IPAddress: ip,
		UserAgent: ua,
	}); err != nil {
		log.Printf("finalize: audit issuance for award %s: %v", award.ID, err)
	}

	return Result{
		AwardID:            award.ID,
		ReferenceNumber:    award.ReferenceNumber,
		DocumentURL:        award.DocumentURL,
		DocumentHash:       award.DocumentHash,
		SignatureAlgorithm: award.SignatureAlgorithm,
		CertFingerprint:    award.CertFingerprint,
		TimestampGranted:   award.TimestampGranted(),
		TimestampTime:      award.TimestampTime,
	}, nil
}

func (s *Service) advanceCase(ctx context.Context, caseID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := s.cases.UpdateStatusTx(ctx, tx, caseID, casefile.StatusDecided); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// notifyParties delivers the issuance notice to claimant and respondent
// concurrently. Each confirmed delivery stamps its own notified-at field; a
// failure for one party neither blocks the other nor invalidates the award.
func (s *Service) notifyParties(ctx context.Context, award Award, c casefile.Record) []Recipient {
	if s.notifier == nil {
		return nil
	}

	targets := []struct {
		recipient Recipient
		userID    string
	}{
		{RecipientClaimant, c.ClaimantID},
		{RecipientRespondent, c.RespondentID},
	}

	var (
		mu       sync.Mutex
		notified []Recipient
	)
	var g errgroup.Group
	for _, target := range targets {
		g.Go(func() error {
			msg := notify.Message{
				UserID:   target.userID,
				Template: "award_issued",
				Subject:  "Final arbitration award issued",
				Body:     fmt.Sprintf("The final award %s for case %s has been issued.", award.ReferenceNumber, award.CaseID),
				Metadata: map[string]any{
					"award_id":         award.ID,
					"reference_number": award.ReferenceNumber,
					"document_url":     award.DocumentURL,
				},
			}
			if err := s.notifier.Send(ctx, msg); err != nil {
				log.Printf("finalize: notify %s for award %s: %v", target.recipient, award.ID, err)
				return nil
			}
			if err := s.awards.MarkPartyNotified(ctx, award.ID, target.recipient, s.now().UTC()); err != nil {
				log.Printf("finalize: stamp %s notification for award %s: %v", target.recipient, award.ID, err)
				return nil
			}
			mu.Lock()
			notified = append(notified, target.recipient)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return notified
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
