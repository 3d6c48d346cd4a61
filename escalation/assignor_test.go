package escalation

import (
	"context"
	"errors"
	"testing"

	"awardflow/identity"
	"awardflow/notify"

	"github.com/jackc/pgx/v5"
)

func seniorReviewer(id string, years, completed int) identity.User {
	return identity.User{
		ID:              id,
		FullName:        "Reviewer " + id,
		Role:            identity.RoleSeniorReviewer,
		Active:          true,
		YearsExperience: years,
		CompletedCases:  completed,
	}
}

func pendingRecord() Record {
	return Record{ID: "esc-1", DraftAwardID: "draft-1", CaseID: "case-1",
		Reason: ReasonComplexLegalIssue, Urgency: UrgencyHigh, Status: StatusPending}
}

func TestAssign_PicksFirstCandidate(t *testing.T) {
	repo := &fakeEscalationRepo{}
	dir := &fakeDirectory{users: []identity.User{
		seniorReviewer("rev-a", 15, 120),
		seniorReviewer("rev-b", 12, 80),
	}}
	notifier := &captureNotifier{}
	assignor := NewAssignor(repo, dir, notifier)

	assigned, err := assignor.Assign(context.Background(), pendingRecord(), nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if assigned.Status != StatusAssigned {
		t.Fatalf("expected ASSIGNED, got %s", assigned.Status)
	}
	if repo.assignedTo != "rev-a" {
		t.Errorf("expected most experienced candidate, got %s", repo.assignedTo)
	}
	if dir.minYears != DefaultMinYears {
		t.Errorf("expected default experience floor %d, got %d", DefaultMinYears, dir.minYears)
	}
	if len(notifier.messages) != 1 || notifier.messages[0].UserID != "rev-a" {
		t.Errorf("expected assignee notified, got %v", notifier.messages)
	}
}

func TestAssign_SkipsExcluded(t *testing.T) {
	repo := &fakeEscalationRepo{}
	dir := &fakeDirectory{users: []identity.User{
		seniorReviewer("rev-a", 15, 120),
		seniorReviewer("rev-b", 12, 80),
	}}
	assignor := NewAssignor(repo, dir, nil)

	if _, err := assignor.Assign(context.Background(), pendingRecord(), []string{"rev-a"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if repo.assignedTo != "rev-b" {
		t.Errorf("expected excluded reviewer skipped, got %s", repo.assignedTo)
	}
}

func TestAssign_NoCandidatesStaysPending(t *testing.T) {
	repo := &fakeEscalationRepo{}
	dir := &fakeDirectory{}
	assignor := NewAssignor(repo, dir, nil)

	rec, err := assignor.Assign(context.Background(), pendingRecord(), nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if rec.Status != StatusPending {
		t.Errorf("expected PENDING retained, got %s", rec.Status)
	}
	if repo.assignedTo != "" {
		t.Errorf("expected no assignment, got %s", repo.assignedTo)
	}
}

func TestAssign_RejectsNonPending(t *testing.T) {
	assignor := NewAssignor(&fakeEscalationRepo{}, &fakeDirectory{}, nil)

	rec := pendingRecord()
	rec.Status = StatusResolved
	if _, err := assignor.Assign(context.Background(), rec, nil); !errors.Is(err, ErrBadStatus) {
		t.Fatalf("expected ErrBadStatus, got %v", err)
	}
}

func TestAssign_NotifyFailureDoesNotFail(t *testing.T) {
	repo := &fakeEscalationRepo{}
	dir := &fakeDirectory{users: []identity.User{seniorReviewer("rev-a", 15, 120)}}
	notifier := &captureNotifier{err: errors.New("broker down")}
	assignor := NewAssignor(repo, dir, notifier)

	assigned, err := assignor.Assign(context.Background(), pendingRecord(), nil)
	if err != nil {
		t.Fatalf("expected nil error despite notify failure, got %v", err)
	}
	if assigned.Status != StatusAssigned {
		t.Errorf("expected assignment to stand, got %s", assigned.Status)
	}
}

func TestAssign_CustomExperienceFloor(t *testing.T) {
	repo := &fakeEscalationRepo{}
	dir := &fakeDirectory{users: []identity.User{seniorReviewer("rev-a", 20, 10)}}
	assignor := NewAssignor(repo, dir, nil).WithMinYears(18)

	if _, err := assignor.Assign(context.Background(), pendingRecord(), nil); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if dir.minYears != 18 {
		t.Errorf("expected custom floor passed through, got %d", dir.minYears)
	}
}

type fakeEscalationRepo struct {
	assignedTo string
	assignErr  error
}

func (f *fakeEscalationRepo) UpsertTx(ctx context.Context, tx pgx.Tx, params UpsertParams) (Record, error) {
	panic("not used")
}

func (f *fakeEscalationRepo) Assign(ctx context.Context, escalationID, reviewerID string) (Record, error) {
	if f.assignErr != nil {
		return Record{}, f.assignErr
	}
	f.assignedTo = reviewerID
	return Record{ID: escalationID, Status: StatusAssigned, AssignedTo: &reviewerID}, nil
}

func (f *fakeEscalationRepo) Resolve(ctx context.Context, escalationID string, status Status, resolution string) (Record, error) {
	panic("not used")
}

func (f *fakeEscalationRepo) GetByDraft(ctx context.Context, draftAwardID string) (Record, error) {
	panic("not used")
}

type fakeDirectory struct {
	users    []identity.User
	minYears int
}

func (f *fakeDirectory) ListSeniorReviewers(ctx context.Context, minYears int) ([]identity.User, error) {
	f.minYears = minYears
	return f.users, nil
}

type captureNotifier struct {
	messages []notify.Message
	err      error
}

func (c *captureNotifier) Send(ctx context.Context, msg notify.Message) error {
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, msg)
	return nil
}
