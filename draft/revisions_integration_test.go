package draft

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"awardflow/test/infra"
)

// Requires a reachable PostgreSQL; set DATABASE_URL to run.
func revisionTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, true)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	t.Cleanup(func() {
		pool.Close()
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	})
	return pool
}

func seedDraftRow(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()

	var userID string
	email := fmt.Sprintf("it-%d@example.com", rand.Int63())
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, password_hash, role)
		VALUES ($1, 'Integration User', 'x', 'arbitrator') RETURNING id`, email).Scan(&userID); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	var caseID string
	if err := pool.QueryRow(ctx, `INSERT INTO cases (claimant_id, respondent_id, status)
		VALUES ($1, $1, 'analysis'::case_status) RETURNING id`, userID).Scan(&caseID); err != nil {
		t.Fatalf("seed case: %v", err)
	}

	var draftID string
	if err := pool.QueryRow(ctx, `INSERT INTO draft_awards
		(case_id, findings, conclusions, decision, prevailing_party, reasoning, confidence, model_used)
		VALUES ($1, '[]'::jsonb, '[]'::jsonb, 'Initial decision', 'CLAIMANT', 'Initial reasoning', 0.9, 'it-model')
		RETURNING id`, caseID).Scan(&draftID); err != nil {
		t.Fatalf("seed draft: %v", err)
	}
	return draftID
}

func TestRevisionStore_Postgres(t *testing.T) {
	pool := revisionTestPool(t)
	ctx := context.Background()
	store := NewRevisionStore(pool)

	draftID := seedDraftRow(t, ctx, pool)

	initial := Content{
		Decision:        "Initial decision",
		PrevailingParty: PartyClaimant,
		Reasoning:       "Initial reasoning",
	}
	if err := store.CreateInitial(ctx, draftID, initial, nil); err != nil {
		t.Fatalf("create initial: %v", err)
	}
	// Second call is a no-op, not a duplicate.
	if err := store.CreateInitial(ctx, draftID, initial, nil); err != nil {
		t.Fatalf("create initial again: %v", err)
	}

	edited := initial
	edited.Decision = "Edited decision"
	author := "00000000-0000-0000-0000-000000000000"

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Exec(ctx, `SELECT id FROM draft_awards WHERE id = $1 FOR UPDATE`, draftID); err != nil {
		t.Fatalf("lock draft: %v", err)
	}
	rev, err := store.AppendTx(ctx, tx, AppendRevisionParams{
		DraftAwardID:  draftID,
		Snapshot:      edited,
		ChangeType:    ChangeArbitratorEdit,
		ChangeSummary: "Corrected the decision",
		ChangedFields: []string{"decision"},
		AuthorID:      &author,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if rev.Version != 2 {
		t.Errorf("expected version 2, got %d", rev.Version)
	}

	history, err := store.History(ctx, draftID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 revisions, got %d", len(history))
	}
	if history[0].Version != 2 || history[1].Version != 1 {
		t.Errorf("expected newest-first order, got %d then %d", history[0].Version, history[1].Version)
	}
	if history[0].Content.Decision != "Edited decision" {
		t.Errorf("unexpected snapshot %q", history[0].Content.Decision)
	}
	if history[1].ChangeType != ChangeInitial {
		t.Errorf("expected INITIAL first revision, got %s", history[1].ChangeType)
	}

	got, err := store.Get(ctx, draftID, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content.Decision != "Initial decision" {
		t.Errorf("unexpected version 1 snapshot %q", got.Content.Decision)
	}

	if _, err := store.Get(ctx, draftID, 99); !errors.Is(err, ErrRevisionNotFound) {
		t.Errorf("expected ErrRevisionNotFound, got %v", err)
	}
}
