package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GenesisHash is the previous-hash value of the first chain entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

var (
	// ErrChainBroken reports a hash mismatch or gap found during verification.
	ErrChainBroken = errors.New("audit: chain integrity violated")
)

// Store is the persistence surface of the chain. Implementations must return
// entries in insertion order.
type Store interface {
	// TailHashTx returns the hash of the most recently appended entry, or
	// GenesisHash when the chain is empty. Callers hold the append lock.
	TailHashTx(ctx context.Context, tx pgx.Tx) (string, error)
	InsertTx(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error)
	ListByCase(ctx context.Context, caseID string) ([]Entry, error)
	ListAll(ctx context.Context) ([]Entry, error)
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Chain appends hash-linked entries. Appends are globally serialized with a
// Postgres advisory transaction lock so two writers can never both claim the
// same previous hash.
type Chain struct {
	pool  TxBeginner
	store Store
	now   func() time.Time
}

func NewChain(pool TxBeginner, store Store) *Chain {
	return &Chain{
		pool:  pool,
		store: store,
		now:   time.Now,
	}
}

func (c *Chain) WithClock(now func() time.Time) *Chain {
	c.now = now
	return c
}

// chainLockKey serializes appends across all writers of the audit_log table.
const chainLockKey = int64(0x61776466_6c6f6701) // "awdflog", chain writer lock

// AppendTx writes a new entry inside the caller's transaction. The advisory
// lock is transaction-scoped, so it releases with the caller's commit or
// rollback.
func (c *Chain) AppendTx(ctx context.Context, tx pgx.Tx, params AppendParams) (Entry, error) {
	if params.Action == "" {
		return Entry{}, fmt.Errorf("audit: action required")
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, chainLockKey); err != nil {
		return Entry{}, fmt.Errorf("audit: acquire chain lock: %w", err)
	}

	prevHash, err := c.store.TailHashTx(ctx, tx)
	if err != nil {
		return Entry{}, err
	}

	// timestamptz keeps microseconds; hashing anything finer would make the
	// stored entry fail re-verification after the round trip.
	entry := Entry{
		Action:    params.Action,
		ActorID:   params.ActorID,
		CaseID:    params.CaseID,
		Metadata:  params.Metadata,
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		PrevHash:  prevHash,
		CreatedAt: c.now().UTC().Truncate(time.Microsecond),
	}
	entry.EntryHash, err = ComputeHash(entry)
	if err != nil {
		return Entry{}, err
	}

	return c.store.InsertTx(ctx, tx, entry)
}

// Append writes a new entry in its own transaction.
func (c *Chain) Append(ctx context.Context, params AppendParams) (Entry, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := c.AppendTx(ctx, tx, params)
	if err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("audit: commit tx: %w", err)
	}
	return entry, nil
}

// hashEnvelope fixes the field order and representation the hash covers.
type hashEnvelope struct {
	Action    Action         `json:"action"`
	ActorID   *string        `json:"actor_id"`
	CaseID    *string        `json:"case_id"`
	Metadata  map[string]any `json:"metadata"`
	IPAddress *string        `json:"ip_address"`
	UserAgent *string        `json:"user_agent"`
	Timestamp string         `json:"timestamp"`
	PrevHash  string         `json:"prev_hash"`
}

// ComputeHash returns the hex sha256 of the entry's logical fields chained
// with its previous hash. encoding/json sorts map keys, so metadata
// serialization is canonical.
func ComputeHash(entry Entry) (string, error) {
	env := hashEnvelope{
		Action:    entry.Action,
		ActorID:   entry.ActorID,
		CaseID:    entry.CaseID,
		Metadata:  entry.Metadata,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		Timestamp: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		PrevHash:  entry.PrevHash,
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("audit: marshal hash envelope: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyReport summarizes a chain verification pass.
type VerifyReport struct {
	Checked      int
	InvalidCount int
	InvalidIDs   []int64
	Contiguous   bool
}

// IsValid reports whether every entry rehashed cleanly and the chain had no
// gaps.
func (r VerifyReport) IsValid() bool {
	return r.InvalidCount == 0 && r.Contiguous
}

// Verify recomputes every entry's hash from its stored fields and checks the
// previous-hash linkage. Entries must be supplied in insertion order. A
// broken chain is reported, never repaired.
func Verify(entries []Entry) (VerifyReport, error) {
	report := VerifyReport{Checked: len(entries), Contiguous: true}

	prev := GenesisHash
	for _, entry := range entries {
		expected, err := ComputeHash(entry)
		if err != nil {
			return report, err
		}
		valid := expected == entry.EntryHash
		if entry.PrevHash != prev {
			report.Contiguous = false
			valid = false
		}
		if !valid {
			report.InvalidCount++
			report.InvalidIDs = append(report.InvalidIDs, entry.ID)
		}
		prev = entry.EntryHash
	}
	return report, nil
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const entryColumns = `id, action, actor_id, case_id, metadata, ip_address, user_agent, entry_hash, prev_hash, created_at`

func (s *PGStore) TailHashTx(ctx context.Context, tx pgx.Tx) (string, error) {
	var hash string
	err := tx.QueryRow(ctx, `SELECT entry_hash FROM audit_log ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("audit: read tail: %w", err)
	}
	return hash, nil
}

func (s *PGStore) InsertTx(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error) {
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: marshal metadata: %w", err)
	}

	const insertSQL = `
		INSERT INTO audit_log (action, actor_id, case_id, metadata, ip_address, user_agent, entry_hash, prev_hash, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9)
		RETURNING id`

	if err := tx.QueryRow(ctx, insertSQL,
		entry.Action, entry.ActorID, entry.CaseID, metadata,
		entry.IPAddress, entry.UserAgent, entry.EntryHash, entry.PrevHash, entry.CreatedAt,
	).Scan(&entry.ID); err != nil {
		return Entry{}, fmt.Errorf("audit: insert entry: %w", err)
	}
	return entry, nil
}

func (s *PGStore) ListByCase(ctx context.Context, caseID string) ([]Entry, error) {
	return s.list(ctx, `SELECT `+entryColumns+` FROM audit_log WHERE case_id = $1 ORDER BY id ASC`, caseID)
}

func (s *PGStore) ListAll(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, `SELECT ` + entryColumns + ` FROM audit_log ORDER BY id ASC`)
}

func (s *PGStore) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, 32)
	for rows.Next() {
		var (
			entry    Entry
			metadata []byte
		)
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.ActorID, &entry.CaseID, &metadata,
			&entry.IPAddress, &entry.UserAgent, &entry.EntryHash, &entry.PrevHash, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		if len(metadata) > 0 && !strings.EqualFold(string(metadata), "null") {
			if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("audit: unmarshal metadata: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries: %w", err)
	}
	return out, nil
}
