package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the invariant checks run during stress. Each query selects
// violating rows; an empty result means the invariant held.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_award_per_case",
			SQL: `SELECT case_id, COUNT(*) FROM awards
                  GROUP BY case_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_revision_versions_gapless",
			SQL: `WITH seqs AS (
                      SELECT draft_award_id, version,
                             LAG(version) OVER (PARTITION BY draft_award_id ORDER BY version) AS prev
                      FROM draft_award_revisions)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND version <> prev + 1`,
		},
		{
			Name: "O3_audit_chain_linked",
			SQL: `WITH ordered AS (
                      SELECT id, prev_hash,
                             LAG(entry_hash) OVER (ORDER BY id) AS expected
                      FROM audit_log)
                  SELECT id FROM ordered
                  WHERE prev_hash <> COALESCE(expected, repeat('0', 64))`,
		},
		{
			Name: "O4_award_case_decided",
			SQL: `SELECT a.id FROM awards a
                  JOIN cases c ON c.id = a.case_id
                  WHERE c.status NOT IN ('decided', 'closed')`,
		},
		{
			Name: "O5_award_backed_by_approved_draft",
			SQL: `SELECT a.id FROM awards a
                  JOIN draft_awards d ON d.case_id = a.case_id
                  WHERE d.review_status IS DISTINCT FROM 'APPROVE'`,
		},
		{
			Name: "O6_reviewed_at_consistent",
			SQL:  `SELECT id FROM draft_awards WHERE review_status IS NOT NULL AND reviewed_at IS NULL`,
		},
		{
			Name: "O7_escalation_state_shape",
			SQL: `SELECT id FROM award_escalations
                  WHERE (status = 'ASSIGNED' AND (assigned_to IS NULL OR assigned_at IS NULL))
                     OR (status = 'RESOLVED' AND resolved_at IS NULL)`,
		},
		{
			Name: "O8_revision_initial_first",
			SQL: `SELECT draft_award_id FROM draft_award_revisions
                  WHERE version = 1 AND change_type <> 'INITIAL'`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
