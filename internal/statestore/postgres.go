package statestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

// PostgresStore implements Store against a workflow_states table, for
// deployments that want snapshots centrally queryable instead of scattered
// across a filesystem. The full state document is kept as a single JSONB
// column; workflow_id, status, and the two timestamps are projected into
// real columns so List/Prune can filter and order without unmarshalling
// every row.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool. Schema (for reference,
// not applied by this package):
//
//	CREATE TABLE workflow_states (
//	  workflow_id TEXT PRIMARY KEY,
//	  status      TEXT NOT NULL,
//	  created_at  TIMESTAMPTZ NOT NULL,
//	  updated_at  TIMESTAMPTZ NOT NULL,
//	  document    JSONB NOT NULL
//	);
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

func (p *PostgresStore) Save(ctx context.Context, state *WorkflowState) error {
	state.Version = CurrentVersion
	state.WrittenAt = time.Now().UTC()

	doc, err := json.Marshal(state)
	if err != nil {
		return orcerr.Wrap(orcerr.KindInternal, "marshalling state", err)
	}

	const q = `
INSERT INTO workflow_states (workflow_id, status, created_at, updated_at, document)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (workflow_id) DO UPDATE
  SET status = EXCLUDED.status,
      updated_at = EXCLUDED.updated_at,
      document = EXCLUDED.document`

	if _, err := p.Pool.Exec(ctx, q, state.WorkflowID, string(state.Status), state.CreatedAt, state.UpdatedAt, doc); err != nil {
		return orcerr.Wrap(orcerr.KindInternal, "saving state to postgres", err)
	}
	return nil
}

func (p *PostgresStore) Load(ctx context.Context, workflowID string) (*WorkflowState, error) {
	const q = `SELECT document FROM workflow_states WHERE workflow_id = $1`

	var doc []byte
	err := p.Pool.QueryRow(ctx, q, workflowID).Scan(&doc)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, orcerr.Wrap(orcerr.KindNotFound, "no state for workflow", err)
		}
		return nil, orcerr.Wrap(orcerr.KindInternal, "loading state from postgres", err)
	}

	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(doc, &header); err != nil {
		return nil, orcerr.Wrap(orcerr.KindStateCorrupt, "stored document is not valid JSON", err)
	}
	if header.Version > CurrentVersion {
		return nil, orcerr.New(orcerr.KindIncompatibleVersion, "stored state version is newer than supported")
	}

	var state WorkflowState
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, orcerr.Wrap(orcerr.KindStateCorrupt, "decoding stored document", err)
	}
	return &state, nil
}

func (p *PostgresStore) List(ctx context.Context) ([]WorkflowSummary, error) {
	const q = `SELECT workflow_id, status, created_at, updated_at FROM workflow_states ORDER BY created_at ASC`

	rows, err := p.Pool.Query(ctx, q)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindInternal, "listing states from postgres", err)
	}
	defer rows.Close()

	var out []WorkflowSummary
	for rows.Next() {
		var s WorkflowSummary
		var status string
		if err := rows.Scan(&s.WorkflowID, &status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, orcerr.Wrap(orcerr.KindInternal, "scanning state row", err)
		}
		s.Status = WorkflowStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, orcerr.Wrap(orcerr.KindInternal, "iterating state rows", err)
	}
	return out, nil
}

func (p *PostgresStore) Prune(ctx context.Context, policy RetentionPolicy) (int, error) {
	terminal := []string{string(StatusSucceeded), string(StatusFailed), string(StatusCancelled)}

	var cmdTag pgx.CommandTag
	var err error
	switch {
	case policy.TerminalOnly && policy.RetentionDays > 0:
		cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
		cmdTag, err = p.Pool.Exec(ctx,
			`DELETE FROM workflow_states WHERE status = ANY($1) AND updated_at < $2`,
			terminal, cutoff)
	case policy.RetentionDays > 0:
		cutoff := time.Now().AddDate(0, 0, -policy.RetentionDays)
		cmdTag, err = p.Pool.Exec(ctx,
			`DELETE FROM workflow_states WHERE updated_at < $1`, cutoff)
	case policy.TerminalOnly:
		cmdTag, err = p.Pool.Exec(ctx,
			`DELETE FROM workflow_states WHERE status = ANY($1)`, terminal)
	default:
		return 0, nil
	}
	if err != nil {
		return 0, orcerr.Wrap(orcerr.KindInternal, "pruning states in postgres", err)
	}
	return int(cmdTag.RowsAffected()), nil
}
