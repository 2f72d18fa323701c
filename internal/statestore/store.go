package statestore

import "context"

// RetentionPolicy bounds what Prune removes.
type RetentionPolicy struct {
	RetentionDays int  // states older than this, by UpdatedAt, are candidates
	MaxStates     int  // keep at most this many, newest first, 0 means unbounded
	TerminalOnly  bool // only prune states whose status is succeeded/failed/cancelled
}

// Store is the durable backend for WorkflowState snapshots. FileStore is the
// default, single-host implementation; PostgresStore is an alternative for
// deployments that want snapshots centrally queryable.
type Store interface {
	Save(ctx context.Context, state *WorkflowState) error
	Load(ctx context.Context, workflowID string) (*WorkflowState, error)
	List(ctx context.Context) ([]WorkflowSummary, error)
	Prune(ctx context.Context, policy RetentionPolicy) (int, error)
}

// Locker enforces at most one writer per workflow_id at a time; a second
// caller gets orcerr.KindConcurrentModification instead of blocking.
// FileLocker covers the single-host case; RedisLocker extends the same
// contract across hosts.
type Locker interface {
	// Lock acquires the workflow's write lock or fails with
	// orcerr.KindConcurrentModification. Release must be called to unlock.
	Lock(ctx context.Context, workflowID string) (release func() error, err error)
}
