// Package facade implements the Public API facade (C9): the six caller
// operations (run, resume, cancel, list, show, cleanup) that translate
// outside intent into Executor/Store calls and format results. Mapping
// outcomes onto the command-line exit code table is done by the CLI
// binding. The CLI and HTTP bindings are thin adapters over this package
// and hold no orchestration logic of their own.
package facade

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/clock"
	"github.com/tapps-dev/orc-engine/internal/executor"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Facade is the caller-facing entry point wrapping a fully wired Executor.
type Facade struct {
	Executor *executor.Executor
	Store    statestore.Store
	IDs      *clock.IDGenerator
	Logger   *zap.Logger
}

// New builds a Facade. A nil logger falls back to zap.NewNop().
func New(exec *executor.Executor, store statestore.Store, ids *clock.IDGenerator, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{Executor: exec, Store: store, IDs: ids, Logger: logger}
}

// RunResult is what Run/Resume return to a caller: enough to report
// success/failure without the caller needing to know WorkflowState's shape.
type RunResult struct {
	WorkflowID string
	Status     statestore.WorkflowStatus
	Summary    string
}

// Run starts a brand-new run of the already-parsed def, seeded with prompt
// and any variable overrides, and drives it to completion.
func (f *Facade) Run(ctx context.Context, def *workflow.WorkflowDefinition, prompt string, overrides map[string]string) (*RunResult, error) {
	workflowID, err := f.IDs.NewWorkflowID()
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindInternal, "generating workflow id", err)
	}
	correlationID := f.IDs.NewCorrelationID()

	st, err := f.Executor.Run(ctx, def, workflowID, correlationID, mergeVariables(prompt, overrides))
	if st == nil {
		return nil, err
	}
	return &RunResult{WorkflowID: st.WorkflowID, Status: st.Status, Summary: Summarize(st)}, err
}

// Resume continues workflowID from its last snapshot using def (the caller
// must re-supply the definition; only its digest is persisted).
func (f *Facade) Resume(ctx context.Context, def *workflow.WorkflowDefinition, workflowID string) (*RunResult, error) {
	st, err := f.Executor.Resume(ctx, def, workflowID)
	if st == nil {
		return nil, err
	}
	return &RunResult{WorkflowID: st.WorkflowID, Status: st.Status, Summary: Summarize(st)}, err
}

// Cancel marks workflowID cancelled. It reports whether the call actually
// transitioned a non-terminal workflow, as opposed to finding one already
// terminal.
func (f *Facade) Cancel(ctx context.Context, workflowID string) (bool, error) {
	before, err := f.Store.Load(ctx, workflowID)
	if err != nil {
		return false, err
	}
	wasTerminal := isTerminalStatus(before.Status)

	st, err := f.Executor.Cancel(ctx, workflowID)
	if err != nil {
		return false, err
	}
	return !wasTerminal && st.Status == statestore.StatusCancelled, nil
}

// List returns every workflow's header-only summary.
func (f *Facade) List(ctx context.Context) ([]statestore.WorkflowSummary, error) {
	return f.Store.List(ctx)
}

// Show returns the full, read-only snapshot for workflowID.
func (f *Facade) Show(ctx context.Context, workflowID string) (*statestore.WorkflowState, error) {
	return f.Store.Load(ctx, workflowID)
}

// Cleanup prunes snapshots per policy and reports how many were removed.
func (f *Facade) Cleanup(ctx context.Context, policy statestore.RetentionPolicy) (int, error) {
	return f.Store.Prune(ctx, policy)
}

func isTerminalStatus(s statestore.WorkflowStatus) bool {
	return s == statestore.StatusSucceeded || s == statestore.StatusFailed || s == statestore.StatusCancelled
}

// mergeVariables builds the WorkflowState.Variables map from a run's prompt
// and any caller-supplied overrides, the source InputPrompt-kind inputs
// resolve against at dispatch time.
func mergeVariables(prompt string, overrides map[string]string) map[string]string {
	vars := make(map[string]string, len(overrides)+1)
	vars["prompt"] = prompt
	for k, v := range overrides {
		vars[k] = v
	}
	return vars
}

// Summarize renders a one-line, human-facing summary of a terminal or
// in-flight WorkflowState: status, wall time, and a per-step tally.
func Summarize(st *statestore.WorkflowState) string {
	wall := st.UpdatedAt.Sub(st.CreatedAt)
	succeeded, failed, running := 0, 0, 0
	for _, ss := range st.Steps {
		switch ss.Status {
		case statestore.StepSucceeded:
			succeeded++
		case statestore.StepFailed:
			failed++
		case statestore.StepRunning, statestore.StepReady:
			running++
		}
	}
	return fmt.Sprintf("%s in %s (%d/%d steps succeeded, %d failed, %d in flight)",
		st.Status, wall.Round(time.Millisecond), succeeded, len(st.Steps), failed, running)
}
