package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/graph"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Run starts a brand-new workflow run from def and drives it to a terminal
// status (succeeded, failed, or cancelled), persisting a snapshot after
// each wave and at the terminal status (see drive). workflowID must not
// already have a snapshot.
// variables seeds WorkflowState.Variables, the source every InputPrompt-kind
// step input resolves against.
func (e *Executor) Run(ctx context.Context, def *workflow.WorkflowDefinition, workflowID, correlationID string, variables map[string]string) (*statestore.WorkflowState, error) {
	release, err := e.Locker.Lock(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := e.Store.Load(ctx, workflowID); err == nil {
		return nil, orcerr.New(orcerr.KindConcurrentModification,
			fmt.Sprintf("workflow %q already has a snapshot; use Resume", workflowID))
	}

	schedule, err := graph.Resolve(def)
	if err != nil {
		return nil, err
	}

	st := initialState(def, workflowID, correlationID, e.Clock.Now(), variables)

	r := &run{def: def, schedule: schedule, state: st, exec: e}
	r.log().Info("workflow run starting", zap.Int("step_count", len(def.Steps)))
	return r.drive(ctx)
}

// initialState builds the pending-everything WorkflowState for a fresh run.
func initialState(def *workflow.WorkflowDefinition, workflowID, correlationID string, now time.Time, variables map[string]string) *statestore.WorkflowState {
	steps := make(map[string]*statestore.StepState, len(def.Steps))
	order := make([]string, 0, len(def.Steps))
	for _, s := range def.Steps {
		order = append(order, s.ID)
		steps[s.ID] = &statestore.StepState{StepID: s.ID, Status: statestore.StepPending}
	}

	status := statestore.StatusRunning
	if len(def.Steps) == 0 {
		status = statestore.StatusSucceeded
	}

	return &statestore.WorkflowState{
		Version:          statestore.CurrentVersion,
		WorkflowID:       workflowID,
		DefinitionDigest: def.DefinitionDigest,
		CorrelationID:    correlationID,
		Status:           status,
		CreatedAt:        now,
		UpdatedAt:        now,
		StepOrder:        order,
		Steps:            steps,
		WaveCursor:       0,
		Variables:        variables,
		GateIterations:   make(map[string]int),
	}
}
