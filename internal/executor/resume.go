package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/graph"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Resume loads workflowID's last snapshot and continues execution with
// def, which the caller must supply since the snapshot only records the
// definition's digest, not its body. A digest mismatch is reported as
// definition_drift rather than silently resuming against a changed
// workflow. Any step found `running` at load time is treated as orphaned
// by a prior crash: it is reset to `ready` with attempt incremented, never
// assumed to have completed or failed.
func (e *Executor) Resume(ctx context.Context, def *workflow.WorkflowDefinition, workflowID string) (*statestore.WorkflowState, error) {
	release, err := e.Locker.Lock(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := e.Store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if st.DefinitionDigest != def.DefinitionDigest {
		return nil, orcerr.New(orcerr.KindDefinitionDrift,
			"workflow definition has changed since this run's last snapshot").
			WithDetails(map[string]any{
				"recorded_digest": st.DefinitionDigest,
				"current_digest":  def.DefinitionDigest,
			})
	}

	if isTerminal(st.Status) {
		return st, nil
	}

	schedule, err := graph.Resolve(def)
	if err != nil {
		return nil, err
	}

	for _, s := range st.Steps {
		if s.Status == statestore.StepRunning {
			s.Status = statestore.StepReady
			s.Attempt++
		}
	}
	st.Status = statestore.StatusRunning

	r := &run{def: def, schedule: schedule, state: st, exec: e}
	r.log().Info("workflow resuming", zap.Int("wave_cursor", st.WaveCursor))
	return r.drive(ctx)
}

func isTerminal(s statestore.WorkflowStatus) bool {
	return s == statestore.StatusSucceeded || s == statestore.StatusFailed || s == statestore.StatusCancelled
}
