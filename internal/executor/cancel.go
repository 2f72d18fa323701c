package executor

import (
	"context"

	"github.com/tapps-dev/orc-engine/internal/statestore"
)

// Cancel marks workflowID cancelled directly in the state store. It is the
// out-of-band path: a caller whose context governs an in-flight Run/Resume
// should simply cancel that context instead, which runBatch observes
// immediately and gives every in-flight step policy.CancelGrace to unwind
// before marking stragglers stuck_after_cancel. Cancel exists for the case
// where the workflow is paused, or the process that ran it is gone, and a
// new process needs to record the cancellation.
func (e *Executor) Cancel(ctx context.Context, workflowID string) (*statestore.WorkflowState, error) {
	release, err := e.Locker.Lock(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	defer release()

	st, err := e.Store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if isTerminal(st.Status) {
		return st, nil
	}

	for _, ss := range st.Steps {
		if ss.Status == statestore.StepRunning || ss.Status == statestore.StepReady || ss.Status == statestore.StepPending {
			ss.Status = statestore.StepCancelled
		}
	}
	st.Status = statestore.StatusCancelled
	st.UpdatedAt = e.Clock.Now()

	if err := e.Store.Save(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}
