package executor

import (
	"context"

	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// drive runs the wave schedule to completion from r.state.WaveCursor. It
// persists a snapshot after each wave completes, after a loopback, and on
// reaching a terminal status; step transitions inside a wave, including a
// step entering `running`, are not persisted on their own, so a crash loses
// the in-flight wave's progress.
func (r *run) drive(ctx context.Context) (*statestore.WorkflowState, error) {
	for r.state.WaveCursor < len(r.schedule.Waves) {
		if ctx.Err() != nil {
			return r.cancelInFlight(ctx)
		}

		wave := r.schedule.Waves[r.state.WaveCursor]
		verdicts := r.runBatch(ctx, wave)

		if ctx.Err() != nil {
			return r.cancelInFlight(ctx)
		}

		if loopbackTo, ok := firstLoopback(verdicts); ok {
			r.log().Info("gate loopback", zap.String("target_step", loopbackTo))
			if err := r.applyLoopback(loopbackTo); err != nil {
				return r.fail(ctx, err)
			}
			if err := r.save(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if failedID, ok := firstFailure(verdicts); ok {
			r.log().Warn("step failed", zap.String("step_id", failedID))
			return r.fail(ctx, orcerr.New(orcerr.KindDispatchFailed,
				"step "+failedID+" failed and exhausted its failure policy"))
		}

		r.state.WaveCursor++
		r.state.UpdatedAt = r.exec.Clock.Now()
		if err := r.save(ctx); err != nil {
			return nil, err
		}
	}

	r.state.Status = statestore.StatusSucceeded
	r.state.UpdatedAt = r.exec.Clock.Now()
	r.log().Info("workflow succeeded")
	if err := r.save(ctx); err != nil {
		return nil, err
	}
	return r.state, nil
}

// log returns a logger pre-tagged with this run's correlation fields.
func (r *run) log() *zap.Logger {
	return r.exec.Logger.With(
		zap.String("workflow_id", r.state.WorkflowID),
		zap.String("correlation_id", r.state.CorrelationID),
	)
}

func firstLoopback(verdicts []stepVerdict) (string, bool) {
	for _, v := range verdicts {
		if v.loopbackTo != "" {
			return v.loopbackTo, true
		}
	}
	return "", false
}

func firstFailure(verdicts []stepVerdict) (string, bool) {
	for _, v := range verdicts {
		if v.failed {
			return v.stepID, true
		}
	}
	return "", false
}

// applyLoopback rewinds wave_cursor to the wave containing target, and
// resets target plus every step whose (transitive) predecessor set
// includes target to pending (bumping iteration so the next write lands in
// a fresh artifact slot), shadowing their previously-produced artifacts
// rather than deleting them. Steps scheduled later but not dependent on
// target, directly or transitively, are left in their terminal status.
func (r *run) applyLoopback(target string) error {
	idx := r.schedule.StepIndex(target)
	if idx < 0 {
		return orcerr.New(orcerr.KindDefinitionError, "loopback target "+target+" is not a scheduled step")
	}

	toReset := r.descendantsOf(target)
	toReset[target] = true

	for i := idx; i < len(r.schedule.Waves); i++ {
		for _, stepID := range r.schedule.Waves[i].Steps {
			if !toReset[stepID] {
				continue
			}
			ss := r.state.Steps[stepID]
			if len(ss.ProducedArtifacts) > 0 {
				if err := r.exec.Artifacts.ShadowIteration(r.state.WorkflowID, stepID, ss.Iteration); err != nil {
					return orcerr.Wrap(orcerr.KindInternal, "shadowing loopback artifacts", err)
				}
			}
			ss.Status = statestore.StepPending
			ss.Iteration++
			ss.Attempt = 0
			ss.StartedAt = nil
			ss.EndedAt = nil
			ss.Error = nil
		}
	}

	r.state.WaveCursor = idx
	return nil
}

// descendantsOf returns every step that transitively depends on target, via
// explicit depends_on or an artifact-input reference, the same edge set
// internal/graph resolves the schedule from.
func (r *run) descendantsOf(target string) map[string]bool {
	preds := make(map[string][]string, len(r.def.Steps))
	for _, s := range r.def.Steps {
		var deps []string
		deps = append(deps, s.DependsOn...)
		for _, in := range s.Inputs {
			if in.Kind == workflow.InputArtifact {
				deps = append(deps, in.StepID)
			}
		}
		preds[s.ID] = deps
	}

	descendants := make(map[string]bool)
	var visit func(id string) bool
	visit = func(id string) bool {
		if v, ok := descendants[id]; ok {
			return v
		}
		isDescendant := false
		for _, dep := range preds[id] {
			if dep == target || visit(dep) {
				isDescendant = true
			}
		}
		descendants[id] = isDescendant
		return isDescendant
	}
	for _, s := range r.def.Steps {
		visit(s.ID)
	}
	delete(descendants, target)
	for id, isDescendant := range descendants {
		if !isDescendant {
			delete(descendants, id)
		}
	}
	return descendants
}

// fail marks the workflow failed and persists the snapshot.
func (r *run) fail(ctx context.Context, cause error) (*statestore.WorkflowState, error) {
	r.state.Status = statestore.StatusFailed
	r.state.UpdatedAt = r.exec.Clock.Now()
	r.log().Error("workflow failed", zap.Error(cause))
	if err := r.save(ctx); err != nil {
		return nil, err
	}
	return r.state, cause
}

// cancelInFlight marks any steps left running as cancelled and persists a
// cancelled snapshot. It uses a background context for the final save
// since the caller's ctx has already fired.
func (r *run) cancelInFlight(ctx context.Context) (*statestore.WorkflowState, error) {
	for _, ss := range r.state.Steps {
		if ss.Status == statestore.StepRunning || ss.Status == statestore.StepReady {
			ss.Status = statestore.StepCancelled
		}
	}
	r.state.Status = statestore.StatusCancelled
	r.state.UpdatedAt = r.exec.Clock.Now()
	if err := r.exec.Store.Save(context.Background(), r.state); err != nil {
		return nil, err
	}
	return r.state, context.Canceled
}

func (r *run) save(ctx context.Context) error {
	return r.exec.Store.Save(ctx, r.state)
}
