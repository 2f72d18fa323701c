package executor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/dispatch"
	"github.com/tapps-dev/orc-engine/internal/gate"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// stepVerdict is the outcome of driving one step to a terminal per-attempt
// result: either it finished (successfully or not, after exhausting any
// retry budget), or a gate attached to it wants a loopback.
type stepVerdict struct {
	stepID     string
	failed     bool
	loopbackTo string
	gateID     string
}

// runStep drives stepID through dispatch, retry-on-failure, output
// registration, and its attached gate (if any). It mutates r.state in
// place; callers are responsible for persisting the snapshot afterward.
func (r *run) runStep(ctx context.Context, stepID string) stepVerdict {
	s := r.def.StepByID(stepID)
	ss := r.state.Steps[stepID]
	log := r.log().With(zap.String("step_id", stepID))

	for {
		log.Debug("dispatching step", zap.Int("attempt", ss.Attempt), zap.Int("iteration", ss.Iteration))
		outcome, dispatchErr := r.attemptStep(ctx, s, ss)
		if dispatchErr != nil {
			timedOut := errors.Is(dispatchErr, context.DeadlineExceeded)
			if timedOut {
				log.Warn("step exceeded its timeout", zap.Duration("step_timeout", r.def.Policy.StepTimeout))
			} else {
				log.Warn("dispatch invocation failed", zap.Error(dispatchErr))
			}

			// a timeout is just another kind of failed attempt: it goes
			// through on_failure=retry(N) the same as a non-zero exit.
			if s.OnFailure.Kind == workflow.OnFailureRetry && ss.Attempt < s.OnFailure.MaxRetries {
				ss.Attempt++
				continue
			}

			ss.Status = statestore.StepFailed
			if timedOut {
				ss.Error = structuredError(orcerr.Wrap(orcerr.KindTimeout,
					fmt.Sprintf("step %q exceeded its %s timeout", stepID, r.def.Policy.StepTimeout), dispatchErr))
			} else {
				ss.Error = structuredError(orcerr.Wrap(orcerr.KindDispatchFailed, "dispatch invocation failed", dispatchErr))
			}
			return stepVerdict{stepID: stepID, failed: true}
		}

		if outcome.Succeeded() {
			if err := r.registerOutputs(s, ss, outcome); err != nil {
				ss.Status = statestore.StepFailed
				ss.Error = structuredError(err)
				return stepVerdict{stepID: stepID, failed: true}
			}
			ss.Status = statestore.StepSucceeded
			ended := r.exec.Clock.Now()
			ss.EndedAt = &ended
			log.Debug("step succeeded")
			return r.evaluateStepGate(ctx, s, ss)
		}

		// non-zero exit: consult on_failure.
		if s.OnFailure.Kind == workflow.OnFailureRetry && ss.Attempt < s.OnFailure.MaxRetries {
			log.Info("retrying step after non-zero exit", zap.Int("exit_code", outcome.ExitCode))
			ss.Attempt++
			continue
		}

		if s.OnFailure.Kind == workflow.OnFailureSkip {
			ss.Status = statestore.StepSkipped
			ended := r.exec.Clock.Now()
			ss.EndedAt = &ended
			return stepVerdict{stepID: stepID}
		}

		ss.Status = statestore.StepFailed
		ss.Error = structuredError(orcerr.New(orcerr.KindDispatchFailed,
			fmt.Sprintf("step %q exited %d", stepID, outcome.ExitCode)))
		return stepVerdict{stepID: stepID, failed: true}
	}
}

// attemptStep dispatches one invocation of s, racing it against
// policy.step_timeout: a step dispatched exactly at the deadline still
// deterministically reports a context.DeadlineExceeded-wrapped error rather
// than a flaky race with whatever the dispatcher happens to return first.
func (r *run) attemptStep(ctx context.Context, s *workflow.StepDef, ss *statestore.StepState) (dispatch.StepOutcome, error) {
	ss.Status = statestore.StepRunning
	started := r.exec.Clock.Now()
	ss.StartedAt = &started

	inputs, err := r.resolveInputs(s)
	if err != nil {
		return dispatch.StepOutcome{}, err
	}

	attemptCtx := ctx
	if r.def.Policy.StepTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.def.Policy.StepTimeout)
		defer cancel()
	}

	outcome, err := r.exec.Dispatcher.Invoke(attemptCtx, s.Agent, s.Capability, inputs)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded {
		return dispatch.StepOutcome{}, fmt.Errorf("step %q: %w", s.ID, context.DeadlineExceeded)
	}
	return outcome, err
}

// registerOutputs writes every declared output the capability produced to
// the artifact registry under the step's current iteration, and records
// each as a ProducedArtifact on the step's state.
func (r *run) registerOutputs(s *workflow.StepDef, ss *statestore.StepState, outcome dispatch.StepOutcome) error {
	for _, logicalName := range s.Outputs {
		path, ok := outcome.OutputFiles[logicalName]
		if !ok {
			return orcerr.New(orcerr.KindDefinitionError,
				fmt.Sprintf("step %q: capability did not produce declared output %q", s.ID, logicalName))
		}
		data, err := readFileBytes(path)
		if err != nil {
			return orcerr.Wrap(orcerr.KindInternal, "reading capability output file", err)
		}

		a, err := r.exec.Artifacts.Write(r.state.WorkflowID, s.ID, ss.Iteration, logicalName, data, ss.Attempt > 0)
		if err != nil {
			return err
		}

		ss.ProducedArtifacts = append(ss.ProducedArtifacts, statestore.ProducedArtifact{
			LogicalName:   a.LogicalName,
			Path:          a.Path,
			ContentDigest: a.ContentDigest,
			SizeBytes:     a.SizeBytes,
			Iteration:     a.Iteration,
		})
	}

	if outcome.Score != nil {
		ss.Score = outcome.Score
	}
	if outcome.SecondarySignals != nil {
		ss.SecondarySignals = outcome.SecondarySignals
	}
	return nil
}

// evaluateStepGate runs s's attached gate, if any, translating its verdict
// into a stepVerdict the wave driver understands.
func (r *run) evaluateStepGate(ctx context.Context, s *workflow.StepDef, ss *statestore.StepState) stepVerdict {
	if s.Gate == "" {
		return stepVerdict{stepID: s.ID}
	}

	g := r.def.Gates[s.Gate]
	iterations := r.state.GateIterations[g.ID]

	result, err := gate.Evaluate(ctx, g, ss.Score, boolSignal(ss), ss.SecondarySignals, iterations)
	if err != nil {
		ss.Status = statestore.StepFailed
		ss.Error = structuredError(orcerr.Wrap(orcerr.KindGateFailed, "evaluating gate", err))
		return stepVerdict{stepID: s.ID, failed: true}
	}

	switch result.Verdict {
	case gate.VerdictPass, gate.VerdictWarn:
		return stepVerdict{stepID: s.ID}
	case gate.VerdictLoopback:
		r.state.GateIterations[g.ID] = iterations + 1
		r.state.Diagnostics = append(r.state.Diagnostics, statestore.DiagnosticEntry{
			At: r.exec.Clock.Now(), Kind: "gate_loopback",
			Message: fmt.Sprintf("gate %q sent the workflow back to %q (%s)", g.ID, result.LoopbackTo, result.Reason),
		})
		return stepVerdict{stepID: s.ID, loopbackTo: result.LoopbackTo, gateID: g.ID}
	default: // VerdictFail
		ss.Status = statestore.StepFailed
		ss.Error = structuredError(orcerr.New(orcerr.KindGateFailed, result.Reason))
		return stepVerdict{stepID: s.ID, failed: true}
	}
}

// boolSignal extracts a boolean gate value from secondary_signals using the
// fixed key "passed", the convention capabilities use to report a
// tests_passed-style verdict alongside a numeric score.
func boolSignal(ss *statestore.StepState) *bool {
	if ss.SecondarySignals == nil {
		return nil
	}
	v, ok := ss.SecondarySignals["passed"].(bool)
	if !ok {
		return nil
	}
	return &v
}

func structuredError(err *orcerr.Error) *statestore.StructuredError {
	return &statestore.StructuredError{
		Kind:    string(err.Kind),
		Message: err.Message,
		Details: err.Details,
	}
}
