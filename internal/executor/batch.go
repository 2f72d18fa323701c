package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tapps-dev/orc-engine/internal/graph"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/statestore"
)

// runBatch drives every still-runnable step in wave concurrently, bounded
// by the workflow's max_parallelism. Each step reports its verdict over a
// channel rather than a shared slice, so a cancellation grace timeout can
// stop waiting on stragglers without racing the goroutines still running.
func (r *run) runBatch(ctx context.Context, wave graph.Wave) []stepVerdict {
	limit := int64(r.def.Policy.MaxParallelism)
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)

	g, gctx := errgroup.WithContext(ctx)
	results := make(chan stepVerdict, len(wave.Steps))

	for _, stepID := range wave.Steps {
		stepID := stepID

		ss := r.state.Steps[stepID]
		if ss.Status == statestore.StepSucceeded || ss.Status == statestore.StepSkipped {
			results <- stepVerdict{stepID: stepID}
			continue
		}

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				results <- stepVerdict{stepID: stepID, failed: true}
				return err
			}
			defer sem.Release(1)

			results <- r.runStep(gctx, stepID)
			return nil
		})
	}

	// errgroup's error is only ctx cancellation surfaced through the
	// semaphore; per-step failures are carried in verdicts, not returned,
	// so a failing step never aborts its siblings mid-batch.
	go func() { _ = g.Wait() }()

	verdictByStep := make(map[string]stepVerdict, len(wave.Steps))
	var graceTimer *time.Timer
	var graceC <-chan time.Time

	for len(verdictByStep) < len(wave.Steps) {
		ctxDone := ctx.Done()
		if graceTimer != nil {
			// the grace period is already running; stop re-arming on an
			// already-fired ctx.Done().
			ctxDone = nil
		}
		select {
		case v := <-results:
			verdictByStep[v.stepID] = v
		case <-ctxDone:
			graceTimer = time.NewTimer(r.def.Policy.CancelGrace)
			graceC = graceTimer.C
		case <-graceC:
			r.markStuckAfterCancel(wave.Steps, verdictByStep)
		}
	}
	if graceTimer != nil {
		graceTimer.Stop()
	}

	verdicts := make([]stepVerdict, len(wave.Steps))
	for i, stepID := range wave.Steps {
		verdicts[i] = verdictByStep[stepID]
	}
	return verdicts
}

// markStuckAfterCancel fills in a failed verdict, a cancelled StepState, and
// a stuck_after_cancel diagnostic for every step in steps that hasn't
// reported a verdict yet. It is called once the shared cancellation token
// has been tripped for longer than policy.cancel_grace: the dispatcher
// invocation for that step never honored the token, so its goroutine is
// abandoned rather than waited on further.
func (r *run) markStuckAfterCancel(steps []string, verdictByStep map[string]stepVerdict) {
	for _, stepID := range steps {
		if _, done := verdictByStep[stepID]; done {
			continue
		}
		ss := r.state.Steps[stepID]
		ss.Status = statestore.StepCancelled
		ss.Error = structuredError(orcerr.New(orcerr.KindCancelled, "stuck_after_cancel"))
		r.state.Diagnostics = append(r.state.Diagnostics, statestore.DiagnosticEntry{
			At: r.exec.Clock.Now(), Kind: "stuck_after_cancel",
			Message: fmt.Sprintf("step %q was still running %s after cancellation", stepID, r.def.Policy.CancelGrace),
		})
		verdictByStep[stepID] = stepVerdict{stepID: stepID, failed: true}
	}
}
