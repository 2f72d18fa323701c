package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

// nonZeroExit marks a breaker failure that is actually a completed
// invocation with a non-zero exit, as opposed to the inner Dispatcher
// itself erroring out (process never ran, capability misconfigured, I/O
// error). breaker.Execute only ever returns an (any, error) pair, so this
// is how Invoke tells the two apart after the fact via errors.As.
type nonZeroExit struct {
	outcome StepOutcome
	cause   error
}

func (e *nonZeroExit) Error() string { return e.cause.Error() }
func (e *nonZeroExit) Unwrap() error { return e.cause }

// BreakingDispatcher wraps a Dispatcher in a per-capability circuit
// breaker: a capability that fails repeatedly trips open and fails fast
// with dispatch_failed{retryable:true} instead of letting the executor
// retry into an already-wedged external process.
type BreakingDispatcher struct {
	Inner    Dispatcher
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakingDispatcher wraps inner. Breakers are created lazily, one per
// capability name seen.
func NewBreakingDispatcher(inner Dispatcher) *BreakingDispatcher {
	return &BreakingDispatcher{Inner: inner, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (d *BreakingDispatcher) breakerFor(capability string) *gobreaker.CircuitBreaker {
	if b, ok := d.breakers[capability]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        capability,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	d.breakers[capability] = b
	return b
}

func (d *BreakingDispatcher) Invoke(ctx context.Context, capability string, inputs Inputs) (StepOutcome, error) {
	breaker := d.breakerFor(capability)

	result, err := breaker.Execute(func() (any, error) {
		outcome, err := d.Inner.Invoke(ctx, capability, inputs)
		if err != nil {
			return StepOutcome{}, err
		}
		if !outcome.Succeeded() {
			return StepOutcome{}, &nonZeroExit{
				outcome: outcome,
				cause: orcerr.New(orcerr.KindDispatchFailed, "capability exited non-zero").
					WithDetails(map[string]any{"capability": capability, "exit_code": outcome.ExitCode}),
			}
		}
		return outcome, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return StepOutcome{}, orcerr.New(orcerr.KindDispatchFailed, "circuit open for capability "+capability).
				WithDetails(map[string]any{"capability": capability, "retryable": true})
		}
		var nz *nonZeroExit
		if errors.As(err, &nz) {
			// the underlying invocation completed (non-zero exit) but the
			// breaker counted it as a failure; surface the outcome as-is
			// so the executor's on_failure policy still sees exit status.
			return nz.outcome, nil
		}
		// a genuine dispatch error: the invocation itself never produced an
		// outcome, so it must not be reported as a successful zero-value one.
		return StepOutcome{}, err
	}

	outcome, _ := result.(StepOutcome)
	return outcome, nil
}
