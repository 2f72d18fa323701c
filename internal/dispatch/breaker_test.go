package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/tapps-dev/orc-engine/internal/clock"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

func TestBreakingDispatcherPassesThroughSuccess(t *testing.T) {
	inner := NewFuncDispatcher(clock.NewSystemClock())
	inner.Register("ok", func(ctx context.Context, inputs Inputs) (StepOutcome, error) {
		return StepOutcome{ExitCode: 0, Output: "done"}, nil
	})

	d := NewBreakingDispatcher(inner)
	out, err := d.Invoke(context.Background(), "ok", Inputs{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out.Output != "done" {
		t.Fatalf("unexpected output: %q", out.Output)
	}
}

func TestBreakingDispatcherSurfacesNonZeroExitWithoutTripping(t *testing.T) {
	inner := NewFuncDispatcher(clock.NewSystemClock())
	inner.Register("flaky", func(ctx context.Context, inputs Inputs) (StepOutcome, error) {
		return StepOutcome{ExitCode: 1}, nil
	})

	d := NewBreakingDispatcher(inner)
	out, err := d.Invoke(context.Background(), "flaky", Inputs{})
	if err != nil {
		t.Fatalf("a single non-zero exit should not itself error: %v", err)
	}
	if out.Succeeded() {
		t.Fatal("expected a non-zero exit outcome")
	}
}

func TestBreakingDispatcherTripsOpenAfterConsecutiveFailures(t *testing.T) {
	inner := NewFuncDispatcher(clock.NewSystemClock())
	inner.Register("dying", func(ctx context.Context, inputs Inputs) (StepOutcome, error) {
		return StepOutcome{ExitCode: 1}, nil
	})

	d := NewBreakingDispatcher(inner)
	for i := 0; i < 3; i++ {
		if _, err := d.Invoke(context.Background(), "dying", Inputs{}); err != nil {
			t.Fatalf("invocation %d: %v", i, err)
		}
	}

	_, err := d.Invoke(context.Background(), "dying", Inputs{})
	if err == nil {
		t.Fatal("expected the breaker to be open after 3 consecutive failures")
	}
	var oe *orcerr.Error
	if !errors.As(err, &oe) || oe.Kind != orcerr.KindDispatchFailed {
		t.Fatalf("expected a dispatch_failed error, got %v", err)
	}
	if !oe.Retryable() {
		t.Fatal("expected the open-circuit error to be marked retryable")
	}
}
