package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/tapps-dev/orc-engine/internal/clock"
)

func TestFuncDispatcherInvokesRegisteredCapability(t *testing.T) {
	d := NewFuncDispatcher(clock.NewFakeClock(time.Unix(0, 0)))
	d.Register("review_code", func(ctx context.Context, inputs Inputs) (StepOutcome, error) {
		return StepOutcome{ExitCode: 0, Output: "looks good: " + inputs["diff"]}, nil
	})

	out, err := d.Invoke(context.Background(), "review_code", Inputs{"diff": "+1 -1"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !out.Succeeded() {
		t.Fatalf("expected success, got exit code %d", out.ExitCode)
	}
	if out.Output != "looks good: +1 -1" {
		t.Fatalf("unexpected output: %q", out.Output)
	}
}

func TestFuncDispatcherUnknownCapability(t *testing.T) {
	d := NewFuncDispatcher(clock.NewSystemClock())

	_, err := d.Invoke(context.Background(), "nonexistent", Inputs{})
	if err == nil {
		t.Fatal("expected an error for an unregistered capability")
	}
}

func TestFuncDispatcherPropagatesFuncError(t *testing.T) {
	d := NewFuncDispatcher(clock.NewSystemClock())
	d.Register("flaky", func(ctx context.Context, inputs Inputs) (StepOutcome, error) {
		return StepOutcome{}, context.DeadlineExceeded
	})

	_, err := d.Invoke(context.Background(), "flaky", Inputs{})
	if err == nil {
		t.Fatal("expected the capability's error to propagate")
	}
}
