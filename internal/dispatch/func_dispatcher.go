package dispatch

import (
	"context"
	"fmt"

	"github.com/tapps-dev/orc-engine/internal/clock"
)

// CapabilityFunc is the in-process implementation of one capability.
type CapabilityFunc func(ctx context.Context, inputs Inputs) (StepOutcome, error)

// FuncDispatcher dispatches to in-process Go functions keyed by capability
// name. It exists for tests and for callers embedding the engine directly,
// as an in-process alternative to shelling out per step.
type FuncDispatcher struct {
	Clock        clock.Clock
	Capabilities map[string]CapabilityFunc
}

// NewFuncDispatcher builds an empty FuncDispatcher; register capabilities
// with Register before use.
func NewFuncDispatcher(c clock.Clock) *FuncDispatcher {
	return &FuncDispatcher{Clock: c, Capabilities: make(map[string]CapabilityFunc)}
}

// Register binds a capability name to a function. Re-registering a name
// overwrites the previous binding.
func (d *FuncDispatcher) Register(capability string, fn CapabilityFunc) {
	d.Capabilities[capability] = fn
}

func (d *FuncDispatcher) Invoke(ctx context.Context, capability string, inputs Inputs) (StepOutcome, error) {
	fn, ok := d.Capabilities[capability]
	if !ok {
		return StepOutcome{}, fmt.Errorf("dispatch: no capability registered for %q", capability)
	}

	started := d.Clock.Now()
	outcome, err := fn(ctx, inputs)
	outcome.StartedAt = started
	outcome.EndedAt = d.Clock.Now()
	return outcome, err
}
