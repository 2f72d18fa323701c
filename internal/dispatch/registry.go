package dispatch

import (
	"context"
	"fmt"

	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Registry maps the fourteen fixed agent roles to Dispatcher
// implementations. A role with no registered Dispatcher is an
// unconfigured role; Invoke reports that as an error rather than
// silently no-opping.
type Registry struct {
	byRole map[string]Dispatcher
}

// NewRegistry builds an empty Registry. Bind roles with Bind.
func NewRegistry() *Registry {
	return &Registry{byRole: make(map[string]Dispatcher)}
}

// Bind associates role with d, wrapping d in a circuit breaker unless it is
// already a *BreakingDispatcher. role must be one of workflow.AgentRoles.
func (r *Registry) Bind(role string, d Dispatcher) error {
	if !workflow.AgentRoles[role] {
		return fmt.Errorf("dispatch: %q is not a recognised agent role", role)
	}
	if _, already := d.(*BreakingDispatcher); !already {
		d = NewBreakingDispatcher(d)
	}
	r.byRole[role] = d
	return nil
}

// DispatcherFor returns the Dispatcher bound to role, or nil if unbound.
func (r *Registry) DispatcherFor(role string) Dispatcher {
	return r.byRole[role]
}

// Invoke resolves role to its bound Dispatcher and invokes capability on it.
func (r *Registry) Invoke(ctx context.Context, role, capability string, inputs Inputs) (StepOutcome, error) {
	d, ok := r.byRole[role]
	if !ok {
		return StepOutcome{}, fmt.Errorf("dispatch: no dispatcher bound for agent role %q", role)
	}
	return d.Invoke(ctx, capability, inputs)
}
