package workflow

import (
	"fmt"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

// validateSemantics implements the cross-reference and domain rules a
// struct-tag validator cannot express.
func validateSemantics(def *WorkflowDefinition) error {
	if len(def.Steps) == 0 {
		// An empty workflow is a valid boundary case: it terminates
		// succeeded immediately. Nothing further to validate.
		return nil
	}

	seen := make(map[string]bool, len(def.Steps))
	declaredOutputs := make(map[string]map[string]bool, len(def.Steps))

	for _, s := range def.Steps {
		if !stepIDRe.MatchString(s.ID) {
			return defErr(fmt.Sprintf("step id %q does not match [a-zA-Z_][a-zA-Z0-9_-]*", s.ID))
		}
		if seen[s.ID] {
			return defErr(fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true

		if !AgentRoles[s.Agent] {
			return defErr(fmt.Sprintf("step %q: unknown agent %q", s.ID, s.Agent))
		}
		if s.Capability == "" {
			return defErr(fmt.Sprintf("step %q: capability is required", s.ID))
		}

		outs := make(map[string]bool, len(s.Outputs))
		for _, o := range s.Outputs {
			outs[o] = true
		}
		declaredOutputs[s.ID] = outs

		if s.OnFailure.Kind == OnFailureRetry && (s.OnFailure.MaxRetries < 0 || s.OnFailure.MaxRetries > 5) {
			return defErr(fmt.Sprintf("step %q: on_failure retry(N) requires 0 <= N <= 5", s.ID))
		}
	}

	stepIndex := make(map[string]int, len(def.Steps))
	for i, s := range def.Steps {
		stepIndex[s.ID] = i
	}

	for _, s := range def.Steps {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return defErr(fmt.Sprintf("step %q: depends_on references unknown step %q", s.ID, dep))
			}
		}

		for name, in := range s.Inputs {
			if in.Kind != InputArtifact {
				continue
			}
			if !seen[in.StepID] {
				return defErr(fmt.Sprintf("step %q: input %q references unknown step %q", s.ID, name, in.StepID))
			}
			if stepIndex[in.StepID] >= stepIndex[s.ID] {
				return defErr(fmt.Sprintf("step %q: input %q references step %q which is not an earlier step", s.ID, name, in.StepID))
			}
			if !declaredOutputs[in.StepID][in.LogicalName] {
				return defErr(fmt.Sprintf("step %q: input %q references %s.%s, which %q never declares as an output",
					s.ID, name, in.StepID, in.LogicalName, in.StepID))
			}
		}

		if s.Gate != "" {
			if _, ok := def.Gates[s.Gate]; !ok {
				return defErr(fmt.Sprintf("step %q: gate %q is not defined", s.ID, s.Gate))
			}
		}

	}

	for id, g := range def.Gates {
		if g.MaxIterations <= 0 {
			return defErr(fmt.Sprintf("gate %q: max_iterations must be a positive integer", id))
		}
		switch MetricKindOf(g.Metric) {
		case MetricBoolean:
			if _, ok := g.Threshold.(bool); !ok {
				return defErr(fmt.Sprintf("gate %q: metric %q is boolean, threshold must be true/false", id, g.Metric))
			}
		case MetricNumeric:
			if _, ok := g.Threshold.(float64); !ok {
				return defErr(fmt.Sprintf("gate %q: metric %q is numeric, threshold must be a number", id, g.Metric))
			}
		}
		if g.OnFail.Kind == GateOnFailLoopback {
			if g.OnFail.LoopbackTo == "" {
				return defErr(fmt.Sprintf("gate %q: on_fail.loopback_to is required for loopback", id))
			}
			if !seen[g.OnFail.LoopbackTo] {
				return defErr(fmt.Sprintf("gate %q: on_fail.loopback_to references unknown step %q", id, g.OnFail.LoopbackTo))
			}
		}
	}

	// Two concurrent steps must never target the same (step_id, logical_name)
	// artifact: enforced trivially since each step only ever writes its own
	// outputs, so cross-step collisions are impossible by construction. The
	// remaining risk is a parallel_group pair racing on a *shared* gate;
	// reject that explicitly.
	gateOwners := map[string]string{}
	for _, s := range def.Steps {
		if s.Gate == "" || s.ParallelGroup == "" {
			continue
		}
		if owner, ok := gateOwners[s.Gate+"|"+s.ParallelGroup]; ok {
			return defErr(fmt.Sprintf("steps %q and %q: a gate cannot be shared by two steps in the same parallel_group", owner, s.ID))
		}
		gateOwners[s.Gate+"|"+s.ParallelGroup] = s.ID
	}

	return nil
}

func defErr(msg string) *orcerr.Error {
	return orcerr.New(orcerr.KindDefinitionError, msg)
}
