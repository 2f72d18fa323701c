package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// canonicalGate and canonicalStep give computeDigest a stable JSON shape:
// keys appear in these structs' fixed field order, and map-derived slices
// (gates, inputs) are sorted, so map iteration order does not matter.
type canonicalGate struct {
	ID            string `json:"id"`
	Metric        string `json:"metric"`
	Threshold     any    `json:"threshold"`
	OnFailKind    string `json:"on_fail_kind"`
	LoopbackTo    string `json:"loopback_to,omitempty"`
	MaxIterations int    `json:"max_iterations"`
	Condition     string `json:"condition,omitempty"`
}

type canonicalInput struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Value       string `json:"value,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	LogicalName string `json:"logical_name,omitempty"`
}

type canonicalStep struct {
	ID            string           `json:"id"`
	Agent         string           `json:"agent"`
	Capability    string           `json:"capability"`
	Inputs        []canonicalInput `json:"inputs"`
	Outputs       []string         `json:"outputs"`
	DependsOn     []string         `json:"depends_on"`
	ParallelGroup string           `json:"parallel_group,omitempty"`
	OnFailureKind string           `json:"on_failure_kind"`
	MaxRetries    int              `json:"max_retries,omitempty"`
	Gate          string           `json:"gate,omitempty"`
}

type canonicalDefinition struct {
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	MaxParallelism int             `json:"max_parallelism"`
	StepTimeout    string          `json:"step_timeout"`
	CancelGrace    string          `json:"cancel_grace"`
	ArtifactRoots  []string        `json:"artifact_roots,omitempty"`
	Gates          []canonicalGate `json:"gates"`
	Steps          []canonicalStep `json:"steps"`
}

// computeDigest hashes a canonical re-serialization of def (gates sorted by
// id, inputs sorted by name), so that the same logical definition always
// yields the same digest regardless of YAML key order or map iteration
// order. Parse uses it to stamp DefinitionDigest, which the executor's
// resume path compares against the snapshot's digest to detect drift.
func computeDigest(def *WorkflowDefinition) (string, error) {
	canon := canonicalDefinition{
		Name:           def.Name,
		Description:    def.Description,
		MaxParallelism: def.Policy.MaxParallelism,
		StepTimeout:    def.Policy.StepTimeout.String(),
		CancelGrace:    def.Policy.CancelGrace.String(),
		ArtifactRoots:  def.Policy.ArtifactRoots,
	}

	gateIDs := make([]string, 0, len(def.Gates))
	for id := range def.Gates {
		gateIDs = append(gateIDs, id)
	}
	sort.Strings(gateIDs)
	for _, id := range gateIDs {
		g := def.Gates[id]
		canon.Gates = append(canon.Gates, canonicalGate{
			ID:            g.ID,
			Metric:        g.Metric,
			Threshold:     g.Threshold,
			OnFailKind:    string(g.OnFail.Kind),
			LoopbackTo:    g.OnFail.LoopbackTo,
			MaxIterations: g.MaxIterations,
			Condition:     g.Condition,
		})
	}

	for _, s := range def.Steps {
		inputNames := make([]string, 0, len(s.Inputs))
		for name := range s.Inputs {
			inputNames = append(inputNames, name)
		}
		sort.Strings(inputNames)

		var inputs []canonicalInput
		for _, name := range inputNames {
			in := s.Inputs[name]
			inputs = append(inputs, canonicalInput{
				Name: name, Kind: string(in.Kind), Value: in.Value,
				StepID: in.StepID, LogicalName: in.LogicalName,
			})
		}

		canon.Steps = append(canon.Steps, canonicalStep{
			ID: s.ID, Agent: s.Agent, Capability: s.Capability,
			Inputs: inputs, Outputs: s.Outputs, DependsOn: s.DependsOn,
			ParallelGroup: s.ParallelGroup,
			OnFailureKind: string(s.OnFailure.Kind), MaxRetries: s.OnFailure.MaxRetries,
			Gate: s.Gate,
		})
	}

	data, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
