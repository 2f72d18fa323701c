package executor

import (
	"fmt"

	"github.com/tapps-dev/orc-engine/internal/artifact"
	"github.com/tapps-dev/orc-engine/internal/dispatch"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// resolveInputs turns a step's declared InputSources into concrete string
// values: literals pass through, prompt inputs come from the workflow's
// user-supplied variables, and artifact inputs are read back from the
// registry using the producing step's currently-succeeded iteration.
func (r *run) resolveInputs(s *workflow.StepDef) (dispatch.Inputs, error) {
	out := make(dispatch.Inputs, len(s.Inputs))
	for name, src := range s.Inputs {
		switch src.Kind {
		case workflow.InputLiteral:
			out[name] = src.Value
		case workflow.InputPrompt:
			v, ok := r.state.Variables[name]
			if !ok {
				return nil, orcerr.New(orcerr.KindDefinitionError,
					fmt.Sprintf("step %q: no value supplied for prompt input %q", s.ID, name))
			}
			out[name] = v
		case workflow.InputArtifact:
			data, err := r.readCurrentArtifact(src.StepID, src.LogicalName)
			if err != nil {
				return nil, err
			}
			out[name] = string(data)
		default:
			return nil, orcerr.New(orcerr.KindDefinitionError,
				fmt.Sprintf("step %q: input %q has unrecognised kind %q", s.ID, name, src.Kind))
		}
	}
	return out, nil
}

// readCurrentArtifact resolves the "current" (highest-iteration,
// succeeded) copy of a producing step's artifact and reads its bytes.
func (r *run) readCurrentArtifact(producerStepID, logicalName string) ([]byte, error) {
	producer, ok := r.state.Steps[producerStepID]
	if !ok {
		return nil, orcerr.New(orcerr.KindNotFound,
			fmt.Sprintf("no state for producing step %q", producerStepID))
	}

	for i := len(producer.ProducedArtifacts) - 1; i >= 0; i-- {
		pa := producer.ProducedArtifacts[i]
		if pa.LogicalName != logicalName {
			continue
		}
		a := &artifact.Artifact{
			WorkflowID:    r.state.WorkflowID,
			StepID:        producerStepID,
			LogicalName:   logicalName,
			Iteration:     pa.Iteration,
			Path:          pa.Path,
			ContentDigest: pa.ContentDigest,
		}
		return r.exec.Artifacts.Read(a)
	}
	return nil, orcerr.New(orcerr.KindNotFound,
		fmt.Sprintf("step %q never produced artifact %q", producerStepID, logicalName))
}
