// Package workflow parses and validates declarative YAML workflow
// definitions into the immutable WorkflowDefinition the resolver and
// executor operate on.
package workflow

import "time"

// InputKind classifies how a StepDef input value is resolved at dispatch time.
type InputKind string

const (
	InputPrompt   InputKind = "prompt"
	InputLiteral  InputKind = "literal"
	InputArtifact InputKind = "artifact"
)

// InputSource is the resolved source of one named step input.
type InputSource struct {
	Kind InputKind
	// Value is the literal string for InputLiteral, ignored for InputPrompt.
	Value string
	// StepID/LogicalName are populated for InputArtifact.
	StepID      string
	LogicalName string
}

// OnFailureKind enumerates the policies a step may declare for failure handling.
type OnFailureKind string

const (
	OnFailureAbort OnFailureKind = "abort"
	OnFailureSkip  OnFailureKind = "skip"
	OnFailureRetry OnFailureKind = "retry"
)

// OnFailure is a step's declared response to a failed dispatch.
type OnFailure struct {
	Kind       OnFailureKind
	MaxRetries int // only meaningful when Kind == OnFailureRetry, 0..5
}

// GateOnFailKind enumerates what a failing gate does to the workflow.
type GateOnFailKind string

const (
	GateOnFailLoopback GateOnFailKind = "loopback"
	GateOnFailAbort    GateOnFailKind = "abort"
	GateOnFailWarn     GateOnFailKind = "warn"
)

// GateOnFail describes the consequence of a gate evaluating to fail.
type GateOnFail struct {
	Kind       GateOnFailKind
	LoopbackTo string // step_id, only meaningful when Kind == GateOnFailLoopback
}

// MetricKind distinguishes numeric from boolean gate metrics.
type MetricKind string

const (
	MetricNumeric MetricKind = "numeric"
	MetricBoolean MetricKind = "boolean"
)

// lowerIsBetter names the metrics where a smaller value passes the gate.
var lowerIsBetter = map[string]bool{
	"latency_ms":  true,
	"error_count": true,
}

// LowerIsBetter reports whether metric passes when value <= threshold
// rather than the default value >= threshold.
func LowerIsBetter(metric string) bool {
	return lowerIsBetter[metric]
}

// booleanMetrics names the metrics compared by exact boolean match.
var booleanMetrics = map[string]bool{
	"tests_passed": true,
}

// MetricKindOf classifies a metric name as numeric or boolean.
func MetricKindOf(metric string) MetricKind {
	if booleanMetrics[metric] {
		return MetricBoolean
	}
	return MetricNumeric
}

// Gate is a conditional checkpoint evaluated after one or more steps.
type Gate struct {
	ID        string
	Metric    string
	Threshold any // float64 for numeric metrics, bool for boolean metrics
	OnFail    GateOnFail
	// MaxIterations bounds the number of loopback retries this gate may trigger.
	MaxIterations int
	// Condition is an optional Rego boolean expression evaluated over
	// accumulated secondary_signals, combined with AND against the
	// threshold comparison. Empty means threshold-only.
	Condition string
}

// StepDef is one unit of work delegated to an agent capability.
type StepDef struct {
	ID            string
	Agent         string
	Capability    string
	Inputs        map[string]InputSource
	Outputs       []string
	DependsOn     []string
	ParallelGroup string
	OnFailure     OnFailure
	Gate          string // gate id, optional
}

// Policy bounds a workflow's runtime behaviour.
type Policy struct {
	MaxParallelism int
	StepTimeout    time.Duration
	CancelGrace    time.Duration
	ArtifactRoots  []string
}

// DefaultPolicy returns the engine's defaults: max_parallelism=4,
// step_timeout=30m, cancel_grace=10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxParallelism: 4,
		StepTimeout:    30 * time.Minute,
		CancelGrace:    10 * time.Second,
	}
}

// WorkflowDefinition is the immutable, validated representation of a parsed
// workflow YAML file.
type WorkflowDefinition struct {
	Name        string
	Description string
	Policy      Policy
	Gates       map[string]*Gate
	Steps       []*StepDef

	// DefinitionDigest is sha256 of a canonical re-serialization, computed
	// by Parse and used to detect definition drift on resume.
	DefinitionDigest string
}

// StepByID returns the step with the given id, or nil.
func (d *WorkflowDefinition) StepByID(id string) *StepDef {
	for _, s := range d.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StepIndex returns the index of the step with the given id, or -1.
func (d *WorkflowDefinition) StepIndex(id string) int {
	for i, s := range d.Steps {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// AgentRoles is the fixed set of agent identifiers the dispatcher recognises.
var AgentRoles = map[string]bool{
	"analyst": true, "planner": true, "architect": true, "designer": true,
	"implementer": true, "reviewer": true, "tester": true, "debugger": true,
	"documenter": true, "improver": true, "ops": true, "orchestrator": true,
	"enhancer": true, "evaluator": true,
}
