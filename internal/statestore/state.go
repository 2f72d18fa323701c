// Package statestore implements durable, crash-safe WorkflowState snapshots,
// plus the pluggable lock that enforces one writer per workflow_id at a time.
package statestore

import "time"

// CurrentVersion is the wire-format version this build writes. Readers
// accept any snapshot with Version <= CurrentVersion.
const CurrentVersion = 1

type WorkflowStatus string

const (
	StatusInitialising WorkflowStatus = "initialising"
	StatusRunning      WorkflowStatus = "running"
	StatusPaused       WorkflowStatus = "paused"
	StatusSucceeded    WorkflowStatus = "succeeded"
	StatusFailed       WorkflowStatus = "failed"
	StatusCancelled    WorkflowStatus = "cancelled"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepReady     StepStatus = "ready"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepCancelled StepStatus = "cancelled"
)

// ProducedArtifact is the state-store's record of one artifact a step wrote,
// enough to resolve "current" for downstream steps and to verify digests.
type ProducedArtifact struct {
	LogicalName   string `json:"logical_name"`
	Path          string `json:"path"`
	ContentDigest string `json:"content_digest"`
	SizeBytes     int64  `json:"size_bytes"`
	Iteration     int    `json:"iteration"`
}

// StructuredError is the JSON-serializable projection of an *orcerr.Error.
type StructuredError struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// StepState is the persisted progress of a single step.
type StepState struct {
	StepID             string             `json:"step_id"`
	Status             StepStatus         `json:"status"`
	Attempt            int                `json:"attempt"`
	Iteration          int                `json:"iteration"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	EndedAt            *time.Time         `json:"ended_at,omitempty"`
	ProducedArtifacts  []ProducedArtifact `json:"produced_artifacts,omitempty"`
	Error              *StructuredError   `json:"error,omitempty"`
	Score              *float64           `json:"score,omitempty"`
	SecondarySignals   map[string]any     `json:"secondary_signals,omitempty"`
}

// DiagnosticEntry records a loopback or other notable event so `show` can
// render the full history of a workflow run, not just its current state.
type DiagnosticEntry struct {
	At      time.Time `json:"at"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// WorkflowState is the entire persistent record of a workflow's progress —
// the snapshot the Executor writes atomically after each wave and at the
// terminal status.
type WorkflowState struct {
	Version          int               `json:"version"`
	WorkflowID       string            `json:"workflow_id"`
	DefinitionDigest string            `json:"definition_digest"`
	CorrelationID    string            `json:"correlation_id"`
	Status           WorkflowStatus    `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	WrittenAt        time.Time         `json:"written_at"`
	StepOrder        []string          `json:"step_order"`
	Steps            map[string]*StepState `json:"steps"`
	WaveCursor       int               `json:"wave_cursor"`
	Variables        map[string]string `json:"variables,omitempty"`
	GateIterations   map[string]int    `json:"gate_iterations,omitempty"`
	Diagnostics      []DiagnosticEntry `json:"diagnostics,omitempty"`
}

// OrderedSteps returns StepStates in declaration order, for deterministic
// rendering by `show` / `list`.
func (w *WorkflowState) OrderedSteps() []*StepState {
	out := make([]*StepState, 0, len(w.StepOrder))
	for _, id := range w.StepOrder {
		if s, ok := w.Steps[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// WorkflowSummary is the cheap, header-only projection List() returns.
type WorkflowSummary struct {
	WorkflowID string         `json:"workflow_id"`
	Status     WorkflowStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone deep-copies a WorkflowState so callers (e.g. the executor building
// the next snapshot) never mutate a version already handed to a reader.
func (w *WorkflowState) Clone() *WorkflowState {
	cp := *w
	cp.StepOrder = append([]string(nil), w.StepOrder...)
	cp.Steps = make(map[string]*StepState, len(w.Steps))
	for id, s := range w.Steps {
		ss := *s
		ss.ProducedArtifacts = append([]ProducedArtifact(nil), s.ProducedArtifacts...)
		if s.SecondarySignals != nil {
			ss.SecondarySignals = make(map[string]any, len(s.SecondarySignals))
			for k, v := range s.SecondarySignals {
				ss.SecondarySignals[k] = v
			}
		}
		cp.Steps[id] = &ss
	}
	cp.Variables = cloneStringMap(w.Variables)
	cp.GateIterations = cloneIntMap(w.GateIterations)
	cp.Diagnostics = append([]DiagnosticEntry(nil), w.Diagnostics...)
	return &cp
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

func cloneIntMap(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	cp := make(map[string]int, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
