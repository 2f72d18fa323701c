// Package dispatch implements the Agent Dispatcher: it routes a step's
// declared agent capability to an implementation and returns a structured
// outcome, without ever touching the artifact registry or state store
// directly.
package dispatch

import (
	"context"
	"time"
)

// Inputs is the fully-resolved set of named input values handed to a
// capability invocation — prompts and literals as strings, artifact
// references already read from disk by the caller.
type Inputs map[string]string

// StepOutcome is what a Dispatcher invocation produces: the raw exit
// status, captured output, any files the capability wants registered as
// outputs, and the optional score/signals a gate will later evaluate.
type StepOutcome struct {
	ExitCode         int
	Output           string
	OutputFiles      map[string]string // logical_name -> absolute path on disk
	Score            *float64
	SecondarySignals map[string]any
	StartedAt        time.Time
	EndedAt          time.Time
}

// Succeeded reports whether the invocation itself completed without error
// and with a zero exit code. A Dispatcher still returns a non-nil
// StepOutcome on a non-zero exit code; Succeeded is what the executor uses
// to decide retry/on_failure handling.
func (o StepOutcome) Succeeded() bool {
	return o.ExitCode == 0
}

// Dispatcher invokes one agent capability. Implementations must respect
// ctx cancellation and return promptly once it fires.
type Dispatcher interface {
	Invoke(ctx context.Context, capability string, inputs Inputs) (StepOutcome, error)
}
