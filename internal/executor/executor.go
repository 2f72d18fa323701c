// Package executor implements the Workflow Executor: it drives a parsed
// definition's wave schedule to completion, dispatching each step to its
// bound agent capability, evaluating gates, handling retries and loopback,
// and persisting a crash-safe snapshot after each wave and at the terminal
// status.
package executor

import (
	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/artifact"
	"github.com/tapps-dev/orc-engine/internal/clock"
	"github.com/tapps-dev/orc-engine/internal/dispatch"
	"github.com/tapps-dev/orc-engine/internal/graph"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Executor wires the four other components together and owns the
// executable semantics of a single workflow run.
type Executor struct {
	Store      statestore.Store
	Locker     statestore.Locker
	Artifacts  *artifact.Registry
	Dispatcher *dispatch.Registry
	Clock      clock.Clock
	IDs        *clock.IDGenerator
	Logger     *zap.Logger
}

// New builds an Executor from its component dependencies. A nil logger is
// replaced with zap.NewNop() so callers never need a nil check.
func New(store statestore.Store, locker statestore.Locker, artifacts *artifact.Registry, dispatcher *dispatch.Registry, clk clock.Clock, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		Store:      store,
		Locker:     locker,
		Artifacts:  artifacts,
		Dispatcher: dispatcher,
		Clock:      clk,
		IDs:        clock.NewIDGenerator(clk),
		Logger:     logger,
	}
}

// run is the mutable, in-memory driving context for one invocation of the
// execution loop (fresh Run or a Resume), bundling the definition, its
// schedule, and the state snapshot being evolved.
type run struct {
	def      *workflow.WorkflowDefinition
	schedule *graph.Schedule
	state    *statestore.WorkflowState
	exec     *Executor
}
