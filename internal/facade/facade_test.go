package facade

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tapps-dev/orc-engine/internal/artifact"
	"github.com/tapps-dev/orc-engine/internal/clock"
	"github.com/tapps-dev/orc-engine/internal/dispatch"
	"github.com/tapps-dev/orc-engine/internal/executor"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

func newTestFacade(t *testing.T) (*Facade, *dispatch.FuncDispatcher, *dispatch.Registry, string) {
	t.Helper()
	stateDir := t.TempDir()
	projectDir := t.TempDir()

	store, err := statestore.NewFileStore(stateDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	locker := statestore.NewFileLocker(stateDir)
	artifacts := artifact.NewRegistry(projectDir, ".orc/artifacts", nil)
	clk := clock.NewSystemClock()
	fd := dispatch.NewFuncDispatcher(clk)
	reg := dispatch.NewRegistry()

	exec := executor.New(store, locker, artifacts, reg, clk, nil)
	f := New(exec, store, clock.NewIDGenerator(clk), nil)
	return f, fd, reg, projectDir
}

func bindCapability(t *testing.T, fd *dispatch.FuncDispatcher, reg *dispatch.Registry, role, capability string, fn dispatch.CapabilityFunc) {
	t.Helper()
	fd.Register(capability, fn)
	if reg.DispatcherFor(role) == nil {
		if err := reg.Bind(role, fd); err != nil {
			t.Fatalf("Bind(%s): %v", role, err)
		}
	}
}

func TestRunProducesSummaryAndPersistsVariables(t *testing.T) {
	f, fd, reg, scratch := newTestFacade(t)

	bindCapability(t, fd, reg, "analyst", "analyze", func(ctx context.Context, in dispatch.Inputs) (dispatch.StepOutcome, error) {
		if in["prompt"] != "widgets" {
			t.Fatalf("expected prompt variable to flow through, got %q", in["prompt"])
		}
		if in["topic"] != "override-topic" {
			t.Fatalf("expected override variable to flow through, got %q", in["topic"])
		}
		path := filepath.Join(scratch, "spec_out")
		if err := os.WriteFile(path, []byte("spec"), 0644); err != nil {
			t.Fatal(err)
		}
		return dispatch.StepOutcome{ExitCode: 0, OutputFiles: map[string]string{"spec_out": path}}, nil
	})

	def, err := workflow.Parse([]byte(`
name: facade-run
steps:
  - id: analyze
    agent: analyst
    capability: analyze
    inputs: {prompt: prompt, topic: prompt}
    outputs: [spec_out]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	res, err := f.Run(context.Background(), def, "widgets", map[string]string{"topic": "override-topic"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != statestore.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", res.Status)
	}
	if res.Summary == "" {
		t.Fatal("expected a non-empty summary")
	}

	st, err := f.Show(context.Background(), res.WorkflowID)
	if err != nil {
		t.Fatalf("Show: %v", err)
	}
	if st.Variables["prompt"] != "widgets" {
		t.Fatalf("expected persisted prompt variable, got %q", st.Variables["prompt"])
	}
}

func TestListAndCleanup(t *testing.T) {
	f, _, _, _ := newTestFacade(t)

	def, err := workflow.Parse([]byte(`
name: empty
steps: []
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if _, err := f.Run(context.Background(), def, "", nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	summaries, err := f.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}

	removed, err := f.Cleanup(context.Background(), statestore.RetentionPolicy{TerminalOnly: true, MaxStates: 0, RetentionDays: 0})
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	_ = removed
}

func TestCancelReportsFalseWhenAlreadyTerminal(t *testing.T) {
	f, _, _, _ := newTestFacade(t)

	def, err := workflow.Parse([]byte(`
name: empty
steps: []
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	res, err := f.Run(context.Background(), def, "", nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != statestore.StatusSucceeded {
		t.Fatalf("expected the empty workflow to succeed immediately, got %s", res.Status)
	}

	changed, err := f.Cancel(context.Background(), res.WorkflowID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if changed {
		t.Fatal("expected Cancel on an already-succeeded workflow to report no change")
	}
}
