package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/tapps-dev/orc-engine/internal/clock"
)

func TestScriptDispatcherRunsCommandAndCollectsOutputs(t *testing.T) {
	workDir := t.TempDir()
	outputDir := t.TempDir()

	d := NewScriptDispatcher(clock.NewSystemClock(), workDir, outputDir)
	d.Register("generate_notes", `echo "$TICKET" > "$OUTPUT_DIR/notes.md"`)

	out, err := d.Invoke(context.Background(), "generate_notes", Inputs{"ticket": "TAPPS-42"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !out.Succeeded() {
		t.Fatalf("expected exit 0, got %d: %s", out.ExitCode, out.Output)
	}

	path, ok := out.OutputFiles["notes.md"]
	if !ok {
		t.Fatalf("expected notes.md in OutputFiles, got %v", out.OutputFiles)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading collected output file: %v", err)
	}
	if string(data) != "TAPPS-42\n" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestScriptDispatcherNonZeroExit(t *testing.T) {
	workDir := t.TempDir()
	outputDir := t.TempDir()

	d := NewScriptDispatcher(clock.NewSystemClock(), workDir, outputDir)
	d.Register("always_fails", `exit 7`)

	out, err := d.Invoke(context.Background(), "always_fails", Inputs{})
	if err != nil {
		t.Fatalf("Invoke should not error on a script's own non-zero exit: %v", err)
	}
	if out.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d", out.ExitCode)
	}
}

func TestScriptDispatcherUnknownCapability(t *testing.T) {
	d := NewScriptDispatcher(clock.NewSystemClock(), t.TempDir(), t.TempDir())

	_, err := d.Invoke(context.Background(), "nonexistent", Inputs{})
	if err == nil {
		t.Fatal("expected an error for an unregistered capability")
	}
}

func TestScriptDispatcherVarExpansion(t *testing.T) {
	workDir := t.TempDir()
	outputDir := t.TempDir()

	d := NewScriptDispatcher(clock.NewSystemClock(), workDir, outputDir)
	d.Register("echo_input", `echo -n "${TICKET}" > "$OUTPUT_DIR/out.txt"`)

	_, err := d.Invoke(context.Background(), "echo_input", Inputs{"ticket": "abc-123"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(outputDir, "out.txt"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(data) != "abc-123" {
		t.Fatalf("expected expanded ticket value, got %q", data)
	}
}
