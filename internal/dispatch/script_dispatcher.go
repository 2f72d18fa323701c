package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tapps-dev/orc-engine/internal/clock"
)

// ScriptDispatcher shells out to a configured command per capability via
// bash -c, capturing combined stdout/stderr and extracting an exit status
// through exitCode.
type ScriptDispatcher struct {
	Clock clock.Clock

	// Commands maps capability name to the bash command template to run.
	// ${VAR} references are expanded against Inputs plus WorkDir/OutputDir.
	Commands map[string]string

	// WorkDir is the working directory every command runs in.
	WorkDir string

	// OutputDir is where ORC_OUTPUT_DIR points; capabilities that want to
	// register output artifacts write files there, named after the
	// step's declared logical output names.
	OutputDir string
}

// NewScriptDispatcher builds a ScriptDispatcher rooted at workDir/outputDir.
func NewScriptDispatcher(c clock.Clock, workDir, outputDir string) *ScriptDispatcher {
	return &ScriptDispatcher{
		Clock:     c,
		Commands:  make(map[string]string),
		WorkDir:   workDir,
		OutputDir: outputDir,
	}
}

// Register binds a capability name to a bash command template.
func (d *ScriptDispatcher) Register(capability, command string) {
	d.Commands[capability] = command
}

func (d *ScriptDispatcher) Invoke(ctx context.Context, capability string, inputs Inputs) (StepOutcome, error) {
	template, ok := d.Commands[capability]
	if !ok {
		return StepOutcome{}, fmt.Errorf("dispatch: no script registered for capability %q", capability)
	}

	vars := make(map[string]string, len(inputs)+2)
	for k, v := range inputs {
		vars[strings.ToUpper(k)] = v
	}
	vars["WORK_DIR"] = d.WorkDir
	vars["OUTPUT_DIR"] = d.OutputDir

	expanded := ExpandVars(template, vars)

	if err := os.MkdirAll(d.OutputDir, 0755); err != nil {
		return StepOutcome{}, fmt.Errorf("dispatch: creating output dir: %w", err)
	}

	started := d.Clock.Now()

	cmd := exec.CommandContext(ctx, "bash", "-c", expanded)
	cmd.Dir = d.WorkDir
	cmd.Env = append(os.Environ(),
		"ORC_WORK_DIR="+d.WorkDir,
		"ORC_OUTPUT_DIR="+d.OutputDir,
	)

	var captured bytes.Buffer
	cmd.Stdout = io.MultiWriter(&captured)
	cmd.Stderr = io.MultiWriter(&captured)

	runErr := cmd.Run()
	code, err := exitCode(runErr)
	if err != nil {
		return StepOutcome{}, fmt.Errorf("dispatch: running capability %q: %w", capability, err)
	}

	outputFiles, err := collectOutputFiles(d.OutputDir)
	if err != nil {
		return StepOutcome{}, err
	}

	return StepOutcome{
		ExitCode:    code,
		Output:      captured.String(),
		OutputFiles: outputFiles,
		StartedAt:   started,
		EndedAt:     d.Clock.Now(),
	}, nil
}

// collectOutputFiles walks dir and returns every regular file found, keyed
// by its basename, so a capability can simply write files named after the
// step's declared logical outputs.
func collectOutputFiles(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("dispatch: reading output dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make(map[string]string, len(names))
	for _, name := range names {
		out[name] = filepath.Join(dir, name)
	}
	return out, nil
}
