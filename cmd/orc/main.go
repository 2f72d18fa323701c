package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/artifact"
	"github.com/tapps-dev/orc-engine/internal/clock"
	"github.com/tapps-dev/orc-engine/internal/dispatch"
	"github.com/tapps-dev/orc-engine/internal/executor"
	"github.com/tapps-dev/orc-engine/internal/facade"
	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/ux"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Exit codes for the command-line binding.
const (
	exitSuccess        = 0
	exitUserError      = 1
	exitWorkflowFailed = 2
	exitCancelled      = 3
	exitInternal       = 4
)

func main() {
	app := &cli.Command{
		Name:        "orc",
		Usage:       "Multi-agent workflow orchestration engine",
		Description: "Run 'orc run <definition.yaml>' to start a workflow; 'orc resume <definition.yaml> <workflow_id>' to continue one.",
		Commands: []*cli.Command{
			runCmd(),
			resumeCmd(),
			cancelCmd(),
			listCmd(),
			showCmd(),
			cleanupCmd(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a returned error onto the exit code table: 0 success,
// 1 user/definition error, 2 workflow failed, 3 cancelled, 4 internal error.
func exitCodeFor(err error) int {
	if te, ok := err.(*terminalError); ok {
		return te.code
	}
	return exitUserError
}

// terminalError lets command actions attach a specific exit code to an
// otherwise-ordinary error returned from a cli.Command action.
type terminalError struct {
	code int
	err  error
}

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

func newFacade() (*facade.Facade, error) {
	projectRoot, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	stateDir := os.Getenv("TAPPS_STATE_DIR")
	if stateDir == "" {
		stateDir = filepath.Join(projectRoot, ".orc", "state")
	}

	store, err := statestore.NewFileStore(stateDir)
	if err != nil {
		return nil, err
	}
	locker := statestore.NewFileLocker(stateDir)
	artifacts := artifact.NewRegistry(projectRoot, filepath.Join(".orc", "artifacts"), nil)

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}

	clk := clock.NewSystemClock()
	scriptDispatcher := dispatch.NewScriptDispatcher(clk, projectRoot, filepath.Join(projectRoot, ".orc", "capability-output"))
	reg := dispatch.NewRegistry()
	for role := range workflow.AgentRoles {
		if err := reg.Bind(role, scriptDispatcher); err != nil {
			return nil, err
		}
	}

	exec := executor.New(store, locker, artifacts, reg, clk, logger)
	return facade.New(exec, store, clock.NewIDGenerator(clk), logger), nil
}

func readDefinition(path string) (*workflow.WorkflowDefinition, error) {
	yamlBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return workflow.Parse(yamlBytes)
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Start a new workflow run from a definition file",
		ArgsUsage: "<definition.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prompt", Usage: "Free-text prompt seeding the run's prompt-kind inputs"},
			&cli.StringSliceFlag{Name: "var", Usage: "Additional variable override, name=value"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return &terminalError{exitUserError, fmt.Errorf("definition path argument is required")}
			}
			def, err := readDefinition(path)
			if err != nil {
				return &terminalError{exitUserError, err}
			}

			f, err := newFacade()
			if err != nil {
				return &terminalError{exitInternal, err}
			}

			overrides, err := parseVarFlags(cmd.StringSlice("var"))
			if err != nil {
				return &terminalError{exitUserError, err}
			}

			res, err := f.Run(ctx, def, cmd.String("prompt"), overrides)
			return reportRunResult(res, err)
		},
	}
}

func resumeCmd() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume a workflow from its last snapshot",
		ArgsUsage: "<definition.yaml> <workflow_id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() < 2 {
				return &terminalError{exitUserError, fmt.Errorf("definition path and workflow_id arguments are required")}
			}
			def, err := readDefinition(cmd.Args().Get(0))
			if err != nil {
				return &terminalError{exitUserError, err}
			}
			workflowID := cmd.Args().Get(1)

			f, err := newFacade()
			if err != nil {
				return &terminalError{exitInternal, err}
			}

			res, err := f.Resume(ctx, def, workflowID)
			return reportRunResult(res, err)
		},
	}
}

func cancelCmd() *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Cancel a paused or crashed workflow",
		ArgsUsage: "<workflow_id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflowID := cmd.Args().First()
			if workflowID == "" {
				return &terminalError{exitUserError, fmt.Errorf("workflow_id argument is required")}
			}
			f, err := newFacade()
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			changed, err := f.Cancel(ctx, workflowID)
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			fmt.Printf("cancelled: %t\n", changed)
			return nil
		},
	}
}

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List all known workflows",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := newFacade()
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			summaries, err := f.List(ctx)
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			for _, s := range summaries {
				fmt.Printf("%-30s %-12s created=%s updated=%s\n", s.WorkflowID, s.Status,
					s.CreatedAt.Format("2006-01-02T15:04:05Z"), s.UpdatedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
}

func showCmd() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the full snapshot for a workflow",
		ArgsUsage: "<workflow_id>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			workflowID := cmd.Args().First()
			if workflowID == "" {
				return &terminalError{exitUserError, fmt.Errorf("workflow_id argument is required")}
			}
			f, err := newFacade()
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			st, err := f.Show(ctx, workflowID)
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			ux.RenderStatus(st)
			return nil
		},
	}
}

func cleanupCmd() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "Prune old workflow snapshots",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "retention-days", Usage: "Remove terminal snapshots older than N days"},
			&cli.IntFlag{Name: "max-states", Usage: "Keep at most N snapshots, newest first"},
			&cli.BoolFlag{Name: "terminal-only", Value: true, Usage: "Only prune terminal (non-running) snapshots"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			f, err := newFacade()
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			removed, err := f.Cleanup(ctx, statestore.RetentionPolicy{
				RetentionDays: int(cmd.Int("retention-days")),
				MaxStates:     int(cmd.Int("max-states")),
				TerminalOnly:  cmd.Bool("terminal-only"),
			})
			if err != nil {
				return &terminalError{exitInternal, err}
			}
			fmt.Printf("removed: %d\n", removed)
			return nil
		},
	}
}

// reportRunResult prints the facade's summary and maps the outcome to the
// run/resume exit code table.
func reportRunResult(res *facade.RunResult, err error) error {
	if res == nil {
		code := exitInternal
		var oe *orcerr.Error
		if errors.As(err, &oe) && (oe.Kind == orcerr.KindDefinitionError ||
			oe.Kind == orcerr.KindCyclicDependency || oe.Kind == orcerr.KindDefinitionDrift) {
			code = exitUserError
		}
		return &terminalError{code, err}
	}
	fmt.Printf("%s: %s\n", res.WorkflowID, res.Summary)

	switch res.Status {
	case statestore.StatusSucceeded:
		return nil
	case statestore.StatusCancelled:
		return &terminalError{exitCancelled, fmt.Errorf("workflow %s cancelled", res.WorkflowID)}
	case statestore.StatusFailed:
		return &terminalError{exitWorkflowFailed, fmt.Errorf("workflow %s failed", res.WorkflowID)}
	default:
		if err != nil {
			return &terminalError{exitInternal, err}
		}
		ux.ResumeHint(res.WorkflowID)
		return nil
	}
}

func parseVarFlags(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("--var %q is not in name=value form", pair)
		}
		out[k] = v
	}
	return out, nil
}
