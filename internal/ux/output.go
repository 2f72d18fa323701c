// Package ux renders terminal-facing summaries of workflow and step
// progress. Diagnostics and structured logs go through zap; this package is
// reserved for the human-facing status line a caller watches while a run is
// in flight.
package ux

import (
	"fmt"
	"time"

	"github.com/tapps-dev/orc-engine/internal/statestore"
)

// ANSI color helpers
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// WaveHeader prints a timestamped header for the wave about to run.
func WaveHeader(index, total int, stepIDs []string) {
	fmt.Printf("\n%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
	fmt.Printf("%s[%s]%s  %sWave %d/%d: %v%s\n",
		Dim, timestamp(), Reset, Bold, index+1, total, stepIDs, Reset)
	fmt.Printf("%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
}

// StepComplete prints a step completion message.
func StepComplete(stepID string, duration time.Duration) {
	m := int(duration.Minutes())
	s := int(duration.Seconds()) % 60
	fmt.Printf("%s[%s]%s  %s✓ %s complete (%dm %02ds)%s\n",
		Dim, timestamp(), Reset, Green, stepID, m, s, Reset)
}

// StepFail prints a step failure message.
func StepFail(stepID, errMsg string) {
	fmt.Printf("%s[%s]%s  %s✗ %s failed: %s%s\n",
		Dim, timestamp(), Reset, Red, stepID, errMsg, Reset)
}

// StepSkip prints a step skip message.
func StepSkip(stepID string) {
	fmt.Printf("%s[%s]%s  %s– %s skipped%s\n",
		Dim, timestamp(), Reset, Dim, stepID, Reset)
}

// LoopBack prints a gate loopback message.
func LoopBack(gateID, targetStep string, iteration, max int) {
	fmt.Printf("%s[%s]%s  %s↺ gate %q sent the workflow back to %q (iteration %d/%d)%s\n",
		Dim, timestamp(), Reset, Yellow, gateID, targetStep, iteration, max, Reset)
}

// ResumeHint prints a resume command hint.
func ResumeHint(workflowID string) {
	fmt.Printf("\n%sResume:%s orc resume <definition.yaml> %s\n", Yellow, Reset, workflowID)
}

// Success prints a final success message.
func Success(st *statestore.WorkflowState) {
	fmt.Printf("\n%s[%s]%s  %s%s══ workflow %s complete (%d steps) ══%s\n\n",
		Dim, timestamp(), Reset, Bold, Green, st.WorkflowID, len(st.Steps), Reset)
}
