package ux

import (
	"fmt"
	"sort"

	"github.com/tapps-dev/orc-engine/internal/statestore"
)

// RenderStatus prints the full status display for a workflow snapshot.
func RenderStatus(st *statestore.WorkflowState) {
	fmt.Printf("%sWorkflow:%s  %s\n", Bold, Reset, st.WorkflowID)
	fmt.Printf("%sStatus:%s    %s%s%s\n", Bold, Reset, statusColor(string(st.Status)), st.Status, Reset)
	fmt.Printf("%sWave:%s      %d\n", Bold, Reset, st.WaveCursor)

	fmt.Printf("\n%sSteps:%s\n", Bold, Reset)
	for _, stepID := range st.StepOrder {
		ss := st.Steps[stepID]
		marker := "  "
		if ss.Status == statestore.StepRunning || ss.Status == statestore.StepReady {
			marker = fmt.Sprintf("%s→%s ", Yellow, Reset)
		}
		scoreStr := ""
		if ss.Score != nil {
			scoreStr = fmt.Sprintf(" score=%.1f", *ss.Score)
		}
		errStr := ""
		if ss.Error != nil {
			errStr = fmt.Sprintf(" (%s)", ss.Error.Kind)
		}
		fmt.Printf("  %s%-20s %s%-10s%s attempt=%d iteration=%d%s%s\n",
			marker, stepID, statusColor(string(ss.Status)), ss.Status, Reset, ss.Attempt, ss.Iteration, scoreStr, errStr)
	}

	if len(st.Diagnostics) > 0 {
		fmt.Printf("\n%sDiagnostics:%s\n", Bold, Reset)
		for _, d := range st.Diagnostics {
			fmt.Printf("  %s[%s]%s %s: %s\n", Dim, d.At.Format("15:04:05"), Reset, d.Kind, d.Message)
		}
	}

	fmt.Printf("\n%sArtifacts:%s\n", Bold, Reset)
	names := make([]string, 0, len(st.Steps))
	for id := range st.Steps {
		names = append(names, id)
	}
	sort.Strings(names)
	any := false
	for _, id := range names {
		for _, a := range st.Steps[id].ProducedArtifacts {
			any = true
			fmt.Printf("  %s/%s (%s, %d bytes)\n", id, a.LogicalName, a.ContentDigest[:12], a.SizeBytes)
		}
	}
	if !any {
		fmt.Printf("  %s(none)%s\n", Dim, Reset)
	}
	fmt.Println()
}

func statusColor(s string) string {
	switch s {
	case "succeeded":
		return Green
	case "failed":
		return Red
	case "running", "ready":
		return Yellow
	default:
		return Dim
	}
}
