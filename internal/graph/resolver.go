// Package graph implements the Dependency Resolver (C5): it builds the step
// DAG, detects cycles, and produces the deterministic wave/batch schedule the
// executor drives.
package graph

import (
	"fmt"
	"sort"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Wave is one schedulable unit: either all steps sharing a parallel_group
// tag, or a single untagged step running alone. The executor advances
// wave_cursor one Wave at a time; Waves within the same DAG level execute in
// the deterministic order Schedule lists them in.
type Wave struct {
	// ParallelGroup is empty for a singleton (untagged) wave.
	ParallelGroup string
	Steps         []string
}

// Schedule is the ordered sequence of Waves the executor runs.
type Schedule struct {
	Waves []Wave
}

// StepIndex returns the wave index containing stepID, or -1.
func (s *Schedule) StepIndex(stepID string) int {
	for i, w := range s.Waves {
		for _, id := range w.Steps {
			if id == stepID {
				return i
			}
		}
	}
	return -1
}

// Resolve builds the dependency DAG for def, detects cycles, and computes
// a deterministic wave schedule.
func Resolve(def *workflow.WorkflowDefinition) (*Schedule, error) {
	edges, err := buildEdges(def)
	if err != nil {
		return nil, err
	}

	levels, err := computeLevels(def, edges)
	if err != nil {
		return nil, err
	}

	return buildWaveSchedule(def, levels), nil
}

// buildEdges returns, for each step id, the set of its direct predecessors:
// explicit depends_on plus every step referenced by an artifact input.
func buildEdges(def *workflow.WorkflowDefinition) (map[string]map[string]bool, error) {
	preds := make(map[string]map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		set := make(map[string]bool)
		for _, dep := range s.DependsOn {
			set[dep] = true
		}
		for _, in := range s.Inputs {
			if in.Kind == workflow.InputArtifact {
				set[in.StepID] = true
			}
		}
		preds[s.ID] = set
	}
	return preds, nil
}

// computeLevels runs Kahn's algorithm to assign each step a DAG level
// (the index of the coarsest wave containing it), detecting cycles along
// the way. On a cycle, it names one member found via DFS back-edge.
func computeLevels(def *workflow.WorkflowDefinition, preds map[string]map[string]bool) (map[string]int, error) {
	succs := make(map[string][]string, len(def.Steps))
	indegree := make(map[string]int, len(def.Steps))
	for id := range preds {
		indegree[id] = len(preds[id])
	}
	for id, set := range preds {
		for dep := range set {
			succs[dep] = append(succs[dep], id)
		}
	}
	for _, list := range succs {
		sort.Strings(list)
	}

	levels := make(map[string]int, len(def.Steps))
	var frontier []string
	for _, s := range def.Steps {
		if indegree[s.ID] == 0 {
			frontier = append(frontier, s.ID)
			levels[s.ID] = 0
		}
	}
	sort.Strings(frontier)

	remaining := indegree
	visited := 0
	for len(frontier) > 0 {
		var next []string
		sort.Strings(frontier)
		for _, id := range frontier {
			visited++
			for _, succ := range succs[id] {
				remaining[succ]--
				if lv := levels[id] + 1; lv > levels[succ] {
					levels[succ] = lv
				}
				if remaining[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}

	if visited != len(def.Steps) {
		member := findCycleMember(def, preds)
		return nil, orcerr.New(orcerr.KindCyclicDependency,
			fmt.Sprintf("dependency cycle detected, involving step %q", member))
	}

	return levels, nil
}

// findCycleMember does a DFS over the predecessor graph to find one step
// that sits on a cycle, for a useful error message.
func findCycleMember(def *workflow.WorkflowDefinition, preds map[string]map[string]bool) string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(def.Steps))
	var found string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		deps := make([]string, 0, len(preds[id]))
		for d := range preds[id] {
			deps = append(deps, d)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			switch color[dep] {
			case gray:
				found = dep
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, s := range def.Steps {
		if color[s.ID] == white {
			if visit(s.ID) {
				return found
			}
		}
	}
	return def.Steps[0].ID
}

// buildWaveSchedule splits each DAG level into parallel_group-scoped
// batches, sorted by (parallel_group, id) for determinism.
func buildWaveSchedule(def *workflow.WorkflowDefinition, levels map[string]int) *Schedule {
	maxLevel := 0
	for _, lv := range levels {
		if lv > maxLevel {
			maxLevel = lv
		}
	}

	var schedule Schedule
	for lv := 0; lv <= maxLevel; lv++ {
		var atLevel []*workflow.StepDef
		for _, s := range def.Steps {
			if levels[s.ID] == lv {
				atLevel = append(atLevel, s)
			}
		}
		sort.Slice(atLevel, func(i, j int) bool {
			gi, gj := atLevel[i].ParallelGroup, atLevel[j].ParallelGroup
			if gi != gj {
				return gi < gj
			}
			return atLevel[i].ID < atLevel[j].ID
		})

		seenGroup := map[string]bool{}
		for _, s := range atLevel {
			if s.ParallelGroup == "" {
				schedule.Waves = append(schedule.Waves, Wave{Steps: []string{s.ID}})
				continue
			}
			if seenGroup[s.ParallelGroup] {
				continue
			}
			seenGroup[s.ParallelGroup] = true
			var members []string
			for _, m := range atLevel {
				if m.ParallelGroup == s.ParallelGroup {
					members = append(members, m.ID)
				}
			}
			schedule.Waves = append(schedule.Waves, Wave{ParallelGroup: s.ParallelGroup, Steps: members})
		}
	}

	return &schedule
}
