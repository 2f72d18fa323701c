// Package gate implements the pure Quality Gate Evaluator: given a gate
// definition, a step's outcome, and the workflow's accumulated signals, it
// decides whether the workflow proceeds, loops back, or fails. Evaluate
// does no I/O and has no side effects beyond the optional Rego evaluation
// it performs in-process against an already-materialized signals map.
package gate

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/tapps-dev/orc-engine/internal/workflow"
)

// Verdict is the result of evaluating a gate.
type Verdict string

const (
	VerdictPass     Verdict = "pass"
	VerdictLoopback Verdict = "loopback"
	VerdictFail     Verdict = "fail"
	VerdictWarn     Verdict = "warn"
)

// Result carries the verdict plus enough context for the executor and for
// `show` to explain why.
type Result struct {
	Verdict    Verdict
	LoopbackTo string // only set when Verdict == VerdictLoopback
	Reason     string
}

// Evaluate decides the outcome of gate g given the step's score/signals and
// the number of times this gate has already triggered a loopback for this
// workflow (iterations). It never mutates its inputs.
func Evaluate(ctx context.Context, g *workflow.Gate, score *float64, boolValue *bool, signals map[string]any, iterations int) (Result, error) {
	thresholdPass, err := evaluateThreshold(g, score, boolValue)
	if err != nil {
		return Result{}, err
	}

	pass := thresholdPass
	if g.Condition != "" {
		conditionPass, err := evaluateCondition(ctx, g.Condition, signals)
		if err != nil {
			return Result{}, fmt.Errorf("gate %q: evaluating condition: %w", g.ID, err)
		}
		pass = pass && conditionPass
	}

	if pass {
		return Result{Verdict: VerdictPass, Reason: "threshold and conditions satisfied"}, nil
	}

	switch g.OnFail.Kind {
	case workflow.GateOnFailWarn:
		return Result{Verdict: VerdictWarn, Reason: "threshold not met, proceeding per warn policy"}, nil
	case workflow.GateOnFailAbort:
		return Result{Verdict: VerdictFail, Reason: "threshold not met, aborting per abort policy"}, nil
	case workflow.GateOnFailLoopback:
		if iterations >= g.MaxIterations {
			return Result{Verdict: VerdictFail, Reason: fmt.Sprintf("loopback budget exhausted (%d/%d iterations)", iterations, g.MaxIterations)}, nil
		}
		return Result{Verdict: VerdictLoopback, LoopbackTo: g.OnFail.LoopbackTo, Reason: "threshold not met, looping back"}, nil
	default:
		return Result{}, fmt.Errorf("gate %q: unrecognised on_fail kind %q", g.ID, g.OnFail.Kind)
	}
}

// evaluateThreshold compares the step's produced value against g.Threshold
// using the metric's kind and direction.
func evaluateThreshold(g *workflow.Gate, score *float64, boolValue *bool) (bool, error) {
	switch workflow.MetricKindOf(g.Metric) {
	case workflow.MetricBoolean:
		want, ok := g.Threshold.(bool)
		if !ok {
			return false, fmt.Errorf("gate %q: threshold for boolean metric %q must be a bool", g.ID, g.Metric)
		}
		if boolValue == nil {
			return false, fmt.Errorf("gate %q: step produced no value for boolean metric %q", g.ID, g.Metric)
		}
		return *boolValue == want, nil
	default:
		threshold, ok := g.Threshold.(float64)
		if !ok {
			return false, fmt.Errorf("gate %q: threshold for numeric metric %q must be a number", g.ID, g.Metric)
		}
		if score == nil {
			return false, fmt.Errorf("gate %q: step produced no value for numeric metric %q", g.ID, g.Metric)
		}
		if workflow.LowerIsBetter(g.Metric) {
			return *score <= threshold, nil
		}
		return *score >= threshold, nil
	}
}

// evaluateCondition runs the boolean Rego expression in src against
// signals bound as `input`, returning the single boolean result of
// `data.gate.allow`.
func evaluateCondition(ctx context.Context, src string, signals map[string]any) (bool, error) {
	module := fmt.Sprintf("package gate\n\nallow = result {\n  result := (%s)\n}\n", src)

	r := rego.New(
		rego.Query("data.gate.allow"),
		rego.Module("condition.rego", module),
		rego.Input(signals),
	)

	pq, err := r.PrepareForEval(ctx)
	if err != nil {
		return false, fmt.Errorf("preparing condition: %w", err)
	}

	rs, err := pq.Eval(ctx, rego.EvalInput(signals))
	if err != nil {
		return false, fmt.Errorf("evaluating condition: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("condition did not evaluate to a boolean")
	}
	return allowed, nil
}
