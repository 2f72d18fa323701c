package workflow

import (
	"strings"
	"testing"
)

const threeStepYAML = `
name: three-step
steps:
  - id: a
    agent: analyst
    capability: analyze
    inputs:
      prompt: prompt
    outputs: [spec_out]
  - id: b
    agent: planner
    capability: plan
    inputs:
      spec: a.spec_out
    outputs: [design_out]
    depends_on: [a]
  - id: c
    agent: implementer
    capability: implement
    inputs:
      design: b.design_out
    outputs: [code_out]
`

func TestParseHappyPath(t *testing.T) {
	def, err := Parse([]byte(threeStepYAML))
	if err != nil {
		t.Fatal(err)
	}
	if def.Name != "three-step" {
		t.Fatalf("Name = %q", def.Name)
	}
	if len(def.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(def.Steps))
	}
	b := def.StepByID("b")
	if b.Inputs["spec"].Kind != InputArtifact || b.Inputs["spec"].StepID != "a" || b.Inputs["spec"].LogicalName != "spec_out" {
		t.Fatalf("step b input 'spec' not classified as artifact ref: %+v", b.Inputs["spec"])
	}
	a := def.StepByID("a")
	if a.Inputs["prompt"].Kind != InputPrompt {
		t.Fatalf("step a input 'prompt' not classified as prompt source: %+v", a.Inputs["prompt"])
	}
	if def.DefinitionDigest == "" {
		t.Fatalf("expected non-empty definition digest")
	}
}

func TestParseEmptyWorkflow(t *testing.T) {
	def, err := Parse([]byte("name: empty\nsteps: []\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(def.Steps) != 0 {
		t.Fatalf("expected zero steps")
	}
}

func TestParseRejectsUnknownAgent(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - id: a
    agent: wizard
    capability: cast
`))
	if err == nil || !strings.Contains(err.Error(), "unknown agent") {
		t.Fatalf("expected unknown agent error, got %v", err)
	}
}

func TestParseRejectsUnknownArtifactReference(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - id: a
    agent: analyst
    capability: analyze
  - id: b
    agent: planner
    capability: plan
    inputs:
      spec: a.spec_out
`))
	if err == nil || !strings.Contains(err.Error(), "never declares as an output") {
		t.Fatalf("expected dangling artifact reference error, got %v", err)
	}
}

func TestParseStrictModeRejectsUnknownKey(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
bogus_key: true
steps: []
`))
	if err == nil {
		t.Fatalf("expected strict mode to reject unknown top-level key")
	}
}

func TestParseLenientModeWarns(t *testing.T) {
	res, err := ParseWithOptions([]byte(`
name: ok
bogus_key: true
steps: []
`), ParseOptions{Strict: false})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) == 0 {
		t.Fatalf("expected lenient mode to produce a warning")
	}
}

func TestParseRetryRange(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
steps:
  - id: a
    agent: analyst
    capability: analyze
    on_failure: retry(9)
`))
	if err == nil || !strings.Contains(err.Error(), "retry(N)") {
		t.Fatalf("expected retry range error, got %v", err)
	}
}

func TestDigestStableAcrossKeyOrder(t *testing.T) {
	a := `
name: x
gates:
  - id: g
    metric: overall_score
    threshold: 7
    on_fail:
      loopback_to: a
steps:
  - id: a
    agent: analyst
    capability: analyze
`
	b := `
steps:
  - id: a
    capability: analyze
    agent: analyst
gates:
  - on_fail:
      loopback_to: a
    threshold: 7
    metric: overall_score
    id: g
name: x
`
	d1, err := Parse([]byte(a))
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Parse([]byte(b))
	if err != nil {
		t.Fatal(err)
	}
	if d1.DefinitionDigest != d2.DefinitionDigest {
		t.Fatalf("digests differ across key order: %s vs %s", d1.DefinitionDigest, d2.DefinitionDigest)
	}
}

func TestGateBooleanThresholdValidation(t *testing.T) {
	_, err := Parse([]byte(`
name: bad
gates:
  - id: g
    metric: tests_passed
    threshold: 7
    on_fail:
      loopback_to: a
steps:
  - id: a
    agent: tester
    capability: test
    gate: g
`))
	if err == nil || !strings.Contains(err.Error(), "boolean") {
		t.Fatalf("expected boolean threshold validation error, got %v", err)
	}
}
