package workflow

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tapps-dev/orc-engine/internal/orcerr"
)

var stepIDRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)
var retryRe = regexp.MustCompile(`^retry\((\d+)\)$`)

// shapeValidator runs the cheap struct-tag pass before semantic validation.
var shapeValidator = validator.New()

// ParseOptions controls strict vs. lenient unknown-key handling.
type ParseOptions struct {
	// Strict rejects unknown top-level and nested keys (yaml.v3 KnownFields).
	// When false, unknown keys are tolerated; only unknown top-level keys are
	// reported via Warnings, unknown nested keys are ignored silently.
	Strict bool
}

// ParseResult carries the parsed definition plus any lenient-mode warnings.
type ParseResult struct {
	Definition *WorkflowDefinition
	Warnings   []string
}

// Parse parses and validates a YAML workflow definition. Strict mode (the
// default used by Parse) rejects unknown keys; use ParseWithOptions for
// lenient mode.
func Parse(yamlBytes []byte) (*WorkflowDefinition, error) {
	res, err := ParseWithOptions(yamlBytes, ParseOptions{Strict: true})
	if err != nil {
		return nil, err
	}
	return res.Definition, nil
}

// ParseWithOptions parses yamlBytes under the given options.
func ParseWithOptions(yamlBytes []byte, opts ParseOptions) (*ParseResult, error) {
	var raw rawDefinition
	dec := yaml.NewDecoder(bytes.NewReader(yamlBytes))
	dec.KnownFields(opts.Strict)
	if err := dec.Decode(&raw); err != nil {
		return nil, orcerr.Wrap(orcerr.KindDefinitionError, "parsing yaml", err)
	}

	var warnings []string
	if !opts.Strict {
		warnings = lenientUnknownKeyWarnings(yamlBytes)
	}

	if err := shapeValidator.Struct(&raw); err != nil {
		return nil, orcerr.Wrap(orcerr.KindDefinitionError, "shape validation failed", err)
	}

	def, err := buildDefinition(&raw)
	if err != nil {
		return nil, err
	}

	if err := validateSemantics(def); err != nil {
		return nil, err
	}

	digest, err := computeDigest(def)
	if err != nil {
		return nil, err
	}
	def.DefinitionDigest = digest

	return &ParseResult{Definition: def, Warnings: warnings}, nil
}

// lenientUnknownKeyWarnings re-decodes into a generic node tree and reports
// top-level keys outside the known schema, since yaml.v3 has no built-in
// "warn rather than reject" mode.
func lenientUnknownKeyWarnings(yamlBytes []byte) []string {
	known := map[string]bool{
		"name": true, "description": true, "policy": true, "gates": true, "steps": true,
	}
	var root yaml.Node
	if err := yaml.Unmarshal(yamlBytes, &root); err != nil || len(root.Content) == 0 {
		return nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	var warnings []string
	for i := 0; i < len(doc.Content)-1; i += 2 {
		key := doc.Content[i].Value
		if !known[key] {
			warnings = append(warnings, fmt.Sprintf("unknown top-level key %q", key))
		}
	}
	return warnings
}

func buildDefinition(raw *rawDefinition) (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{
		Name:        raw.Name,
		Description: raw.Description,
		Policy:      DefaultPolicy(),
		Gates:       map[string]*Gate{},
	}

	if raw.Policy != nil {
		if raw.Policy.MaxParallelism > 0 {
			def.Policy.MaxParallelism = raw.Policy.MaxParallelism
		}
		if raw.Policy.StepTimeout != "" {
			d, err := parseDuration(raw.Policy.StepTimeout)
			if err != nil {
				return nil, orcerr.Wrap(orcerr.KindDefinitionError, "policy.step_timeout", err)
			}
			def.Policy.StepTimeout = d
		}
		if raw.Policy.CancelGrace != "" {
			d, err := parseDuration(raw.Policy.CancelGrace)
			if err != nil {
				return nil, orcerr.Wrap(orcerr.KindDefinitionError, "policy.cancel_grace", err)
			}
			def.Policy.CancelGrace = d
		}
		if len(raw.Policy.ArtifactRoots) > 0 {
			def.Policy.ArtifactRoots = raw.Policy.ArtifactRoots
		}
	}

	for _, rg := range raw.Gates {
		g := &Gate{
			ID:            rg.ID,
			Metric:        rg.Metric,
			Threshold:     normalizeThreshold(rg.Threshold),
			MaxIterations: rg.MaxIterations,
			Condition:     rg.Condition,
		}
		if g.MaxIterations <= 0 {
			g.MaxIterations = 1
		}
		if rg.OnFail != nil {
			switch {
			case rg.OnFail.LoopbackTo != "":
				g.OnFail = GateOnFail{Kind: GateOnFailLoopback, LoopbackTo: rg.OnFail.LoopbackTo}
			case rg.OnFail.Abort:
				g.OnFail = GateOnFail{Kind: GateOnFailAbort}
			case rg.OnFail.Warn:
				g.OnFail = GateOnFail{Kind: GateOnFailWarn}
			}
		}
		def.Gates[g.ID] = g
	}

	for _, rs := range raw.Steps {
		s := &StepDef{
			ID:            rs.ID,
			Agent:         rs.Agent,
			Capability:    rs.Capability,
			Outputs:       rs.Outputs,
			DependsOn:     rs.DependsOn,
			ParallelGroup: rs.ParallelGroup,
			Gate:          rs.Gate,
		}

		of, err := parseOnFailure(rs.OnFailure)
		if err != nil {
			return nil, orcerr.Wrap(orcerr.KindDefinitionError, fmt.Sprintf("step %q: on_failure", rs.ID), err)
		}
		s.OnFailure = of

		s.Inputs = map[string]InputSource{}
		for name, value := range rs.Inputs {
			s.Inputs[name] = classifyInput(value, def, rs.ID)
		}

		def.Steps = append(def.Steps, s)
	}

	return def, nil
}

// classifyInput determines whether value names an output of an earlier step
// (artifact), the literal keyword "prompt", or a plain literal. Whether the
// referenced output is actually declared is checked by validateSemantics.
func classifyInput(value string, def *WorkflowDefinition, ownerStepID string) InputSource {
	if value == "prompt" {
		return InputSource{Kind: InputPrompt}
	}
	if stepID, logical, ok := splitArtifactRef(value); ok && stepID != ownerStepID {
		if owner := def.StepByID(stepID); owner != nil {
			return InputSource{Kind: InputArtifact, StepID: stepID, LogicalName: logical}
		}
	}
	return InputSource{Kind: InputLiteral, Value: value}
}

func splitArtifactRef(value string) (stepID, logical string, ok bool) {
	idx := strings.LastIndex(value, ".")
	if idx <= 0 || idx == len(value)-1 {
		return "", "", false
	}
	return value[:idx], value[idx+1:], true
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func parseOnFailure(raw string) (OnFailure, error) {
	switch {
	case raw == "" || raw == "abort":
		return OnFailure{Kind: OnFailureAbort}, nil
	case raw == "skip":
		return OnFailure{Kind: OnFailureSkip}, nil
	default:
		m := retryRe.FindStringSubmatch(raw)
		if m == nil {
			return OnFailure{}, fmt.Errorf("must be 'abort', 'skip', or 'retry(N)', got %q", raw)
		}
		n, _ := strconv.Atoi(m[1])
		if n < 0 || n > 5 {
			return OnFailure{}, fmt.Errorf("retry(N) requires 0 <= N <= 5, got %d", n)
		}
		return OnFailure{Kind: OnFailureRetry, MaxRetries: n}, nil
	}
}

// parseDuration accepts "<int>{s,m,h}" or any other Go duration string
// (time.ParseDuration); ISO-8601 durations such as "PT30M" are rejected.
func parseDuration(raw string) (time.Duration, error) {
	return time.ParseDuration(raw)
}

// normalizeThreshold coerces YAML-decoded thresholds (which arrive as int,
// float64, or bool depending on the literal) to the canonical float64/bool pair.
func normalizeThreshold(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return t
	}
}
