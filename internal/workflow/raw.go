package workflow

// rawDefinition mirrors the on-disk YAML shape. validator tags give a cheap
// shape check before the hand-written semantic validation in validate.go
// runs, mirroring a Load -> Validate split.
type rawDefinition struct {
	Name        string     `yaml:"name" validate:"required"`
	Description string     `yaml:"description"`
	Policy      *rawPolicy `yaml:"policy"`
	Gates       []rawGate  `yaml:"gates"`
	Steps       []rawStep  `yaml:"steps" validate:"required,min=0,dive"`
}

type rawPolicy struct {
	MaxParallelism int      `yaml:"max_parallelism" validate:"omitempty,min=1"`
	StepTimeout    string   `yaml:"step_timeout"`
	CancelGrace    string   `yaml:"cancel_grace"`
	ArtifactRoots  []string `yaml:"artifact_roots"`
}

type rawGate struct {
	ID            string         `yaml:"id" validate:"required"`
	Metric        string         `yaml:"metric" validate:"required"`
	Threshold     any            `yaml:"threshold" validate:"required"`
	OnFail        *rawGateOnFail `yaml:"on_fail" validate:"required"`
	MaxIterations int            `yaml:"max_iterations" validate:"omitempty,min=1"`
	Condition     string         `yaml:"condition"`
}

type rawGateOnFail struct {
	LoopbackTo string `yaml:"loopback_to"`
	Abort      bool   `yaml:"abort"`
	Warn       bool   `yaml:"warn"`
}

type rawStep struct {
	ID            string            `yaml:"id" validate:"required"`
	Agent         string            `yaml:"agent" validate:"required"`
	Capability    string            `yaml:"capability" validate:"required"`
	Inputs        map[string]string `yaml:"inputs"`
	Outputs       []string          `yaml:"outputs"`
	DependsOn     []string          `yaml:"depends_on"`
	ParallelGroup string            `yaml:"parallel_group"`
	// OnFailure is one of "abort", "skip", or "retry(N)" (0 <= N <= 5).
	OnFailure string `yaml:"on_failure"`
	Gate      string `yaml:"gate"`
}
