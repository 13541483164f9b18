package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	// MaxSteps caps move tokens per run (0 = unlimited). Unsolvable missions end
	// with SWEEP_EXHAUSTED without it, so any nonzero cap must exceed a full sweep
	// of the largest accepted grid or it cuts valid runs short.
	MaxSteps      int `yaml:"max_steps" json:"max_steps"`
	MaxGridSize   int `yaml:"max_grid_size" json:"max_grid_size"`
	MaxComponents int `yaml:"max_components" json:"max_components"`

	// RecordSteps enables per-step records (JSONL + index). Run summaries are always recorded.
	RecordSteps bool `yaml:"record_steps" json:"record_steps"`

	Server ServerLimits `yaml:"server" json:"server"`
}

type ServerLimits struct {
	MaxConcurrentRuns int   `yaml:"max_concurrent_runs" json:"max_concurrent_runs"`
	MaxBodyBytes      int64 `yaml:"max_body_bytes" json:"max_body_bytes"`
	StreamQueue       int   `yaml:"stream_queue" json:"stream_queue"`
	WriteTimeoutMs    int   `yaml:"write_timeout_ms" json:"write_timeout_ms"`

	// RunsPerSecond throttles run submissions across transports (0 = unlimited).
	RunsPerSecond float64 `yaml:"runs_per_second" json:"runs_per_second"`
	RunBurst      int     `yaml:"run_burst" json:"run_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		MaxSteps:        0,
		MaxGridSize:     4096,
		MaxComponents:   100_000,
		RecordSteps:     true,
		Server: ServerLimits{
			MaxConcurrentRuns: 8,
			MaxBodyBytes:      4 << 20,
			StreamQueue:       256,
			WriteTimeoutMs:    5000,
			RunsPerSecond:     50,
			RunBurst:          100,
		},
	}
}

// Load overlays the file at path on Defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be >= 0, got %d", t.MaxSteps)
	}
	if t.MaxGridSize < 0 || t.MaxComponents < 0 {
		return fmt.Errorf("max_grid_size/max_components must be >= 0")
	}
	if t.Server.MaxConcurrentRuns < 0 || t.Server.StreamQueue < 0 {
		return fmt.Errorf("server limits must be >= 0")
	}
	if t.Server.RunsPerSecond < 0 || t.Server.RunBurst < 0 {
		return fmt.Errorf("runs_per_second/run_burst must be >= 0")
	}
	if t.Server.RunsPerSecond > 0 && t.Server.RunBurst == 0 {
		return fmt.Errorf("run_burst must be >= 1 when runs_per_second is set")
	}
	return nil
}
