// Package config provides configuration loading for diagramd.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/diagramd/internal/logging"
)

// Config is the root configuration.
type Config struct {
	LLM       LLMConfig       `koanf:"llm"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Render    RenderConfig    `koanf:"render"`
	Output    OutputConfig    `koanf:"output"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   *logging.Config `koanf:"logging"`
}

// LLMConfig configures the generative text provider.
type LLMConfig struct {
	// Model is the provider model identifier.
	Model string `koanf:"model"`

	// APIKey authenticates against the provider. Usually supplied via
	// the LLM_API_KEY environment variable, never the config file.
	APIKey string `koanf:"api_key"`

	// Temperature is the default sampling temperature.
	Temperature float64 `koanf:"temperature"`

	// MaxAttempts bounds retries of a single provider call.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialBackoff is the first retry wait.
	InitialBackoff time.Duration `koanf:"initial_backoff"`
}

// RateLimitConfig configures admission control for provider calls.
type RateLimitConfig struct {
	// Capacity is the token budget inside the sliding window.
	Capacity int `koanf:"capacity"`

	// Window is the trailing window length. The provider enforces 60s;
	// the default adds a buffer for clock skew and network latency.
	Window time.Duration `koanf:"window"`

	// Mode selects the soft-pacing table: safe or fast.
	Mode string `koanf:"mode"`
}

// PipelineConfig configures the orchestration itself.
type PipelineConfig struct {
	// BatchSize is the number of files folded per knowledge batch.
	BatchSize int `koanf:"batch_size"`

	// SmallFileLines is the threshold under which a file's full content
	// is inlined rather than summarized.
	SmallFileLines int `koanf:"small_file_lines"`

	// MaxDiagramRetries bounds the drafter/critic self-correction loop
	// per diagram.
	MaxDiagramRetries int `koanf:"max_diagram_retries"`

	// SupervisorRetries bounds the response supervisor's
	// critique-and-regenerate loop.
	SupervisorRetries int `koanf:"supervisor_retries"`

	// NonInteractive skips the plan checkpoint, selecting everything.
	NonInteractive bool `koanf:"non_interactive"`
}

// RenderConfig configures the diagram rendering service.
type RenderConfig struct {
	// BaseURL is the Kroki-compatible endpoint.
	BaseURL string `koanf:"base_url"`

	// Timeout bounds a single render request.
	Timeout time.Duration `koanf:"timeout"`
}

// OutputConfig configures where artifacts are written.
type OutputConfig struct {
	// Dir receives generated diagrams, the knowledge document, the plan
	// and the audit report.
	Dir string `koanf:"dir"`

	// WorkDir receives the repository clone and scratch files. Empty
	// means a directory under os.TempDir.
	WorkDir string `koanf:"work_dir"`
}

// MetricsConfig configures the optional Prometheus listener.
type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. ":9464".
	Addr string `koanf:"addr"`
}

// NewDefaultConfig returns a config with working defaults for
// everything except the API key.
func NewDefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Model:          "gemini-1.5-flash",
			Temperature:    0.4,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
		},
		RateLimit: RateLimitConfig{
			Capacity: 15000,
			Window:   70 * time.Second,
			Mode:     "safe",
		},
		Pipeline: PipelineConfig{
			BatchSize:         2,
			SmallFileLines:    50,
			MaxDiagramRetries: 3,
			SupervisorRetries: 10,
		},
		Render: RenderConfig{
			BaseURL: "https://kroki.io",
			Timeout: 30 * time.Second,
		},
		Output: OutputConfig{
			Dir: "generated_diagrams",
		},
		Logging: logging.NewDefaultConfig(),
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model must be set")
	}
	if c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("ratelimit.capacity must be positive, got %d", c.RateLimit.Capacity)
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive, got %s", c.RateLimit.Window)
	}
	if m := c.RateLimit.Mode; m != "safe" && m != "fast" {
		return fmt.Errorf("ratelimit.mode must be safe or fast, got %q", m)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}
	if c.Pipeline.MaxDiagramRetries < 0 {
		return fmt.Errorf("pipeline.max_diagram_retries must not be negative")
	}
	if c.Render.BaseURL == "" {
		return fmt.Errorf("render.base_url must be set")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must be set")
	}
	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}
	return nil
}
