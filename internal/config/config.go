// Package config holds all pseudoflow configuration, loaded from a YAML
// file with environment overrides. Configuration is consumed read-only by
// the pipeline; nothing in the core writes it back except the explicit Save
// used by `pseudoflow config init`.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all pseudoflow configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM backend selection
	LLM LLMConfig `yaml:"llm"`

	// Streamed translation and adaptive chunk sizing
	Streaming StreamingConfig `yaml:"streaming"`

	// Worker pool offload for parse/validate
	Execution ExecutionConfig `yaml:"execution"`

	// Script assembly formatting
	Assembler AssemblerConfig `yaml:"assembler"`

	// Logic validation toggles
	Validator ValidatorConfig `yaml:"validator"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model backend used to translate instructions.
type LLMConfig struct {
	Provider  string  `yaml:"provider"` // rulebased, gemini
	Model     string  `yaml:"model"`
	APIKey    string  `yaml:"api_key"`
	Timeout   string  `yaml:"timeout"`
	MaxTokens int     `yaml:"max_tokens"`
	TopP      float64 `yaml:"top_p"`
}

// StreamingConfig configures the streaming loop and the adaptive chunk
// sizer's feedback controller.
type StreamingConfig struct {
	Enabled              bool `yaml:"enabled"`
	MinFileSizeForStream int  `yaml:"min_file_size_for_stream"` // bytes
	ChunkSize            int  `yaml:"chunk_size"`               // fixed-size path
	MaxConcurrentChunks  int  `yaml:"max_concurrent_chunks"`
	MaxQueueSize         int  `yaml:"max_queue_size"`           // parallel-path admission window
	ContextWindowSize    int  `yaml:"context_window_size"`      // chars of prior code carried forward

	// Adaptive sizing
	AdaptiveEnabled bool    `yaml:"adaptive_enabled"`
	MinSize         int     `yaml:"min_size"`
	MaxSize         int     `yaml:"max_size"`
	InitialSize     int     `yaml:"initial_size"`
	TargetMs        float64 `yaml:"target_ms"`
	Alpha           float64 `yaml:"alpha"`
	HysteresisPct   float64 `yaml:"hysteresis_pct"`
	StepPct         float64 `yaml:"step_pct"`
	CooldownChunks  int     `yaml:"cooldown_chunks"`
}

// ExecutionConfig configures the parse/validate worker pool.
type ExecutionConfig struct {
	ProcessPoolMaxWorkers     int    `yaml:"process_pool_max_workers"` // 0 means max(2, NumCPU)
	ProcessPoolStartMethod    string `yaml:"process_pool_start_method"`
	ProcessPoolTaskTimeoutMs  int    `yaml:"process_pool_task_timeout_ms"`
	ProcessPoolRetryOnTimeout bool   `yaml:"process_pool_retry_on_timeout"`
	ProcessPoolRetryLimit     int    `yaml:"process_pool_retry_limit"`
	ProcessPoolJobMaxChars    int    `yaml:"process_pool_job_max_chars"`
	ProcessPoolTarget         string `yaml:"process_pool_target"` // parse_validate, parse_only, validate_only, off
}

// AssemblerConfig configures output formatting.
type AssemblerConfig struct {
	IndentSize         int  `yaml:"indent_size"`
	MaxLineLength      int  `yaml:"max_line_length"`
	PreserveComments   bool `yaml:"preserve_comments"`
	PreserveDocstrings bool `yaml:"preserve_docstrings"`
	AutoImportCommon   bool `yaml:"auto_import_common"`
}

// ValidatorConfig configures the logic phase.
type ValidatorConfig struct {
	CheckUndefinedVars bool `yaml:"check_undefined_vars"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "pseudoflow",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider:  "rulebased",
			Model:     "gemini-2.0-flash",
			Timeout:   "120s",
			MaxTokens: 2048,
			TopP:      0.9,
		},

		Streaming: StreamingConfig{
			Enabled:              true,
			MinFileSizeForStream: 100 * 1024,
			ChunkSize:            4096,
			MaxConcurrentChunks:  3,
			MaxQueueSize:         10,
			ContextWindowSize:    1024,

			AdaptiveEnabled: true,
			MinSize:         200,
			MaxSize:         2000,
			InitialSize:     500,
			TargetMs:        600,
			Alpha:           0.2,
			HysteresisPct:   0.2,
			StepPct:         0.2,
			CooldownChunks:  3,
		},

		Execution: ExecutionConfig{
			ProcessPoolMaxWorkers:     0,
			ProcessPoolStartMethod:    "",
			ProcessPoolTaskTimeoutMs:  10000,
			ProcessPoolRetryOnTimeout: true,
			ProcessPoolRetryLimit:     1,
			ProcessPoolJobMaxChars:    200000,
			ProcessPoolTarget:         "parse_validate",
		},

		Assembler: AssemblerConfig{
			IndentSize:         4,
			MaxLineLength:      88,
			PreserveComments:   true,
			PreserveDocstrings: true,
			AutoImportCommon:   false,
		},

		Validator: ValidatorConfig{
			CheckUndefinedVars: true,
		},

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when
// the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file, creating directories as
// needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies PSEUDOFLOW_* environment variables on top of
// the file values. Only the knobs that matter for deployment are exposed.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PSEUDOFLOW_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("PSEUDOFLOW_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("PSEUDOFLOW_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("PSEUDOFLOW_POOL_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.ProcessPoolMaxWorkers = n
		}
	}
	if v := os.Getenv("PSEUDOFLOW_POOL_TASK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Execution.ProcessPoolTaskTimeoutMs = n
		}
	}
	if v := os.Getenv("PSEUDOFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PSEUDOFLOW_DEBUG"); v != "" {
		c.Logging.DebugMode = v == "1" || v == "true" || v == "yes"
	}
}

// Validate checks cross-field invariants. It normalizes nothing; invalid
// configuration is an error at load time, not a silent correction later.
func (c *Config) Validate() error {
	s := c.Streaming
	if s.MinSize < 1 {
		return fmt.Errorf("streaming.min_size must be >= 1, got %d", s.MinSize)
	}
	if s.MaxSize < s.MinSize {
		return fmt.Errorf("streaming.max_size (%d) must be >= min_size (%d)", s.MaxSize, s.MinSize)
	}
	if s.InitialSize < s.MinSize || s.InitialSize > s.MaxSize {
		return fmt.Errorf("streaming.initial_size (%d) must be within [%d, %d]",
			s.InitialSize, s.MinSize, s.MaxSize)
	}
	if s.Alpha <= 0 || s.Alpha > 1 {
		return fmt.Errorf("streaming.alpha must be in (0, 1], got %g", s.Alpha)
	}
	if s.HysteresisPct < 0 {
		return fmt.Errorf("streaming.hysteresis_pct must be >= 0, got %g", s.HysteresisPct)
	}
	if s.StepPct <= 0 {
		return fmt.Errorf("streaming.step_pct must be > 0, got %g", s.StepPct)
	}
	if s.CooldownChunks < 0 {
		return fmt.Errorf("streaming.cooldown_chunks must be >= 0, got %d", s.CooldownChunks)
	}

	e := c.Execution
	if e.ProcessPoolTaskTimeoutMs < 1 {
		return fmt.Errorf("execution.process_pool_task_timeout_ms must be >= 1, got %d",
			e.ProcessPoolTaskTimeoutMs)
	}
	if e.ProcessPoolRetryLimit < 0 {
		return fmt.Errorf("execution.process_pool_retry_limit must be >= 0, got %d",
			e.ProcessPoolRetryLimit)
	}
	switch e.ProcessPoolTarget {
	case "parse_validate", "parse_only", "validate_only", "off", "":
	default:
		return fmt.Errorf("execution.process_pool_target %q is not recognized", e.ProcessPoolTarget)
	}
	switch e.ProcessPoolStartMethod {
	case "", "spawn", "fork", "forkserver":
		// accepted for compatibility; the goroutine pool ignores it
	default:
		return fmt.Errorf("execution.process_pool_start_method %q is not recognized",
			e.ProcessPoolStartMethod)
	}

	if c.Assembler.IndentSize < 1 || c.Assembler.IndentSize > 8 {
		return fmt.Errorf("assembler.indent_size must be in [1, 8], got %d", c.Assembler.IndentSize)
	}
	return nil
}
