// Package config loads and validates stitch configuration from
// .stitch/config.yaml, merging CLI flag overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ModelConfig describes the OpenAI-compatible endpoint the pipeline talks
// to. Designed for self-hosted backends (Ollama, vLLM, LM Studio) on
// closed networks.
type ModelConfig struct {
	// BaseURL is the endpoint root, e.g. http://localhost:11434
	BaseURL string `yaml:"base_url"`

	// Name is the model identifier sent with every request
	Name string `yaml:"name"`

	// APIKey is sent as a bearer token; some endpoints require one
	APIKey string `yaml:"api_key"`

	// MaxOutputTokens caps the model's response length per invocation
	MaxOutputTokens int `yaml:"max_output_tokens"`

	// Timeout bounds a single model invocation
	Timeout time.Duration `yaml:"-"`
}

// BudgetConfig holds the context-size budget knobs. All char values are
// derived from token budgets via CharsPerToken.
type BudgetConfig struct {
	// MaxContextTokens is the hard per-invocation context ceiling
	MaxContextTokens int `yaml:"max_context_tokens"`

	// CharsPerToken is the chars-per-token approximation (conservative for code)
	CharsPerToken float64 `yaml:"chars_per_token"`

	// ReasonInputTokens is the budget for reason-stage context assembly
	ReasonInputTokens int `yaml:"reason_input_tokens"`

	// PlannerInputTokens is the budget for the planning invocation
	PlannerInputTokens int `yaml:"planner_input_tokens"`

	// SummaryMaxChars caps each injected dependency digest
	SummaryMaxChars int `yaml:"summary_max_chars"`

	// DescriptionMaxChars is the generous cap on a task's own description
	DescriptionMaxChars int `yaml:"description_max_chars"`

	// FileSnippetMaxChars caps each file's contribution to a context.
	// Zero means no per-file cap; the total budget still binds.
	FileSnippetMaxChars int `yaml:"file_snippet_max_chars"`
}

// PipelineConfig holds the controller's policy values.
type PipelineConfig struct {
	// MaxSubtasks bounds the planner's output
	MaxSubtasks int `yaml:"max_subtasks"`

	// RetryLimit caps verify-failure retries per subtask
	RetryLimit int `yaml:"retry_limit"`

	// MaxReplanDepth bounds recursive multi-skill splitting
	MaxReplanDepth int `yaml:"max_replan_depth"`

	// MaxReadRounds bounds the reason stage's tool-call loop
	MaxReadRounds int `yaml:"max_read_rounds"`

	// ToolSelectThreshold is the pool size above which tool selection
	// narrows in two stages instead of presenting the whole pool
	ToolSelectThreshold int `yaml:"tool_select_threshold"`
}

// HistoryConfig controls the run-history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// Config is the full stitch configuration.
type Config struct {
	// Workspace is the directory all file operations are scoped to
	Workspace string `yaml:"workspace"`

	// LogLevel sets console verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// CommandTimeout bounds a single run_command tool invocation
	CommandTimeout time.Duration `yaml:"-"`

	Model    ModelConfig    `yaml:"model"`
	Budget   BudgetConfig   `yaml:"budget"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	History  HistoryConfig  `yaml:"history"`
}

// DefaultConfig returns a Config with values tuned for small-context
// self-hosted models.
func DefaultConfig() *Config {
	return &Config{
		Workspace:      ".",
		LogLevel:       "info",
		CommandTimeout: 30 * time.Second,
		Model: ModelConfig{
			BaseURL:         "http://localhost:11434",
			Name:            "llama3",
			APIKey:          "ollama",
			MaxOutputTokens: 512,
			Timeout:         2 * time.Minute,
		},
		Budget: BudgetConfig{
			MaxContextTokens:    2048,
			CharsPerToken:       3.5,
			ReasonInputTokens:   1200,
			PlannerInputTokens:  800,
			SummaryMaxChars:     300,
			DescriptionMaxChars: 2000,
			FileSnippetMaxChars: 600,
		},
		Pipeline: PipelineConfig{
			MaxSubtasks:         12,
			RetryLimit:          1,
			MaxReplanDepth:      2,
			MaxReadRounds:       10,
			ToolSelectThreshold: 8,
		},
		History: HistoryConfig{
			Enabled: true,
			DBPath:  ".stitch/history.db",
		},
	}
}

// yamlConfig mirrors Config with string durations for parsing.
type yamlConfig struct {
	Workspace      string         `yaml:"workspace"`
	LogLevel       string         `yaml:"log_level"`
	CommandTimeout string         `yaml:"command_timeout"`
	Model          yamlModel      `yaml:"model"`
	Budget         BudgetConfig   `yaml:"budget"`
	Pipeline       PipelineConfig `yaml:"pipeline"`
	History        *HistoryConfig `yaml:"history"`
}

type yamlModel struct {
	BaseURL         string `yaml:"base_url"`
	Name            string `yaml:"name"`
	APIKey          string `yaml:"api_key"`
	MaxOutputTokens int    `yaml:"max_output_tokens"`
	Timeout         string `yaml:"timeout"`
}

// LoadConfig loads configuration from path. A missing file returns
// defaults without error; a malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if y.Workspace != "" {
		cfg.Workspace = y.Workspace
	}
	if y.LogLevel != "" {
		cfg.LogLevel = y.LogLevel
	}
	if y.CommandTimeout != "" {
		d, err := time.ParseDuration(y.CommandTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid command_timeout %q: %w", y.CommandTimeout, err)
		}
		cfg.CommandTimeout = d
	}

	if y.Model.BaseURL != "" {
		cfg.Model.BaseURL = y.Model.BaseURL
	}
	if y.Model.Name != "" {
		cfg.Model.Name = y.Model.Name
	}
	if y.Model.APIKey != "" {
		cfg.Model.APIKey = y.Model.APIKey
	}
	if y.Model.MaxOutputTokens != 0 {
		cfg.Model.MaxOutputTokens = y.Model.MaxOutputTokens
	}
	if y.Model.Timeout != "" {
		d, err := time.ParseDuration(y.Model.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid model timeout %q: %w", y.Model.Timeout, err)
		}
		cfg.Model.Timeout = d
	}

	mergeBudget(&cfg.Budget, y.Budget)
	mergePipeline(&cfg.Pipeline, y.Pipeline)

	if y.History != nil {
		cfg.History.Enabled = y.History.Enabled
		if y.History.DBPath != "" {
			cfg.History.DBPath = y.History.DBPath
		}
	}

	return cfg, nil
}

func mergeBudget(dst *BudgetConfig, src BudgetConfig) {
	if src.MaxContextTokens != 0 {
		dst.MaxContextTokens = src.MaxContextTokens
	}
	if src.CharsPerToken != 0 {
		dst.CharsPerToken = src.CharsPerToken
	}
	if src.ReasonInputTokens != 0 {
		dst.ReasonInputTokens = src.ReasonInputTokens
	}
	if src.PlannerInputTokens != 0 {
		dst.PlannerInputTokens = src.PlannerInputTokens
	}
	if src.SummaryMaxChars != 0 {
		dst.SummaryMaxChars = src.SummaryMaxChars
	}
	if src.DescriptionMaxChars != 0 {
		dst.DescriptionMaxChars = src.DescriptionMaxChars
	}
	if src.FileSnippetMaxChars != 0 {
		dst.FileSnippetMaxChars = src.FileSnippetMaxChars
	}
}

func mergePipeline(dst *PipelineConfig, src PipelineConfig) {
	if src.MaxSubtasks != 0 {
		dst.MaxSubtasks = src.MaxSubtasks
	}
	if src.RetryLimit != 0 {
		dst.RetryLimit = src.RetryLimit
	}
	if src.MaxReplanDepth != 0 {
		dst.MaxReplanDepth = src.MaxReplanDepth
	}
	if src.MaxReadRounds != 0 {
		dst.MaxReadRounds = src.MaxReadRounds
	}
	if src.ToolSelectThreshold != 0 {
		dst.ToolSelectThreshold = src.ToolSelectThreshold
	}
}

// LoadConfigFromDir loads .stitch/config.yaml from the given directory.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".stitch", "config.yaml"))
}

// MergeWithFlags merges CLI flag values into the configuration. Non-nil
// values override both defaults and file settings.
func (c *Config) MergeWithFlags(workspace, modelName, baseURL *string, contextTokens *int, logLevel *string) {
	if workspace != nil && *workspace != "" {
		c.Workspace = *workspace
	}
	if modelName != nil && *modelName != "" {
		c.Model.Name = *modelName
	}
	if baseURL != nil && *baseURL != "" {
		c.Model.BaseURL = *baseURL
	}
	if contextTokens != nil && *contextTokens > 0 {
		c.Budget.MaxContextTokens = *contextTokens
	}
	if logLevel != nil && *logLevel != "" {
		c.LogLevel = *logLevel
	}
}

// Validate checks configuration values are usable.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}
	if c.Model.BaseURL == "" {
		return fmt.Errorf("model.base_url cannot be empty")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name cannot be empty")
	}
	if c.Budget.MaxContextTokens < 0 {
		return fmt.Errorf("budget.max_context_tokens must be >= 0, got %d", c.Budget.MaxContextTokens)
	}
	if c.Budget.CharsPerToken <= 0 {
		return fmt.Errorf("budget.chars_per_token must be > 0, got %v", c.Budget.CharsPerToken)
	}
	if c.Budget.FileSnippetMaxChars < 0 {
		return fmt.Errorf("budget.file_snippet_max_chars must be >= 0, got %d", c.Budget.FileSnippetMaxChars)
	}
	if c.Pipeline.RetryLimit < 0 {
		return fmt.Errorf("pipeline.retry_limit must be >= 0, got %d", c.Pipeline.RetryLimit)
	}
	if c.Pipeline.MaxSubtasks <= 0 {
		return fmt.Errorf("pipeline.max_subtasks must be > 0, got %d", c.Pipeline.MaxSubtasks)
	}
	if c.Pipeline.MaxReplanDepth < 0 {
		return fmt.Errorf("pipeline.max_replan_depth must be >= 0, got %d", c.Pipeline.MaxReplanDepth)
	}
	if c.History.Enabled && c.History.DBPath == "" {
		return fmt.Errorf("history.db_path cannot be empty when history is enabled")
	}
	return nil
}

// ReasonBudgetChars converts the reason-stage token budget to chars,
// clamped to the hard context ceiling.
func (c *Config) ReasonBudgetChars() int {
	tokens := c.Budget.ReasonInputTokens
	if tokens > c.Budget.MaxContextTokens {
		tokens = c.Budget.MaxContextTokens
	}
	return int(float64(tokens) * c.Budget.CharsPerToken)
}

// PlannerBudgetChars converts the planner token budget to chars, clamped
// to the hard context ceiling.
func (c *Config) PlannerBudgetChars() int {
	tokens := c.Budget.PlannerInputTokens
	if tokens > c.Budget.MaxContextTokens {
		tokens = c.Budget.MaxContextTokens
	}
	return int(float64(tokens) * c.Budget.CharsPerToken)
}
