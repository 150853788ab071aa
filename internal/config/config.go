// Package config loads and validates the run configuration. A missing
// config file is not an error: the defaults describe a complete, working
// setup and the file only overrides what it names.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/and-other-tales/juno/internal/metrics"
	"github.com/and-other-tales/juno/internal/state"
	"github.com/and-other-tales/juno/internal/workload"
)

// TasksConfig controls task generation and the run's lifetime.
type TasksConfig struct {
	// AutoGenerate enables model-driven task creation. When off, the run
	// ends once the user-supplied task completes.
	AutoGenerate bool `yaml:"auto_generate"`

	// Categories rotate across generated tasks.
	Categories []string `yaml:"categories"`

	// MaxCycles bounds the run. Zero means unbounded.
	MaxCycles int `yaml:"max_cycles"`

	// Targets maps metric names to the values the system should hold.
	Targets map[string]float64 `yaml:"targets"`
}

// WorkloadConfig controls dynamic task pressure.
type WorkloadConfig struct {
	// Dynamic enables random task-size increases.
	Dynamic bool `yaml:"dynamic"`

	// IncreaseProbability is the per-pass chance that the task size grows.
	IncreaseProbability float64 `yaml:"increase_probability"`

	// MaxSizeMultiplier caps the task size.
	MaxSizeMultiplier float64 `yaml:"max_size_multiplier"`

	// DefaultDeadlineMinutes is the base deadline before size scaling.
	DefaultDeadlineMinutes int `yaml:"default_deadline_minutes"`

	// ResourceScaling enables resource-need evaluation.
	ResourceScaling bool `yaml:"resource_scaling"`
}

// TeamsConfig controls which teams run and their agent allocations.
type TeamsConfig struct {
	// Enabled lists the worker teams to run. The improvement team always
	// runs.
	Enabled []string `yaml:"enabled"`

	// MinAgents and MaxAgents bound each team's allocation.
	MinAgents int `yaml:"min_agents"`
	MaxAgents int `yaml:"max_agents"`
}

// ImprovementConfig holds the thresholds that trip an improvement cycle.
type ImprovementConfig struct {
	MaxErrors             int     `yaml:"max_errors"`
	MinQualitySamples     int     `yaml:"min_quality_samples"`
	LowQualityAvg         float64 `yaml:"low_quality_avg"`
	MinSuccessRateSamples int     `yaml:"min_success_rate_samples"`
	MinSuccessRate        float64 `yaml:"min_success_rate"`
}

// Config holds every run option.
type Config struct {
	// Model selects the model passed to the CLI, empty for the default.
	Model string `yaml:"model"`

	// LogLevel sets the logging verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`

	// RecursionLimit bounds each routing loop's steps.
	RecursionLimit int `yaml:"recursion_limit"`

	// QualityThreshold is the grade below which a team's output counts as
	// low quality.
	QualityThreshold float64 `yaml:"quality_threshold"`

	// WorkspaceDir is where the writing team keeps its documents.
	WorkspaceDir string `yaml:"workspace_dir"`

	// HistoryDB is the task record database path. Empty disables
	// persistence.
	HistoryDB string `yaml:"history_db"`

	// SearchEndpoint is the web search API the research team queries.
	SearchEndpoint string `yaml:"search_endpoint"`

	Tasks       TasksConfig       `yaml:"tasks"`
	Workload    WorkloadConfig    `yaml:"workload"`
	Teams       TeamsConfig       `yaml:"teams"`
	Improvement ImprovementConfig `yaml:"improvement"`
}

// DefaultConfig returns a complete working configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:            "",
		LogLevel:         "info",
		RecursionLimit:   50,
		QualityThreshold: 0.7,
		WorkspaceDir:     ".juno/workspace",
		HistoryDB:        ".juno/history.db",
		SearchEndpoint:   "https://html.duckduckgo.com/html/",
		Tasks: TasksConfig{
			AutoGenerate: true,
			Categories: []string{
				"science and technology",
				"business and economics",
				"health and medicine",
			},
			MaxCycles: 5,
			Targets: map[string]float64{
				"avg_quality":  0.8,
				"success_rate": 0.9,
			},
		},
		Workload: WorkloadConfig{
			Dynamic:                true,
			IncreaseProbability:    0.3,
			MaxSizeMultiplier:      3.0,
			DefaultDeadlineMinutes: 10,
			ResourceScaling:        true,
		},
		Teams: TeamsConfig{
			Enabled:   []string{state.TeamResearch, state.TeamWriting},
			MinAgents: 1,
			MaxAgents: 5,
		},
		Improvement: ImprovementConfig{
			MaxErrors:             3,
			MinQualitySamples:     3,
			LowQualityAvg:         0.5,
			MinSuccessRateSamples: 5,
			MinSuccessRate:        0.7,
		},
	}
}

// LoadConfig loads configuration from path, applying the file's values over
// the defaults. A missing file returns the defaults without error; a
// malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromDir loads .juno/config.yaml from the given directory.
func LoadConfigFromDir(dir string) (*Config, error) {
	return LoadConfig(filepath.Join(dir, ".juno", "config.yaml"))
}

// Validate reports the first invalid configuration value.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.RecursionLimit <= 0 {
		return fmt.Errorf("recursion_limit must be > 0, got %d", c.RecursionLimit)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 1 {
		return fmt.Errorf("quality_threshold must be in [0, 1], got %v", c.QualityThreshold)
	}

	if len(c.Teams.Enabled) == 0 {
		return fmt.Errorf("teams.enabled cannot be empty")
	}
	known := map[string]bool{state.TeamResearch: true, state.TeamWriting: true}
	for _, team := range c.Teams.Enabled {
		if !known[team] {
			return fmt.Errorf("unknown team %q in teams.enabled", team)
		}
	}
	if c.Teams.MinAgents < 1 {
		return fmt.Errorf("teams.min_agents must be >= 1, got %d", c.Teams.MinAgents)
	}
	if c.Teams.MaxAgents < c.Teams.MinAgents {
		return fmt.Errorf("teams.max_agents (%d) must be >= teams.min_agents (%d)",
			c.Teams.MaxAgents, c.Teams.MinAgents)
	}

	if c.Workload.IncreaseProbability < 0 || c.Workload.IncreaseProbability > 1 {
		return fmt.Errorf("workload.increase_probability must be in [0, 1], got %v",
			c.Workload.IncreaseProbability)
	}
	if c.Workload.Dynamic && c.Workload.MaxSizeMultiplier < 1 {
		return fmt.Errorf("workload.max_size_multiplier must be >= 1, got %v",
			c.Workload.MaxSizeMultiplier)
	}
	if c.Workload.DefaultDeadlineMinutes <= 0 {
		return fmt.Errorf("workload.default_deadline_minutes must be > 0, got %d",
			c.Workload.DefaultDeadlineMinutes)
	}

	if c.Tasks.MaxCycles < 0 {
		return fmt.Errorf("tasks.max_cycles must be >= 0, got %d", c.Tasks.MaxCycles)
	}
	for name, value := range c.Tasks.Targets {
		if value < 0 || value > 1 {
			return fmt.Errorf("tasks.targets[%s] must be in [0, 1], got %v", name, value)
		}
	}
	return nil
}

// WorkloadSettings converts the workload section for the workload manager.
func (c *Config) WorkloadSettings() workload.Config {
	return workload.Config{
		DynamicWorkload:        c.Workload.Dynamic,
		IncreaseProbability:    c.Workload.IncreaseProbability,
		MaxSizeMultiplier:      c.Workload.MaxSizeMultiplier,
		DefaultDeadlineMinutes: c.Workload.DefaultDeadlineMinutes,
		ResourceScaling:        c.Workload.ResourceScaling,
	}
}

// Thresholds converts the improvement section for the metrics layer.
func (c *Config) Thresholds() metrics.Thresholds {
	return metrics.Thresholds{
		MaxErrors:             c.Improvement.MaxErrors,
		MinQualitySamples:     c.Improvement.MinQualitySamples,
		LowQualityAvg:         c.Improvement.LowQualityAvg,
		MinSuccessRateSamples: c.Improvement.MinSuccessRateSamples,
		MinSuccessRate:        c.Improvement.MinSuccessRate,
	}
}
