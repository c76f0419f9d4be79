// Package config holds the static configuration surface for the decree
// control plane, as enumerated in the specification's Configuration
// section. Discovery, merging, and environment overlay of the config file
// itself are out of scope; callers hand Load a path.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Role names the three agent roles the engine dispatches.
type Role string

const (
	RolePlanner     Role = "planner"
	RoleImplementor Role = "implementor"
	RoleReviewer    Role = "reviewer"
)

// Config is the complete decree configuration.
type Config struct {
	// Repository is "owner/repo" on the code-hosting provider.
	Repository string `yaml:"repository"`

	// Provider holds the code-hosting app credentials.
	Provider ProviderConfig `yaml:"provider"`

	// SpecsDir is the path, relative to the repository root, that the
	// spec poller walks.
	SpecsDir string `yaml:"specsDir"`

	// DefaultBranch is the branch implementor worktrees are reset from.
	DefaultBranch string `yaml:"defaultBranch"`

	// MaxAgentDuration bounds a single agent session. Zero disables the
	// timeout.
	MaxAgentDuration time.Duration `yaml:"maxAgentDuration"`

	// Logging controls per-session agent log files.
	Logging LoggingConfig `yaml:"logging"`

	// ContextPaths are extra files appended to every agent's prompt.
	ContextPaths []string `yaml:"contextPaths"`

	// Adapters maps each role to the name of the adapter implementation
	// it should be dispatched through.
	Adapters map[Role]string `yaml:"adapters"`

	// Reconciler tunes the work-provider reconciler's poll cadence.
	Reconciler ReconcilerConfig `yaml:"reconciler"`
}

// ProviderConfig holds code-hosting app credentials.
type ProviderConfig struct {
	AppID          string `yaml:"appId"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
	InstallationID string `yaml:"installationId"`
}

// LoggingConfig controls agent session log files.
type LoggingConfig struct {
	AgentSessions bool   `yaml:"agentSessions"`
	LogsDir       string `yaml:"logsDir"`
}

// ReconcilerConfig tunes the two pollers described in the specification.
type ReconcilerConfig struct {
	// WorkItemInterval is the poll period for the work-item poller
	// (spec default: tens of seconds).
	WorkItemInterval time.Duration `yaml:"workItemInterval"`

	// RevisionInterval is the poll period for the revision+spec pollers
	// (spec default: order-of-seconds).
	RevisionInterval time.Duration `yaml:"revisionInterval"`
}

// DefaultConfig returns a Config with the defaults named in the
// specification.
func DefaultConfig() *Config {
	return &Config{
		SpecsDir:         "specs",
		DefaultBranch:    "main",
		MaxAgentDuration: 0,
		Logging: LoggingConfig{
			AgentSessions: false,
			LogsDir:       ".decree/logs",
		},
		Adapters: map[Role]string{
			RolePlanner:     "default",
			RoleImplementor: "default",
			RoleReviewer:    "default",
		},
		Reconciler: ReconcilerConfig{
			WorkItemInterval: 30 * time.Second,
			RevisionInterval: 10 * time.Second,
		},
	}
}

// Validate checks that required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	if c.Provider.AppID == "" {
		return fmt.Errorf("provider.appId is required")
	}
	if c.Provider.PrivateKeyPath == "" {
		return fmt.Errorf("provider.privateKeyPath is required")
	}
	if c.Provider.InstallationID == "" {
		return fmt.Errorf("provider.installationId is required")
	}
	if c.MaxAgentDuration < 0 {
		return fmt.Errorf("maxAgentDuration must be >= 0")
	}
	for _, role := range []Role{RolePlanner, RoleImplementor, RoleReviewer} {
		if c.Adapters[role] == "" {
			return fmt.Errorf("adapters.%s is required", role)
		}
	}
	if c.Reconciler.WorkItemInterval <= 0 {
		return fmt.Errorf("reconciler.workItemInterval must be > 0")
	}
	if c.Reconciler.RevisionInterval <= 0 {
		return fmt.Errorf("reconciler.revisionInterval must be > 0")
	}
	return nil
}

// Load reads and parses a YAML config file at path, applying defaults for
// any field the file leaves zero-valued.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Logging.LogsDir == "" {
		cfg.Logging.LogsDir = DefaultConfig().Logging.LogsDir
	}
	if cfg.Reconciler.WorkItemInterval <= 0 {
		cfg.Reconciler.WorkItemInterval = DefaultConfig().Reconciler.WorkItemInterval
	}
	if cfg.Reconciler.RevisionInterval <= 0 {
		cfg.Reconciler.RevisionInterval = DefaultConfig().Reconciler.RevisionInterval
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
