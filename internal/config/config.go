// Package config loads the daemon configuration from YAML files.
package config

import (
	"context"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/featden/featd/internal/model"
)

// YAMLLoader loads daemon configuration from YAML files.
type YAMLLoader struct {
	fs fs.FS
}

// NewYAMLLoader creates a new YAML config loader.
func NewYAMLLoader(filesystem fs.FS) *YAMLLoader {
	return &YAMLLoader{fs: filesystem}
}

// Load reads a configuration file and returns a validated config.
func (l *YAMLLoader) Load(ctx context.Context, path string) (*Config, error) {
	data, err := fs.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Config represents the YAML structure of the daemon configuration.
type Config struct {
	Agent     AgentConfig     `yaml:"agent"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	SCM       SCMConfig       `yaml:"scm"`
	Planner   PlannerConfig   `yaml:"planner"`
}

// AgentConfig selects and configures the coding agent backend.
type AgentConfig struct {
	Provider string `yaml:"provider"`
	// RuntimeCommand starts the in-sandbox agent runtime after a workspace is
	// provisioned or resumed. Only the sandbox HTTP provider needs one, the
	// other backends run outside the sandbox.
	RuntimeCommand []string         `yaml:"runtime_command,omitempty"`
	Anthropic      *AnthropicConfig `yaml:"anthropic,omitempty"`
}

// AnthropicConfig configures the Anthropic-backed agent and planner.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// WorkspaceConfig selects and configures the sandbox workspace backend.
type WorkspaceConfig struct {
	Provider string `yaml:"provider"`
	Image    string `yaml:"image"`
}

// SCMConfig configures the source host used for publishing.
type SCMConfig struct {
	Host       string `yaml:"host"`
	APIBaseURL string `yaml:"api_base_url"`
}

// PlannerConfig configures the planning backend.
type PlannerConfig struct {
	Model string `yaml:"model"`
}

func (c *Config) applyDefaults() {
	if c.Agent.Provider == "" {
		c.Agent.Provider = string(model.AgentProviderKindSandboxHTTP)
	}
	if c.Workspace.Provider == "" {
		c.Workspace.Provider = string(model.WorkspaceProviderKindDocker)
	}
	if c.SCM.Host == "" {
		c.SCM.Host = "github.com"
	}
}

func (c Config) validate() error {
	switch model.AgentProviderKind(c.Agent.Provider) {
	case model.AgentProviderKindSandboxHTTP, model.AgentProviderKindClaude, model.AgentProviderKindFake:
	default:
		return fmt.Errorf("unknown agent provider %q", c.Agent.Provider)
	}

	if model.AgentProviderKind(c.Agent.Provider) == model.AgentProviderKindClaude {
		if c.Agent.Anthropic == nil || c.Agent.Anthropic.APIKey == "" {
			return fmt.Errorf("the claude agent provider requires agent.anthropic.api_key")
		}
	}

	switch model.WorkspaceProviderKind(c.Workspace.Provider) {
	case model.WorkspaceProviderKindDocker, model.WorkspaceProviderKindFake:
	default:
		return fmt.Errorf("unknown workspace provider %q", c.Workspace.Provider)
	}

	return nil
}

// AnthropicAPIKey returns the configured Anthropic key, empty when unset.
func (c Config) AnthropicAPIKey() string {
	if c.Agent.Anthropic == nil {
		return ""
	}
	return c.Agent.Anthropic.APIKey
}

// AnthropicModel returns the configured Anthropic model, empty when unset.
func (c Config) AnthropicModel() string {
	if c.Agent.Anthropic == nil {
		return ""
	}
	return c.Agent.Anthropic.Model
}
