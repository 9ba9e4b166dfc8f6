// Package config loads forge's repository-level YAML settings: model
// provider selection, token budgets, timeouts, and tool capability ACL
// paths. Grounded on
// _examples/theRebelliousNerd-codenerd/internal/config/config.go's
// DefaultConfig/Load/Save/applyEnvOverrides shape, trimmed to
// SPEC_FULL.md's ambient-config needs (no Mangle-kernel/memory-shard/
// world/jit config, since this domain has no analog for those).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds forge's repository-level settings, stored at
// .forge/config.yaml.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model streamer used for turns and the
// cheaper auxiliary model used for commit-message generation.
type LLMConfig struct {
	Provider       string `yaml:"provider"` // currently only "genai"
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	CommitMsgModel string `yaml:"commit_msg_model"`
	RequestTimeout string `yaml:"request_timeout"`
	MaxToolCalls   int    `yaml:"max_tool_calls"`
}

// ToolsConfig configures the capability ACL and user-tool directory.
type ToolsConfig struct {
	PolicyPath string `yaml:"policy_path"` // Mangle fact/rule file
	UserDir    string `yaml:"user_dir"`    // defaults to ./tools
}

// LoggingConfig configures zap's verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns forge's out-of-the-box settings.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:       "genai",
			Model:          "gemini-2.0-flash",
			CommitMsgModel: "gemini-2.0-flash-lite",
			RequestTimeout: "60s",
			MaxToolCalls:   50,
		},
		Tools: ToolsConfig{
			UserDir: "./tools",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file, falling back to
// DefaultConfig if the file does not exist, then applies environment
// variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("config: create dir %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides lets an API key or model override sit outside the
// committed YAML file, matching the teacher's priority-ordered env
// lookup for provider credentials.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("FORGE_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if dir := os.Getenv("FORGE_TOOLS_DIR"); dir != "" {
		c.Tools.UserDir = dir
	}
}

// GetRequestTimeout parses RequestTimeout, defaulting to 60s on a
// missing or malformed value.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.RequestTimeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// DefaultConfigPath returns .forge/config.yaml under the given
// repository root.
func DefaultConfigPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".forge", "config.yaml")
}
