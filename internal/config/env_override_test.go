package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("GEMINI_API_KEY sets the API key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "gemini-key")

		cfg := &Config{}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-key", cfg.LLM.APIKey)
	})

	t.Run("FORGE_MODEL overrides the configured model", func(t *testing.T) {
		t.Setenv("FORGE_MODEL", "gemini-1.5-flash")

		cfg := &Config{LLM: LLMConfig{Model: "gemini-2.0-flash"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-1.5-flash", cfg.LLM.Model)
	})

	t.Run("FORGE_TOOLS_DIR overrides the user tool directory", func(t *testing.T) {
		t.Setenv("FORGE_TOOLS_DIR", "/custom/tools")

		cfg := &Config{Tools: ToolsConfig{UserDir: "./tools"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "/custom/tools", cfg.Tools.UserDir)
	})

	t.Run("no env vars set leaves config untouched", func(t *testing.T) {
		cfg := &Config{LLM: LLMConfig{Model: "gemini-2.0-flash", APIKey: "preset"}}
		cfg.applyEnvOverrides()

		assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
		assert.Equal(t, "preset", cfg.LLM.APIKey)
	})
}
