// Package config loads process configuration from an optional TOML file
// layered under environment variables, per spec.md §6. Grounded on the
// teacher's internal/config.Config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the fully resolved process configuration.
type Config struct {
	Defaults  DefaultsConfig  `toml:"defaults"`
	Workspace WorkspaceConfig `toml:"workspace"`
	Discord   DiscordConfig   `toml:"discord"`
	Sandbox   SandboxConfig   `toml:"sandbox"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DefaultsConfig holds LLM backend selection.
type DefaultsConfig struct {
	ModelProvider string `toml:"model_provider"` // "anthropic" | "openai"
	ModelID       string `toml:"model_id"`
	LLMURL        string `toml:"llm_url"` // OpenAI-compatible base URL override
	ModelsJSON    string `toml:"models_json"`
	ShowThinking  bool   `toml:"show_thinking"` // post thinking parts to the thread, not just log them
}

// WorkspaceConfig holds the on-disk workspace root.
type WorkspaceConfig struct {
	Path string `toml:"path"`
}

// DiscordConfig holds chat-transport credentials.
type DiscordConfig struct {
	BotToken string `toml:"bot_token"`
	GuildID  string `toml:"guild_id"`
}

// SandboxConfig holds guard/executor policy.
type SandboxConfig struct {
	Mode            string   `toml:"mode"` // "host" or a container name
	AllowedPaths    []string `toml:"allowed_paths"`
	AllowedCommands []string `toml:"allowed_commands"` // raw ±prefixed entries
}

// LoggingConfig holds structured-log settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "text", "json", or "" to auto-detect from the terminal
}

// Load reads an optional TOML file at MOTHER_CONFIG (or the default state
// path) and layers environment variables on top per spec.md §6.
func Load(cliWorkDir string) (*Config, error) {
	cfg := defaultConfig()

	if path := ConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if cliWorkDir != "" {
		cfg.Workspace.Path = cliWorkDir
	}
	cfg.expandPaths()

	return cfg, nil
}

// ConfigPath returns the TOML config file path, or "" to skip file loading.
func ConfigPath() string {
	if p := os.Getenv("MOTHER_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mother", "config.toml")
}

func defaultConfig() *Config {
	return &Config{
		Defaults: DefaultsConfig{
			ModelProvider: "anthropic",
			ModelID:       "claude-sonnet-4-20250514",
		},
		Sandbox: SandboxConfig{Mode: "host"},
		Logging: LoggingConfig{Level: "info"},
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Discord.BotToken = v
	}
	if v := os.Getenv("GUILD_ID"); v != "" {
		c.Discord.GuildID = v
	}
	if v := os.Getenv("MODEL_PROVIDER"); v != "" {
		c.Defaults.ModelProvider = v
	}
	if v := os.Getenv("MODEL_ID"); v != "" {
		c.Defaults.ModelID = v
	}
	if v := os.Getenv("LLM_URL"); v != "" {
		c.Defaults.LLMURL = v
	}
	if v := os.Getenv("MODELS_JSON"); v != "" {
		c.Defaults.ModelsJSON = v
	}
	if v := os.Getenv("ALLOWED_PATHS"); v != "" {
		c.Sandbox.AllowedPaths = splitNonEmpty(v, ":")
	}
	if v := os.Getenv("ALLOWED_COMMANDS"); v != "" {
		c.Sandbox.AllowedCommands = splitNonEmpty(v, ",")
	}
	if v := os.Getenv("MOTHER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MOTHER_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("MOTHER_SHOW_THINKING"); v != "" {
		c.Defaults.ShowThinking = v == "1" || strings.EqualFold(v, "true")
	}
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()
	expand := func(p string) string {
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}
	c.Workspace.Path = expand(c.Workspace.Path)
	for i, p := range c.Sandbox.AllowedPaths {
		c.Sandbox.AllowedPaths[i] = expand(p)
	}
}

// AnthropicAPIKey reads the standard Anthropic env var.
func AnthropicAPIKey() string { return os.Getenv("ANTHROPIC_API_KEY") }

// OpenAIAPIKey reads the standard OpenAI-compatible env var.
func OpenAIAPIKey() string { return os.Getenv("OPENAI_API_KEY") }

// MaxTokens reads MOTHER_MAX_TOKENS, defaulting to 0 (backend default).
func MaxTokens() int {
	v := os.Getenv("MOTHER_MAX_TOKENS")
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
