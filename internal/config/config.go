// Package config handles Mosaic configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./mosaic.yaml, ~/.config/mosaic/config.yaml, /etc/mosaic/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"mosaic.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "mosaic", "config.yaml"))
	}

	paths = append(paths, "/etc/mosaic/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Mosaic configuration.
type Config struct {
	Provider  string          `yaml:"provider"` // anthropic, openai, local
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Local     LocalConfig     `yaml:"local"`
	Projects  ProjectsConfig  `yaml:"projects"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	EDGAR     EDGARConfig     `yaml:"edgar"`
	LogLevel  string          `yaml:"log_level"`
}

// AnthropicConfig defines Anthropic API settings for the reasoning-capable
// provider.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"` // override for proxies; empty = api.anthropic.com
}

// OpenAIConfig defines settings for any OpenAI-compatible chat completions
// endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// LocalConfig defines a self-hosted server speaking the OpenAI-compatible
// protocol (llama.cpp, Ollama, vLLM). The API key is a placeholder most
// local servers ignore but some validate for presence.
type LocalConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// ProjectsConfig defines where research projects live on disk.
type ProjectsConfig struct {
	// Dir is the root directory holding one subdirectory per project.
	Dir string `yaml:"dir"`
	// DB is the project registry database path. Empty means
	// <dir>/projects.db.
	DB string `yaml:"db"`
}

// DBPath returns the resolved registry database path.
func (p ProjectsConfig) DBPath() string {
	if p.DB != "" {
		return p.DB
	}
	return filepath.Join(p.Dir, "projects.db")
}

// PipelineConfig bounds every agent session in the run.
type PipelineConfig struct {
	// MaxTurns caps provider round-trips per session. Reaching it aborts
	// the session with partial output rather than failing the run.
	MaxTurns int `yaml:"max_turns"`
	// MaxTokens is the per-call model output token limit.
	MaxTokens int `yaml:"max_tokens"`
	// HistoryBudget is the approximate character ceiling on conversation
	// history before old tool results are elided.
	HistoryBudget int `yaml:"history_budget"`
	// RecoveryRetries bounds corrective re-prompts when a stage's tagged
	// output sections are missing.
	RecoveryRetries int             `yaml:"recovery_retries"`
	Reasoning       ReasoningConfig `yaml:"reasoning"`
}

// ReasoningConfig controls extended thinking on providers that support it.
// Budgets are token counts; providers without the capability ignore them.
type ReasoningConfig struct {
	Enabled   bool `yaml:"enabled"`
	Extract   int  `yaml:"extract_budget"`
	Analysis  int  `yaml:"analysis_budget"`
	Synthesis int  `yaml:"synthesis_budget"`
}

// EDGARConfig defines SEC EDGAR access settings. The SEC requires every
// client to declare an identifying User-Agent with contact information;
// requests without one are rejected.
type EDGARConfig struct {
	UserAgent       string `yaml:"user_agent"`
	CacheMaxAgeDays int    `yaml:"cache_max_age_days"`
}

// Load reads configuration from a YAML file. Environment variable
// references like ${ANTHROPIC_API_KEY} are expanded before parsing, so
// secrets can stay out of the file. Absent keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a complete default configuration. The EDGAR User-Agent
// must be replaced with a real contact string before fetching filings.
func Default() *Config {
	return &Config{
		Provider: "anthropic",
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-5",
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o",
			BaseURL: "https://api.openai.com/v1",
		},
		Local: LocalConfig{
			BaseURL: "http://127.0.0.1:17777/v1",
			Model:   "llama3.2:3b",
			APIKey:  "local",
		},
		Projects: ProjectsConfig{
			Dir: "projects",
		},
		Pipeline: PipelineConfig{
			MaxTurns:        25,
			MaxTokens:       8192,
			HistoryBudget:   400_000,
			RecoveryRetries: 2,
			Reasoning: ReasoningConfig{
				Enabled:   true,
				Extract:   5000,
				Analysis:  4000,
				Synthesis: 8000,
			},
		},
		EDGAR: EDGARConfig{
			UserAgent:       "Mosaic Research admin@example.com",
			CacheMaxAgeDays: 730,
		},
		LogLevel: "info",
	}
}
