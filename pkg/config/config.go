package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	SessionScopeGlobal  = "global"
	SessionScopeBrowser = "browser"

	HistoryDriverMemory = "memory"
	HistoryDriverSQLite = "sqlite"
)

type Config struct {
	Chat      ChatConfig      `json:"chat" yaml:"chat" toml:"chat"`
	Channels  ChannelsConfig  `json:"channels" yaml:"channels" toml:"channels"`
	Providers ProvidersConfig `json:"providers" yaml:"providers" toml:"providers"`
	History   HistoryConfig   `json:"history" yaml:"history" toml:"history"`
	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`
	mu        sync.RWMutex
}

type ChatConfig struct {
	Provider                string   `json:"provider" yaml:"provider" toml:"provider" env:"VISIONCHAT_CHAT_PROVIDER"`
	Model                   string   `json:"model" yaml:"model" toml:"model" env:"VISIONCHAT_CHAT_MODEL"`
	Models                  []string `json:"models" yaml:"models" toml:"models" env:"VISIONCHAT_CHAT_MODELS"`
	SystemPrompt            string   `json:"system_prompt" yaml:"system_prompt" toml:"system_prompt" env:"VISIONCHAT_CHAT_SYSTEM_PROMPT"`
	DefaultImageInstruction string   `json:"default_image_instruction" yaml:"default_image_instruction" toml:"default_image_instruction" env:"VISIONCHAT_CHAT_DEFAULT_IMAGE_INSTRUCTION"`
	FallbackHeroURL         string   `json:"fallback_hero_url" yaml:"fallback_hero_url" toml:"fallback_hero_url" env:"VISIONCHAT_CHAT_FALLBACK_HERO_URL"`
	// SessionScope is "global" (one shared conversation) or "browser" (one
	// per cookie). With the memory history driver, browser scope keeps every
	// conversation until restart; use the sqlite driver for long-running
	// public servers.
	SessionScope string `json:"session_scope" yaml:"session_scope" toml:"session_scope" env:"VISIONCHAT_CHAT_SESSION_SCOPE"`
	// PreserveUploadMIME sends the upload's own MIME type to the vision
	// endpoint instead of the fixed image/jpeg label.
	PreserveUploadMIME    bool    `json:"preserve_upload_mime" yaml:"preserve_upload_mime" toml:"preserve_upload_mime" env:"VISIONCHAT_CHAT_PRESERVE_UPLOAD_MIME"`
	SubmissionsPerMinute  float64 `json:"submissions_per_minute" yaml:"submissions_per_minute" toml:"submissions_per_minute" env:"VISIONCHAT_CHAT_SUBMISSIONS_PER_MINUTE"`
	SubmissionBurst       int     `json:"submission_burst" yaml:"submission_burst" toml:"submission_burst" env:"VISIONCHAT_CHAT_SUBMISSION_BURST"`
	RequestTimeoutSeconds int     `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds" env:"VISIONCHAT_CHAT_REQUEST_TIMEOUT_SECONDS"`
}

type ChannelsConfig struct {
	WebChat WebChatConfig `json:"webchat" yaml:"webchat" toml:"webchat"`
}

type WebChatConfig struct {
	Host           string   `json:"host" yaml:"host" toml:"host" env:"VISIONCHAT_CHANNELS_WEBCHAT_HOST"`
	Port           int      `json:"port" yaml:"port" toml:"port" env:"VISIONCHAT_CHANNELS_WEBCHAT_PORT"`
	Username       string   `json:"username" yaml:"username" toml:"username" env:"VISIONCHAT_CHANNELS_WEBCHAT_USERNAME"`
	Password       string   `json:"password" yaml:"password" toml:"password" env:"VISIONCHAT_CHANNELS_WEBCHAT_PASSWORD"`
	MaxUploadBytes int64    `json:"max_upload_bytes" yaml:"max_upload_bytes" toml:"max_upload_bytes" env:"VISIONCHAT_CHANNELS_WEBCHAT_MAX_UPLOAD_BYTES"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins" env:"VISIONCHAT_CHANNELS_WEBCHAT_ALLOWED_ORIGINS"`
}

type ProvidersConfig struct {
	Gemini    ProviderConfig `json:"gemini" yaml:"gemini" toml:"gemini" envPrefix:"VISIONCHAT_PROVIDERS_GEMINI_"`
	Anthropic ProviderConfig `json:"anthropic" yaml:"anthropic" toml:"anthropic" envPrefix:"VISIONCHAT_PROVIDERS_ANTHROPIC_"`
}

// ProviderConfig carries endpoint settings only. API keys are supplied per
// submission and never live in the config.
type ProviderConfig struct {
	APIBase   string `json:"api_base" yaml:"api_base" toml:"api_base" env:"API_BASE"`
	MaxTokens int    `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens" env:"MAX_TOKENS"`
}

// GetByName returns the provider config and default API base for a given provider name.
// Returns zero ProviderConfig and empty string if the name is not recognized.
func (p *ProvidersConfig) GetByName(name string) (ProviderConfig, string) {
	switch strings.ToLower(name) {
	case "gemini":
		return p.Gemini, "https://generativelanguage.googleapis.com/v1beta/openai/"
	case "anthropic":
		return p.Anthropic, "https://api.anthropic.com"
	default:
		return ProviderConfig{}, ""
	}
}

type HistoryConfig struct {
	Driver string `json:"driver" yaml:"driver" toml:"driver" env:"VISIONCHAT_HISTORY_DRIVER"`
	Path   string `json:"path" yaml:"path" toml:"path" env:"VISIONCHAT_HISTORY_PATH"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level" env:"VISIONCHAT_LOG_LEVEL"`
	Pretty bool   `json:"pretty" yaml:"pretty" toml:"pretty" env:"VISIONCHAT_LOG_PRETTY"`
}

func DefaultConfig() *Config {
	return &Config{
		Chat: ChatConfig{
			Provider:                "gemini",
			Model:                   "gemini-1.5-flash",
			Models:                  []string{"gemini-1.5-flash"},
			SystemPrompt:            "You are a helpful AI assistant. Please respond to user queries in English.",
			DefaultImageInstruction: "Describe this image",
			FallbackHeroURL:         "https://images.unsplash.com/photo-1518770660439-4636190af475?auto=format&fit=crop&w=1200&q=80",
			SessionScope:            SessionScopeGlobal,
			PreserveUploadMIME:      false,
			SubmissionsPerMinute:    30,
			SubmissionBurst:         5,
			RequestTimeoutSeconds:   120,
		},
		Channels: ChannelsConfig{
			WebChat: WebChatConfig{
				Host:           "0.0.0.0",
				Port:           8501,
				MaxUploadBytes: 10 << 20,
				AllowedOrigins: []string{},
			},
		},
		Providers: ProvidersConfig{
			Gemini:    ProviderConfig{MaxTokens: 2048},
			Anthropic: ProviderConfig{MaxTokens: 2048},
		},
		History: HistoryConfig{
			Driver: HistoryDriverMemory,
			Path:   "~/.visionchat/history.db",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Support full config from env var (for containers / serverless)
	if cfgJSON := os.Getenv("VISIONCHAT_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing VISIONCHAT_CONFIG_JSON: %w", err)
		}
		return finish(cfg)
	}

	data, err := os.ReadFile(ExpandHome(path))
	switch {
	case err == nil:
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	path = ExpandHome(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, base := c.Providers.GetByName(c.Chat.Provider); base == "" {
		return fmt.Errorf("config: unknown provider %q", c.Chat.Provider)
	}
	if c.Chat.Model == "" {
		return fmt.Errorf("config: chat.model is required")
	}
	if len(c.Chat.Models) > 0 && !slices.Contains(c.Chat.Models, c.Chat.Model) {
		return fmt.Errorf("config: chat.model %q is not one of chat.models", c.Chat.Model)
	}
	switch c.Chat.SessionScope {
	case SessionScopeGlobal, SessionScopeBrowser:
	default:
		return fmt.Errorf("config: unknown session_scope %q", c.Chat.SessionScope)
	}
	switch c.History.Driver {
	case HistoryDriverMemory, HistoryDriverSQLite:
	default:
		return fmt.Errorf("config: unknown history driver %q", c.History.Driver)
	}
	if c.Channels.WebChat.MaxUploadBytes <= 0 {
		return fmt.Errorf("config: channels.webchat.max_upload_bytes must be positive")
	}
	return nil
}

// ModelOptions returns the selectable models, always including the default.
func (c *Config) ModelOptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Chat.Models) == 0 {
		return []string{c.Chat.Model}
	}
	return slices.Clone(c.Chat.Models)
}

func (c *Config) HistoryPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.History.Path)
}

// ExpandHome resolves a leading ~ against the user home directory.
func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
