package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Chat.Provider)
	assert.Equal(t, "gemini-1.5-flash", cfg.Chat.Model)
	assert.Equal(t, []string{"gemini-1.5-flash"}, cfg.ModelOptions())
	assert.Equal(t, "Describe this image", cfg.Chat.DefaultImageInstruction)
	assert.Equal(t, SessionScopeGlobal, cfg.Chat.SessionScope)
	assert.False(t, cfg.Chat.PreserveUploadMIME)
	assert.Equal(t, HistoryDriverMemory, cfg.History.Driver)
}

func TestLoadConfigFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json",
			file:    "config.json",
			content: `{"chat":{"session_scope":"browser"},"channels":{"webchat":{"port":9100}}}`,
		},
		{
			name:    "yaml",
			file:    "config.yaml",
			content: "chat:\n  session_scope: browser\nchannels:\n  webchat:\n    port: 9100\n",
		},
		{
			name:    "toml",
			file:    "config.toml",
			content: "[chat]\nsession_scope = \"browser\"\n[channels.webchat]\nport = 9100\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, SessionScopeBrowser, cfg.Chat.SessionScope)
			assert.Equal(t, 9100, cfg.Channels.WebChat.Port)
			// untouched fields keep their defaults
			assert.Equal(t, "0.0.0.0", cfg.Channels.WebChat.Host)
			assert.Equal(t, "gemini-1.5-flash", cfg.Chat.Model)
		})
	}
}

func TestLoadConfigEnvOverlay(t *testing.T) {
	t.Setenv("VISIONCHAT_CHANNELS_WEBCHAT_PORT", "9200")
	t.Setenv("VISIONCHAT_PROVIDERS_GEMINI_API_BASE", "http://localhost:9999/v1/")
	t.Setenv("VISIONCHAT_HISTORY_DRIVER", "sqlite")

	cfg, err := LoadConfig(writeFile(t, "config.json", `{"channels":{"webchat":{"port":9100}}}`))
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Channels.WebChat.Port)
	assert.Equal(t, "http://localhost:9999/v1/", cfg.Providers.Gemini.APIBase)
	assert.Equal(t, HistoryDriverSQLite, cfg.History.Driver)
}

func TestLoadConfigFromJSONEnv(t *testing.T) {
	t.Setenv("VISIONCHAT_CONFIG_JSON", `{"chat":{"provider":"anthropic","model":"claude-3-5-haiku-latest","models":["claude-3-5-haiku-latest"]}}`)

	cfg, err := LoadConfig("does-not-matter.json")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Chat.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", cfg.Chat.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Chat.Provider = "llama" }, errMsg: "unknown provider"},
		{name: "model outside options", mutate: func(c *Config) { c.Chat.Model = "gemini-ultra" }, errMsg: "not one of chat.models"},
		{name: "bad scope", mutate: func(c *Config) { c.Chat.SessionScope = "tab" }, errMsg: "session_scope"},
		{name: "bad driver", mutate: func(c *Config) { c.History.Driver = "redis" }, errMsg: "history driver"},
		{name: "zero upload limit", mutate: func(c *Config) { c.Channels.WebChat.MaxUploadBytes = 0 }, errMsg: "max_upload_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Channels.WebChat.Port = 9300

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9300, loaded.Channels.WebChat.Port)
}

func TestGetByName(t *testing.T) {
	p := ProvidersConfig{Gemini: ProviderConfig{MaxTokens: 10}}

	got, base := p.GetByName("Gemini")
	assert.Equal(t, 10, got.MaxTokens)
	assert.Equal(t, "https://generativelanguage.googleapis.com/v1beta/openai/", base)

	_, base = p.GetByName("nope")
	assert.Empty(t, base)
}
