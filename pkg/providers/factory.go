package providers

import (
	"fmt"
	"strings"

	"github.com/sipeed/visionchat/pkg/config"
)

// CreateProvider builds the named provider for one submission's API key.
func CreateProvider(cfg *config.Config, name, apiKey string) (LLMProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}

	providerCfg, defaultBase := cfg.Providers.GetByName(name)
	if defaultBase == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	apiBase := providerCfg.APIBase
	if apiBase == "" {
		apiBase = defaultBase
	}

	switch strings.ToLower(name) {
	case "anthropic":
		return NewAnthropicProvider(apiKey, apiBase, cfg.Chat.Model, providerCfg.MaxTokens), nil
	default:
		return NewGeminiProvider(apiKey, apiBase, cfg.Chat.Model, providerCfg.MaxTokens), nil
	}
}
