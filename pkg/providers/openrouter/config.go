package openrouter

import (
	"errors"
	"fmt"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-oss-20b"
	DefaultAppName = "YouTube Shorts Creator"
)

// ErrConfiguration is returned by New when the client cannot be built.
var ErrConfiguration = errors.New("openrouter: configuration error")

// Config is the static provider configuration. It is copied into the
// client at construction and never changed afterwards.
type Config struct {
	APIKey      string  //nolint:gosec // configuration field, not a hardcoded secret
	BaseURL     string  // API root, e.g. https://openrouter.ai/api/v1.
	Model       string  // Default model when a call does not name one.
	MaxTokens   int     // max_tokens sent with every generation.
	Temperature float64 // temperature sent with every generation.
	SiteURL     string  // Sent as HTTP-Referer.
	AppName     string  // Sent as X-Title.
}

// withDefaults fills empty optional fields.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.AppName == "" {
		c.AppName = DefaultAppName
	}
	return c
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("%w: provider not configured, set MODEL_PROVIDER=openrouter", ErrConfiguration)
	}
	if c.APIKey == "" {
		return fmt.Errorf("%w: API key is required, set OPENROUTER_API_KEY", ErrConfiguration)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max tokens must not be negative, got %d", ErrConfiguration, c.MaxTokens)
	}
	return nil
}
