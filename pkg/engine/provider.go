package engine

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/germanamz/shorts/pkg/modeladapter"
	"github.com/germanamz/shorts/pkg/providers/gemini"
	"github.com/germanamz/shorts/pkg/providers/openrouter"
)

// ProviderFactory creates the default-provider Completer from the
// environment. hc may be nil.
type ProviderFactory func(env EnvConfig, hc *http.Client) (modeladapter.Completer, error)

var (
	factoryMu   sync.RWMutex
	factories   = map[string]ProviderFactory{}
	defaultsReg sync.Once
)

func ensureDefaults() {
	defaultsReg.Do(func() {
		factories[ProviderGoogle] = newGemini
	})
}

// RegisterProvider registers a custom provider factory under the given kind.
// It can be called before New to serve MODEL_PROVIDER values other than
// google and openrouter.
func RegisterProvider(kind string, factory ProviderFactory) {
	ensureDefaults()

	factoryMu.Lock()
	defer factoryMu.Unlock()

	factories[kind] = factory
}

// getFactory returns the factory for the given kind.
func getFactory(kind string) (ProviderFactory, bool) {
	ensureDefaults()

	factoryMu.RLock()
	defer factoryMu.RUnlock()

	f, ok := factories[kind]
	return f, ok
}

func newGemini(env EnvConfig, hc *http.Client) (modeladapter.Completer, error) {
	return gemini.New(gemini.Options{
		APIKey:      env.GoogleAPIKey,
		ProjectID:   env.GoogleProjectID,
		Model:       env.ModelName,
		MaxTokens:   env.MaxTokens,
		Temperature: env.Temperature,
		Client:      hc,
	})
}

// completerKind picks the factory for the default provider. Under
// OpenRouter, Gemini still serves as the fallback when a Google key is
// present; an empty kind means no completer.
func completerKind(env EnvConfig) string {
	if env.Provider != ProviderOpenRouter {
		return env.Provider
	}
	if env.GoogleAPIKey != "" {
		return ProviderGoogle
	}
	return ""
}

// buildCompleter creates the default-provider Completer using the registered
// factory for its kind. If rate limiting is configured, the completer is
// wrapped with a RateLimitedCompleter. It returns nil when the environment
// selects no completer.
func buildCompleter(env EnvConfig, rl RateLimitConfig, hc *http.Client) (modeladapter.Completer, error) {
	kind := completerKind(env)
	if kind == "" {
		return nil, nil
	}

	factory, ok := getFactory(kind)
	if !ok {
		return nil, fmt.Errorf("engine: unknown provider kind %q", kind)
	}

	c, err := factory(env, hc)
	if err != nil {
		return nil, fmt.Errorf("engine: provider %q: %w", kind, err)
	}

	if rl.enabled() {
		baseDelay, err := parseDuration(rl.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("engine: provider %q: invalid base_delay %q: %w", kind, rl.BaseDelay, err)
		}

		c = modeladapter.NewRateLimitedCompleter(c, modeladapter.RateLimitOpts{
			TPM:        rl.TPM,
			RPM:        rl.RPM,
			MaxRetries: rl.MaxRetries,
			BaseDelay:  baseDelay,
		})
	}

	return c, nil
}

// buildClient creates the OpenRouter client, or nil when the environment has
// no OpenRouter section.
func buildClient(env EnvConfig, hc *http.Client, opts ...openrouter.Option) (*openrouter.Client, error) {
	if env.OpenRouter == nil {
		return nil, nil
	}

	if hc != nil {
		opts = append(opts, openrouter.WithHTTPClient(hc))
	}

	return openrouter.New(env.OpenRouter, opts...)
}
