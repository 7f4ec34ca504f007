package engine

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/germanamz/shorts/pkg/providers/gemini"
	"github.com/germanamz/shorts/pkg/providers/openrouter"
	"github.com/germanamz/shorts/pkg/providers/router"
)

// Provider kinds selectable with MODEL_PROVIDER.
const (
	ProviderGoogle     = "google"
	ProviderOpenRouter = "openrouter"
)

const (
	defaultMaxTokens   = 2048
	defaultTemperature = 0.7
)

// ErrMissingEnv is returned by EnvConfig.Validate. The message lists every
// missing variable.
var ErrMissingEnv = errors.New("missing required environment variables")

// EnvConfig is the model configuration read from the environment.
type EnvConfig struct {
	Provider        string // MODEL_PROVIDER.
	ModelName       string // MODEL_NAME, the default-provider model.
	GoogleAPIKey    string //nolint:gosec // configuration field, not a hardcoded secret
	GoogleProjectID string
	MaxTokens       int
	Temperature     float64

	// OpenRouter is set only when Provider is ProviderOpenRouter.
	OpenRouter *openrouter.Config
}

// FromEnv reads the configuration from the process environment.
func FromEnv() (EnvConfig, error) {
	return FromLookup(os.Getenv)
}

// FromLookup reads the configuration through getenv. Unset variables take
// their defaults; malformed numbers are an error.
func FromLookup(getenv func(string) string) (EnvConfig, error) {
	get := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := EnvConfig{
		Provider:        strings.ToLower(get("MODEL_PROVIDER", ProviderGoogle)),
		ModelName:       get("MODEL_NAME", gemini.DefaultModel),
		GoogleAPIKey:    getenv("GOOGLE_API_KEY"),
		GoogleProjectID: getenv("GOOGLE_CLOUD_PROJECT_ID"),
	}

	var err error
	if cfg.MaxTokens, err = strconv.Atoi(get("MAX_TOKENS", strconv.Itoa(defaultMaxTokens))); err != nil {
		return EnvConfig{}, fmt.Errorf("engine: env: MAX_TOKENS: %w", err)
	}
	if cfg.Temperature, err = strconv.ParseFloat(get("TEMPERATURE", strconv.FormatFloat(defaultTemperature, 'f', -1, 64)), 64); err != nil {
		return EnvConfig{}, fmt.Errorf("engine: env: TEMPERATURE: %w", err)
	}

	if cfg.Provider == ProviderOpenRouter {
		cfg.OpenRouter = &openrouter.Config{
			APIKey:      getenv("OPENROUTER_API_KEY"),
			BaseURL:     get("OPENROUTER_BASE_URL", openrouter.DefaultBaseURL),
			Model:       get("OPENROUTER_MODEL", openrouter.DefaultModel),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			SiteURL:     getenv("OPENROUTER_SITE_URL"),
			AppName:     get("OPENROUTER_APP_NAME", openrouter.DefaultAppName),
		}
	}

	return cfg, nil
}

// Validate reports every missing required variable in one error. Unknown
// providers are accepted when a factory is registered for them.
func (c EnvConfig) Validate() error {
	var missing []string

	switch c.Provider {
	case ProviderGoogle:
		if c.GoogleAPIKey == "" {
			missing = append(missing, "GOOGLE_API_KEY")
		}
	case ProviderOpenRouter:
		if c.OpenRouter == nil || c.OpenRouter.APIKey == "" {
			missing = append(missing, "OPENROUTER_API_KEY")
		}
	default:
		if _, ok := getFactory(c.Provider); !ok {
			return fmt.Errorf("engine: env: unknown MODEL_PROVIDER %q", c.Provider)
		}
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("engine: env: MAX_TOKENS must be positive, got %d", c.MaxTokens)
	}

	if len(missing) > 0 {
		return fmt.Errorf("engine: %w: %s", ErrMissingEnv, strings.Join(missing, ", "))
	}

	return nil
}

// DefaultModel is the model identifier given to agents that do not name
// one. Under OpenRouter it carries the routing tag.
func (c EnvConfig) DefaultModel() string {
	if c.Provider == ProviderOpenRouter && c.OpenRouter != nil {
		return router.Tag + c.OpenRouter.Model
	}
	return c.ModelName
}

// Variable is one environment variable the check command reports on.
type Variable struct {
	Name        string
	Description string
	Set         bool
}

// Variables lists the variables that matter for the configured provider
// and whether each is set.
func (c EnvConfig) Variables(getenv func(string) string) []Variable {
	vars := []Variable{
		{Name: "MODEL_PROVIDER", Description: `Set to "openrouter" for OpenRouter models`},
	}

	if c.Provider == ProviderOpenRouter {
		vars = append(vars,
			Variable{Name: "OPENROUTER_API_KEY", Description: "Your OpenRouter API key"},
			Variable{Name: "OPENROUTER_MODEL", Description: "Model name (default: " + openrouter.DefaultModel + ")"},
		)
	} else {
		vars = append(vars,
			Variable{Name: "GOOGLE_API_KEY", Description: "Your Google AI API key"},
			Variable{Name: "MODEL_NAME", Description: "Model name (default: " + gemini.DefaultModel + ")"},
		)
	}

	for i := range vars {
		vars[i].Set = strings.TrimSpace(getenv(vars[i].Name)) != ""
	}

	return vars
}
