package engine

import (
	"testing"

	"github.com/germanamz/shorts/pkg/providers/openrouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, ProviderGoogle, cfg.Provider)
	assert.Equal(t, "gemini-2.0-flash-exp", cfg.ModelName)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Nil(t, cfg.OpenRouter)
	assert.Equal(t, "gemini-2.0-flash-exp", cfg.DefaultModel())
}

func TestFromLookup_OpenRouter(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{
		"MODEL_PROVIDER":      "OpenRouter",
		"OPENROUTER_API_KEY":  "sk-or",
		"OPENROUTER_SITE_URL": "https://example.com",
		"MAX_TOKENS":          "512",
		"TEMPERATURE":         "0.2",
	}))
	require.NoError(t, err)

	require.NotNil(t, cfg.OpenRouter)
	assert.Equal(t, openrouter.Config{
		APIKey:      "sk-or",
		BaseURL:     "https://openrouter.ai/api/v1",
		Model:       "openai/gpt-oss-20b",
		MaxTokens:   512,
		Temperature: 0.2,
		SiteURL:     "https://example.com",
		AppName:     "YouTube Shorts Creator",
	}, *cfg.OpenRouter)
	assert.Equal(t, "openrouter:openai/gpt-oss-20b", cfg.DefaultModel())
	require.NoError(t, cfg.Validate())
}

func TestFromLookup_Malformed(t *testing.T) {
	_, err := FromLookup(lookup(map[string]string{"MAX_TOKENS": "lots"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_TOKENS")

	_, err = FromLookup(lookup(map[string]string{"TEMPERATURE": "warm"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TEMPERATURE")
}

func TestValidate_Missing(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"google", nil, "GOOGLE_API_KEY"},
		{"openrouter", map[string]string{"MODEL_PROVIDER": "openrouter"}, "OPENROUTER_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromLookup(lookup(tt.vars))
			require.NoError(t, err)

			err = cfg.Validate()
			require.ErrorIs(t, err, ErrMissingEnv)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{"MODEL_PROVIDER": "carrier-pigeon"}))
	require.NoError(t, err)

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown MODEL_PROVIDER "carrier-pigeon"`)
}

func TestValidate_NonPositiveMaxTokens(t *testing.T) {
	cfg, err := FromLookup(lookup(map[string]string{"GOOGLE_API_KEY": "k", "MAX_TOKENS": "0"}))
	require.NoError(t, err)

	assert.Error(t, cfg.Validate())
}

func TestVariables(t *testing.T) {
	env := map[string]string{"MODEL_PROVIDER": "openrouter", "OPENROUTER_API_KEY": "sk"}
	cfg, err := FromLookup(lookup(env))
	require.NoError(t, err)

	vars := cfg.Variables(lookup(env))
	require.Len(t, vars, 3)

	status := make(map[string]bool, len(vars))
	for _, v := range vars {
		status[v.Name] = v.Set
		assert.NotEmpty(t, v.Description)
	}
	assert.Equal(t, map[string]bool{
		"MODEL_PROVIDER":     true,
		"OPENROUTER_API_KEY": true,
		"OPENROUTER_MODEL":   false,
	}, status)

	google, err := FromLookup(lookup(nil))
	require.NoError(t, err)
	names := []string{}
	for _, v := range google.Variables(lookup(nil)) {
		names = append(names, v.Name)
		assert.False(t, v.Set)
	}
	assert.Equal(t, []string{"MODEL_PROVIDER", "GOOGLE_API_KEY", "MODEL_NAME"}, names)
}
