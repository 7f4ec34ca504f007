package engine

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/shorts/pkg/tools/mcpclient"
)

//go:embed defaults/pipeline.yaml
var defaultPipeline []byte

// Built-in toolbox names an agent may list besides its MCP servers.
const (
	ToolboxWebSearch = "web_search"
	ToolboxState     = "state"
)

var builtinToolboxNames = map[string]struct{}{
	ToolboxWebSearch: {},
	ToolboxState:     {},
}

// Config is the pipeline file.
type Config struct {
	Name         string                   `yaml:"name"`
	StageTimeout string                   `yaml:"stage_timeout"` // Duration string, e.g. "3m".
	RateLimit    RateLimitConfig          `yaml:"rate_limit"`    // Applies to the default provider.
	MCPServers   []mcpclient.ServerConfig `yaml:"mcp_servers"`
	Agents       []AgentConfig            `yaml:"agents"` // Run in order.
}

// RateLimitConfig controls rate limiting of the default provider.
type RateLimitConfig struct {
	TPM        int    `yaml:"tpm"`         // Tokens per minute (0 = no limit).
	RPM        int    `yaml:"rpm"`         // Requests per minute (0 = no limit).
	MaxRetries int    `yaml:"max_retries"` // Max retries on 429 (default 3).
	BaseDelay  string `yaml:"base_delay"`  // Initial backoff delay as a duration string (e.g. "1s", "500ms").
}

func (r RateLimitConfig) enabled() bool {
	return r.TPM > 0 || r.RPM > 0 || r.MaxRetries > 0 || r.BaseDelay != ""
}

// AgentConfig describes one pipeline stage.
type AgentConfig struct {
	Name            string       `yaml:"name"`
	Description     string       `yaml:"description"`
	Instruction     string       `yaml:"instruction"`      // Inline instruction; wins over InstructionFile.
	InstructionFile string       `yaml:"instruction_file"` // Resolved by the prompts loader; defaults to <name>.txt.
	Model           string       `yaml:"model"`            // Empty uses the environment default.
	Toolboxes       []string     `yaml:"toolboxes"`
	OutputKey       string       `yaml:"output_key"`
	Options         AgentOptions `yaml:"options"`
}

// AgentOptions holds optional agent behaviour settings.
type AgentOptions struct {
	MaxIterations int    `yaml:"max_iterations"`
	MaxParallel   int    `yaml:"max_parallel"`
	Timeout       string `yaml:"timeout"`
}

// DefaultConfig returns the embedded scriptwriter, visualizer, formatter
// pipeline.
func DefaultConfig() Config {
	cfg, err := ParseConfig(defaultPipeline)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads a YAML file and returns a Config. An empty path returns
// DefaultConfig.
// Environment variables referenced as ${VAR} or $VAR in the YAML are expanded
// before parsing.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig expands environment variables in data and parses it.
func ParseConfig(data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c Config) Validate() error {
	if _, err := parseDuration(c.StageTimeout); err != nil {
		return fmt.Errorf("engine: config: stage_timeout: %w", err)
	}
	if _, err := parseDuration(c.RateLimit.BaseDelay); err != nil {
		return fmt.Errorf("engine: config: rate_limit.base_delay: %w", err)
	}

	mcpNames := make(map[string]struct{}, len(c.MCPServers))
	for _, m := range c.MCPServers {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("engine: config: %w", err)
		}
		if _, builtin := builtinToolboxNames[m.Name]; builtin {
			return fmt.Errorf("engine: config: mcp server %q shadows a built-in toolbox", m.Name)
		}
		if _, dup := mcpNames[m.Name]; dup {
			return fmt.Errorf("engine: config: duplicate mcp server name %q", m.Name)
		}
		mcpNames[m.Name] = struct{}{}
	}

	if len(c.Agents) == 0 {
		return fmt.Errorf("engine: config: at least one agent is required")
	}

	agentNames := make(map[string]struct{}, len(c.Agents))
	outputKeys := make(map[string]string, len(c.Agents))
	for _, a := range c.Agents {
		if a.Name == "" {
			return fmt.Errorf("engine: config: agent name is required")
		}
		if _, dup := agentNames[a.Name]; dup {
			return fmt.Errorf("engine: config: duplicate agent name %q", a.Name)
		}
		agentNames[a.Name] = struct{}{}

		if a.OutputKey != "" {
			if other, dup := outputKeys[a.OutputKey]; dup {
				return fmt.Errorf("engine: config: agents %q and %q share output_key %q", other, a.Name, a.OutputKey)
			}
			outputKeys[a.OutputKey] = a.Name
		}

		if _, err := parseDuration(a.Options.Timeout); err != nil {
			return fmt.Errorf("engine: config: agent %q: timeout: %w", a.Name, err)
		}

		for _, tb := range a.Toolboxes {
			if _, builtin := builtinToolboxNames[tb]; builtin {
				continue
			}
			if _, ok := mcpNames[tb]; !ok {
				return fmt.Errorf("engine: config: agent %q: unknown toolbox %q", a.Name, tb)
			}
		}
	}

	return nil
}

// parseDuration parses s, treating the empty string as zero.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}
