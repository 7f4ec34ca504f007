package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/germanamz/shorts/pkg/modeladapter"
	"github.com/germanamz/shorts/pkg/modeladapter/usage"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

const (
	completionsPath = "/chat/completions"

	probePrompt    = "Hello"
	probeMaxTokens = 10

	headerReferer = "HTTP-Referer"
	headerTitle   = "X-Title"
)

// Option customises a Client at construction.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every call.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.Client = hc }
}

// WithLogger sets the logger failures are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// CallOption customises a single generation call.
type CallOption func(*call)

type call struct {
	model string
}

// WithModel overrides the configured model for one call. An empty name
// keeps the configured model.
func WithModel(name string) CallOption {
	return func(c *call) {
		if name != "" {
			c.model = name
		}
	}
}

// Client talks to OpenRouter. It is safe for concurrent use.
type Client struct {
	modeladapter.ModelAdapter

	cfg Config
	log *slog.Logger
}

// New builds a Client from cfg. It fails with ErrConfiguration when cfg is
// nil or has no API key. No request is sent.
func New(cfg *Config, opts ...Option) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg: cfg.withDefaults(),
		log: slog.Default(),
	}
	c.BaseURL = c.cfg.BaseURL
	c.Auth = modeladapter.Auth{Key: c.cfg.APIKey}
	c.Name = c.cfg.Model
	c.MaxTokens = c.cfg.MaxTokens
	c.Temperature = c.cfg.Temperature
	c.Headers = map[string]string{
		headerReferer: c.cfg.SiteURL,
		headerTitle:   c.cfg.AppName,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config { return c.cfg }

// Model returns the configured default model.
func (c *Client) Model() string { return c.cfg.Model }

// GenerateText sends an optional system message and the prompt, and
// returns the first choice's text. A response without text yields "".
func (c *Client) GenerateText(ctx context.Context, prompt, system string, opts ...CallOption) Text {
	req := c.buildRequest(prompt, system, nil, opts)

	resp, err := c.send(ctx, req)
	if err != nil {
		return failedText(err)
	}

	return Text{Content: resp.Choices[0].Message.text()}
}

// GenerateTextWithTools is GenerateText with tools declared to the model
// and tool_choice set to "auto". It returns the tool calls the model asked
// for; it does not run them.
func (c *Client) GenerateTextWithTools(
	ctx context.Context,
	prompt string,
	tools []toolbox.Tool,
	system string,
	opts ...CallOption,
) Result {
	req := c.buildRequest(prompt, system, tools, opts)

	resp, err := c.send(ctx, req)
	if err != nil {
		return failedResult(err)
	}

	choice := resp.Choices[0]
	calls := make([]content.ToolCall, 0, len(choice.Message.ToolCalls))
	for _, tc := range choice.Message.ToolCalls {
		calls = append(calls, content.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return Result{
		Content:      choice.Message.text(),
		ToolCalls:    calls,
		FinishReason: choice.FinishReason,
	}
}

// TestConnectivity sends a minimal prompt and reports whether the provider
// accepted it. Failure detail goes to the log only.
func (c *Client) TestConnectivity(ctx context.Context) bool {
	req := apiRequest{
		Model:     c.cfg.Model,
		Messages:  []apiMessage{{Role: "user", Content: probePrompt}},
		MaxTokens: probeMaxTokens,
	}

	if _, err := c.post(ctx, req); err != nil {
		c.log.WarnContext(ctx, "openrouter connectivity check failed", "model", req.Model, "error", err)
		return false
	}

	c.log.DebugContext(ctx, "openrouter connectivity check passed", "model", req.Model)

	return true
}

// post sends req and records its usage. Any accepted request succeeds.
func (c *Client) post(ctx context.Context, req apiRequest) (apiResponse, error) {
	var resp apiResponse
	if err := c.PostJSON(ctx, completionsPath, req, &resp); err != nil {
		return apiResponse{}, fmt.Errorf("openrouter: %w", err)
	}

	c.Usage.Add(usage.TokenCount{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})

	return resp, nil
}

// send is post for generations, which also need a choice to read.
func (c *Client) send(ctx context.Context, req apiRequest) (apiResponse, error) {
	resp, err := c.post(ctx, req)
	if err != nil {
		c.log.WarnContext(ctx, "openrouter request failed", "model", req.Model, "error", err)
		return apiResponse{}, err
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("openrouter: empty choices in response")
		c.log.WarnContext(ctx, "openrouter request failed", "model", req.Model, "error", err)
		return apiResponse{}, err
	}

	return resp, nil
}

// --- request types ---

type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	Tools       []apiToolDef `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiToolDef struct {
	Type     string         `json:"type"`
	Function apiToolDefFunc `json:"function"`
}

type apiToolDefFunc struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// --- response types ---

type apiResponse struct {
	Choices []apiChoice `json:"choices"`
	Usage   apiUsage    `json:"usage"`
}

type apiChoice struct {
	Message      apiRespMessage `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type apiRespMessage struct {
	Role      string        `json:"role"`
	Content   *string       `json:"content"`
	ToolCalls []apiToolCall `json:"tool_calls,omitempty"`
}

func (m apiRespMessage) text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiToolFunction `json:"function"`
}

type apiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// --- conversion helpers ---

func (c *Client) buildRequest(prompt, system string, tools []toolbox.Tool, opts []CallOption) apiRequest {
	cl := call{model: c.cfg.Model}
	for _, opt := range opts {
		opt(&cl)
	}

	temp := c.cfg.Temperature
	req := apiRequest{
		Model:       cl.model,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: &temp,
	}

	if system != "" {
		req.Messages = append(req.Messages, apiMessage{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, apiMessage{Role: "user", Content: prompt})

	if len(tools) > 0 {
		req.Tools = make([]apiToolDef, len(tools))
		for i, t := range tools {
			req.Tools[i] = apiToolDef{
				Type: "function",
				Function: apiToolDefFunc{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Schema(),
				},
			}
		}
		req.ToolChoice = "auto"
	}

	return req
}
