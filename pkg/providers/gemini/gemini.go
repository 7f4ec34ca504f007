// Package gemini is the default model backend: a Completer for the Google
// Gemini generateContent API, used for every model identifier that is not
// redirected to OpenRouter.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/germanamz/shorts/pkg/chats/chat"
	"github.com/germanamz/shorts/pkg/chats/content"
	"github.com/germanamz/shorts/pkg/chats/message"
	"github.com/germanamz/shorts/pkg/chats/role"
	"github.com/germanamz/shorts/pkg/modeladapter"
	"github.com/germanamz/shorts/pkg/modeladapter/usage"
	"github.com/germanamz/shorts/pkg/tools/toolbox"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash-exp"

	defaultMaxTokens = 2048
)

var _ modeladapter.Completer = (*Adapter)(nil)

// Options configure an Adapter. Zero values take the package defaults.
type Options struct {
	BaseURL     string
	APIKey      string //nolint:gosec // configuration field, not a hardcoded secret
	ProjectID   string // Billed project, sent as x-goog-user-project.
	Model       string
	MaxTokens   int
	Temperature float64
	Client      *http.Client
}

// Adapter implements modeladapter.Completer for Gemini.
type Adapter struct {
	modeladapter.ModelAdapter
}

// New creates an Adapter. The API key is required.
func New(opts Options) (*Adapter, error) {
	if opts.APIKey == "" {
		return nil, errors.New("gemini: API key is required, set GOOGLE_API_KEY")
	}

	a := &Adapter{ModelAdapter: modeladapter.New(
		firstNonEmpty(opts.BaseURL, DefaultBaseURL),
		modeladapter.Auth{Key: opts.APIKey, Header: "x-goog-api-key"},
		opts.Client,
	)}
	a.Name = firstNonEmpty(opts.Model, DefaultModel)
	a.MaxTokens = opts.MaxTokens
	if a.MaxTokens == 0 {
		a.MaxTokens = defaultMaxTokens
	}
	a.Temperature = opts.Temperature
	a.Headers = map[string]string{"x-goog-user-project": opts.ProjectID}

	return a, nil
}

// Complete sends a conversation to Gemini and returns the model's reply. The
// model is the one requested through modeladapter.WithModel, else the
// adapter's default.
func (a *Adapter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	model := modeladapter.ModelFrom(ctx, a.Name)
	req := a.buildRequest(c, tools)
	path := fmt.Sprintf("/v1beta/models/%s:generateContent", model)

	var resp apiResponse
	if err := a.PostJSON(ctx, path, req, &resp); err != nil {
		return message.Message{}, fmt.Errorf("gemini: %w", err)
	}

	a.Usage.Add(usage.TokenCount{
		InputTokens:  resp.UsageMetadata.PromptTokenCount,
		OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
	})

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback.BlockReason != "" {
			return message.Message{}, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return message.Message{}, errors.New("gemini: empty candidates in response")
	}

	msg := parseCandidate(resp.Candidates[0])
	msg.Model = model

	return msg, nil
}

// --- request types ---

type apiRequest struct {
	Contents          []apiContent     `json:"contents"`
	SystemInstruction *apiContent      `json:"systemInstruction,omitempty"`
	Tools             []apiToolSet     `json:"tools,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text             string           `json:"text,omitempty"`
	FunctionCall     *apiFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *apiFunctionResp `json:"functionResponse,omitempty"`
}

type apiFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type apiFunctionResp struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

type apiToolSet struct {
	FunctionDeclarations []apiFuncDecl `json:"functionDeclarations"`
}

type apiFuncDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type generationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens"`
}

// --- response types ---

type apiResponse struct {
	Candidates     []apiCandidate    `json:"candidates"`
	UsageMetadata  apiUsageMeta      `json:"usageMetadata"`
	PromptFeedback apiPromptFeedback `json:"promptFeedback"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiUsageMeta struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

type apiPromptFeedback struct {
	BlockReason string `json:"blockReason"`
}

// --- conversion helpers ---

func (a *Adapter) buildRequest(c *chat.Chat, tools []toolbox.Tool) apiRequest {
	req := apiRequest{
		GenerationConfig: generationConfig{MaxOutputTokens: a.MaxTokens},
	}

	if a.Temperature != 0 {
		t := a.Temperature
		req.GenerationConfig.Temperature = &t
	}

	if len(tools) > 0 {
		decls := make([]apiFuncDecl, len(tools))
		for i, t := range tools {
			decls[i] = apiFuncDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  sanitizeSchema(t.Schema()),
			}
		}
		req.Tools = []apiToolSet{{FunctionDeclarations: decls}}
	}

	if sp := c.SystemPrompt(); sp != "" {
		req.SystemInstruction = &apiContent{Parts: []apiPart{{Text: sp}}}
	}

	for _, m := range c.Messages() {
		if m.Role == role.System {
			continue
		}
		appendContent(&req.Contents, m)
	}

	return req
}

// appendContent converts m and merges it into the previous entry when the
// role repeats, since Gemini expects alternating turns.
func appendContent(contents *[]apiContent, m message.Message) {
	apiRole := mapRole(m.Role)

	for _, p := range m.Parts {
		part, ok := toAPIPart(p)
		if !ok {
			continue
		}

		if n := len(*contents); n > 0 && (*contents)[n-1].Role == apiRole {
			(*contents)[n-1].Parts = append((*contents)[n-1].Parts, part)
			continue
		}

		*contents = append(*contents, apiContent{Role: apiRole, Parts: []apiPart{part}})
	}
}

func toAPIPart(p content.Part) (apiPart, bool) {
	switch v := p.(type) {
	case content.Text:
		return apiPart{Text: v.Text}, true
	case content.ToolCall:
		args := json.RawMessage(v.Arguments)
		if len(args) == 0 || !json.Valid(args) {
			args = json.RawMessage(`{}`)
		}
		return apiPart{FunctionCall: &apiFunctionCall{Name: v.Name, Args: args}}, true
	case content.ToolResult:
		return apiPart{FunctionResponse: &apiFunctionResp{
			Name:     v.Name,
			Response: marshalFunctionResponse(v.Content),
		}}, true
	default:
		return apiPart{}, false
	}
}

// marshalFunctionResponse wraps tool output as {"result": ...}. JSON output
// is embedded as-is, anything else as a string.
func marshalFunctionResponse(out string) json.RawMessage {
	trimmed := strings.TrimSpace(out)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(`{"result":` + trimmed + `}`)
	}
	b, _ := json.Marshal(out)
	return json.RawMessage(`{"result":` + string(b) + `}`)
}

// sanitizeSchema drops the JSON Schema keywords Gemini rejects, at every
// nesting level.
func sanitizeSchema(raw json.RawMessage) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return raw
	}

	delete(obj, "$schema")
	delete(obj, "additionalProperties")

	if props, ok := obj["properties"]; ok {
		var propMap map[string]json.RawMessage
		if err := json.Unmarshal(props, &propMap); err == nil {
			for k, v := range propMap {
				propMap[k] = sanitizeSchema(v)
			}
			if b, err := json.Marshal(propMap); err == nil {
				obj["properties"] = b
			}
		}
	}

	if items, ok := obj["items"]; ok {
		obj["items"] = sanitizeSchema(items)
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return raw
	}
	return b
}

func mapRole(r role.Role) string {
	if r == role.Assistant {
		return "model"
	}
	return "user"
}

// Gemini returns no call ids, so each call gets a fresh one.
func newCallID() string {
	return "call_" + uuid.NewString()
}

func parseCandidate(cand apiCandidate) message.Message {
	var parts []content.Part

	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			args := string(p.FunctionCall.Args)
			if args == "" || args == "null" {
				args = "{}"
			}
			parts = append(parts, content.ToolCall{
				ID:        newCallID(),
				Name:      p.FunctionCall.Name,
				Arguments: args,
			})
		case p.Text != "":
			parts = append(parts, content.Text{Text: p.Text})
		}
	}

	return message.New("", role.Assistant, parts...)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
