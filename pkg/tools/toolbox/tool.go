package toolbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Handler runs a tool with its raw JSON arguments and returns text output.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool describes a capability a model may call: a name, a description, a
// JSON Schema for its arguments and the handler that executes it. Every
// tool handed to a model or an adapter is a Tool.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Validate checks that the descriptor can be declared to a provider.
func (t Tool) Validate() error {
	if t.Name == "" {
		return errors.New("toolbox: tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("toolbox: tool %q: handler is required", t.Name)
	}
	if len(t.InputSchema) > 0 && !json.Valid(t.InputSchema) {
		return fmt.Errorf("toolbox: tool %q: input schema is not valid JSON", t.Name)
	}
	return nil
}

// Schema returns the input schema, defaulting to an empty object schema.
func (t Tool) Schema() json.RawMessage {
	if len(t.InputSchema) == 0 {
		return json.RawMessage(`{"type":"object"}`)
	}
	return t.InputSchema
}
