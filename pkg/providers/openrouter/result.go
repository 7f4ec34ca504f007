package openrouter

import (
	"strings"

	"github.com/germanamz/shorts/pkg/chats/content"
)

// FinishReasonError is the finish reason of a failed tool-path call.
const FinishReasonError = "error"

// ToolResultsSeparator joins the original prompt and the flattened tool
// output in a follow-up prompt.
const ToolResultsSeparator = "\n\nTool results: "

// Text is the outcome of GenerateText. On failure Err is set and Content
// reads "Error: <cause>".
type Text struct {
	Content string
	Err     error
}

// Failed reports whether the call failed.
func (t Text) Failed() bool { return t.Err != nil }

func (t Text) String() string { return t.Content }

// Result is the outcome of GenerateTextWithTools. Tool call arguments are
// the provider's raw JSON text. On failure Err is set, Content reads
// "Error: <cause>", ToolCalls is empty and FinishReason is "error".
type Result struct {
	Content      string
	ToolCalls    []content.ToolCall
	FinishReason string
	Err          error
}

// Failed reports whether the call failed.
func (r Result) Failed() bool { return r.Err != nil }

// WantsTools reports whether the model asked for at least one tool call.
func (r Result) WantsTools() bool { return len(r.ToolCalls) > 0 }

func errorText(err error) string {
	return "Error: " + err.Error()
}

func failedText(err error) Text {
	return Text{Content: errorText(err), Err: err}
}

func failedResult(err error) Result {
	return Result{
		Content:      errorText(err),
		ToolCalls:    []content.ToolCall{},
		FinishReason: FinishReasonError,
		Err:          err,
	}
}

// FollowUpPrompt folds flattened tool output into the original prompt for
// the second round trip. Tool output travels as plain text, never as
// role-tagged tool messages.
func FollowUpPrompt(prompt string, toolResults []string) string {
	return prompt + ToolResultsSeparator + strings.Join(toolResults, "\n")
}
