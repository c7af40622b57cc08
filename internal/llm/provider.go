package llm

import "context"

// Provider is the contract the tool-augmented selector drives. Unlike a
// plain chat completion, a Provider call can return either a terminal text
// response or one or more tool calls the caller must execute and feed back
// in a follow-up Continue call, per spec.md §4.5's conversation protocol.
type Provider interface {
	// Start opens a new tool-use conversation: system + user message, plus
	// the closed set of tools the model may call. The returned Conversation
	// must be threaded into every following Continue/ContinueWithMessage
	// call so the provider can replay full item history.
	Start(ctx context.Context, request *Request) (*Conversation, *Turn, error)

	// Continue appends the results of the tool calls the caller already
	// executed and asks the model for its next turn.
	Continue(ctx context.Context, conversation *Conversation, results []ToolResult) (*Turn, error)

	// ContinueWithMessage appends a plain user message (no tool results) and
	// asks for the model's next turn. The selector uses this for the single
	// corrective retry spec.md §4.5 allows on malformed terminal output.
	ContinueWithMessage(ctx context.Context, conversation *Conversation, message string) (*Turn, error)

	// Name returns the provider name (e.g. "openai"), used in logging and
	// decision-log entries.
	Name() string
}

// Request describes one selector conversation.
type Request struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Tools        []ToolSpec
	// ReasoningEffort is one of "none", "low", "medium", "high", "xhigh";
	// empty means the provider's default.
	ReasoningEffort string
}

// ToolSpec is one entry from spec.md §4.5's closed tool-spec set.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// ToolCall is one invocation the model asked the caller to perform.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolResult is the caller's answer to one ToolCall, fed back via Continue.
type ToolResult struct {
	CallID string
	Output string // JSON-encoded result, or an error message
}

// Turn is one model response: either terminal text (OutputText populated,
// ToolCalls empty) or a batch of tool calls to execute.
type Turn struct {
	OutputText string
	ToolCalls  []ToolCall
	Usage      Usage
}

// Usage carries token counts for cost accounting (spec.md §4.5).
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Conversation threads state between Start and successive Continue calls so
// the provider can replay the full item history the Responses API requires.
type Conversation struct {
	Model           string
	ReasoningEffort string
	items           []any
}
