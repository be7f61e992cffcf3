// Package llm defines the LLMBackend capability pinned by spec.md §6: a
// streamed tool-use completion interface. Concrete backends (anthropic,
// openai) live in sibling files; the core loop in internal/agent only
// depends on this package.
package llm

import "context"

// PartKind discriminates the union of content parts a message can carry.
type PartKind string

const (
	PartText     PartKind = "text"
	PartThinking PartKind = "thinking"
	PartImage    PartKind = "image"
	PartToolUse  PartKind = "tool_use"
)

// Part is one piece of message content.
type Part struct {
	Kind      PartKind
	Text      string // PartText, PartThinking
	MimeType  string // PartImage
	Data      string // PartImage: base64
	ToolCallID string // PartToolUse
	ToolName  string // PartToolUse
	Args      []byte // PartToolUse: raw JSON arguments
}

// Role identifies who authored a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Usage accumulates token counts for one assistant message.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	CacheWriteTokens int
	InputCost       float64
	OutputCost      float64
	CacheReadCost   float64
	CacheWriteCost  float64
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.CacheWriteTokens += other.CacheWriteTokens
	u.InputCost += other.InputCost
	u.OutputCost += other.OutputCost
	u.CacheReadCost += other.CacheReadCost
	u.CacheWriteCost += other.CacheWriteCost
}

// TotalCost sums every cost sub-field.
func (u Usage) TotalCost() float64 {
	return u.InputCost + u.OutputCost + u.CacheReadCost + u.CacheWriteCost
}

// Message is one entry in the model transcript, per spec.md §3.
type Message struct {
	Role         Role
	Content      []Part // for RoleUser this may be a single text part
	StopReason   string // "toolUse", "endTurn", "aborted", "error", ...
	Usage        Usage
	ErrorMessage string
	ToolCallID   string // RoleTool
	ToolResult   string // RoleTool
	ToolIsError  bool   // RoleTool
}

// ToolDefinition describes a callable tool to the backend.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      []byte // JSON Schema
}

// Request bundles everything needed to prompt the backend.
type Request struct {
	SystemPrompt   string
	Transcript     []Message
	UserMessage    string
	AttachedImages []Part // PartImage entries
	Tools          []ToolDefinition
	Model          string
	MaxTokens      int
}

// BackendEventType discriminates streamed events per spec.md §4.6.
type BackendEventType string

const (
	EventToolExecutionStart BackendEventType = "tool_execution_start"
	EventToolExecutionEnd   BackendEventType = "tool_execution_end"
	EventMessageStart       BackendEventType = "message_start"
	EventMessageEnd         BackendEventType = "message_end"
	EventAutoCompactStart   BackendEventType = "auto_compaction_start"
	EventAutoCompactEnd     BackendEventType = "auto_compaction_end"
	EventAutoRetry          BackendEventType = "auto_retry_start"
)

// BackendEvent is one item in the stream returned by Backend.Prompt.
//
// Note: in this design the backend only emits message_start/message_end and
// text/thinking/tool_use content — tool dispatch itself happens in
// internal/agent, which re-emits tool_execution_start/end around its own
// calls to the tool registry. This mirrors spec.md §4.6's event order
// without requiring the backend to know about tools beyond deciding to
// call one.
type BackendEvent struct {
	Type         BackendEventType
	Role         Role
	ToolCallID   string
	ToolName     string
	ToolArgs     []byte
	Delta        Part // partial content; not set by the backends in this package, which deliver content on message_end
	Content      []Part
	StopReason   string
	Usage        Usage
	ErrorMessage string
	Attempt      int // EventAutoRetry
	MaxAttempts  int // EventAutoRetry
}

// Backend is the streamed tool-use completion capability external to this
// module, per spec.md §6.
type Backend interface {
	// Prompt streams a completion for req. The returned channel is closed
	// when the turn is complete (message_end with a terminal stop reason)
	// or ctx is canceled.
	Prompt(ctx context.Context, req Request) (<-chan BackendEvent, error)

	// Name identifies the backend ("anthropic", "openai", ...).
	Name() string

	// ContextWindow returns the model's context window size in tokens, used
	// for the usage-ratio line in the post-run summary.
	ContextWindow(model string) int
}
