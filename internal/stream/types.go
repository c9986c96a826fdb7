package stream

import "encoding/json"

// Event is a single decoded line of the agent's stream-json output.
// The concrete types are InitEvent, AssistantEvent, ToolUseEvent,
// ToolResultEvent, ResultEvent and UnknownEvent.
type Event interface {
	// Type returns the wire discriminator the event was decoded from.
	Type() string
	isEvent()
}

// InitEvent starts a session.
type InitEvent struct {
	SessionID string
}

// AssistantEvent carries model output.
type AssistantEvent struct {
	Content []ContentBlock
}

// ToolUseEvent is a tool invocation emitted at the top level of the stream.
type ToolUseEvent struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ToolResultEvent is the output of a tool invocation.
type ToolResultEvent struct {
	ToolUseID string
	Content   string
}

// ResultEvent closes a turn and carries the authoritative token usage.
type ResultEvent struct {
	SessionID    string
	Usage        TokenUsage
	TotalCostUSD *float64
}

// UnknownEvent preserves any event type the parser does not model.
type UnknownEvent struct {
	EventType string
	Raw       json.RawMessage
}

func (InitEvent) Type() string       { return "init" }
func (AssistantEvent) Type() string  { return "assistant" }
func (ToolUseEvent) Type() string    { return "tool_use" }
func (ToolResultEvent) Type() string { return "tool_result" }
func (ResultEvent) Type() string     { return "result" }
func (e UnknownEvent) Type() string  { return e.EventType }

func (InitEvent) isEvent()       {}
func (AssistantEvent) isEvent()  {}
func (ToolUseEvent) isEvent()    {}
func (ToolResultEvent) isEvent() {}
func (ResultEvent) isEvent()     {}
func (UnknownEvent) isEvent()    {}

// BlockKind distinguishes content block variants.
type BlockKind int

const (
	BlockOther BlockKind = iota
	BlockText
	BlockToolUse
)

// ContentBlock is one entry of an assistant message.
// Text is set for BlockText; ID, Name and Input for BlockToolUse.
type ContentBlock struct {
	Kind  BlockKind
	Text  string
	ID    string
	Name  string
	Input json.RawMessage
}

// TokenUsage holds token usage information reported by the agent.
type TokenUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

// Total is the context budget measure: input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}
