package quizai

// Role is the author of a message in the conversation log.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the append-only conversation log. Name identifies
// the agent (or "feedback", "observation") that produced it.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Name    string `json:"name,omitempty"`

	// ToolCalls and ToolCallID are only used inside worker tool loops.
	ToolCalls  []*FunctionCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func UserMessage(content, name string) Message {
	return Message{Role: RoleUser, Content: content, Name: name}
}

func AssistantMessage(content, name string) Message {
	return Message{Role: RoleAssistant, Content: content, Name: name}
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
