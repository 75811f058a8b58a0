package llm

import (
	"errors"
	"fmt"
)

// Message roles accepted by every provider adapter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message.
//
// Assistant messages may carry ToolCalls; tool messages answer exactly one of
// them through ToolCallID.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string // tool name, tool messages only
	IsError    bool   // tool messages only: the call failed
}

var (
	// ErrSystemNotFirst is returned when a system message is appended after the first position.
	ErrSystemNotFirst = errors.New("system message must be the first message")
	// ErrOrphanToolResult is returned when a tool message answers no pending tool call.
	ErrOrphanToolResult = errors.New("tool message does not answer a pending tool call")
	// ErrPendingToolCalls is returned when a non-tool message is appended while tool calls are unanswered.
	ErrPendingToolCalls = errors.New("previous tool calls are still unanswered")
	// ErrUnknownRole is returned for roles outside system/user/assistant/tool.
	ErrUnknownRole = errors.New("unknown message role")
)

// Conversation is an append-only message log owned by a single loop.
//
// It keeps the ordering providers accept: one optional system message at the
// start, then user/assistant turns, with every assistant tool call answered by
// a tool message before the next non-tool message.
type Conversation struct {
	messages []Message
	pending  map[string]struct{}
}

// NewConversation creates a conversation, seeded with a system prompt when
// system is non-empty.
func NewConversation(system string) *Conversation {
	c := &Conversation{pending: make(map[string]struct{})}
	if system != "" {
		c.messages = append(c.messages, SystemPrompt(system))
	}
	return c
}

// Append validates and appends messages in order. On error nothing after the
// offending message is appended.
func (c *Conversation) Append(msgs ...Message) error {
	for _, m := range msgs {
		if err := c.append(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conversation) append(m Message) error {
	switch m.Role {
	case RoleSystem:
		if len(c.messages) > 0 {
			return ErrSystemNotFirst
		}
	case RoleTool:
		if _, ok := c.pending[m.ToolCallID]; !ok {
			return fmt.Errorf("%w: id %q", ErrOrphanToolResult, m.ToolCallID)
		}
		delete(c.pending, m.ToolCallID)
	case RoleUser, RoleAssistant:
		if len(c.pending) > 0 {
			return fmt.Errorf("%w: %d outstanding", ErrPendingToolCalls, len(c.pending))
		}
		if m.Role == RoleAssistant {
			for _, tc := range m.ToolCalls {
				c.pending[tc.ID] = struct{}{}
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownRole, m.Role)
	}

	m.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	c.messages = append(c.messages, m)
	return nil
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Pending reports how many tool calls still wait for a tool message.
func (c *Conversation) Pending() int {
	return len(c.pending)
}

// Helper for creating system prompts.
func SystemPrompt(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// Helper for creating user messages.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Helper for creating assistant messages.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolMessage answers the tool call identified by callID.
func ToolMessage(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content}
}

// ToolErrorMessage answers a failed tool call.
func ToolErrorMessage(callID, name, content string) Message {
	m := ToolMessage(callID, name, content)
	m.IsError = true
	return m
}
