package dispatch

import (
	"slices"

	"github.com/teemow/agentim/internal/tools"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser       Role = "user"
	RoleAgent      Role = "agent"
	RoleToolResult Role = "tool_result"
)

// Invocation is a tool call requested by the engine.
type Invocation struct {
	ID        string
	Tool      string
	Arguments tools.Arguments
	// TurnIndex is the position of the agent turn that requested it.
	TurnIndex int
}

// Turn is one entry of the conversation.
type Turn struct {
	Role    Role
	Content string

	// Invocations requested by an agent turn.
	Invocations []Invocation

	// Set on tool-result turns.
	InvocationID string
	Tool         string
	IsError      bool
}

// Conversation is the append-only history of one session.
type Conversation struct {
	sessionID string
	turns     []Turn
}

// NewConversation starts an empty conversation.
func NewConversation(sessionID string) *Conversation {
	return &Conversation{sessionID: sessionID}
}

// SessionID returns the id of the session owning the conversation.
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// Append adds t and returns its index.
func (c *Conversation) Append(t Turn) int {
	c.turns = append(c.turns, t)
	return len(c.turns) - 1
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []Turn {
	return slices.Clone(c.turns)
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.turns)
}
