// Package agent defines the transport boundary to a remote conversational agent.
//
// A Transport opens one Conn per interview. The Conn streams Events strictly in
// arrival order and closes the channel when the session ends for any reason.
package agent

import (
	"context"
	"encoding/json"

	"github.com/vango-go/mock-interview/pkg/core/types"
)

// ClientTool describes a callable the agent may invoke on our side.
type ClientTool struct {
	Name        string
	Description string
}

// ConnectRequest is the session-open payload.
type ConnectRequest struct {
	AgentID      string
	SystemPrompt string
	FirstMessage string
	ClientTools  []ClientTool
}

// ToolResult answers one ToolCallEvent.
type ToolResult struct {
	CallID  string
	Result  string
	IsError bool
}

// Transport connects to the remote agent.
type Transport interface {
	// Connect blocks until the remote handshake completes or fails.
	Connect(ctx context.Context, req ConnectRequest) (Conn, error)
}

// Conn is a live agent session.
type Conn interface {
	ConversationID() string
	Events() <-chan Event
	SendToolResult(res ToolResult) error
	SendUserMessage(text string) error
	// SendUserActivity tells the agent the user is active so it holds its turn.
	SendUserActivity() error
	// Close is idempotent and releases the underlying connection.
	Close() error
}

// ToolHandler executes a client tool and returns the string result handed back
// to the agent. A non-nil error is reported to the agent as a tool failure.
type ToolHandler func(ctx context.Context, params json.RawMessage) (string, error)

// Event is a transport notification.
type Event interface {
	agentEventType() string
}

// StatusEvent reports a remote-side status change.
type StatusEvent struct {
	Status types.Status
}

func (StatusEvent) agentEventType() string { return "status" }

// SpeakingEvent toggles the agent speaking indicator.
type SpeakingEvent struct {
	Speaking bool
}

func (SpeakingEvent) agentEventType() string { return "speaking" }

// UtteranceEvent is a committed line of dialogue.
type UtteranceEvent struct {
	Speaker types.Speaker
	Text    string
}

func (UtteranceEvent) agentEventType() string { return "utterance" }

// ToolCallEvent asks the client to run a tool and answer with SendToolResult.
type ToolCallEvent struct {
	ID     string
	Name   string
	Params json.RawMessage
}

func (ToolCallEvent) agentEventType() string { return "tool_call" }

// DisconnectEvent is emitted once when the remote side goes away.
type DisconnectEvent struct {
	Reason string
	Err    error
}

func (DisconnectEvent) agentEventType() string { return "disconnect" }

// ErrorEvent carries a remote or protocol error. Fatal errors end the session.
type ErrorEvent struct {
	Message string
	Fatal   bool
}

func (ErrorEvent) agentEventType() string { return "error" }

// EventType names e for logging.
func EventType(e Event) string {
	if e == nil {
		return ""
	}
	return e.agentEventType()
}
