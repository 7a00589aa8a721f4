package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
)

func (c *Controller) loop(ctx context.Context, conn agent.Conn, done chan struct{}, logger *slog.Logger) {
	defer close(done)

	for ev := range conn.Events() {
		c.handle(ctx, conn, ev, logger)
	}

	c.mu.Lock()
	if c.status != types.StatusConnected {
		c.mu.Unlock()
		return
	}
	err := core.NewTransportDisconnectError("connection closed unexpectedly", nil)
	c.status = types.StatusDisconnected
	c.speaking = false
	c.live = false
	c.lastErr = err.Message
	snap := c.snapshotLocked()
	c.mu.Unlock()
	logger.Warn("agent event stream closed", "error", err)
	c.notify(snap)
}

func (c *Controller) handle(ctx context.Context, conn agent.Conn, ev agent.Event, logger *slog.Logger) {
	switch e := ev.(type) {
	case agent.ToolCallEvent:
		c.handleToolCall(ctx, conn, e, logger)
		return
	case agent.UtteranceEvent:
		if !c.Accepting() {
			logger.Debug("dropping utterance outside connected session", "speaker", e.Speaker)
			return
		}
		c.recorder.AppendTurn(e.Speaker, e.Text)
		c.notify(c.Snapshot())
		return
	}

	c.mu.Lock()
	if c.status != types.StatusConnected {
		c.mu.Unlock()
		logger.Debug("ignoring event outside connected session", "event", agent.EventType(ev))
		return
	}
	changed := true
	closeConn := false
	switch e := ev.(type) {
	case agent.SpeakingEvent:
		changed = c.speaking != e.Speaking
		c.speaking = e.Speaking
	case agent.StatusEvent:
		switch e.Status {
		case types.StatusDisconnected, types.StatusDisconnecting:
			c.status = types.StatusDisconnected
			c.speaking = false
			c.live = false
			closeConn = true
		case types.StatusErrored:
			c.status = types.StatusErrored
			c.speaking = false
			c.live = false
			closeConn = true
		default:
			changed = false
		}
	case agent.DisconnectEvent:
		c.status = types.StatusDisconnected
		c.speaking = false
		c.live = false
		closeConn = true
		if e.Err != nil {
			c.lastErr = core.NewTransportDisconnectError(e.Reason, e.Err).Message
			logger.Warn("agent disconnected", "reason", e.Reason, "error", e.Err)
		} else {
			logger.Info("agent disconnected", "reason", e.Reason)
		}
	case agent.ErrorEvent:
		c.lastErr = e.Message
		if e.Fatal {
			c.status = types.StatusErrored
			c.speaking = false
			c.live = false
			closeConn = true
		}
		logger.Warn("agent error", "message", e.Message, "fatal", e.Fatal)
	default:
		changed = false
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if closeConn {
		_ = conn.Close()
	}
	if changed {
		c.notify(snap)
	}
}

// handleToolCall runs the handler without holding the lock so it may call
// back into Accepting.
func (c *Controller) handleToolCall(ctx context.Context, conn agent.Conn, call agent.ToolCallEvent, logger *slog.Logger) {
	c.mu.Lock()
	handler := c.tools[call.Name]
	c.mu.Unlock()

	logger = logger.With("tool", call.Name, "tool_call_id", call.ID)
	if handler == nil {
		logger.Warn("agent called an unregistered tool")
		c.reply(conn, agent.ToolResult{CallID: call.ID, Result: fmt.Sprintf("unknown tool %q", call.Name), IsError: true}, logger)
		return
	}

	result, err := handler(ctx, call.Params)
	if err != nil {
		c.reply(conn, agent.ToolResult{CallID: call.ID, Result: core.Message(err), IsError: true}, logger)
		if core.IsType(err, core.ErrToolCallValidation) {
			c.mu.Lock()
			c.lastErr = core.Message(err)
			snap := c.snapshotLocked()
			c.mu.Unlock()
			c.notify(snap)
		}
		return
	}
	c.reply(conn, agent.ToolResult{CallID: call.ID, Result: result}, logger)
}

func (c *Controller) reply(conn agent.Conn, res agent.ToolResult, logger *slog.Logger) {
	if err := conn.SendToolResult(res); err != nil {
		logger.Warn("tool result not delivered", "error", err)
	}
}
