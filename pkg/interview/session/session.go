// Package session owns the single live connection of one interview.
//
// A Controller moves through idle → connecting → connected → disconnecting →
// disconnected, or into errored when the handshake fails or the remote agent
// reports a fatal error. Events from the transport are processed strictly one
// at a time on a dedicated goroutine; tool calls are executed inline on that
// goroutine so they never run concurrently.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/interview/prompt"
	"github.com/vango-go/mock-interview/pkg/interview/record"
)

const (
	DefaultFirstMessage = "Let's begin. I'll be scoring every answer in real time."
	defaultCloseTimeout = 5 * time.Second
)

// Snapshot is the observable state of a controller.
type Snapshot struct {
	SessionID      string       `json:"session_id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	Status         types.Status `json:"status"`
	Speaking       bool         `json:"speaking"`
	Error          string       `json:"error,omitempty"`
}

// Deps configures a Controller. A zero Prompt means prompt.DefaultPolicy.
type Deps struct {
	Transport    agent.Transport
	Recorder     *record.Recorder
	Logger       *slog.Logger
	AgentID      string
	FirstMessage string
	Prompt       prompt.Policy
	// OnChange is called synchronously after every state change, outside
	// the controller lock.
	OnChange     func(Snapshot)
	CloseTimeout time.Duration
}

// Controller owns the single connection to the remote interviewer.
type Controller struct {
	transport    agent.Transport
	recorder     *record.Recorder
	logger       *slog.Logger
	agentID      string
	firstMessage string
	policy       prompt.Policy
	onChange     func(Snapshot)
	closeTimeout time.Duration

	mu             sync.Mutex
	status         types.Status
	speaking       bool
	lastErr        string
	sessionID      string
	conversationID string
	cfg            types.SessionConfig
	tools          map[string]agent.ToolHandler
	conn           agent.Conn
	live           bool

	cancelConnect context.CancelFunc
	cancelLoop    context.CancelFunc
	startDone     chan struct{}
	loopDone      chan struct{}
	ended         chan struct{}
}

// New returns an idle controller.
func New(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = record.New()
	}
	firstMessage := deps.FirstMessage
	if strings.TrimSpace(firstMessage) == "" {
		firstMessage = DefaultFirstMessage
	}
	policy := deps.Prompt
	if policy == (prompt.Policy{}) {
		policy = prompt.DefaultPolicy
	}
	closeTimeout := deps.CloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = defaultCloseTimeout
	}
	return &Controller{
		transport:    deps.Transport,
		recorder:     recorder,
		logger:       logger,
		agentID:      strings.TrimSpace(deps.AgentID),
		firstMessage: firstMessage,
		policy:       policy,
		onChange:     deps.OnChange,
		closeTimeout: closeTimeout,
		status:       types.StatusIdle,
	}
}

// Start opens the agent connection and blocks until it is established or
// fails. Calling Start again while connecting or connected returns the
// existing session id without opening anything.
func (c *Controller) Start(ctx context.Context, cfg types.SessionConfig, tools map[string]agent.ToolHandler) (string, error) {
	c.mu.Lock()
	switch c.status {
	case types.StatusConnecting, types.StatusConnected:
		id := c.sessionID
		c.mu.Unlock()
		return id, nil
	case types.StatusIdle:
	default:
		c.mu.Unlock()
		return "", core.NewInvalidRequestError("interview already ended; start a new one")
	}
	if c.agentID == "" {
		err := core.NewConfigurationError("missing agent id: set ELEVENLABS_AGENT_ID", "ELEVENLABS_AGENT_ID")
		c.lastErr = err.Message
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Error("interview not started", "error", err)
		c.notify(snap)
		return "", err
	}
	if c.transport == nil {
		c.mu.Unlock()
		return "", core.NewConfigurationError("transport is required", "transport")
	}

	frozen := cfg.Freeze()
	id := uuid.NewString()
	connCtx, cancel := context.WithCancel(ctx)
	startDone := make(chan struct{})
	defer close(startDone)

	c.cfg = frozen
	c.sessionID = id
	c.status = types.StatusConnecting
	c.lastErr = ""
	c.live = true
	c.tools = cloneTools(tools)
	c.cancelConnect = cancel
	c.startDone = startDone
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	logger := c.logger.With("session_id", id)
	logger.Info("interview connecting", "persona", frozen.Persona.ID, "harshness", frozen.Harshness)

	conn, err := c.transport.Connect(connCtx, agent.ConnectRequest{
		AgentID:      c.agentID,
		SystemPrompt: c.policy.Build(frozen),
		FirstMessage: c.firstMessage,
		ClientTools:  toolList(tools),
	})
	cancel()

	c.mu.Lock()
	c.cancelConnect = nil
	if !c.live {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		logger.Info("interview ended before the agent connected")
		return id, core.NewHandshakeError("interview ended before the agent connected", context.Canceled)
	}
	if err != nil {
		hsErr := asHandshakeError(err)
		c.status = types.StatusErrored
		c.live = false
		c.lastErr = describe(hsErr)
		snap := c.snapshotLocked()
		c.mu.Unlock()
		logger.Error("interview failed to connect", "error", err)
		c.notify(snap)
		return id, hsErr
	}

	loopCtx, loopCancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	c.conn = conn
	c.conversationID = conn.ConversationID()
	c.status = types.StatusConnected
	c.cancelLoop = loopCancel
	c.loopDone = loopDone
	go c.loop(loopCtx, conn, loopDone, logger)
	snap = c.snapshotLocked()
	c.mu.Unlock()

	logger.Info("interview connected", "conversation_id", snap.ConversationID)
	c.notify(snap)
	return id, nil
}

// End tears the session down. It is a no-op when nothing is live and never
// reports transport errors. Concurrent callers all wait for the same teardown,
// bounded by ctx (or the close timeout when ctx has no deadline).
func (c *Controller) End(ctx context.Context) {
	c.mu.Lock()
	switch c.status {
	case types.StatusIdle, types.StatusDisconnected, types.StatusErrored:
		c.mu.Unlock()
		return
	case types.StatusDisconnecting:
		ended := c.ended
		c.mu.Unlock()
		c.wait(ctx, ended)
		return
	}

	c.status = types.StatusDisconnecting
	c.live = false
	c.ended = make(chan struct{})
	ended := c.ended
	cancelConnect, cancelLoop := c.cancelConnect, c.cancelLoop
	conn, startDone, loopDone := c.conn, c.startDone, c.loopDone
	id := c.sessionID
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	if cancelConnect != nil {
		cancelConnect()
	}
	if cancelLoop != nil {
		cancelLoop()
	}
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		if conn != nil {
			if err := conn.Close(); err != nil {
				c.logger.Debug("close failed", "session_id", id, "error", err)
			}
		}
	}()
	c.wait(ctx, closed, startDone, loopDone)

	c.mu.Lock()
	c.status = types.StatusDisconnected
	c.speaking = false
	close(ended)
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("interview ended", "session_id", id)
	c.notify(snap)
}

// Say sends typed text to the agent on the user's behalf and records it.
func (c *Controller) Say(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewInvalidRequestError("message text is required")
	}
	c.mu.Lock()
	if c.status != types.StatusConnected || c.conn == nil {
		c.mu.Unlock()
		return core.NewInvalidRequestError("interview is not connected")
	}
	conn := c.conn
	c.mu.Unlock()

	if err := conn.SendUserActivity(); err != nil {
		return err
	}
	if err := conn.SendUserMessage(text); err != nil {
		return err
	}
	c.recorder.AppendTurn(types.SpeakerUser, text)
	c.notify(c.Snapshot())
	return nil
}

// Accepting reports whether tool calls may mutate interview state.
func (c *Controller) Accepting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == types.StatusConnected
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Config returns the configuration captured by Start.
func (c *Controller) Config() types.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) Recorder() *record.Recorder { return c.recorder }

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:      c.sessionID,
		ConversationID: c.conversationID,
		Status:         c.status,
		Speaking:       c.speaking,
		Error:          c.lastErr,
	}
}

func (c *Controller) notify(s Snapshot) {
	if c.onChange != nil {
		c.onChange(s)
	}
}

func (c *Controller) wait(ctx context.Context, chans ...chan struct{}) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.closeTimeout)
		defer cancel()
	}
	for _, ch := range chans {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			c.logger.Warn("interview teardown did not finish in time", "error", ctx.Err())
			return
		}
	}
}

func cloneTools(in map[string]agent.ToolHandler) map[string]agent.ToolHandler {
	out := make(map[string]agent.ToolHandler, len(in))
	for name, h := range in {
		if h != nil {
			out[name] = h
		}
	}
	return out
}

func toolList(in map[string]agent.ToolHandler) []agent.ClientTool {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]agent.ClientTool, 0, len(names))
	for _, name := range names {
		out = append(out, agent.ClientTool{Name: name})
	}
	return out
}

func asHandshakeError(err error) *core.Error {
	var e *core.Error
	if errors.As(err, &e) && (e.Type == core.ErrHandshake || e.Type == core.ErrConfiguration) {
		return e
	}
	return core.NewHandshakeError("failed to start interview", err)
}

// describe renders an error for the Snapshot.Error field.
func describe(e *core.Error) string {
	if e.Cause != nil && !errors.Is(e.Cause, context.Canceled) {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}
