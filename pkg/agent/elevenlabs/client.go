// Package elevenlabs implements agent.Transport over the ElevenLabs
// Conversational AI WebSocket.
package elevenlabs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
)

const (
	DefaultBaseURL = "wss://api.elevenlabs.io/v1/convai/conversation"

	defaultConnectTimeout = 15 * time.Second
	eventBuffer           = 64
)

// Config configures the transport. Every field is optional.
type Config struct {
	APIKey         string
	BaseURL        string
	ConnectTimeout time.Duration
	Dialer         *websocket.Dialer
	Logger         *slog.Logger
}

// Transport dials one conversation socket per Connect call.
type Transport struct {
	cfg Config
}

func New(cfg Config) *Transport {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{cfg: cfg}
}

var _ agent.Transport = (*Transport)(nil)

// Connect dials, sends the initiation override and waits for the
// conversation metadata frame. Cancelling ctx aborts the handshake.
func (t *Transport) Connect(ctx context.Context, req agent.ConnectRequest) (agent.Conn, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return nil, core.NewConfigurationError("agent id is required", "agent_id")
	}
	wsURL, err := buildConversationURL(t.cfg.BaseURL, agentID)
	if err != nil {
		return nil, core.NewConfigurationError(err.Error(), "base_url")
	}

	header := http.Header{}
	if key := strings.TrimSpace(t.cfg.APIKey); key != "" {
		header.Set("xi-api-key", key)
	}

	dialer := t.cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	hsCtx, cancel := context.WithTimeout(ctx, t.cfg.ConnectTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(hsCtx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, core.NewHandshakeError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return nil, core.NewHandshakeError("websocket dial failed", err)
	}

	// ReadMessage ignores contexts; closing the socket unblocks it.
	release := context.AfterFunc(hsCtx, func() { _ = ws.Close() })

	meta, err := handshake(ws, newInitiation(req.SystemPrompt, req.FirstMessage))
	if !release() {
		_ = ws.Close()
		if ctxErr := hsCtx.Err(); ctxErr != nil {
			return nil, core.NewHandshakeError("handshake aborted", ctxErr)
		}
	}
	if err != nil {
		_ = ws.Close()
		return nil, err
	}

	c := &Conn{
		conn:           ws,
		conversationID: meta.ConversationID,
		logger:         t.cfg.Logger.With("conversation_id", meta.ConversationID),
		events:         make(chan agent.Event, eventBuffer),
		done:           make(chan struct{}),
		stop:           make(chan struct{}),
	}
	c.speaking = newSpeakingTracker(sampleRateFromFormat(meta.AgentOutputFormat), func(speaking bool) {
		c.emit(agent.SpeakingEvent{Speaking: speaking})
	})
	go c.readLoop()
	return c, nil
}

func handshake(ws *websocket.Conn, init initiationClientData) (initiationMetadata, error) {
	if err := ws.WriteJSON(init); err != nil {
		return initiationMetadata{}, core.NewHandshakeError("send conversation initiation", err)
	}
	messageType, payload, err := ws.ReadMessage()
	if err != nil {
		return initiationMetadata{}, core.NewHandshakeError("read conversation metadata", err)
	}
	if messageType != websocket.TextMessage {
		return initiationMetadata{}, core.NewHandshakeError(fmt.Sprintf("unexpected first frame type %d", messageType), nil)
	}
	frame, err := decodeServerFrame(payload)
	if err != nil {
		return initiationMetadata{}, core.NewHandshakeError("decode conversation metadata", err)
	}
	switch f := frame.(type) {
	case initiationMetadata:
		return f, nil
	case serverError:
		return initiationMetadata{}, core.NewHandshakeError(f.Message, nil)
	default:
		return initiationMetadata{}, core.NewHandshakeError(fmt.Sprintf("expected conversation_initiation_metadata, got %q", frame.frameType()), nil)
	}
}

func buildConversationURL(base, agentID string) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return "", fmt.Errorf("invalid elevenlabs ws base url: %w", err)
	}
	switch u.Scheme {
	case "":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/convai/conversation"
	}
	q := u.Query()
	q.Set("agent_id", agentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Conn is one live conversation.
type Conn struct {
	conn           *websocket.Conn
	conversationID string
	logger         *slog.Logger
	speaking       *speakingTracker

	events chan agent.Event
	done   chan struct{}
	stop   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

var _ agent.Conn = (*Conn)(nil)

func (c *Conn) ConversationID() string { return c.conversationID }

func (c *Conn) Events() <-chan agent.Event { return c.events }

func (c *Conn) SendToolResult(res agent.ToolResult) error {
	return c.writeJSON(clientToolResultFrame{
		Type:       "client_tool_result",
		ToolCallID: strings.TrimSpace(res.CallID),
		Result:     res.Result,
		IsError:    res.IsError,
	})
}

func (c *Conn) SendUserMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return core.NewInvalidRequestError("message text is required")
	}
	return c.writeJSON(userMessageFrame{Type: "user_message", Text: text})
}

// SendUserActivity tells the agent the user is active so it holds its turn.
func (c *Conn) SendUserActivity() error {
	return c.writeJSON(userActivityFrame{Type: "user_activity"})
}

func (c *Conn) writeJSON(v any) error {
	if c.closed.Load() {
		return core.NewTransportDisconnectError("conversation is closed", nil)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// Close sends a normal closure, closes the socket and waits for the read loop.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stop)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer close(c.events)
	defer c.speaking.stop()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.emit(disconnectFrom(err))
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		frame, err := decodeServerFrame(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			c.emit(agent.ErrorEvent{Message: err.Error()})
			continue
		}
		c.handle(frame)
	}
}

func (c *Conn) handle(frame serverFrame) {
	switch f := frame.(type) {
	case agentResponse:
		if strings.TrimSpace(f.Text) != "" {
			c.emit(agent.UtteranceEvent{Speaker: types.SpeakerAgent, Text: f.Text})
		}
	case userTranscript:
		if strings.TrimSpace(f.Text) != "" {
			c.emit(agent.UtteranceEvent{Speaker: types.SpeakerUser, Text: f.Text})
		}
	case audioChunk:
		c.speaking.chunk(len(f.Audio))
	case interruption:
		c.speaking.interrupt()
	case ping:
		if err := c.writeJSON(pongFrame{Type: "pong", EventID: f.EventID}); err != nil {
			c.logger.Debug("pong failed", "event_id", f.EventID, "error", err)
		}
	case clientToolCall:
		c.emit(agent.ToolCallEvent{ID: f.ToolCallID, Name: f.ToolName, Params: f.Parameters})
	case serverError:
		c.emit(agent.ErrorEvent{Message: f.Message})
	case agentResponseCorrection:
		// The transcript is append-only; corrections are logged, not applied.
		c.logger.Debug("agent response corrected", "corrected", f.Corrected)
	case initiationMetadata:
		c.logger.Debug("duplicate conversation metadata ignored")
	case unknownFrame:
		c.logger.Debug("ignoring frame", "type", f.Type)
	}
}

func (c *Conn) emit(ev agent.Event) {
	select {
	case c.events <- ev:
	case <-c.stop:
	}
}

func disconnectFrom(err error) agent.DisconnectEvent {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		reason := strings.TrimSpace(closeErr.Text)
		if reason == "" {
			reason = fmt.Sprintf("remote closed (code %d)", closeErr.Code)
		}
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
			return agent.DisconnectEvent{Reason: reason}
		}
		return agent.DisconnectEvent{Reason: reason, Err: err}
	}
	return agent.DisconnectEvent{Reason: "connection lost", Err: err}
}
