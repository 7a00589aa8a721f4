package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/gateway/auth"
	"github.com/vango-go/mock-interview/pkg/gateway/config"
	"github.com/vango-go/mock-interview/pkg/gateway/lifecycle"
	"github.com/vango-go/mock-interview/pkg/gateway/live/protocol"
	"github.com/vango-go/mock-interview/pkg/gateway/live/sessions"
	"github.com/vango-go/mock-interview/pkg/gateway/mw"
	"github.com/vango-go/mock-interview/pkg/interview"
	"github.com/vango-go/mock-interview/pkg/interview/bridge"
	"github.com/vango-go/mock-interview/pkg/interview/persona"
)

// InterviewHandler handles /v1/interview websocket connections. Each
// connection drives at most one interview.
type InterviewHandler struct {
	Config     config.Config
	Transport  agent.Transport
	Catalog    *persona.Catalog
	Logger     *slog.Logger
	Lifecycle  *lifecycle.Lifecycle
	Interviews *sessions.Tracker
}

func (h InterviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	if !h.Lifecycle.AcceptingInterviews() {
		writeCoreErrorJSON(w, reqID, &core.Error{Type: core.ErrAPI, Message: "gateway is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: mw.OriginAllowed(h.Config.OriginSet()),
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	if h.Config.WSMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxMessageBytes)
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	connID := "iv_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	logger = logger.With("connection_id", connID, "request_id", reqID)
	if _, ok := auth.PrincipalFrom(r.Context()); ok {
		logger = logger.With("authenticated", true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := &clientSession{
		h:      h,
		conn:   conn,
		logger: logger,
		ctx:    ctx,
		out:    &clientWriter{conn: conn, timeout: h.Config.WSWriteTimeout},
	}
	c.iv = interview.New(interview.Options{
		Transport:    h.Transport,
		AgentID:      h.Config.AgentID,
		FirstMessage: h.Config.FirstMessage,
		Baseline:     &h.Config.BaselineScore,
		Prompt:       h.Config.PromptPolicy(),
		Logger:       logger,
		CloseTimeout: h.Config.EndTimeout,
		OnChange:     c.onChange,
		OnScore:      c.onScore,
	})

	unregister := func() {}
	if h.Interviews != nil {
		unregister = h.Interviews.Register(connID, sessions.Handle{
			End:  c.shutdown,
			Warn: c.warn,
		})
	}
	defer unregister()

	logger.Info("interview client connected")
	c.readLoop()
	c.finish(context.Background())
	logger.Info("interview client disconnected")
}

type clientSession struct {
	h      InterviewHandler
	conn   *websocket.Conn
	logger *slog.Logger
	ctx    context.Context
	iv     *interview.Interview
	out    *clientWriter

	mu       sync.Mutex
	starting bool
	started  chan struct{}

	summaryOnce sync.Once
	finishOnce  sync.Once
}

func (c *clientSession) readLoop() {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				c.logger.Debug("interview client read ended", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.sendError("bad_request", "frames must be JSON text", "")
			continue
		}

		msg, err := protocol.DecodeClientMessage(data)
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) {
				c.sendError(de.Code, de.Message, de.Param)
			} else {
				c.sendError("bad_request", err.Error(), "")
			}
			continue
		}

		switch m := msg.(type) {
		case protocol.ClientStart:
			c.start(m)
		case protocol.ClientSay:
			if err := c.iv.Say(m.Text); err != nil {
				c.sendCoreError(err)
			}
		case protocol.ClientEnd:
			ctx, cancel := context.WithTimeout(context.Background(), c.endTimeout())
			c.finish(ctx)
			cancel()
			return
		}
	}
}

func (c *clientSession) start(m protocol.ClientStart) {
	p, ok := c.catalog().Get(m.PersonaID)
	if !ok {
		c.sendError("not_found", "unknown persona "+m.PersonaID, "persona_id")
		return
	}
	harshness := p.DefaultHarshness
	if m.Harshness != nil {
		harshness = *m.Harshness
	}
	cfg := types.SessionConfig{
		Persona:        p,
		Harshness:      harshness,
		JobDescription: m.JobDescription,
		Resume:         m.Resume,
	}

	c.mu.Lock()
	if c.starting || c.iv.State().Status != types.StatusIdle {
		c.mu.Unlock()
		c.sendWarning("already_started", "this connection already has an interview")
		return
	}
	c.starting = true
	c.started = make(chan struct{})
	started := c.started
	c.mu.Unlock()

	// Start blocks for the handshake; the read loop keeps serving so an end
	// frame can abort it.
	go func() {
		defer close(started)
		_, err := c.iv.Start(c.ctx, cfg)
		if err == nil {
			return
		}
		c.sendCoreError(err)
		if c.iv.State().Status == types.StatusIdle {
			c.mu.Lock()
			c.starting = false
			c.mu.Unlock()
		}
	}()
}

// finish ends the interview, sends the summary if one is due and closes the
// client socket. It runs once per connection.
func (c *clientSession) finish(ctx context.Context) {
	c.finishOnce.Do(func() {
		c.iv.End(ctx)
		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if started != nil {
			select {
			case <-started:
			case <-ctx.Done():
			case <-time.After(c.endTimeout()):
			}
		}
		c.out.close(websocket.CloseNormalClosure, "interview ended")
	})
}

func (c *clientSession) shutdown(ctx context.Context) {
	c.finish(ctx)
}

func (c *clientSession) onChange(s interview.State) {
	_ = c.out.send(protocol.ServerState{
		Type:           "state",
		SessionID:      s.SessionID,
		ConversationID: s.ConversationID,
		Status:         s.Status,
		Speaking:       s.Speaking,
		Score:          s.Score,
		Error:          s.Error,
	})
	c.out.sendTranscript(c.iv.Transcript())

	if s.SessionID != "" && (s.Status == types.StatusDisconnected || s.Status == types.StatusErrored) {
		c.summaryOnce.Do(func() {
			_ = c.out.send(protocol.ServerSummary{Type: "summary", Summary: c.iv.Summary()})
			// onChange may run on the session loop, so only the socket is
			// closed here; readLoop then returns and finish runs on the
			// handler goroutine.
			c.out.close(websocket.CloseNormalClosure, "interview ended")
		})
	}
}

func (c *clientSession) onScore(n bridge.Notification) {
	_ = c.out.send(protocol.ServerScore{
		Type:   "score",
		Impact: n.Impact,
		Reason: n.Reason,
		Score:  n.Score,
		Label:  n.Label(),
	})
}

func (c *clientSession) warn(code, message string) error {
	return c.out.send(protocol.ServerWarning{Type: "warning", Code: code, Message: message})
}

func (c *clientSession) sendWarning(code, message string) {
	_ = c.warn(code, message)
}

func (c *clientSession) sendError(code, message, param string) {
	_ = c.out.send(protocol.ServerError{Type: "error", Code: code, Message: message, Param: param})
}

func (c *clientSession) sendCoreError(err error) {
	var ce *core.Error
	if errors.As(err, &ce) {
		c.sendError(string(ce.Type), ce.Message, ce.Param)
		return
	}
	c.sendError(string(core.ErrAPI), core.Message(err), "")
}

func (c *clientSession) catalog() *persona.Catalog {
	if c.h.Catalog != nil {
		return c.h.Catalog
	}
	return persona.Builtin()
}

func (c *clientSession) endTimeout() time.Duration {
	if c.h.Config.EndTimeout > 0 {
		return c.h.Config.EndTimeout
	}
	return 5 * time.Second
}

// clientWriter serializes writes to the UI socket. Frames written after
// close are dropped.
type clientWriter struct {
	conn    *websocket.Conn
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	turns  int
}

func (w *clientWriter) send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(v)
}

func (w *clientWriter) writeLocked(v any) error {
	if w.closed {
		return websocket.ErrCloseSent
	}
	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
	}
	return w.conn.WriteJSON(v)
}

// sendTranscript writes the entries the client has not seen yet.
func (w *clientWriter) sendTranscript(entries []types.TranscriptEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.turns < len(entries) {
		e := entries[w.turns]
		if err := w.writeLocked(protocol.ServerTranscript{Type: "transcript", Speaker: e.Speaker, Message: e.Message}); err != nil {
			return
		}
		w.turns++
	}
}

func (w *clientWriter) close(code int, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	deadline := time.Now().Add(time.Second)
	_ = w.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline)
	_ = w.conn.Close()
}
