package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/agent/agenttest"
	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/interview/prompt"
	"github.com/vango-go/mock-interview/pkg/interview/record"
)

const waitTimeout = 2 * time.Second

var founderConfig = types.SessionConfig{
	Persona: types.Persona{
		ID:          "founder",
		Name:        "Marcus Sterling",
		Role:        "Founder & CEO",
		Description: "Loves big ideas and energy.",
	},
	Harshness: 20,
}

func newController(t *testing.T, tr agent.Transport) *Controller {
	t.Helper()
	return New(Deps{Transport: tr, AgentID: "agent_test", Recorder: record.New()})
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, c *Controller, want types.Status) {
	t.Helper()
	waitFor(t, func() bool { return c.Snapshot().Status == want }, "status "+string(want))
}

func startConnected(t *testing.T, tools map[string]agent.ToolHandler) (*Controller, *agenttest.Transport, *agenttest.Conn) {
	t.Helper()
	tr := agenttest.NewTransport()
	c := newController(t, tr)
	if _, err := c.Start(context.Background(), founderConfig, tools); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	conns := tr.Conns()
	if len(conns) != 1 {
		t.Fatalf("conns=%d, want 1", len(conns))
	}
	return c, tr, conns[0]
}

func TestStart_MissingAgentID(t *testing.T) {
	tr := agenttest.NewTransport()
	var changes []Snapshot
	c := New(Deps{Transport: tr, OnChange: func(s Snapshot) { changes = append(changes, s) }})

	_, err := c.Start(context.Background(), founderConfig, nil)
	if !core.IsType(err, core.ErrConfiguration) {
		t.Fatalf("Start() error = %v, want configuration error", err)
	}
	snap := c.Snapshot()
	if snap.Status != types.StatusIdle {
		t.Fatalf("status=%s, want idle", snap.Status)
	}
	if !strings.Contains(snap.Error, "ELEVENLABS_AGENT_ID") {
		t.Fatalf("error=%q", snap.Error)
	}
	if len(tr.Requests()) != 0 {
		t.Fatalf("connect attempted without agent id")
	}
	if len(changes) != 1 {
		t.Fatalf("changes=%d, want 1", len(changes))
	}
}

func TestStart_SendsPromptAndFirstMessage(t *testing.T) {
	noop := func(context.Context, json.RawMessage) (string, error) { return "", nil }
	c, tr, conn := startConnected(t, map[string]agent.ToolHandler{"rateAnswer": noop})

	reqs := tr.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests=%d", len(reqs))
	}
	req := reqs[0]
	if req.AgentID != "agent_test" {
		t.Fatalf("agent id=%q", req.AgentID)
	}
	if req.SystemPrompt != prompt.BuildSystemMessage(founderConfig.Freeze()) {
		t.Fatalf("system prompt mismatch:\n%s", req.SystemPrompt)
	}
	if req.FirstMessage != DefaultFirstMessage {
		t.Fatalf("first message=%q", req.FirstMessage)
	}
	if len(req.ClientTools) != 1 || req.ClientTools[0].Name != "rateAnswer" {
		t.Fatalf("client tools=%+v", req.ClientTools)
	}

	snap := c.Snapshot()
	if snap.Status != types.StatusConnected || snap.ConversationID != conn.ConversationID() || snap.SessionID == "" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestStart_TwiceWhileConnectingOpensOnce(t *testing.T) {
	tr := agenttest.NewTransport()
	tr.Gate = make(chan struct{})
	c := newController(t, tr)

	type result struct {
		id  string
		err error
	}
	first := make(chan result, 1)
	go func() {
		id, err := c.Start(context.Background(), founderConfig, nil)
		first <- result{id, err}
	}()
	if !tr.WaitAttempt(waitTimeout) {
		t.Fatalf("first Start never reached Connect")
	}
	if got := c.Snapshot().Status; got != types.StatusConnecting {
		t.Fatalf("status=%s, want connecting", got)
	}

	id2, err := c.Start(context.Background(), founderConfig, nil)
	if err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	close(tr.Gate)
	r := <-first
	if r.err != nil {
		t.Fatalf("first Start() error = %v", r.err)
	}
	if r.id != id2 {
		t.Fatalf("ids differ: %q vs %q", r.id, id2)
	}
	if n := len(tr.Requests()); n != 1 {
		t.Fatalf("connect attempts=%d, want 1", n)
	}
	if got := c.Snapshot().Status; got != types.StatusConnected {
		t.Fatalf("status=%s", got)
	}
}

func TestStart_HandshakeFailure(t *testing.T) {
	tr := agenttest.NewTransport()
	tr.ConnectErr = errors.New("401 unauthorized")
	c := newController(t, tr)

	_, err := c.Start(context.Background(), founderConfig, nil)
	if !core.IsType(err, core.ErrHandshake) {
		t.Fatalf("Start() error = %v, want handshake error", err)
	}
	snap := c.Snapshot()
	if snap.Status != types.StatusErrored {
		t.Fatalf("status=%s, want errored", snap.Status)
	}
	if !strings.Contains(snap.Error, "401 unauthorized") {
		t.Fatalf("error=%q", snap.Error)
	}

	c.End(context.Background())
	if got := c.Snapshot().Status; got != types.StatusErrored {
		t.Fatalf("End changed errored status to %s", got)
	}
	if _, err := c.Start(context.Background(), founderConfig, nil); err == nil {
		t.Fatalf("Start after errored should fail")
	}
	if n := len(tr.Requests()); n != 1 {
		t.Fatalf("connect attempts=%d, want 1 (no retry)", n)
	}
}

func TestEnd_NoopWhenIdle(t *testing.T) {
	var changes int
	c := New(Deps{Transport: agenttest.NewTransport(), AgentID: "a", OnChange: func(Snapshot) { changes++ }})
	c.End(context.Background())
	c.End(context.Background())
	if got := c.Snapshot().Status; got != types.StatusIdle {
		t.Fatalf("status=%s", got)
	}
	if changes != 0 {
		t.Fatalf("changes=%d, want 0", changes)
	}
}

func TestEnd_ClosesOnceAndIsIdempotent(t *testing.T) {
	c, _, conn := startConnected(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.End(context.Background())
		}()
	}
	wg.Wait()

	if got := c.Snapshot().Status; got != types.StatusDisconnected {
		t.Fatalf("status=%s, want disconnected", got)
	}
	if conn.CloseCount() != 1 {
		t.Fatalf("close count=%d, want 1", conn.CloseCount())
	}
	c.End(context.Background())
	if conn.CloseCount() != 1 {
		t.Fatalf("End on disconnected closed again")
	}
}

func TestEnd_DuringConnectingCancelsHandshake(t *testing.T) {
	tr := agenttest.NewTransport()
	tr.Gate = make(chan struct{})
	defer close(tr.Gate)
	c := newController(t, tr)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.Start(context.Background(), founderConfig, nil)
		errCh <- err
	}()
	if !tr.WaitAttempt(waitTimeout) {
		t.Fatalf("Start never reached Connect")
	}

	c.End(context.Background())
	if got := c.Snapshot().Status; got != types.StatusDisconnected {
		t.Fatalf("status=%s, want disconnected", got)
	}
	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("Start() error = nil after End")
		}
	case <-time.After(waitTimeout):
		t.Fatalf("Start did not return")
	}
	if len(tr.Conns()) != 0 {
		t.Fatalf("a connection was opened")
	}
}

func TestEnd_LateConnectionIsReleased(t *testing.T) {
	tr := agenttest.NewTransport()
	tr.Gate = make(chan struct{})
	tr.IgnoreCancel = true
	c := New(Deps{Transport: tr, AgentID: "a", CloseTimeout: waitTimeout})

	go func() { _, _ = c.Start(context.Background(), founderConfig, nil) }()
	if !tr.WaitAttempt(waitTimeout) {
		t.Fatalf("Start never reached Connect")
	}

	ended := make(chan struct{})
	go func() {
		c.End(context.Background())
		close(ended)
	}()
	waitStatus(t, c, types.StatusDisconnecting)
	close(tr.Gate)

	select {
	case <-ended:
	case <-time.After(waitTimeout):
		t.Fatalf("End did not return")
	}
	conn, ok := tr.WaitConn(waitTimeout)
	if !ok {
		t.Fatalf("transport never produced the late connection")
	}
	if conn.CloseCount() != 1 {
		t.Fatalf("late connection close count=%d, want 1", conn.CloseCount())
	}
	if got := c.Snapshot().Status; got != types.StatusDisconnected {
		t.Fatalf("status=%s", got)
	}
}

func TestEvents_SpeakingAndUtterances(t *testing.T) {
	c, _, conn := startConnected(t, nil)
	defer c.End(context.Background())

	conn.Push(agent.SpeakingEvent{Speaking: true})
	conn.Push(agent.UtteranceEvent{Speaker: types.SpeakerAgent, Text: "Walk me through a launch."})
	waitFor(t, func() bool { return len(c.Recorder().Transcript()) == 1 }, "agent utterance")
	if !c.Snapshot().Speaking {
		t.Fatalf("speaking=false, want true")
	}

	conn.Push(agent.SpeakingEvent{Speaking: false})
	conn.Push(agent.UtteranceEvent{Speaker: types.SpeakerUser, Text: "We shipped in six weeks."})
	waitFor(t, func() bool { return len(c.Recorder().Transcript()) == 2 }, "user utterance")
	if c.Snapshot().Speaking {
		t.Fatalf("speaking=true, want false")
	}
	tr := c.Recorder().Transcript()
	if tr[0].Speaker != types.SpeakerAgent || tr[1].Speaker != types.SpeakerUser {
		t.Fatalf("transcript=%+v", tr)
	}
}

func TestEvents_RemoteDisconnect(t *testing.T) {
	c, _, conn := startConnected(t, nil)

	conn.Push(agent.DisconnectEvent{Reason: "agent hung up", Err: errors.New("close 1011")})
	waitStatus(t, c, types.StatusDisconnected)
	if got := c.Snapshot().Error; got != "agent hung up" {
		t.Fatalf("error=%q", got)
	}
	waitFor(t, func() bool { return conn.CloseCount() >= 1 }, "conn close")

	c.End(context.Background())
	if got := c.Snapshot().Status; got != types.StatusDisconnected {
		t.Fatalf("status=%s", got)
	}
}

func TestEvents_FatalErrorEntersErrored(t *testing.T) {
	c, _, conn := startConnected(t, nil)

	conn.Push(agent.ErrorEvent{Message: "quota exceeded"})
	waitFor(t, func() bool { return c.Snapshot().Error == "quota exceeded" }, "error message")
	if got := c.Snapshot().Status; got != types.StatusConnected {
		t.Fatalf("non-fatal error changed status to %s", got)
	}

	conn.Push(agent.ErrorEvent{Message: "agent crashed", Fatal: true})
	waitStatus(t, c, types.StatusErrored)
	if got := c.Snapshot().Error; got != "agent crashed" {
		t.Fatalf("error=%q", got)
	}
}

func TestEvents_StreamClosedUnexpectedly(t *testing.T) {
	c, _, conn := startConnected(t, nil)
	conn.Hangup()
	waitStatus(t, c, types.StatusDisconnected)
	if got := c.Snapshot().Error; got != "connection closed unexpectedly" {
		t.Fatalf("error=%q", got)
	}
}

func TestToolCalls(t *testing.T) {
	var calls []string
	tools := map[string]agent.ToolHandler{
		"echo": func(_ context.Context, params json.RawMessage) (string, error) {
			calls = append(calls, string(params))
			return "42", nil
		},
		"strict": func(context.Context, json.RawMessage) (string, error) {
			return "", core.NewToolCallValidationError("impact must be an integer", "impact")
		},
	}
	c, _, conn := startConnected(t, tools)
	defer c.End(context.Background())

	conn.Push(agent.ToolCallEvent{ID: "t1", Name: "echo", Params: json.RawMessage(`{"x":1}`)})
	res, ok := conn.NextResult(waitTimeout)
	if !ok || res.CallID != "t1" || res.Result != "42" || res.IsError {
		t.Fatalf("result=%+v ok=%v", res, ok)
	}

	conn.Push(agent.ToolCallEvent{ID: "t2", Name: "strict", Params: json.RawMessage(`{}`)})
	res, ok = conn.NextResult(waitTimeout)
	if !ok || !res.IsError || res.Result != "impact must be an integer" {
		t.Fatalf("result=%+v ok=%v", res, ok)
	}
	waitFor(t, func() bool { return c.Snapshot().Error == "impact must be an integer" }, "validation error surfaced")
	if got := c.Snapshot().Status; got != types.StatusConnected {
		t.Fatalf("validation error changed status to %s", got)
	}

	conn.Push(agent.ToolCallEvent{ID: "t3", Name: "missing"})
	res, ok = conn.NextResult(waitTimeout)
	if !ok || !res.IsError || res.CallID != "t3" {
		t.Fatalf("result=%+v ok=%v", res, ok)
	}
	if len(calls) != 1 {
		t.Fatalf("echo calls=%d", len(calls))
	}
}

func TestConfigIsFrozenAtStart(t *testing.T) {
	cfg := founderConfig
	cfg.JobDescription = "  Staff engineer  "
	tr := agenttest.NewTransport()
	c := newController(t, tr)
	if _, err := c.Start(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.End(context.Background())

	cfg.Harshness = 95
	cfg.Persona.Name = "Someone Else"

	got := c.Config()
	if got.Harshness != 20 || got.Persona.Name != "Marcus Sterling" || got.JobDescription != "Staff engineer" {
		t.Fatalf("config=%+v", got)
	}
	if n := len(tr.Requests()); n != 1 {
		t.Fatalf("config change triggered reconnect: %d requests", n)
	}
}

func TestSay(t *testing.T) {
	c := newController(t, agenttest.NewTransport())
	if err := c.Say("hello"); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("Say before start = %v", err)
	}

	c, _, conn := startConnected(t, nil)
	defer c.End(context.Background())
	if err := c.Say("  I'd start with the data model.  "); err != nil {
		t.Fatalf("Say() error = %v", err)
	}
	if msgs := conn.Messages(); len(msgs) != 1 || msgs[0] != "I'd start with the data model." {
		t.Fatalf("messages=%v", msgs)
	}
	if n := conn.Activities(); n != 1 {
		t.Fatalf("user activity signals=%d, want 1", n)
	}
	tr := c.Recorder().Transcript()
	if len(tr) != 1 || tr[0].Speaker != types.SpeakerUser {
		t.Fatalf("transcript=%+v", tr)
	}
	if err := c.Say("   "); err == nil {
		t.Fatalf("empty Say accepted")
	}
}

func TestOnChangeObservesTransitions(t *testing.T) {
	var mu sync.Mutex
	var statuses []types.Status
	tr := agenttest.NewTransport()
	c := New(Deps{Transport: tr, AgentID: "a", OnChange: func(s Snapshot) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	}})
	if _, err := c.Start(context.Background(), founderConfig, nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.End(context.Background())

	mu.Lock()
	defer mu.Unlock()
	want := []types.Status{types.StatusConnecting, types.StatusConnected, types.StatusDisconnecting, types.StatusDisconnected}
	if len(statuses) != len(want) {
		t.Fatalf("statuses=%v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses=%v, want %v", statuses, want)
		}
	}
}
