// Package agenttest provides an in-memory agent.Transport for tests.
package agenttest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vango-go/mock-interview/pkg/agent"
)

// Transport records connect requests and hands out scripted Conns.
type Transport struct {
	// ConnectErr, when set, is returned by every Connect.
	ConnectErr error
	// Gate, when non-nil, holds Connect until it is closed or ctx is done.
	Gate chan struct{}
	// IgnoreCancel makes a gated Connect wait for Gate even after ctx is done,
	// then succeed anyway.
	IgnoreCancel bool

	mu       sync.Mutex
	requests []agent.ConnectRequest
	conns    []*Conn
	seq      int
	attempts chan struct{}
	opened   chan *Conn
}

func NewTransport() *Transport {
	return &Transport{
		attempts: make(chan struct{}, 16),
		opened:   make(chan *Conn, 16),
	}
}

var _ agent.Transport = (*Transport)(nil)

func (t *Transport) Connect(ctx context.Context, req agent.ConnectRequest) (agent.Conn, error) {
	t.mu.Lock()
	t.requests = append(t.requests, req)
	t.seq++
	seq := t.seq
	t.mu.Unlock()
	select {
	case t.attempts <- struct{}{}:
	default:
	}

	if t.Gate != nil {
		if t.IgnoreCancel {
			<-t.Gate
		} else {
			select {
			case <-t.Gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if t.ConnectErr != nil {
		return nil, t.ConnectErr
	}

	c := NewConn(fmt.Sprintf("conv_%d", seq))
	t.mu.Lock()
	t.conns = append(t.conns, c)
	t.mu.Unlock()
	select {
	case t.opened <- c:
	default:
	}
	return c, nil
}

// Requests returns every ConnectRequest seen so far.
func (t *Transport) Requests() []agent.ConnectRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]agent.ConnectRequest(nil), t.requests...)
}

// Conns returns every Conn handed out so far.
func (t *Transport) Conns() []*Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Conn(nil), t.conns...)
}

// WaitAttempt blocks until Connect has been entered once more.
func (t *Transport) WaitAttempt(timeout time.Duration) bool {
	select {
	case <-t.attempts:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitConn blocks until the next successful Connect.
func (t *Transport) WaitConn(timeout time.Duration) (*Conn, bool) {
	select {
	case c := <-t.opened:
		return c, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Conn is a scripted connection. Push delivers events as if the remote agent
// sent them; tool results and user messages are captured.
type Conn struct {
	id string

	in   chan agent.Event
	out  chan agent.Event
	stop chan struct{}
	once sync.Once

	closes     atomic.Int32
	activities atomic.Int32
	results    chan agent.ToolResult

	mu       sync.Mutex
	messages []string
}

func NewConn(conversationID string) *Conn {
	c := &Conn{
		id:      conversationID,
		in:      make(chan agent.Event),
		out:     make(chan agent.Event),
		stop:    make(chan struct{}),
		results: make(chan agent.ToolResult, 64),
	}
	go c.forward()
	return c
}

var _ agent.Conn = (*Conn)(nil)

func (c *Conn) forward() {
	defer close(c.out)
	for {
		select {
		case ev := <-c.in:
			select {
			case c.out <- ev:
			case <-c.stop:
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Conn) ConversationID() string { return c.id }

func (c *Conn) Events() <-chan agent.Event { return c.out }

func (c *Conn) SendToolResult(res agent.ToolResult) error {
	if c.Closed() {
		return fmt.Errorf("conn closed")
	}
	c.results <- res
	return nil
}

func (c *Conn) SendUserMessage(text string) error {
	if c.Closed() {
		return fmt.Errorf("conn closed")
	}
	c.mu.Lock()
	c.messages = append(c.messages, text)
	c.mu.Unlock()
	return nil
}

func (c *Conn) SendUserActivity() error {
	if c.Closed() {
		return fmt.Errorf("conn closed")
	}
	c.activities.Add(1)
	return nil
}

// Activities is the number of user activity signals sent.
func (c *Conn) Activities() int { return int(c.activities.Load()) }

func (c *Conn) Close() error {
	c.closes.Add(1)
	c.once.Do(func() { close(c.stop) })
	return nil
}

// Hangup ends the event stream without a DisconnectEvent, as if the socket
// vanished.
func (c *Conn) Hangup() {
	c.once.Do(func() { close(c.stop) })
}

// Push delivers ev. It reports false once the conn is closed.
func (c *Conn) Push(ev agent.Event) bool {
	select {
	case c.in <- ev:
		return true
	case <-c.stop:
		return false
	}
}

func (c *Conn) Closed() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// CloseCount is the number of Close calls.
func (c *Conn) CloseCount() int { return int(c.closes.Load()) }

// NextResult waits for the next tool result sent by the client.
func (c *Conn) NextResult(timeout time.Duration) (agent.ToolResult, bool) {
	select {
	case res := <-c.results:
		return res, true
	case <-time.After(timeout):
		return agent.ToolResult{}, false
	}
}

func (c *Conn) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}
