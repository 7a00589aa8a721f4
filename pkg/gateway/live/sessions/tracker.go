// Package sessions tracks the interviews running behind the gateway so they
// can be ended together on shutdown.
package sessions

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"
)

type Handle struct {
	// End tears the interview down. It must be safe to call more than once.
	End  func(ctx context.Context)
	Warn func(code, message string) error
}

type Tracker struct {
	mu         sync.Mutex
	interviews map[string]*trackedInterview
	wg         sync.WaitGroup
}

type trackedInterview struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		interviews: make(map[string]*trackedInterview),
	}
}

// Register adds an interview. Registering an id twice replaces the earlier
// entry. The returned func is idempotent.
func (t *Tracker) Register(id string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedInterview{handle: h}

	t.mu.Lock()
	if t.interviews == nil {
		t.interviews = make(map[string]*trackedInterview)
	}
	old := t.interviews[id]
	t.interviews[id] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(id, old)
	}

	return func() { t.unregister(id, entry) }
}

func (t *Tracker) unregister(id string, entry *trackedInterview) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.interviews != nil && t.interviews[id] == entry {
			delete(t.interviews, id)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.interviews)
}

func (t *Tracker) snapshot() []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.interviews))
	for _, entry := range t.interviews {
		if entry != nil {
			out = append(out, entry.handle)
		}
	}
	return out
}

// WarnAll sends a best-effort warning to every interview.
func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}
	for _, h := range t.snapshot() {
		if h.Warn == nil {
			continue
		}
		_ = h.Warn(code, message)
		sent++
	}
	return sent
}

// EndAll ends every tracked interview concurrently and returns how many were
// asked to end. It returns once every End call has returned or ctx is done.
func (t *Tracker) EndAll(ctx context.Context) (ended int) {
	if t == nil {
		return 0
	}
	wg := conc.NewWaitGroup()
	for _, h := range t.snapshot() {
		if h.End == nil {
			continue
		}
		ended++
		wg.Go(func() { h.End(ctx) })
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return ended
}

// Wait blocks until every registered interview unregisters or ctx is done.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
