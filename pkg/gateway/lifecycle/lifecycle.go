package lifecycle

import "sync/atomic"

// Lifecycle holds process state shared across handlers. When draining, the
// gateway reports not-ready and refuses new interviews.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// AcceptingInterviews reports whether a new interview may be started.
func (l *Lifecycle) AcceptingInterviews() bool {
	return !l.IsDraining()
}
