// Package score keeps the running confidence score.
package score

import (
	"sync"

	"github.com/vango-go/mock-interview/pkg/core/types"
)

const (
	Min = 0
	Max = 100

	// DefaultBaseline is the starting score of a fresh interview.
	DefaultBaseline = 50
)

// Store serializes score updates. The zero value is not usable; call New.
type Store struct {
	mu     sync.Mutex
	score  int
	events []types.ScoringEvent
}

// New returns a store starting at baseline, clamped into range.
func New(baseline int) *Store {
	return &Store{score: clamp(baseline)}
}

// Apply adds delta to the score, clamps the result and records one event
// holding the post-clamp value.
func (s *Store) Apply(delta int, reason string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Widen before adding so extreme deltas cannot overflow.
	next := clamp64(int64(s.score) + int64(delta))
	s.score = next
	s.events = append(s.events, types.ScoringEvent{Delta: delta, Reason: reason, Score: next})
	return next
}

// Score returns the current value.
func (s *Store) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// Events returns a copy of the scoring log in application order.
func (s *Store) Events() []types.ScoringEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ScoringEvent(nil), s.events...)
}

func clamp(v int) int {
	return clamp64(int64(v))
}

func clamp64(v int64) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return int(v)
}
