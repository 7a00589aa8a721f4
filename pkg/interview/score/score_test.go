package score

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/mock-interview/pkg/core/types"
)

func TestApply_Sequence(t *testing.T) {
	s := New(DefaultBaseline)
	assert.Equal(t, 50, s.Score())
	assert.Equal(t, 60, s.Apply(10, "good STAR answer"))
	assert.Equal(t, 55, s.Apply(-5, "vague on impact"))
	assert.Equal(t, []types.ScoringEvent{
		{Delta: 10, Reason: "good STAR answer", Score: 60},
		{Delta: -5, Reason: "vague on impact", Score: 55},
	}, s.Events())
}

func TestApply_ClampsAndStillRecords(t *testing.T) {
	s := New(50)
	assert.Equal(t, 0, s.Apply(-200, "walked out"))
	assert.Equal(t, 100, s.Apply(math.MaxInt, "overflow guard"))
	assert.Equal(t, 0, s.Apply(math.MinInt, "overflow guard"))

	events := s.Events()
	require.Len(t, events, 3)
	assert.Equal(t, types.ScoringEvent{Delta: -200, Reason: "walked out", Score: 0}, events[0])
}

func TestApply_ClampsEachStep(t *testing.T) {
	s := New(95)
	assert.Equal(t, 100, s.Apply(20, "excellent"))
	assert.Equal(t, 70, s.Apply(-30, "contradicted earlier answer"))
	assert.Equal(t, 70, s.Score())
}

func TestNew_ClampsBaseline(t *testing.T) {
	assert.Equal(t, 100, New(140).Score())
	assert.Equal(t, 0, New(-1).Score())
}

func TestEvents_ReturnsCopy(t *testing.T) {
	s := New(50)
	s.Apply(5, "ok")
	events := s.Events()
	events[0].Reason = "mutated"
	assert.Equal(t, "ok", s.Events()[0].Reason)
}

func TestApply_Concurrent(t *testing.T) {
	s := New(50)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); s.Apply(1, "up") }()
		go func() { defer wg.Done(); s.Apply(-1, "down") }()
	}
	wg.Wait()

	events := s.Events()
	require.Len(t, events, 100)
	// Without clamping in play every +1 pairs with a -1.
	assert.Equal(t, 50, s.Score())
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Score, Min)
		assert.LessOrEqual(t, ev.Score, Max)
	}
}
