package elevenlabs

import (
	"sync"
	"time"
)

const defaultSampleRate = 16000

// speakingTracker derives the agent speaking indicator from streamed audio.
// Speaking turns on with the first chunk and off once the buffered audio would
// have finished playing, or immediately on interruption.
type speakingTracker struct {
	mu         sync.Mutex
	sampleRate int
	now        func() time.Time
	notify     func(speaking bool)

	speaking bool
	until    time.Time
	timer    *time.Timer
	gen      uint64
	stopped  bool
}

func newSpeakingTracker(sampleRate int, notify func(bool)) *speakingTracker {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	return &speakingTracker{sampleRate: sampleRate, now: time.Now, notify: notify}
}

// chunkDuration returns the playback length of 16-bit mono PCM.
func chunkDuration(n, sampleRate int) time.Duration {
	if n <= 0 || sampleRate <= 0 {
		return 0
	}
	samples := int64(n / 2)
	return time.Duration(samples*1000/int64(sampleRate)) * time.Millisecond
}

func (t *speakingTracker) chunk(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	now := t.now()
	if t.until.Before(now) {
		t.until = now
	}
	t.until = t.until.Add(chunkDuration(n, t.sampleRate))
	if !t.speaking {
		t.speaking = true
		t.notify(true)
	}
	t.armLocked(t.until.Sub(now))
}

func (t *speakingTracker) interrupt() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
	t.until = time.Time{}
	if t.speaking {
		t.speaking = false
		t.notify(false)
	}
}

// stop disarms the tracker. No notification is delivered after stop returns.
func (t *speakingTracker) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *speakingTracker) armLocked(d time.Duration) {
	t.gen++
	gen := t.gen
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(d, func() { t.expire(gen) })
}

func (t *speakingTracker) expire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || gen != t.gen || !t.speaking {
		return
	}
	t.speaking = false
	t.until = time.Time{}
	t.notify(false)
}
