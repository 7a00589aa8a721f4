// Package record accumulates the transcript and feedback log of one interview.
package record

import (
	"sync"

	"github.com/vango-go/mock-interview/pkg/core/types"
)

// Recorder is append-only. Safe for concurrent use.
type Recorder struct {
	mu         sync.Mutex
	transcript []types.TranscriptEntry
	feedback   []types.ScoringEvent
}

func New() *Recorder {
	return &Recorder{}
}

// AppendTurn records an utterance in arrival order. Repeated text is kept.
func (r *Recorder) AppendTurn(speaker types.Speaker, message string) {
	r.mu.Lock()
	r.transcript = append(r.transcript, types.TranscriptEntry{Speaker: speaker, Message: message})
	r.mu.Unlock()
}

func (r *Recorder) AppendFeedback(ev types.ScoringEvent) {
	r.mu.Lock()
	r.feedback = append(r.feedback, ev)
	r.mu.Unlock()
}

func (r *Recorder) Transcript() []types.TranscriptEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.TranscriptEntry(nil), r.transcript...)
}

func (r *Recorder) Feedback() []types.ScoringEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ScoringEvent(nil), r.feedback...)
}

// Summary is the end-of-interview view handed to the summary collaborator.
type Summary struct {
	SessionID  string                  `json:"session_id,omitempty"`
	Persona    types.Persona           `json:"persona"`
	Harshness  int                     `json:"harshness"`
	FinalScore int                     `json:"final_score"`
	Transcript []types.TranscriptEntry `json:"transcript"`
	Feedback   []types.ScoringEvent    `json:"feedback"`
}

// Summarize snapshots the recorder into a Summary.
func (r *Recorder) Summarize(cfg types.SessionConfig, finalScore int) Summary {
	transcript := r.Transcript()
	feedback := r.Feedback()
	if transcript == nil {
		transcript = []types.TranscriptEntry{}
	}
	if feedback == nil {
		feedback = []types.ScoringEvent{}
	}
	return Summary{
		Persona:    cfg.Persona,
		Harshness:  cfg.Harshness,
		FinalScore: finalScore,
		Transcript: transcript,
		Feedback:   feedback,
	}
}
