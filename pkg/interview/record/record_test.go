package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-go/mock-interview/pkg/core/types"
)

func TestRecorder_OrderAndDuplicates(t *testing.T) {
	r := New()
	r.AppendTurn(types.SpeakerAgent, "Tell me about yourself.")
	r.AppendTurn(types.SpeakerUser, "Sure.")
	r.AppendTurn(types.SpeakerUser, "Sure.")

	got := r.Transcript()
	require.Len(t, got, 3)
	assert.Equal(t, types.SpeakerAgent, got[0].Speaker)
	assert.Equal(t, got[1], got[2])
}

func TestRecorder_CopiesAreDetached(t *testing.T) {
	r := New()
	r.AppendFeedback(types.ScoringEvent{Delta: 10, Reason: "clear", Score: 60})
	fb := r.Feedback()
	fb[0].Score = 0
	assert.Equal(t, 60, r.Feedback()[0].Score)
}

func TestSummarize_EmptyListsEncodeAsArrays(t *testing.T) {
	r := New()
	s := r.Summarize(types.SessionConfig{Persona: types.Persona{ID: "founder"}, Harshness: 20}, 50)
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"transcript":[]`)
	assert.Contains(t, string(data), `"feedback":[]`)
	assert.Contains(t, string(data), `"final_score":50`)
}
