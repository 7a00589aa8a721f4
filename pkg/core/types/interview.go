package types

import "strings"

const (
	MinHarshness = 0
	MaxHarshness = 100
)

// Persona is an interviewer profile. Personas are reference data: they are
// selected, never mutated.
type Persona struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Role             string `json:"role" yaml:"role"`
	Avatar           string `json:"avatar,omitempty" yaml:"avatar,omitempty"`
	Description      string `json:"description" yaml:"description"`
	DefaultHarshness int    `json:"default_harshness" yaml:"default_harshness"`
}

// SessionConfig is what the interviewer is told about the candidate. It is
// captured once when a session starts.
type SessionConfig struct {
	Persona        Persona `json:"persona"`
	Harshness      int     `json:"harshness"`
	JobDescription string  `json:"job_description,omitempty"`
	Resume         string  `json:"resume,omitempty"`
}

// Freeze returns a detached copy with harshness clamped to [0,100] and free
// text trimmed.
func (c SessionConfig) Freeze() SessionConfig {
	c.Harshness = ClampHarshness(c.Harshness)
	c.JobDescription = strings.TrimSpace(c.JobDescription)
	c.Resume = strings.TrimSpace(c.Resume)
	return c
}

func ClampHarshness(v int) int {
	return min(max(v, MinHarshness), MaxHarshness)
}

// Speaker identifies who produced a transcript turn.
type Speaker string

const (
	SpeakerAgent Speaker = "agent"
	SpeakerUser  Speaker = "user"
)

// TranscriptEntry is one conversational turn.
type TranscriptEntry struct {
	Speaker Speaker `json:"speaker"`
	Message string  `json:"message"`
}

// ScoringEvent records one accepted score adjustment. Score is the value after
// clamping.
type ScoringEvent struct {
	Delta  int    `json:"impact"`
	Reason string `json:"reason"`
	Score  int    `json:"score"`
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusIdle          Status = "idle"
	StatusConnecting    Status = "connecting"
	StatusConnected     Status = "connected"
	StatusDisconnecting Status = "disconnecting"
	StatusDisconnected  Status = "disconnected"
	StatusErrored       Status = "errored"
)

// Live reports whether the status holds (or is acquiring) a connection.
func (s Status) Live() bool {
	return s == StatusConnecting || s == StatusConnected
}
