// Package prompt composes the opening instruction sent to the remote interviewer.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vango-go/mock-interview/pkg/core/types"
)

const notProvided = "not provided"

// Harshness bands. A harshness at or above HighThreshold is HIGH, at or above
// MediumThreshold is MEDIUM, anything lower is LOW.
const (
	HighThreshold   = 80
	MediumThreshold = 50
)

// ScoringPolicy controls how strongly the agent is told to call the scoring tool.
type ScoringPolicy string

const (
	ScoringMandatory ScoringPolicy = "mandatory"
	ScoringOptional  ScoringPolicy = "optional"
)

// ParseScoringPolicy accepts "mandatory" or "optional" (case-insensitive).
func ParseScoringPolicy(s string) (ScoringPolicy, error) {
	switch ScoringPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScoringMandatory:
		return ScoringMandatory, nil
	case ScoringOptional:
		return ScoringOptional, nil
	default:
		return "", fmt.Errorf("unknown scoring policy %q (want mandatory or optional)", s)
	}
}

// Policy holds the constants the builder interpolates. An empty ToolName or
// Scoring falls back to DefaultPolicy; FailingThreshold is used as given.
type Policy struct {
	Scoring          ScoringPolicy
	FailingThreshold int
	ToolName         string
}

// DefaultPolicy is used by BuildSystemMessage.
var DefaultPolicy = Policy{
	Scoring:          ScoringMandatory,
	FailingThreshold: 20,
	ToolName:         "rateAnswer",
}

// BuildSystemMessage renders cfg with DefaultPolicy.
func BuildSystemMessage(cfg types.SessionConfig) string {
	return DefaultPolicy.Build(cfg)
}

// Build renders the newline-joined system message for cfg. It never fails;
// missing context is replaced with an explicit marker.
func (p Policy) Build(cfg types.SessionConfig) string {
	p = p.withDefaults()
	lines := []string{
		fmt.Sprintf("Persona: %s (%s). Style: %s", cfg.Persona.Name, cfg.Persona.Role, cfg.Persona.Description),
		"Job description: " + orNotProvided(cfg.JobDescription),
		"Resume/context: " + orNotProvided(cfg.Resume),
		HarshnessClause(cfg.Harshness),
		"You are an interviewer. Wait for context, then engage in an interview.",
		p.scoringLine(),
		fmt.Sprintf("Return the updated score from %s and continue the conversation. If the score drops below %d, warn them they are failing.", p.ToolName, p.FailingThreshold),
	}
	return strings.Join(lines, "\n")
}

// HarshnessClause returns the guidance line for the band containing h.
func HarshnessClause(h int) string {
	switch {
	case h >= HighThreshold:
		return "Harshness is HIGH: Penalize mistakes heavily (-15) and reward sparingly (+5)."
	case h >= MediumThreshold:
		return "Harshness is MEDIUM: Balance critique and praise (typical impacts -10 to +5)."
	default:
		return "Harshness is LOW: Be generous with praise (+10) and lighter with penalties (-5)."
	}
}

func (p Policy) scoringLine() string {
	if p.Scoring == ScoringOptional {
		return fmt.Sprintf("Evaluate each candidate response internally. When an answer clearly moves your confidence, call the client tool %s({ impact, reason }) with a signed impact based on harshness and a short reason.", p.ToolName)
	}
	return fmt.Sprintf("After EVERY candidate response, you MUST call the client tool %s({ impact, reason }) to score them based on harshness.", p.ToolName)
}

func (p Policy) withDefaults() Policy {
	if strings.TrimSpace(p.ToolName) == "" {
		p.ToolName = DefaultPolicy.ToolName
	}
	if p.Scoring == "" {
		p.Scoring = ScoringMandatory
	}
	return p
}

func orNotProvided(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return notProvided
	}
	return s
}
