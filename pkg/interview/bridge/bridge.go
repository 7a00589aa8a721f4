// Package bridge exposes the client tools the remote interviewer calls.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/interview/record"
	"github.com/vango-go/mock-interview/pkg/interview/score"
)

const RateAnswerTool = "rateAnswer"

// Gate reports whether the interview currently accepts tool calls.
type Gate interface {
	Accepting() bool
}

// Notification is raised after every accepted rating.
type Notification struct {
	Reason string `json:"reason"`
	Impact int    `json:"impact"`
	Score  int    `json:"score"`
}

// Label renders the toast text, e.g. "Impact: +10".
func (n Notification) Label() string {
	return fmt.Sprintf("Impact: %+d", n.Impact)
}

// Deps wires a Bridge. A nil Store starts at score.DefaultBaseline.
type Deps struct {
	Store    *score.Store
	Recorder *record.Recorder
	Gate     Gate
	Logger   *slog.Logger
	OnScore  func(Notification)
}

// Bridge applies agent tool calls to the score store and recorder.
type Bridge struct {
	store    *score.Store
	recorder *record.Recorder
	gate     Gate
	logger   *slog.Logger
	onScore  func(Notification)

	// mu keeps the store log and the feedback log in the same order.
	mu sync.Mutex
}

// New returns a Bridge. Without a Gate every call is rejected.
func New(deps Deps) *Bridge {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := deps.Store
	if store == nil {
		store = score.New(score.DefaultBaseline)
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = record.New()
	}
	return &Bridge{
		store:    store,
		recorder: recorder,
		gate:     deps.Gate,
		logger:   logger,
		onScore:  deps.OnScore,
	}
}

// Tools returns the handlers to register with the session.
func (b *Bridge) Tools() map[string]agent.ToolHandler {
	return map[string]agent.ToolHandler{
		RateAnswerTool: b.RateAnswer,
	}
}

type rateAnswerParams struct {
	Impact json.RawMessage `json:"impact"`
	Reason json.RawMessage `json:"reason"`
}

// RateAnswer applies {impact, reason} to the score and returns the new score
// as a decimal string.
func (b *Bridge) RateAnswer(_ context.Context, params json.RawMessage) (string, error) {
	if b.gate == nil || !b.gate.Accepting() {
		b.logger.Warn("rateAnswer received outside a connected session", "params", string(params))
		return "", core.NewToolCallRejectedError("rateAnswer is only accepted during a connected interview", "session_not_connected")
	}

	impact, reason, err := parseRateAnswer(params)
	if err != nil {
		b.logger.Warn("rejecting rateAnswer", "params", string(params), "error", err)
		return "", err
	}

	b.mu.Lock()
	next := b.store.Apply(impact, reason)
	b.recorder.AppendFeedback(types.ScoringEvent{Delta: impact, Reason: reason, Score: next})
	b.mu.Unlock()

	b.logger.Info("answer rated", "impact", impact, "reason", reason, "score", next)
	if b.onScore != nil {
		b.onScore(Notification{Reason: reason, Impact: impact, Score: next})
	}
	return strconv.Itoa(next), nil
}

func parseRateAnswer(params json.RawMessage) (int, string, error) {
	var p rateAnswerParams
	if err := json.Unmarshal(params, &p); err != nil {
		return 0, "", core.NewToolCallValidationError("rateAnswer parameters must be a JSON object", "")
	}
	impact, err := parseImpact(p.Impact)
	if err != nil {
		return 0, "", err
	}
	return impact, parseReason(p.Reason), nil
}

// parseImpact accepts an integral JSON number or a string holding one.
// Fractions, non-finite values, booleans and null are rejected.
func parseImpact(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, core.NewToolCallValidationError("impact is required", "impact")
	}
	lit := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, core.NewToolCallValidationError("impact must be an integer", "impact")
		}
		lit = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "+"))
	}
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		if n < math.MinInt32 || n > math.MaxInt32 {
			return 0, core.NewToolCallValidationError("impact is out of range", "impact")
		}
		return int(n), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, core.NewToolCallValidationError(fmt.Sprintf("impact must be an integer, got %s", string(raw)), "impact")
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, core.NewToolCallValidationError("impact is out of range", "impact")
	}
	return int(f), nil
}

func parseReason(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}
