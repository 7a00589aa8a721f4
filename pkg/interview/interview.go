// Package interview wires one mock interview end to end: prompt, session,
// scoring bridge and recorder.
package interview

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/interview/bridge"
	"github.com/vango-go/mock-interview/pkg/interview/prompt"
	"github.com/vango-go/mock-interview/pkg/interview/record"
	"github.com/vango-go/mock-interview/pkg/interview/score"
	"github.com/vango-go/mock-interview/pkg/interview/session"
)

type Options struct {
	Transport    agent.Transport
	AgentID      string
	FirstMessage string
	// Baseline is the starting score; nil means score.DefaultBaseline.
	Baseline     *int
	Prompt       prompt.Policy
	Logger       *slog.Logger
	CloseTimeout time.Duration

	// OnChange observes every session state change.
	OnChange func(State)
	// OnScore observes every accepted rating.
	OnScore func(bridge.Notification)
}

// State is the combined observable state.
type State struct {
	session.Snapshot
	Score int `json:"score"`
}

// Interview is single-use: once ended, build a new one.
type Interview struct {
	store      *score.Store
	recorder   *record.Recorder
	controller *session.Controller
	bridge     *bridge.Bridge
}

// New builds an interview.
func New(opts Options) *Interview {
	baseline := score.DefaultBaseline
	if opts.Baseline != nil {
		baseline = *opts.Baseline
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	iv := &Interview{
		store:    score.New(baseline),
		recorder: record.New(),
	}
	iv.controller = session.New(session.Deps{
		Transport:    opts.Transport,
		Recorder:     iv.recorder,
		Logger:       logger,
		AgentID:      opts.AgentID,
		FirstMessage: opts.FirstMessage,
		Prompt:       opts.Prompt,
		CloseTimeout: opts.CloseTimeout,
		OnChange: func(s session.Snapshot) {
			if opts.OnChange != nil {
				opts.OnChange(State{Snapshot: s, Score: iv.store.Score()})
			}
		},
	})
	iv.bridge = bridge.New(bridge.Deps{
		Store:    iv.store,
		Recorder: iv.recorder,
		Gate:     iv.controller,
		Logger:   logger,
		OnScore:  opts.OnScore,
	})
	return iv
}

// Start connects using cfg and returns the session id.
func (iv *Interview) Start(ctx context.Context, cfg types.SessionConfig) (string, error) {
	return iv.controller.Start(ctx, cfg, iv.bridge.Tools())
}

func (iv *Interview) Say(text string) error {
	return iv.controller.Say(text)
}

func (iv *Interview) End(ctx context.Context) {
	iv.controller.End(ctx)
}

func (iv *Interview) State() State {
	return State{Snapshot: iv.controller.Snapshot(), Score: iv.store.Score()}
}

// Transcript returns the turns recorded so far.
func (iv *Interview) Transcript() []types.TranscriptEntry {
	return iv.recorder.Transcript()
}

// Summary is available at any time and stays intact after End.
func (iv *Interview) Summary() record.Summary {
	s := iv.recorder.Summarize(iv.controller.Config(), iv.store.Score())
	s.SessionID = iv.controller.Snapshot().SessionID
	return s
}
