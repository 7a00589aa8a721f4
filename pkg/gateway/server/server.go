package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vango-go/mock-interview/pkg/agent"
	"github.com/vango-go/mock-interview/pkg/gateway/config"
	"github.com/vango-go/mock-interview/pkg/gateway/handlers"
	"github.com/vango-go/mock-interview/pkg/gateway/lifecycle"
	"github.com/vango-go/mock-interview/pkg/gateway/live/sessions"
	"github.com/vango-go/mock-interview/pkg/gateway/mw"
	"github.com/vango-go/mock-interview/pkg/interview/persona"
)

type Deps struct {
	// Transport connects interviews to the remote agent.
	Transport agent.Transport
	// Catalog defaults to persona.Builtin().
	Catalog *persona.Catalog
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	transport  agent.Transport
	catalog    *persona.Catalog
	lifecycle  *lifecycle.Lifecycle
	interviews *sessions.Tracker
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = persona.Builtin()
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		transport:  deps.Transport,
		catalog:    catalog,
		lifecycle:  &lifecycle.Lifecycle{},
		interviews: sessions.NewTracker(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Catalog:   s.catalog,
		Lifecycle: s.lifecycle,
	})

	personas := handlers.PersonasHandler{Catalog: s.catalog}
	s.mux.Handle("/v1/personas", personas)
	s.mux.Handle("/v1/personas/{id}", personas)

	s.mux.Handle("/v1/interview", handlers.InterviewHandler{
		Config:     s.cfg,
		Transport:  s.transport,
		Catalog:    s.catalog,
		Logger:     s.logger,
		Lifecycle:  s.lifecycle,
		Interviews: s.interviews,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg.APIKeySet(), h)
	h = mw.CORS(s.cfg.OriginSet(), h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness and stops new interviews from starting.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

func (s *Server) ActiveInterviews() int {
	return s.interviews.Count()
}

func (s *Server) WarnInterviewsDraining() int {
	return s.interviews.WarnAll("draining", "gateway is shutting down; the interview will end soon")
}

// EndInterviews ends every running interview, bounded by ctx.
func (s *Server) EndInterviews(ctx context.Context) int {
	return s.interviews.EndAll(ctx)
}

func (s *Server) WaitInterviews(ctx context.Context) bool {
	return s.interviews.Wait(ctx)
}
