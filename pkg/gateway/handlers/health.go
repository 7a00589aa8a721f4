package handlers

import (
	"net/http"

	"github.com/vango-go/mock-interview/pkg/gateway/config"
	"github.com/vango-go/mock-interview/pkg/gateway/lifecycle"
	"github.com/vango-go/mock-interview/pkg/interview/persona"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Catalog   *persona.Catalog
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		Draining bool     `json:"draining"`
		Personas int      `json:"personas"`
		AuthGate bool     `json:"auth_enabled"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 3)
	if h.Config.AgentID == "" {
		issues = append(issues, "ELEVENLABS_AGENT_ID is not set")
	}
	personas := 0
	if h.Catalog != nil {
		personas = len(h.Catalog.IDs())
	}
	if personas == 0 {
		issues = append(issues, "persona catalog is empty")
	}
	draining := h.Lifecycle.IsDraining()
	if draining {
		issues = append(issues, "draining")
	}

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{
		OK:       ok,
		Draining: draining,
		Personas: personas,
		AuthGate: len(h.Config.APIKeys) > 0,
		Issues:   issues,
	})
}
