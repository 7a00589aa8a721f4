package handlers

import (
	"net/http"
	"strings"

	"github.com/vango-go/mock-interview/pkg/core"
	"github.com/vango-go/mock-interview/pkg/core/types"
	"github.com/vango-go/mock-interview/pkg/interview/persona"
)

// PersonasHandler serves GET /v1/personas and GET /v1/personas/{id}.
type PersonasHandler struct {
	Catalog *persona.Catalog
}

type personaList struct {
	Object string          `json:"object"`
	Data   []types.Persona `json:"data"`
}

func (h PersonasHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r)
		return
	}
	catalog := h.Catalog
	if catalog == nil {
		catalog = persona.Builtin()
	}

	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusOK, personaList{Object: "list", Data: catalog.List()})
		return
	}
	p, ok := catalog.Get(id)
	if !ok {
		writeError(w, r, core.NewNotFoundError("unknown persona "+id, "id"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}
