package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// handleListModules returns every module known to the registry, with
// optional domain filtering.
func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	if domain := r.URL.Query().Get("domain"); domain != "" {
		if len(domain) > maxQueryParamLen {
			writeBadRequest(w, "domain exceeds maximum length")
			return
		}
		modules := s.modules.ListByDomain(domain)
		writeJSON(w, http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
		return
	}

	modules := s.modules.ListModules()
	writeJSON(w, http.StatusOK, map[string]any{"modules": modules, "count": len(modules)})
}

// handleGetModule returns a single module by ID.
func (s *Server) handleGetModule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" || len(id) > maxQueryParamLen {
		writeBadRequest(w, "invalid module ID")
		return
	}

	module, err := s.modules.GetModule(r.Context(), id)
	if err != nil {
		writeNotFound(w, "module not found")
		return
	}

	writeJSON(w, http.StatusOK, module)
}
