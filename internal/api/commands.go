package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// maxCommandBodyLen caps the raw args string read from a dynamic command's
// request body, mirroring the query-parameter length cap elsewhere in the
// package.
const maxCommandBodyLen = 4096

// handleDynamicCommand resolves "domain/address/command" against the
// automation.DynamicApiRegistry and invokes the matching handler, giving
// scripts and external integrations a generic command surface beyond the
// program CRUD routes (spec.md §4.6).
func (s *Server) handleDynamicCommand(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "command registry unavailable")
		return
	}

	domain := chi.URLParam(r, "domain")
	address := chi.URLParam(r, "address")
	command := chi.URLParam(r, "command")
	request := strings.Join([]string{domain, address, command}, "/")

	if args := readCommandArgs(r); args != "" {
		request = request + "/" + args
	}

	value, err, handled := s.commands.Lookup(request)
	if !handled {
		writeNotFound(w, "no handler registered for this command")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": value})
}

func readCommandArgs(r *http.Request) string {
	if r.Body == nil || r.ContentLength <= 0 {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBodyLen))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}
