package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/automationd/internal/automation"
)

// maxQueryParamLen limits query parameter length to prevent DoS via oversized URL params.
const maxQueryParamLen = 100

// handleListPrograms returns every registered program.
func (s *Server) handleListPrograms(w http.ResponseWriter, r *http.Request) {
	programs := s.manager.List()
	writeJSON(w, http.StatusOK, map[string]any{"programs": programSummaries(programs), "count": len(programs)})
}

// handleGetProgram returns a single program by address.
func (s *Server) handleGetProgram(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	program, found := s.manager.Get(address)
	if !found {
		writeNotFound(w, "program not found")
		return
	}

	writeJSON(w, http.StatusOK, programSummary(program))
}

// createProgramRequest is the request body for POST /programs.
type createProgramRequest struct {
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	ConditionType string `json:"condition_type"`
	Enabled       bool   `json:"enabled"`
}

// handleCreateProgram allocates a new PID and registers a program.
func (s *Server) handleCreateProgram(w http.ResponseWriter, r *http.Request) {
	var req createProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	address := s.manager.GeneratePid()
	program := automation.NewProgramRecord(address, req.Name, req.Domain, automation.ConditionType(req.ConditionType))
	if err := automation.ValidateProgram(program); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	program.SetEnabled(req.Enabled)

	if s.programRepo != nil {
		if err := s.programRepo.CreateProgram(r.Context(), program); err != nil {
			if errors.Is(err, automation.ErrProgramExists) {
				writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
				return
			}
			writeInternalError(w, "failed to persist program")
			return
		}
	}

	if !s.manager.Add(program) {
		writeError(w, http.StatusConflict, ErrCodeConflict, "program already registered")
		return
	}

	writeJSON(w, http.StatusCreated, programSummary(program))
}

// updateProgramRequest is the request body for PATCH /programs/{address}.
type updateProgramRequest struct {
	Name          *string `json:"name"`
	Domain        *string `json:"domain"`
	ConditionType *string `json:"condition_type"`
}

// handleUpdateProgram partially updates a program's metadata. Changing
// ConditionType only takes effect the next time the program is recompiled
// by its ScriptHost; this endpoint persists the field but does not trigger
// recompilation.
func (s *Server) handleUpdateProgram(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	program, found := s.manager.Get(address)
	if !found {
		writeNotFound(w, "program not found")
		return
	}

	var req updateProgramRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != nil {
		program.Name = *req.Name
	}
	if req.Domain != nil {
		program.Domain = *req.Domain
	}
	if req.ConditionType != nil {
		program.ConditionType = automation.ConditionType(*req.ConditionType)
	}

	if err := automation.ValidateProgram(program); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if s.programRepo != nil {
		if err := s.programRepo.UpdateProgram(r.Context(), program); err != nil {
			if errors.Is(err, automation.ErrProgramNotFound) {
				writeNotFound(w, "program not found")
				return
			}
			writeInternalError(w, "failed to persist program")
			return
		}
	}

	writeJSON(w, http.StatusOK, programSummary(program))
}

// handleDeleteProgram unregisters a program and best-effort deletes its
// persisted metadata and compiled artifacts.
func (s *Server) handleDeleteProgram(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	if !s.manager.Remove(r.Context(), address) {
		writeNotFound(w, "program not found")
		return
	}

	if s.programRepo != nil {
		if err := s.programRepo.DeleteProgram(r.Context(), address); err != nil && !errors.Is(err, automation.ErrProgramNotFound) {
			s.logger.Warn("failed to delete persisted program", "address", address, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleEnableProgram enables a program, starting its tick scheduler.
func (s *Server) handleEnableProgram(w http.ResponseWriter, r *http.Request) {
	s.setProgramEnabled(w, r, true)
}

// handleDisableProgram disables a program, stopping its tick scheduler.
func (s *Server) handleDisableProgram(w http.ResponseWriter, r *http.Request) {
	s.setProgramEnabled(w, r, false)
}

func (s *Server) setProgramEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	if !s.manager.SetProgramEnabled(address, enabled) {
		writeNotFound(w, "program not found")
		return
	}

	if s.programRepo != nil {
		if program, found := s.manager.Get(address); found {
			if err := s.programRepo.UpdateProgram(r.Context(), program); err != nil {
				s.logger.Warn("failed to persist enable state", "address", address, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"address": address, "enabled": enabled})
}

// triggerRequest is the request body for POST /programs/{address}/trigger.
type triggerRequest struct {
	Options string `json:"options"`
}

// handleTriggerProgram manually evaluates a program's trigger and, if
// satisfied, dispatches its body — the same "run now" path the API exposes
// for user-initiated execution (spec.md §4.1).
func (s *Server) handleTriggerProgram(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	var req triggerRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	ran := s.manager.Trigger(r.Context(), address, req.Options)
	writeJSON(w, http.StatusAccepted, map[string]any{"address": address, "triggered": ran})
}

// handleListProgramExecutions returns execution history for a program.
func (s *Server) handleListProgramExecutions(w http.ResponseWriter, r *http.Request) {
	address, ok := parseAddress(w, r)
	if !ok {
		return
	}

	if _, found := s.manager.Get(address); !found {
		writeNotFound(w, "program not found")
		return
	}

	if s.programRepo == nil {
		writeJSON(w, http.StatusOK, map[string]any{"executions": []automation.Execution{}, "count": 0})
		return
	}

	const maxExecutions = 50
	executions, err := s.programRepo.ListExecutions(r.Context(), address, maxExecutions)
	if err != nil {
		writeInternalError(w, "failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"executions": executions, "count": len(executions)})
}

// programView is the JSON projection of a ProgramRecord returned by the API.
type programView struct {
	Address             int                     `json:"address"`
	Name                string                  `json:"name"`
	Domain              string                  `json:"domain"`
	ConditionType       automation.ConditionType `json:"condition_type"`
	Enabled             bool                    `json:"enabled"`
	Running             bool                    `json:"running"`
	LastConditionResult bool                    `json:"last_condition_result"`
	ScriptErrors        []automation.ProgramError `json:"script_errors,omitempty"`
}

func programSummary(p *automation.ProgramRecord) programView {
	return programView{
		Address:             p.Address,
		Name:                p.Name,
		Domain:              p.Domain,
		ConditionType:       p.ConditionType,
		Enabled:             p.Enabled(),
		Running:             p.Running(),
		LastConditionResult: p.LastConditionResult(),
		ScriptErrors:        p.ScriptErrors(),
	}
}

func programSummaries(programs []*automation.ProgramRecord) []programView {
	views := make([]programView, len(programs))
	for i, p := range programs {
		views[i] = programSummary(p)
	}
	return views
}

// parseAddress extracts and validates the {address} path parameter,
// writing a 400 response and returning ok=false on failure.
func parseAddress(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "address")
	address, err := strconv.Atoi(raw)
	if err != nil {
		writeBadRequest(w, "invalid program address")
		return 0, false
	}
	return address, true
}
