package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"timerd/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleCreateTimer(w http.ResponseWriter, r *http.Request) {
	var req timerDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	t, err := s.engine.CreateTimer(r.Context(), req.toCreateArgs())
	if err != nil {
		var defErr *core.DefinitionError
		if errors.As(err, &defErr) {
			code := string(defErr.Code)
			writeJSON(w, http.StatusOK, timerDefinitionResult{ID: req.ID, IsOK: false, ErrorCode: &code})
			return
		}
		s.logger.Error("create timer", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create timer")
		return
	}
	writeJSON(w, http.StatusOK, timerDefinitionResult{ID: &t.ID, IsOK: true})
}

func (s *Server) handleBulkCreateTimers(w http.ResponseWriter, r *http.Request) {
	var reqs []timerDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	items := make([]core.CreateArgs, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, req.toCreateArgs())
	}
	writeJSON(w, http.StatusOK, bulkResults(s.engine.BulkCreate(r.Context(), items)))
}

func (s *Server) handleDeleteTimer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.engine.DeleteTimer(r.Context(), id); err != nil {
		s.writeEngineError(w, err, "delete timer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkDeleteTimers(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	writeJSON(w, http.StatusOK, bulkResults(s.engine.BulkDelete(r.Context(), ids)))
}

func (s *Server) handleUpdateTimerDescription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req timerDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if err := s.engine.UpdateDescription(r.Context(), id, req.Name, req.Note); err != nil {
		s.writeEngineError(w, err, "update timer description")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkUpdateTimerDescription(w http.ResponseWriter, r *http.Request) {
	var reqs []timerDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	updates := make([]core.DescriptionUpdate, 0, len(reqs))
	for _, req := range reqs {
		u := core.DescriptionUpdate{Name: req.Name, Note: req.Note}
		if req.ID != nil {
			u.ID = *req.ID
		}
		updates = append(updates, u)
	}
	writeJSON(w, http.StatusOK, bulkResults(s.engine.BulkUpdateDescription(r.Context(), updates)))
}

func (s *Server) handleUpdateTimerState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req timerStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if err := s.engine.UpdateState(r.Context(), id, core.State(req.State)); err != nil {
		s.writeEngineError(w, err, "update timer state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkUpdateTimerState(w http.ResponseWriter, r *http.Request) {
	var reqs []timerStateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	updates := make([]core.StateUpdate, 0, len(reqs))
	for _, req := range reqs {
		u := core.StateUpdate{State: core.State(req.State)}
		if req.ID != nil {
			u.ID = *req.ID
		}
		updates = append(updates, u)
	}
	writeJSON(w, http.StatusOK, bulkResults(s.engine.BulkUpdateState(r.Context(), updates)))
}

func (s *Server) handleUpdateTimerSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req timerScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if err := s.engine.UpdateSchedule(r.Context(), id, req.toDefinition()); err != nil {
		s.writeEngineError(w, err, "update timer schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkUpdateTimerSchedule(w http.ResponseWriter, r *http.Request) {
	var reqs []timerScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	updates := make([]core.ScheduleUpdate, 0, len(reqs))
	for _, req := range reqs {
		u := core.ScheduleUpdate{Definition: req.toDefinition()}
		if req.ID != nil {
			u.ID = *req.ID
		}
		updates = append(updates, u)
	}
	writeJSON(w, http.StatusOK, bulkResults(s.engine.BulkUpdateSchedule(r.Context(), updates)))
}

func (s *Server) handleTimerDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := s.engine.GetTimer(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err, "get timer")
		return
	}
	writeJSON(w, http.StatusOK, timerToDetails(t))
}

func (s *Server) handleListTimers(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	timers, err := s.engine.ListTimers(r.Context(), core.TimerFilter{IDs: ids})
	if err != nil {
		s.logger.Error("list timers", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list timers")
		return
	}
	out := make([]timerSummaryResponse, 0, len(timers))
	for _, t := range timers {
		out = append(out, timerToSummary(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCountTimers(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	total, err := s.engine.CountTimers(r.Context(), core.TimerFilter{IDs: ids})
	if err != nil {
		s.logger.Error("count timers", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count timers")
		return
	}
	writeJSON(w, http.StatusOK, total)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "timerID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid timer id")
		return uuid.Nil, false
	}
	return id, true
}

// writeEngineError maps engine errors onto the HTTP taxonomy: definition
// errors are the caller's to fix, state conflicts are reported as 409 and
// everything else is internal.
func (s *Server) writeEngineError(w http.ResponseWriter, err error, op string) {
	var defErr *core.DefinitionError
	var stateErr *core.InvalidStateError
	switch {
	case errors.As(err, &defErr):
		writeError(w, http.StatusBadRequest, string(defErr.Code), defErr.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, "invalid_state", stateErr.Error())
	case errors.Is(err, core.ErrStateNotRequestable):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, core.ErrTimerNotFound):
		writeError(w, http.StatusNotFound, "not_found", "timer not found")
	default:
		s.logger.Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	payload := map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	writeJSON(w, status, payload)
}
