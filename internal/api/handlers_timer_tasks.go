package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"timerd/internal/core"

	"github.com/google/uuid"
)

func (s *Server) handleCreateTimerTask(w http.ResponseWriter, r *http.Request) {
	var req timerTaskDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.OwnerID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_input", "owner_id is required")
		return
	}

	t, err := s.engine.CreateTimer(r.Context(), req.toCreateArgs())
	if err != nil {
		var defErr *core.DefinitionError
		if errors.As(err, &defErr) {
			code := string(defErr.Code)
			writeJSON(w, http.StatusOK, timerTaskCreationResult{IsOK: false, ErrorCode: &code})
			return
		}
		s.logger.Error("create timer task", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create timer task")
		return
	}
	writeJSON(w, http.StatusOK, timerTaskCreationResult{TaskID: &t.ID, IsOK: true})
}

func (s *Server) handleBulkCreateTimerTasks(w http.ResponseWriter, r *http.Request) {
	var reqs []timerTaskDefinitionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}

	items := make([]core.CreateArgs, 0, len(reqs))
	for _, req := range reqs {
		items = append(items, req.toCreateArgs())
	}
	writeJSON(w, http.StatusOK, bulkTaskResults(s.engine.BulkCreate(r.Context(), items)))
}

func (s *Server) handleDeleteTimerTask(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.engine.DeleteTimer(r.Context(), id); err != nil {
		s.writeEngineError(w, err, "delete timer task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkDeleteTimerTasks(w http.ResponseWriter, r *http.Request) {
	var ids []uuid.UUID
	if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	writeJSON(w, http.StatusOK, bulkTaskResults(s.engine.BulkDelete(r.Context(), ids)))
}

func (s *Server) handleUpdateTimerTaskDescription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req timerTaskDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if err := s.engine.UpdateDescription(r.Context(), id, req.Name, req.Note); err != nil {
		s.writeEngineError(w, err, "update timer task description")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkUpdateTimerTaskDescription(w http.ResponseWriter, r *http.Request) {
	var reqs []timerTaskDescriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	updates := make([]core.DescriptionUpdate, 0, len(reqs))
	for _, req := range reqs {
		u := core.DescriptionUpdate{Name: req.Name, Note: req.Note}
		if req.TaskID != nil {
			u.ID = *req.TaskID
		}
		updates = append(updates, u)
	}
	writeJSON(w, http.StatusOK, bulkTaskResults(s.engine.BulkUpdateDescription(r.Context(), updates)))
}

func (s *Server) handleUpdateTimerTaskState(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req timerTaskStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if err := s.engine.UpdateState(r.Context(), id, core.State(req.State)); err != nil {
		s.writeEngineError(w, err, "update timer task state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkUpdateTimerTaskState(w http.ResponseWriter, r *http.Request) {
	var reqs []timerTaskStateRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	updates := make([]core.StateUpdate, 0, len(reqs))
	for _, req := range reqs {
		u := core.StateUpdate{State: core.State(req.State)}
		if req.TaskID != nil {
			u.ID = *req.TaskID
		}
		updates = append(updates, u)
	}
	writeJSON(w, http.StatusOK, bulkTaskResults(s.engine.BulkUpdateState(r.Context(), updates)))
}

func (s *Server) handleUpdateTimerTaskSchedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req timerTaskScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if err := s.engine.UpdateSchedule(r.Context(), id, req.toDefinition()); err != nil {
		s.writeEngineError(w, err, "update timer task schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkUpdateTimerTaskSchedule(w http.ResponseWriter, r *http.Request) {
	var reqs []timerTaskScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	updates := make([]core.ScheduleUpdate, 0, len(reqs))
	for _, req := range reqs {
		u := core.ScheduleUpdate{Definition: req.toDefinition()}
		if req.TaskID != nil {
			u.ID = *req.TaskID
		}
		updates = append(updates, u)
	}
	writeJSON(w, http.StatusOK, bulkTaskResults(s.engine.BulkUpdateSchedule(r.Context(), updates)))
}

func (s *Server) handleTimerTaskDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := s.engine.GetTimer(r.Context(), id)
	if err != nil {
		s.writeEngineError(w, err, "get timer task")
		return
	}
	writeJSON(w, http.StatusOK, timerToTaskDetails(t))
}

func (s *Server) handleListTimerTasks(w http.ResponseWriter, r *http.Request) {
	filter, ok := taskFilter(w, r)
	if !ok {
		return
	}
	timers, err := s.engine.ListTimers(r.Context(), filter)
	if err != nil {
		s.logger.Error("list timer tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list timer tasks")
		return
	}
	out := make([]timerTaskSummaryResponse, 0, len(timers))
	for _, t := range timers {
		out = append(out, timerToTaskSummary(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCountTimerTasks(w http.ResponseWriter, r *http.Request) {
	filter, ok := taskFilter(w, r)
	if !ok {
		return
	}
	total, err := s.engine.CountTimers(r.Context(), filter)
	if err != nil {
		s.logger.Error("count timer tasks", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to count timer tasks")
		return
	}
	writeJSON(w, http.StatusOK, total)
}

func taskFilter(w http.ResponseWriter, r *http.Request) (core.TimerFilter, bool) {
	ids, err := parseIDQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return core.TimerFilter{}, false
	}
	filter := core.TimerFilter{IDs: ids}
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		filter.OwnerID = &owner
	}
	return filter, true
}
