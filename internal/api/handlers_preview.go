package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"timerd/internal/core"
)

type schedulePreviewRequest struct {
	scheduleFields
	From  string `json:"from,omitempty"`
	Count int    `json:"count,omitempty"`
}

type schedulePreviewResponse struct {
	Valid     bool     `json:"valid"`
	NextTimes []string `json:"next_times,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// handleSchedulePreview dry-runs a schedule definition: it validates the
// delay/cycle/deadline triple and returns the upcoming occurrences without
// persisting anything.
func (s *Server) handleSchedulePreview(w http.ResponseWriter, r *http.Request) {
	var req schedulePreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Valid: false, Message: "invalid JSON payload"})
		return
	}

	count := req.Count
	if count <= 0 || count > 10 {
		count = 5
	}

	from := time.Now().UTC()
	if req.From != "" {
		parsed, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, schedulePreviewResponse{Valid: false, Message: "from must be RFC3339"})
			return
		}
		from = parsed
	}

	times, err := s.engine.Preview(req.toDefinition(), from, count)
	if err != nil {
		var defErr *core.DefinitionError
		if errors.As(err, &defErr) {
			writeJSON(w, http.StatusOK, schedulePreviewResponse{Valid: false, ErrorCode: string(defErr.Code), Message: err.Error()})
			return
		}
		s.logger.Error("schedule preview", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "preview failed")
		return
	}

	formatted := make([]string, 0, len(times))
	for _, t := range times {
		formatted = append(formatted, t.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, schedulePreviewResponse{Valid: true, NextTimes: formatted})
}
