package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"timerd/internal/core"
	"timerd/internal/notify"
	"timerd/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, authToken string) *httptest.Server {
	t.Helper()
	st, err := store.Open(context.Background(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.DB.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := core.NewEngine(st, notify.NoOp{}, logger, time.UTC, time.Second)

	srv := NewServer("127.0.0.1:0", authToken, engine, logger)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestCreateTimerEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/timers", map[string]any{
		"name":                "kettle",
		"delay_type":          "FIXED_DELAY",
		"fixed_delay_seconds": 120,
		"cycle_type":          "FIXED_HOURS",
		"cycle_interval":      1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[timerDefinitionResult](t, resp)
	assert.True(t, result.IsOK)
	require.NotNil(t, result.ID)

	// The record is queryable right away.
	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/timers/%s/details", ts.URL, result.ID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := decode[timerDetailsResponse](t, resp)
	assert.Equal(t, *result.ID, details.ID)
	assert.Equal(t, "WAITING", details.State)
	assert.Equal(t, "FIXED_DELAY", details.DelayType)
	require.NotNil(t, details.FixedDelaySeconds)
	assert.EqualValues(t, 120, *details.FixedDelaySeconds)
	assert.Equal(t, "FIXED_HOURS", details.CycleType)
	assert.True(t, details.RunOnCreation, "run_on_creation defaults to true")
}

func TestCreateTimerInvalidDefinitionReportsCode(t *testing.T) {
	ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/timers", map[string]any{
		"delay_type": "FIXED_DELAY",
	})
	// A definition error is a normal creation outcome, not an HTTP failure.
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[timerDefinitionResult](t, resp)
	assert.False(t, result.IsOK)
	require.NotNil(t, result.ErrorCode)
	assert.Equal(t, "FIXED_DELAY_WITHOUT_DELAY_SECONDS", *result.ErrorCode)
}

func TestBulkCreateTimersEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/bulk-timers", []map[string]any{
		{"delay_type": "FIXED_DELAY", "fixed_delay_seconds": 60},
		{"cycle_type": "FIXED_DAYS"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	results := decode[[]bulkItemResult](t, resp)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsOK)
	assert.False(t, results[1].IsOK)
	require.NotNil(t, results[1].ErrorCode)
	assert.Equal(t, "CYCLE_WITHOUT_INTERVAL", *results[1].ErrorCode)
}

func TestDeleteTimerEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/timers", map[string]any{
		"delay_type":          "FIXED_DELAY",
		"fixed_delay_seconds": 60,
	})
	result := decode[timerDefinitionResult](t, resp)
	require.NotNil(t, result.ID)

	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/timers/%s", ts.URL, result.ID), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Deleting again conflicts.
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/timers/%s", ts.URL, result.ID), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Unknown id is a 404.
	resp = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/timers/%s", ts.URL, uuid.New()), nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListAndCountTimersEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/timers", map[string]any{
			"delay_type":          "FIXED_DELAY",
			"fixed_delay_seconds": 60,
		})
		result := decode[timerDefinitionResult](t, resp)
		require.NotNil(t, result.ID)
		ids = append(ids, *result.ID)
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/timers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]timerSummaryResponse](t, resp)
	assert.Len(t, listed, 3)

	resp = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/timers/total?timer_ids=%s&timer_ids=%s", ts.URL, ids[0], ids[1]), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	total := decode[int](t, resp)
	assert.Equal(t, 2, total)
}

func TestUpdateScheduleEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/timers", map[string]any{
		"delay_type":          "FIXED_DELAY",
		"fixed_delay_seconds": 60,
	})
	result := decode[timerDefinitionResult](t, resp)
	require.NotNil(t, result.ID)

	resp = doJSON(t, http.MethodPut,
		fmt.Sprintf("%s/api/v1/timers/%s/schedule_definition", ts.URL, result.ID), map[string]any{
			"delay_type":                                  "COMPUTED_DELAY",
			"computation_delay_type":                      "CURRENT_DAY_SPECIFIC_TIME",
			"computation_delay_current_day_specific_time": "06:30:00",
		})
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/timers/%s/details", ts.URL, result.ID), nil)
	details := decode[timerDetailsResponse](t, resp)
	assert.Equal(t, "COMPUTED_DELAY", details.DelayType)
	require.NotNil(t, details.ComputationDayTime)
	assert.Equal(t, "06:30:00", details.ComputationDayTime.String())

	// A broken definition is rejected with its code.
	resp = doJSON(t, http.MethodPut,
		fmt.Sprintf("%s/api/v1/timers/%s/schedule_definition", ts.URL, result.ID), map[string]any{
			"deadline_type": "SPECIFIC_DATETIME",
		})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := decode[map[string]map[string]string](t, resp)
	assert.Equal(t, "DEADLINE_WITHOUT_SPECIFIC_DATETIME", errBody["error"]["code"])
}

func TestTimerTaskEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	// owner_id is mandatory for the task family.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/timer-tasks", map[string]any{
		"delay_type": "NONE",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/timer-tasks", map[string]any{
		"owner_id":            "tenant-7",
		"union_code":          "billing",
		"run_on_creation":     false,
		"delay_type":          "FIXED_DELAY",
		"fixed_delay_seconds": 3600,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[timerTaskCreationResult](t, resp)
	assert.True(t, created.IsOK)
	require.NotNil(t, created.TaskID)

	resp = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/timer-tasks/%s/details", ts.URL, created.TaskID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details := decode[timerTaskDetailsResponse](t, resp)
	assert.Equal(t, *created.TaskID, details.TaskID)
	assert.Equal(t, "tenant-7", details.OwnerID)
	require.NotNil(t, details.UnionCode)
	assert.Equal(t, "billing", *details.UnionCode)
	assert.False(t, details.RunOnCreation)

	// Owner filter scopes the listing.
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/timer-tasks?owner_id=tenant-7", nil)
	listed := decode[[]timerTaskSummaryResponse](t, resp)
	assert.Len(t, listed, 1)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/timer-tasks/total?owner_id=somebody-else", nil)
	total := decode[int](t, resp)
	assert.Zero(t, total)
}

func TestSchedulePreviewEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/schedule/preview", map[string]any{
		"delay_type":          "FIXED_DELAY",
		"fixed_delay_seconds": 60,
		"cycle_type":          "FIXED_MINUTES",
		"cycle_interval":      30,
		"from":                "2026-03-04T10:00:00Z",
		"count":               3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	preview := decode[schedulePreviewResponse](t, resp)
	assert.True(t, preview.Valid)
	require.Len(t, preview.NextTimes, 3)
	assert.Equal(t, "2026-03-04T10:01:00Z", preview.NextTimes[0])
	assert.Equal(t, "2026-03-04T10:31:00Z", preview.NextTimes[1])
	assert.Equal(t, "2026-03-04T11:01:00Z", preview.NextTimes[2])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/schedule/preview", map[string]any{
		"cycle_type": "FIXED_HOURS",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	preview = decode[schedulePreviewResponse](t, resp)
	assert.False(t, preview.Valid)
	assert.Equal(t, "CYCLE_WITHOUT_INTERVAL", preview.ErrorCode)
}

func TestAuthMiddlewareGuardsAPI(t *testing.T) {
	ts := newTestServer(t, "sesame")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/timers", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/timers", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sesame")
	okResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	okResp.Body.Close()
	assert.Equal(t, http.StatusOK, okResp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/timers?token=sesame", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
