package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"timerd/internal/core"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookPostsPayload(t *testing.T) {
	var got webhookPayload
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	sink, err := NewWebhook(ts.URL, 0)
	require.NoError(t, err)

	id := uuid.New()
	firedAt := time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	err = sink.Notify(context.Background(), core.Notification{
		TimerID:         id,
		Name:            "kettle",
		NotificationKey: "tea-time",
		FiredAt:         firedAt,
	})
	require.NoError(t, err)

	assert.Equal(t, id.String(), got.TimerID)
	assert.Equal(t, "kettle", got.Name)
	assert.Equal(t, "tea-time", got.NotificationKey)
	assert.True(t, firedAt.Equal(got.FiredAt))
}

func TestWebhookErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	sink, err := NewWebhook(ts.URL, 0)
	require.NoError(t, err)

	err = sink.Notify(context.Background(), core.Notification{TimerID: uuid.New(), FiredAt: time.Now()})
	assert.Error(t, err)
}

func TestWebhookRequiresURL(t *testing.T) {
	_, err := NewWebhook("", 0)
	assert.Error(t, err)
}

func TestMultiDeliversToAllSinks(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer ts.Close()

	webhook, err := NewWebhook(ts.URL, 0)
	require.NoError(t, err)
	multi := NewMulti(NoOp{}, webhook)

	err = multi.Notify(context.Background(), core.Notification{TimerID: uuid.New(), FiredAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, hits)
}
