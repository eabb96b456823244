package calendar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/retry"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(),
		WithEndpoint(srv.URL+"/calendar/v3/"),
		WithLogger(logging.Discard()),
	)
	require.NoError(t, err)
	return c
}

func TestCreateEvent(t *testing.T) {
	var got calendar.Event
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(&calendar.Event{
			Id:       "evt1",
			HtmlLink: "https://calendar.google.com/event?eid=evt1",
		})
	})

	res := newTestClient(t, mux).CreateEvent(context.Background(), "Standup", "2024-03-01")

	assert.True(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "Event created: https://calendar.google.com/event?eid=evt1"))
	assert.Contains(t, res.Message, "UTC")

	assert.Equal(t, "Standup", got.Summary)
	require.NotNil(t, got.Start)
	require.NotNil(t, got.End)
	assert.Equal(t, "2024-03-01", got.Start.Date)
	assert.Equal(t, "2024-03-02", got.End.Date)
	assert.Equal(t, "UTC", got.Start.TimeZone)
	assert.Empty(t, got.Start.DateTime)
}

func TestCreateEvent_NotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"code":503,"message":"backend error"}}`, http.StatusServiceUnavailable)
	})

	res := newTestClient(t, mux).CreateEvent(context.Background(), "Standup", "2024-03-01")

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "An error occurred while creating the event:"))
	assert.Contains(t, res.Message, "creation status unknown")
	assert.True(t, retry.IsTransient(res.Err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestCreateEvent_PermanentFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /calendar/v3/calendars/primary/events", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"insufficient permissions"}}`, http.StatusForbidden)
	})

	res := newTestClient(t, mux).CreateEvent(context.Background(), "Standup", "2024-03-01")

	assert.False(t, res.Success)
	assert.NotContains(t, res.Message, "creation status unknown")
	assert.False(t, retry.IsTransient(res.Err))
}

func TestAllDayEvent(t *testing.T) {
	tests := []struct {
		name      string
		title     string
		date      string
		wantEnd   string
		wantError bool
	}{
		{name: "regular day", title: "Standup", date: "2024-03-01", wantEnd: "2024-03-02"},
		{name: "month end", title: "Review", date: "2024-01-31", wantEnd: "2024-02-01"},
		{name: "leap day", title: "Leap", date: "2024-02-29", wantEnd: "2024-03-01"},
		{name: "year end", title: "NYE", date: "2024-12-31", wantEnd: "2025-01-01"},
		{name: "surrounding whitespace", title: "Standup", date: " 2024-03-01 ", wantEnd: "2024-03-02"},
		{name: "wrong format", title: "Standup", date: "03/01/2024", wantError: true},
		{name: "impossible date", title: "Standup", date: "2024-02-30", wantError: true},
		{name: "missing title", title: "", date: "2024-03-01", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := allDayEvent(tt.title, tt.date)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnd, event.End.Date)
		})
	}
}

func TestCreateEvent_InvalidDateMakesNoRequest(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}))

	res := c.CreateEvent(context.Background(), "Standup", "tomorrow")

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "YYYY-MM-DD")
}
