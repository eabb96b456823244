package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	customsearch "google.golang.org/api/customsearch/v1"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/logging"
)

var testConfig = config.SearchConfig{APIKey: "test-key", EngineID: "engine-1"}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), testConfig,
		WithEndpoint(srv.URL+"/"),
		WithLogger(logging.Discard()),
		WithTimeout(5*time.Second),
		WithRetryDelay(time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestSearch_Placeholder(t *testing.T) {
	c, err := NewClient(context.Background(), config.SearchConfig{}, WithLogger(logging.Discard()))
	require.NoError(t, err)

	res := c.Search(context.Background(), "weather in Berlin")

	assert.False(t, c.Configured())
	assert.True(t, res.Success)
	assert.Equal(t, "Searching Google for: weather in Berlin", res.Message)
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name     string
		response *customsearch.Search
		expected string
	}{
		{
			name: "top result",
			response: &customsearch.Search{Items: []*customsearch.Result{
				{Title: "Go", Link: "https://go.dev", Snippet: "Build simple, secure, scalable systems with Go. "},
				{Title: "Other", Link: "https://example.com"},
			}},
			expected: "Top search result for: golang\nTitle: Go\nLink: https://go.dev\nSnippet: Build simple, secure, scalable systems with Go.",
		},
		{
			name:     "no results",
			response: &customsearch.Search{},
			expected: "No search results found for: golang",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /customsearch/v1", func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				assert.Equal(t, "golang", q.Get("q"))
				assert.Equal(t, "engine-1", q.Get("cx"))
				assert.Equal(t, "test-key", q.Get("key"))
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(tt.response)
			})

			res := newTestClient(t, mux).Search(context.Background(), "golang")

			assert.True(t, res.Success)
			assert.Equal(t, tt.expected, res.Message)
		})
	}
}

func TestSearch_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /customsearch/v1", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"code":429,"message":"rate limited"}}`, http.StatusTooManyRequests)
	})

	res := newTestClient(t, mux).Search(context.Background(), "golang")

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "An error occurred while searching")
	assert.Equal(t, int32(2), calls.Load())
}
