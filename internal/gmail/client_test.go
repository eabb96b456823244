package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"

	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/retry"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(),
		WithEndpoint(srv.URL+"/"),
		WithLogger(logging.Discard()),
		WithRetryDelay(time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestSearchMessages(t *testing.T) {
	tests := []struct {
		name     string
		list     *gmail.ListMessagesResponse
		message  *gmail.Message
		expected string
	}{
		{
			name: "latest match",
			list: &gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "m1"}, {Id: "m2"}}},
			message: &gmail.Message{
				Id:      "m1",
				Snippet: "Please find attached",
				Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
					{Name: "From", Value: "Alice <alice@example.com>"},
					{Name: "Subject", Value: "Invoice"},
				}},
			},
			expected: "Latest email matching the query:\nFrom: Alice <alice@example.com>\nSubject: Invoice\nPreview: Please find attached",
		},
		{
			name:     "missing fields",
			list:     &gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "m1"}}},
			message:  &gmail.Message{Id: "m1"},
			expected: "Latest email matching the query:\nFrom: Unknown sender\nSubject: No subject\nPreview: No preview available",
		},
		{
			name:     "no matches",
			list:     &gmail.ListMessagesResponse{},
			expected: "No emails found matching the query.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "from:alice", r.URL.Query().Get("q"))
				writeJSON(t, w, tt.list)
			})
			mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "m1", r.PathValue("id"))
				assert.Equal(t, "metadata", r.URL.Query().Get("format"))
				writeJSON(t, w, tt.message)
			})

			res := newTestClient(t, mux).SearchMessages(context.Background(), "from:alice")

			assert.True(t, res.Success)
			assert.Equal(t, tt.expected, res.Message)
		})
	}
}

func TestSearchMessages_RetriesTransientFailureOnce(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"code":503,"message":"backend error"}}`, http.StatusServiceUnavailable)
			return
		}
		writeJSON(t, w, &gmail.ListMessagesResponse{})
	})

	res := newTestClient(t, mux).SearchMessages(context.Background(), "anything")

	assert.True(t, res.Success)
	assert.Equal(t, "No emails found matching the query.", res.Message)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearchMessages_PermanentFailure(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"code":401,"message":"invalid credentials"}}`, http.StatusUnauthorized)
	})

	res := newTestClient(t, mux).SearchMessages(context.Background(), "anything")

	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Message, "An error occurred while searching emails:"))
	assert.Error(t, res.Err)
	assert.Equal(t, int32(1), calls.Load(), "permanent errors are not retried")
}

func TestSendMessage(t *testing.T) {
	var raw string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		var msg gmail.Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		raw = msg.Raw
		writeJSON(t, w, &gmail.Message{Id: "sent-42"})
	})

	res := newTestClient(t, mux).SendMessage(context.Background(), "bob@example.com", "Grüße", "Hello Bob")

	assert.True(t, res.Success)
	assert.Equal(t, "Email sent successfully. Message ID: sent-42", res.Message)

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "To: bob@example.com\r\n")
	assert.Contains(t, string(decoded), "Subject: =?UTF-8?b?")
	assert.True(t, strings.HasSuffix(string(decoded), "\r\n\r\nHello Bob"))
}

func TestSendMessage_TransientFailureIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":{"code":503,"message":"backend error"}}`, http.StatusServiceUnavailable)
	})

	res := newTestClient(t, mux).SendMessage(context.Background(), "bob@example.com", "Hi", "Body")

	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "delivery status unknown")
	assert.True(t, retry.IsTransient(res.Err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestSendMessage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		to      string
		subject string
		body    string
	}{
		{"missing recipient", "", "Hi", "Body"},
		{"missing subject", "bob@example.com", " ", "Body"},
		{"missing body", "bob@example.com", "Hi", ""},
		{"malformed recipient", "not an address", "Hi", "Body"},
		{"header injection in subject", "alice@example.com", "Hi\r\nBcc: eve@evil.example", "Body"},
		{"bare line feed in subject", "alice@example.com", "Hi\nBcc: eve@evil.example", "Body"},
		{"header injection in recipient", "alice@example.com\r\nBcc: eve@evil.example", "Hi", "Body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}))

			res := c.SendMessage(context.Background(), tt.to, tt.subject, tt.body)

			assert.False(t, res.Success)
			assert.True(t, strings.HasPrefix(res.Message, "An error occurred while sending the email:"))
		})
	}
}

func TestEncodeRFC2047(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Grüße aus Köln", "=?UTF-8?b?R3LDvMOfZSBhdXMgS8O2bG4=?="},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, encodeRFC2047(tt.input))
		})
	}
}

func TestHeaderValue(t *testing.T) {
	msg := &gmail.Message{Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
		{Name: "subject", Value: "lower"},
		{Name: "Subject", Value: "upper"},
	}}}

	assert.Equal(t, "lower", HeaderValue(msg, "Subject"))
	assert.Equal(t, "", HeaderValue(msg, "From"))
	assert.Equal(t, "", HeaderValue(&gmail.Message{}, "From"))
}
