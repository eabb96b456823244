package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type fakeState string

func (s fakeState) String() string { return string(s) }

func TestScopedLoggers(t *testing.T) {
	logger := slog.Default()
	if WithOperation(logger, "credential.refresh") == nil {
		t.Error("WithOperation returned nil")
	}
	if WithTool(logger, "gmail_search") == nil {
		t.Error("WithTool returned nil")
	}
	if WithService(logger, "calendar") == nil {
		t.Error("WithService returned nil")
	}
	if WithSession(logger, "abc") == nil {
		t.Error("WithSession returned nil")
	}
}

func TestAttributes(t *testing.T) {
	tests := []struct {
		name     string
		attr     slog.Attr
		key      string
		expected string
	}{
		{"operation", Operation("gmail.send"), KeyOperation, "gmail.send"},
		{"service", Service("gmail"), KeyService, "gmail"},
		{"tool", Tool("calendar_event"), KeyTool, "calendar_event"},
		{"invocation", Invocation("toolu_1"), KeyInvocation, "toolu_1"},
		{"state", State(fakeState("expired")), KeyState, "expired"},
		{"status", Status(StatusSuccess), KeyStatus, StatusSuccess},
		{"scopes", Scopes([]string{"https://www.googleapis.com/auth/gmail.send", "calendar"}), KeyScopes, "gmail.send,calendar"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.key {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.key)
			}
			if tt.attr.Value.String() != tt.expected {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.expected)
			}
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("test error"))
	if attr.Key != KeyError {
		t.Errorf("Err key = %q, want %q", attr.Key, KeyError)
	}
	if attr.Value.String() != "test error" {
		t.Errorf("Err value = %q, want %q", attr.Value.String(), "test error")
	}

	// nil errors produce an empty group that slog omits
	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty string", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	if got := AnonymizeEmail(""); got != "" {
		t.Errorf("AnonymizeEmail(\"\") = %q, want empty", got)
	}

	hash := AnonymizeEmail("jane@example.com")
	if len(hash) != 21 || !strings.HasPrefix(hash, "user:") {
		t.Errorf("unexpected hash %q", hash)
	}
	if AnonymizeEmail(" Jane@Example.com ") != hash {
		t.Error("hash should ignore case and surrounding whitespace")
	}
	if AnonymizeEmail("other@example.com") == hash {
		t.Error("different addresses should produce different hashes")
	}

	attr := Recipient("jane@example.com")
	if attr.Key != KeyRecipient || attr.Value.String() != hash {
		t.Errorf("Recipient attr = %v", attr)
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		token    string
		expected string
	}{
		{"", "<empty>"},
		{"abc123", "[token:6 chars]"},
		{"ya29.a_very_long_token", "[token:22 chars]"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := SanitizeToken(tt.token); got != tt.expected {
				t.Errorf("SanitizeToken(%q) = %q, want %q", tt.token, got, tt.expected)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, false, slog.LevelInfo).Info("hello", Tool("gmail_search"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if record[KeyTool] != "gmail_search" {
		t.Errorf("tool = %v", record[KeyTool])
	}

	buf.Reset()
	newLogger(&buf, true, slog.LevelInfo).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug record should be filtered at info level, got %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	// Should not panic
	Discard().Info("dropped")
}
