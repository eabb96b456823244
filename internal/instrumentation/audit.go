package instrumentation

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// ToolInvocation captures one tool call for the audit trail.
type ToolInvocation struct {
	Tool         string
	InvocationID string
	SessionID    string

	// Argument names only; values may contain message bodies and addresses.
	ArgumentKeys []string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete when the tool finishes.
func NewToolInvocation(tool, invocationID string) *ToolInvocation {
	return &ToolInvocation{
		Tool:         tool,
		InvocationID: invocationID,
		StartTime:    time.Now(),
	}
}

// WithSession sets the conversation session id.
func (ti *ToolInvocation) WithSession(sessionID string) *ToolInvocation {
	ti.SessionID = sessionID
	return ti
}

// WithArguments records the sorted argument names.
func (ti *ToolInvocation) WithArguments(args map[string]any) *ToolInvocation {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ti.ArgumentKeys = keys
	return ti
}

// WithSpanContext copies the trace id from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	return ti
}

// Complete marks the invocation as finished and calculates its duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error".
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the structured attributes of the invocation.
func (ti *ToolInvocation) LogAttrs(includeArguments bool) []any {
	attrs := []any{
		slog.String("tool", ti.Tool),
		slog.String("invocation_id", ti.InvocationID),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", ti.SessionID))
	}
	if includeArguments && len(ti.ArgumentKeys) > 0 {
		attrs = append(attrs, slog.Any("arguments", ti.ArgumentKeys))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// AuditLogger writes one record per tool invocation.
type AuditLogger struct {
	logger           *slog.Logger
	enabled          bool
	includeArguments bool
}

// NewAuditLogger creates an AuditLogger. A nil logger falls back to slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:           logger,
		enabled:          config.Enabled,
		includeArguments: config.IncludeArguments,
	}
}

// LogToolInvocation logs a completed tool invocation.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}
	if ti.Success {
		al.logger.Info("tool_executed", ti.LogAttrs(al.includeArguments)...)
	} else {
		al.logger.Warn("tool_failed", ti.LogAttrs(al.includeArguments)...)
	}
}
