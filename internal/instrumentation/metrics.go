package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrRole      = "role"
	attrFrom      = "from"
	attrTo        = "to"
)

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0}

// Metrics records agent metrics. The zero value is a valid no-op recorder.
type Metrics struct {
	turnsTotal metric.Int64Counter

	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	engineCallsTotal metric.Int64Counter
	engineDuration   metric.Float64Histogram

	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter
	credentialTransitions  metric.Int64Counter
	credentialStoreWrites  metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
		unit   string
	}{
		{&m.turnsTotal, "conversation_turns_total", "Total number of conversation turns by role", "{turn}"},
		{&m.toolInvocationsTotal, "tool_invocations_total", "Total number of tool invocations", "{invocation}"},
		{&m.googleAPIOperationsTotal, "google_api_operations_total", "Total number of Google API operations", "{operation}"},
		{&m.engineCallsTotal, "reasoning_engine_calls_total", "Total number of reasoning engine calls", "{call}"},
		{&m.oauthAuthTotal, "oauth_auth_total", "Total number of interactive OAuth authorizations", "{attempt}"},
		{&m.oauthTokenRefreshTotal, "oauth_token_refresh_total", "Total number of OAuth token refresh attempts", "{attempt}"},
		{&m.credentialTransitions, "credential_state_transitions_total", "Credential lifecycle state transitions", "{transition}"},
		{&m.credentialStoreWrites, "credential_store_writes_total", "Writes of the persisted credential", "{write}"},
	}
	for _, c := range counters {
		*c.target, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	histograms := []struct {
		target *metric.Float64Histogram
		name   string
		desc   string
	}{
		{&m.toolDuration, "tool_duration_seconds", "Tool execution duration in seconds"},
		{&m.googleAPIOperationDuration, "google_api_operation_duration_seconds", "Google API operation duration in seconds"},
		{&m.engineDuration, "reasoning_engine_duration_seconds", "Reasoning engine call duration in seconds"},
	}
	for _, h := range histograms {
		*h.target, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(durationBuckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
	}

	return m, nil
}

// RecordTurn counts a conversation turn appended with the given role.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	if m == nil || m.turnsTotal == nil {
		return
	}
	m.turnsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrRole, role)))
}

// RecordToolInvocation records a tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordGoogleAPIOperation records a provider call.
//
// Parameters:
//   - service: gmail, calendar or search
//   - operation: list, get, create, send, search
//   - status: "success" or "error"
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordEngineCall records one round trip to the reasoning engine.
func (m *Metrics) RecordEngineCall(ctx context.Context, status string, duration time.Duration) {
	if m == nil || m.engineCallsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.engineCallsTotal.Add(ctx, 1, attrs)
	m.engineDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordOAuthAuth records an interactive authorization with result.
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records a token refresh with result
// ("success", "failure" or "rejected").
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordCredentialTransition counts a credential lifecycle transition.
func (m *Metrics) RecordCredentialTransition(ctx context.Context, from, to string) {
	if m == nil || m.credentialTransitions == nil {
		return
	}
	m.credentialTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrFrom, from),
		attribute.String(attrTo, to),
	))
}

// RecordCredentialStoreWrite counts a write of the persisted credential.
func (m *Metrics) RecordCredentialStoreWrite(ctx context.Context, status string) {
	if m == nil || m.credentialStoreWrites == nil {
		return
	}
	m.credentialStoreWrites.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, status)))
}
