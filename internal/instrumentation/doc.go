// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for agentim.
//
// # Metrics
//
//   - conversation_turns_total: turns appended to the conversation by role
//   - tool_invocations_total, tool_duration_seconds: tool calls by tool and status
//   - google_api_operations_total, google_api_operation_duration_seconds:
//     provider calls by service, operation and status
//   - reasoning_engine_calls_total, reasoning_engine_duration_seconds
//   - oauth_auth_total, oauth_token_refresh_total: credential acquisitions by result
//   - credential_state_transitions_total, credential_store_writes_total
//
// # Tracing
//
// Spans are created per tool invocation (tool.<name>), per Google API call
// (google.<service>.<operation>) and per reasoning engine call.
//
// # Configuration
//
// Environment variables:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_ARGUMENTS
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordToolInvocation(ctx, "gmail_search", "success", time.Since(start))
package instrumentation
