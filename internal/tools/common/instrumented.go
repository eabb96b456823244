package common

import (
	"context"
	"time"

	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging.
//
// Usage:
//
//	Handler: common.InstrumentedToolHandler("my_tool", sc, handleMyTool(sc))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler tools.Handler) tools.Handler {
	return func(ctx context.Context, args tools.Arguments) (tools.Result, error) {
		invocationID := tools.InvocationID(ctx)
		ctx, span := instrumentation.StartToolSpan(ctx, toolName, invocationID)
		defer span.End()

		invocation := instrumentation.NewToolInvocation(toolName, invocationID).
			WithSession(tools.SessionID(ctx)).
			WithArguments(args).
			WithSpanContext(ctx)

		start := time.Now()
		result, err := handler(ctx, args)
		duration := time.Since(start)

		success := err == nil && !result.IsError
		invocation.Complete(success, err)
		if success {
			instrumentation.SetSpanSuccess(span)
		} else {
			instrumentation.SetSpanError(span, err)
		}

		sc.Metrics().RecordToolInvocation(ctx, toolName, invocation.Status(), duration)
		sc.AuditLogger().LogToolInvocation(invocation)

		return result, err
	}
}
