package google

import (
	"context"
	"time"

	"github.com/teemow/agentim/internal/instrumentation"
)

// Call runs one Google API operation inside a client span and records its
// outcome and latency. The time bound comes from ctx and from the HTTP
// client built by NewHTTPClient.
func Call[T any](ctx context.Context, metrics *instrumentation.Metrics, service, operation string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, service, operation)
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	metrics.RecordGoogleAPIOperation(ctx, service, operation, status, time.Since(start))
	return v, err
}
