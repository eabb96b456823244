package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"google.golang.org/api/googleapi"
)

// DefaultDelay is the pause before the single retry.
const DefaultDelay = 250 * time.Millisecond

// TransientError marks a failure that may succeed when repeated: timeouts,
// connection failures, rate limiting and provider 5xx responses.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is, or wraps, a transient failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return isTransientCause(err)
}

// Classify wraps transient errors in a *TransientError tagged with op and
// returns every other error unchanged.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransientError
	if errors.As(err, &te) {
		return err
	}
	if isTransientCause(err) {
		return &TransientError{Op: op, Err: err}
	}
	return err
}

func isTransientCause(err error) bool {
	// Cancellation by the caller is final.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

type options struct {
	delay time.Duration
}

// Option configures Do.
type Option func(*options)

// WithDelay overrides the pause before the retry.
func WithDelay(d time.Duration) Option {
	return func(o *options) { o.delay = d }
}

// Do runs fn and, if it fails transiently, runs it exactly once more.
// Permanent failures and cancellation of ctx are returned immediately.
// The returned error is classified: a transient failure that persists
// comes back as a *TransientError.
func Do[T any](ctx context.Context, op string, fn func() (T, error), opts ...Option) (T, error) {
	o := options{delay: DefaultDelay}
	for _, opt := range opts {
		opt(&o)
	}

	operation := func() (T, error) {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		err = Classify(op, err)
		if ctx.Err() != nil || !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(o.delay)),
		backoff.WithMaxTries(2),
	)
	if err != nil {
		return v, Classify(op, err)
	}
	return v, nil
}
