package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/retry"
)

const (
	primaryCalendar = "primary"
	dateLayout      = "2006-01-02"
	timeZone        = "UTC"
)

// allDayNote is appended to every successful creation so the user is not
// surprised by the time zone.
const allDayNote = "(all-day event, UTC)"

// Client wraps the Calendar service
type Client struct {
	svc      *calendar.Service
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	endpoint string
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records every API call.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithEndpoint points the client at a different API root.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// NewClient creates a Calendar client that talks to the API through
// httpClient, which must already carry the user's credential.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...Option) (*Client, error) {
	c := &Client{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	apiOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		apiOpts = append(apiOpts, option.WithEndpoint(c.endpoint))
	}
	svc, err := calendar.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	c.svc = svc
	c.logger = logging.WithService(c.logger, instrumentation.ServiceCalendar)
	return c, nil
}

// CreateEvent creates an all-day event titled title on date (YYYY-MM-DD).
// Creation is not retried: a repeated insert could create a duplicate.
func (c *Client) CreateEvent(ctx context.Context, title, date string) google.Result {
	event, err := allDayEvent(title, date)
	if err != nil {
		return google.Failed(fmt.Sprintf("An error occurred while creating the event: %v", err), err)
	}

	created, err := google.Call(ctx, c.metrics, instrumentation.ServiceCalendar, instrumentation.OperationCreate,
		func(ctx context.Context) (*calendar.Event, error) {
			return c.svc.Events.Insert(primaryCalendar, event).Context(ctx).Do()
		})
	if err != nil {
		err = retry.Classify("calendar.create", err)
		c.logger.Warn("Event creation failed", logging.Operation("calendar.create"), logging.Err(err))
		if retry.IsTransient(err) {
			return google.Failed(fmt.Sprintf("An error occurred while creating the event: creation status unknown, the event may have been created (%v)", err), err)
		}
		return google.Failed(fmt.Sprintf("An error occurred while creating the event: %v", err), err)
	}

	c.logger.Info("Event created", logging.Operation("calendar.create"), slog.String("event_id", created.Id))
	return google.Succeeded(fmt.Sprintf("Event created: %s %s", created.HtmlLink, allDayNote))
}

// allDayEvent builds the event resource for title on date.
func allDayEvent(title, date string) (*calendar.Event, error) {
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	day, err := time.Parse(dateLayout, strings.TrimSpace(date))
	if err != nil {
		return nil, fmt.Errorf("date %q must be in YYYY-MM-DD format", date)
	}

	return &calendar.Event{
		Summary: title,
		Start: &calendar.EventDateTime{
			Date:     day.Format(dateLayout),
			TimeZone: timeZone,
		},
		End: &calendar.EventDateTime{
			Date:     day.AddDate(0, 0, 1).Format(dateLayout),
			TimeZone: timeZone,
		},
	}, nil
}
