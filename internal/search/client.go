package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/retry"
)

// Client queries the Custom Search JSON API.
type Client struct {
	svc        *customsearch.Service
	engineID   string
	timeout    time.Duration
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	retryDelay time.Duration
	endpoint   string
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

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetryDelay overrides the pause before retrying.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// WithEndpoint points the client at a different API root.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// NewClient creates a search client. When cfg lacks an API key or engine
// id the client is created in placeholder mode and never touches the
// network.
func NewClient(ctx context.Context, cfg config.SearchConfig, opts ...Option) (*Client, error) {
	c := &Client{
		engineID:   cfg.EngineID,
		timeout:    config.DefaultAPITimeout,
		logger:     slog.Default(),
		retryDelay: retry.DefaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithService(c.logger, instrumentation.ServiceSearch)

	if !cfg.Enabled() {
		return c, nil
	}

	apiOpts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if c.endpoint != "" {
		apiOpts = append(apiOpts, option.WithEndpoint(c.endpoint))
	}
	svc, err := customsearch.NewService(ctx, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Custom Search service: %w", err)
	}
	c.svc = svc
	return c, nil
}

// Configured reports whether the client performs real searches.
func (c *Client) Configured() bool {
	return c.svc != nil
}

// Search returns the top web result for query.
func (c *Client) Search(ctx context.Context, query string) google.Result {
	if !c.Configured() {
		return google.Succeeded(fmt.Sprintf("Searching Google for: %s", query))
	}

	res, err := retry.Do(ctx, "search.list", func() (*customsearch.Search, error) {
		return google.Call(ctx, c.metrics, instrumentation.ServiceSearch, instrumentation.OperationSearch,
			func(ctx context.Context) (*customsearch.Search, error) {
				if c.timeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, c.timeout)
					defer cancel()
				}
				return c.svc.Cse.List().Q(query).Cx(c.engineID).Num(1).Context(ctx).Do()
			})
	}, retry.WithDelay(c.retryDelay))
	if err != nil {
		c.logger.Warn("Search failed", logging.Operation("search.list"), logging.Err(err))
		return google.Failed(fmt.Sprintf("An error occurred while searching: %v", err), err)
	}
	if len(res.Items) == 0 {
		return google.Succeeded(fmt.Sprintf("No search results found for: %s", query))
	}

	top := res.Items[0]
	return google.Succeeded(fmt.Sprintf("Top search result for: %s\nTitle: %s\nLink: %s\nSnippet: %s",
		query, top.Title, top.Link, strings.TrimSpace(top.Snippet)))
}
