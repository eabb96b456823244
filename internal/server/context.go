package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/teemow/agentim/internal/calendar"
	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/gmail"
	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/search"
)

// ServerContext carries the dependencies shared by all tool handlers: the
// configuration, the credential manager, instrumentation and the service
// client factories.
type ServerContext struct {
	ctx         context.Context
	cancel      context.CancelFunc
	config      *config.Config
	credentials *credential.Manager
	logger      *slog.Logger
	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger

	gmailOpts    []gmail.Option
	calendarOpts []calendar.Option
	searchOpts   []search.Option

	mu           sync.RWMutex
	searchClient *search.Client
	shutdown     bool
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithLogger sets the logger handed to service clients.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = metrics }
}

// WithAuditLogger sets the audit logger for tool invocations.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// WithGmailOptions adds options for every Gmail client created.
func WithGmailOptions(opts ...gmail.Option) Option {
	return func(sc *ServerContext) { sc.gmailOpts = append(sc.gmailOpts, opts...) }
}

// WithCalendarOptions adds options for every Calendar client created.
func WithCalendarOptions(opts ...calendar.Option) Option {
	return func(sc *ServerContext) { sc.calendarOpts = append(sc.calendarOpts, opts...) }
}

// WithSearchOptions adds options for the search client.
func WithSearchOptions(opts ...search.Option) Option {
	return func(sc *ServerContext) { sc.searchOpts = append(sc.searchOpts, opts...) }
}

// NewServerContext creates a new server context
func NewServerContext(ctx context.Context, cfg *config.Config, credentials *credential.Manager, opts ...Option) (*ServerContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential manager is required")
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:         shutdownCtx,
		cancel:      cancel,
		config:      cfg,
		credentials: credentials,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the configuration.
func (sc *ServerContext) Config() *config.Config {
	return sc.config
}

// Credentials returns the credential manager.
func (sc *ServerContext) Credentials() *credential.Manager {
	return sc.credentials
}

// Logger returns the logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, or nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	return sc.auditLogger
}

// GmailClient returns a Gmail client authenticated with cred.
func (sc *ServerContext) GmailClient(ctx context.Context, cred *credential.Credential) (*gmail.Client, error) {
	opts := append([]gmail.Option{
		gmail.WithLogger(sc.logger),
		gmail.WithMetrics(sc.metrics),
	}, sc.gmailOpts...)
	return gmail.NewClient(ctx, google.NewHTTPClient(cred, sc.config.Timeouts.API), opts...)
}

// CalendarClient returns a Calendar client authenticated with cred.
func (sc *ServerContext) CalendarClient(ctx context.Context, cred *credential.Credential) (*calendar.Client, error) {
	opts := append([]calendar.Option{
		calendar.WithLogger(sc.logger),
		calendar.WithMetrics(sc.metrics),
	}, sc.calendarOpts...)
	return calendar.NewClient(ctx, google.NewHTTPClient(cred, sc.config.Timeouts.API), opts...)
}

// SearchClient returns the search client, creating it on first use.
func (sc *ServerContext) SearchClient(ctx context.Context) (*search.Client, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.searchClient != nil {
		return sc.searchClient, nil
	}

	opts := append([]search.Option{
		search.WithLogger(sc.logger),
		search.WithMetrics(sc.metrics),
		search.WithTimeout(sc.config.Timeouts.API),
	}, sc.searchOpts...)
	client, err := search.NewClient(ctx, sc.config.Search, opts...)
	if err != nil {
		return nil, err
	}
	sc.searchClient = client
	return client, nil
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()
	return nil
}
