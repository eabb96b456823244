package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
	"github.com/teemow/agentim/internal/tools/calendar_tools"
	"github.com/teemow/agentim/internal/tools/gmail_tools"
	"github.com/teemow/agentim/internal/tools/search_tools"
)

// resolveConfigPath returns the --config flag or the default location.
func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

func loadConfig() (*config.Config, string, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// newCredentialStore opens the persisted credential, encrypted when a
// credential key is configured.
func newCredentialStore(cfg *config.Config) (*credential.FileStore, error) {
	key, err := cfg.CredentialKeyBytes()
	if err != nil {
		return nil, err
	}
	enc, err := credential.NewEncryption(key)
	if err != nil {
		return nil, fmt.Errorf("failed to set up credential encryption: %w", err)
	}
	return credential.NewFileStore(cfg.TokenFile, enc), nil
}

// newCredentialManager wires the store, the loopback authorizer and the
// refresher. Consent prompts are written to prompt.
func newCredentialManager(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics, prompt io.Writer) (*credential.Manager, error) {
	oauthConfig, err := google.LoadClientSecret(cfg.ClientSecretFile)
	if err != nil {
		return nil, err
	}
	store, err := newCredentialStore(cfg)
	if err != nil {
		return nil, err
	}

	authorizer := google.NewLoopbackAuthorizer(oauthConfig,
		google.WithPromptWriter(prompt),
		google.WithAuthorizationTimeout(cfg.Timeouts.Authorization),
		google.WithAuthorizerLogger(logger),
	)
	refresher := google.NewOAuthRefresher(oauthConfig, cfg.Timeouts.API)

	return credential.NewManager(store, authorizer, refresher,
		credential.WithLogger(logger),
		credential.WithMetrics(metrics),
	), nil
}

// newInstrumentation creates the OpenTelemetry provider for a command.
func newInstrumentation(ctx context.Context, logger *slog.Logger) (*instrumentation.Provider, instrumentation.Config, error) {
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return nil, instrConfig, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	logger.Debug("Instrumentation initialized",
		slog.Bool("enabled", provider.Enabled()),
		slog.String("metrics_exporter", instrConfig.MetricsExporter),
		slog.String("tracing_exporter", instrConfig.TracingExporter))
	return provider, instrConfig, nil
}

// registerAllTools registers every tool group with the registry.
func registerAllTools(r *tools.Registry, sc *server.ServerContext) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Gmail",
			register: func() error {
				return gmail_tools.RegisterGmailTools(r, sc)
			},
		},
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(r, sc)
			},
		},
		{
			name: "Search",
			register: func() error {
				return search_tools.RegisterSearchTools(r, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s tools: %w", reg.name, err)
		}
	}
	return nil
}

// session bundles what run and serve need to execute tools.
type session struct {
	cfg           *config.Config
	logger        *slog.Logger
	provider      *instrumentation.Provider
	serverContext *server.ServerContext
	registry      *tools.Registry
}

// newSession loads the configuration and wires credentials, clients and
// tools. A *config.ConfigError is returned when the configuration is
// incomplete.
func newSession(ctx context.Context, logger *slog.Logger, prompt io.Writer, requireEngine bool) (*session, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if requireEngine {
		err = cfg.ValidateForRun()
	} else {
		err = cfg.Validate()
	}
	if err != nil {
		return nil, err
	}

	provider, instrConfig, err := newInstrumentation(ctx, logger)
	if err != nil {
		return nil, err
	}
	metrics := provider.Metrics()

	manager, err := newCredentialManager(cfg, logger, metrics, prompt)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	sc, err := server.NewServerContext(ctx, cfg, manager,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithAuditLogger(instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)),
	)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}

	registry := tools.NewRegistry()
	if err := registerAllTools(registry, sc); err != nil {
		_ = sc.Shutdown()
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	return &session{
		cfg:           cfg,
		logger:        logger,
		provider:      provider,
		serverContext: sc,
		registry:      registry,
	}, nil
}

// Close shuts down the server context and flushes telemetry.
func (s *session) Close(ctx context.Context) {
	if err := s.serverContext.Shutdown(); err != nil {
		s.logger.Warn("Error during server context shutdown", logging.Err(err))
	}
	if err := s.provider.Shutdown(ctx); err != nil {
		s.logger.Warn("Error during instrumentation shutdown", logging.Err(err))
	}
}
