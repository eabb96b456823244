package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teemow/agentim/internal/dispatch"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/reasoning"
	"github.com/teemow/agentim/internal/server"
)

func newRunCmd() *cobra.Command {
	var (
		metricsAddr   string
		parallelTools bool
		maxToolRounds int
		model         string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session in the terminal. The agent answers in
natural language and uses Gmail, Google Calendar and Google Search when a
request needs them. Type 'exit' to end the conversation.

Google authorization happens on first use of a Google tool if no valid
credential is stored.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, runOptions{
				metricsAddr:   metricsAddr,
				parallelTools: parallelTools,
				maxToolRounds: maxToolRounds,
				model:         model,
			})
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the session (e.g. 127.0.0.1:9090)")
	cmd.Flags().BoolVar(&parallelTools, "parallel-tools", false, "Run the tool calls of one round concurrently")
	cmd.Flags().IntVar(&maxToolRounds, "max-tool-rounds", 0, "Maximum rounds of tool calls per message (default from config)")
	cmd.Flags().StringVar(&model, "model", "", "Anthropic model to use (default from config)")

	return cmd
}

type runOptions struct {
	metricsAddr   string
	parallelTools bool
	maxToolRounds int
	model         string
}

func runChat(cmd *cobra.Command, opts runOptions) error {
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.NewCommandLogger(debugMode)

	sess, err := newSession(ctx, logger, cmd.ErrOrStderr(), true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		sess.Close(shutdownCtx)
	}()

	if opts.metricsAddr != "" {
		stop, err := startMetricsServer(sess, opts.metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	cfg := sess.cfg
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.maxToolRounds > 0 {
		cfg.MaxToolRounds = opts.maxToolRounds
	}
	if opts.parallelTools {
		cfg.ParallelTools = true
	}

	engine := reasoning.NewEngineFromConfig(cfg, reasoning.WithLogger(logger))

	loopOpts := []dispatch.Option{
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(sess.provider.Metrics()),
		dispatch.WithMaxToolRounds(cfg.MaxToolRounds),
		dispatch.WithEngineTimeout(cfg.Timeouts.Engine),
	}
	if cfg.ParallelTools {
		loopOpts = append(loopOpts, dispatch.WithParallelTools(dispatch.DefaultParallelism))
	}

	logger.Debug("Starting chat session",
		slog.String("model", engine.Model()),
		slog.Int("tools", len(sess.registry.Names())),
		slog.Bool("search_configured", cfg.Search.Enabled()))

	loop := dispatch.NewLoop(engine, sess.registry, loopOpts...)
	err = loop.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if errors.Is(err, context.Canceled) {
		// Ctrl-C ends the session like typing exit.
		return nil
	}
	return err
}

// startMetricsServer binds addr synchronously so that a busy port is
// reported before the session starts.
func startMetricsServer(sess *session, addr string) (func(), error) {
	if !sess.provider.ServesPrometheus() {
		return nil, fmt.Errorf("--metrics-addr requires the prometheus metrics exporter with instrumentation enabled")
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		InstrumentationProvider: sess.provider,
		HealthChecker:           server.NewHealthChecker(sess.serverContext),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}
	if err := metricsServer.Listen(); err != nil {
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	}

	go func() {
		if err := metricsServer.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sess.logger.Error("Metrics server stopped", logging.Err(err))
		}
	}()
	sess.logger.Info("Metrics server started", slog.String("addr", metricsServer.Addr()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			sess.logger.Warn("Error during metrics server shutdown", logging.Err(err))
		}
	}, nil
}
