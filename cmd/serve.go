package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/resources"
	"github.com/teemow/agentim/internal/server"
	"github.com/teemow/agentim/internal/tools"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the Google tools as an MCP server on stdio",
		Long: `Start an MCP (Model Context Protocol) server on stdin/stdout that offers
gmail_search, gmail_send, calendar_event and google_search to an MCP client.

The same credential store as 'agentim run' is used. If authorization is
needed, the consent URL is printed to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	return cmd
}

func runServe(cmd *cobra.Command) error {
	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.NewCommandLogger(debugMode)

	// stdout carries the protocol; telemetry must not write there.
	if exporter := os.Getenv("METRICS_EXPORTER"); exporter == instrumentation.ExporterStdout {
		return fmt.Errorf("METRICS_EXPORTER=%s cannot be used with the stdio transport", exporter)
	}
	if exporter := os.Getenv("TRACING_EXPORTER"); exporter == instrumentation.ExporterStdout {
		return fmt.Errorf("TRACING_EXPORTER=%s cannot be used with the stdio transport", exporter)
	}

	sess, err := newSession(ctx, logger, os.Stderr, false)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		sess.Close(shutdownCtx)
	}()

	mcpSrv, err := newMCPServer(sess.registry, sess.serverContext)
	if err != nil {
		return err
	}

	logger.Info("Serving MCP on stdio", logging.Operation("serve"))
	return runStdioServer(ctx, mcpSrv)
}

// newMCPServer creates an MCP server offering every tool in r and the
// status resources of sc.
func newMCPServer(r *tools.Registry, sc *server.ServerContext) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("agentim", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)
	r.RegisterMCP(mcpSrv)
	if err := resources.RegisterStatusResources(mcpSrv, sc); err != nil {
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}
	return mcpSrv, nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return nil
	}
}
