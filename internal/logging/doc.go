// Package logging provides structured logging utilities for agentim.
//
// All packages log through log/slog. This package keeps attribute names
// consistent and makes sure sensitive values never reach the log:
//
//	logger := logging.WithOperation(slog.Default(), "credential.refresh")
//	logger.Info("token refreshed",
//	    logging.State(state),
//	    slog.String("access_token", logging.SanitizeToken(tok.AccessToken)))
//
// # Security Considerations
//
//   - Recipient addresses are hashed before logging
//   - Tokens are reduced to a length indicator
package logging
