package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/google"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Create the configuration directory and a default config file",
		Long: `Create the agentim configuration directory with owner-only permissions,
write a default config file if none exists and check that the Google OAuth
client-secret descriptor is in place.

Nothing is overwritten. Run 'agentim setup' afterwards to store the Anthropic
API key and authorize your Google account.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolveConfigPath()
			if err != nil {
				return err
			}
			return runInstall(cmd.OutOrStdout(), path)
		},
	}

	return cmd
}

func runInstall(out io.Writer, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// MkdirAll leaves existing directories alone.
	if err := os.Chmod(dir, 0700); err != nil {
		return fmt.Errorf("failed to restrict config directory permissions: %w", err)
	}
	fmt.Fprintf(out, "Config directory: %s\n", dir)

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	_, statErr := os.Stat(path)
	switch {
	case errors.Is(statErr, os.ErrNotExist):
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote default config: %s\n", path)
	case statErr != nil:
		return fmt.Errorf("failed to check config file: %w", statErr)
	default:
		fmt.Fprintf(out, "Keeping existing config: %s\n", path)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.TokenFile), 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	var missing []string
	if _, err := google.LoadClientSecret(cfg.ClientSecretFile); err != nil {
		missing = append(missing, err.Error())
	} else {
		fmt.Fprintf(out, "OAuth client secret: %s\n", cfg.ClientSecretFile)
	}
	if cfg.AnthropicAPIKey == "" {
		missing = append(missing, "Anthropic API key is not set; run 'agentim setup' or set ANTHROPIC_API_KEY")
	}

	if len(missing) == 0 {
		fmt.Fprintln(out, "\nInstallation complete. Run 'agentim setup' to authorize your Google account.")
		return nil
	}

	fmt.Fprintln(out, "\nStill missing:")
	for _, m := range missing {
		fmt.Fprintf(out, "  - %s\n", m)
	}
	return nil
}
