package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/logging"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the configuration and the state of the stored Google credential",
		Long: `Show where agentim keeps its configuration and credential and whether the
stored Google credential is usable. No network calls are made: an expired
access token is refreshed on the next use of a Google tool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := newCredentialStore(cfg)
			if err != nil {
				return err
			}
			// Loading never calls the authorizer or the refresher.
			manager := credential.NewManager(store, nil, nil, credential.WithLogger(logging.Discard()))
			state := manager.Load(cmd.Context())

			return writeStatus(cmd.OutOrStdout(), cfg, path, state, manager.Current(), time.Now())
		},
	}

	return cmd
}

func writeStatus(out io.Writer, cfg *config.Config, path string, state credential.State, cred *credential.Credential, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Config file:\t%s\t%s\n", path, presence(path))
	fmt.Fprintf(w, "Client secret:\t%s\t%s\n", cfg.ClientSecretFile, presence(cfg.ClientSecretFile))
	fmt.Fprintf(w, "Credential store:\t%s\t%s\n", cfg.TokenFile, encryptionLabel(cfg))
	fmt.Fprintf(w, "Anthropic API key:\t%s\t\n", setLabel(cfg.AnthropicAPIKey != ""))
	if cfg.Search.Enabled() {
		fmt.Fprintf(w, "Google search:\tconfigured\t\n")
	} else {
		fmt.Fprintf(w, "Google search:\tplaceholder mode (no API key or engine id)\t\n")
	}
	fmt.Fprintf(w, "Model:\t%s\t\n", cfg.Model)

	fmt.Fprintf(w, "Credential:\t%s\t\n", describeCredential(state, cred, now))
	if cred != nil {
		if !cred.Expiry.IsZero() {
			fmt.Fprintf(w, "Access token expiry:\t%s\t\n", cred.Expiry.UTC().Format(time.RFC3339))
		}
		fmt.Fprintf(w, "Refresh token:\t%s\t\n", setLabel(cred.Refreshable()))
		fmt.Fprintf(w, "Granted scopes:\t%s\t\n", strings.Join(cred.Scopes, " "))
	}

	return w.Flush()
}

func describeCredential(state credential.State, cred *credential.Credential, now time.Time) string {
	switch {
	case state == credential.StateAbsent || cred == nil:
		return "absent (run 'agentim setup' to authorize)"
	case cred.ValidAt(now, 0):
		return fmt.Sprintf("valid for %s", cred.Expiry.Sub(now).Round(time.Minute))
	case cred.Refreshable():
		return "expired (refreshed automatically on next use)"
	default:
		return "expired (authorization required on next use)"
	}
}

func presence(path string) string {
	if path == "" {
		return "not set"
	}
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	return "found"
}

func encryptionLabel(cfg *config.Config) string {
	if cfg.CredentialKey != "" {
		return "encrypted"
	}
	return "plaintext"
}

func setLabel(set bool) string {
	if set {
		return "set"
	}
	return "not set"
}
