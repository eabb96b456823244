package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/google"
	"github.com/teemow/agentim/internal/logging"
)

type setupOptions struct {
	apiKey         string
	searchAPIKey   string
	searchEngineID string
	encrypt        bool
	skipAuth       bool
}

func newSetupCmd() *cobra.Command {
	var opts setupOptions

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Store the Anthropic API key and authorize your Google account",
		Long: `Store the Anthropic API key in the config file and run the Google
authorization flow. A browser window opens for consent; the resulting
credential is stored for later sessions.

The API key is read from a hidden prompt unless --api-key is given. Leave the
prompt empty to keep a key that is already configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "Anthropic API key (prompted for when omitted)")
	cmd.Flags().StringVar(&opts.searchAPIKey, "search-api-key", "", "Google Custom Search API key for google_search")
	cmd.Flags().StringVar(&opts.searchEngineID, "search-engine-id", "", "Programmable Search Engine ID for google_search")
	cmd.Flags().BoolVar(&opts.encrypt, "encrypt-credential", false, "Generate a key and encrypt the stored Google credential")
	cmd.Flags().BoolVar(&opts.skipAuth, "skip-auth", false, "Only save the configuration, do not authorize now")

	return cmd
}

func runSetup(ctx context.Context, in io.Reader, out io.Writer, opts setupOptions) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	apiKey := opts.apiKey
	if apiKey == "" {
		apiKey, err = readAPIKey(in, out, cfg.AnthropicAPIKey != "")
		if err != nil {
			return err
		}
	}
	if apiKey != "" {
		cfg.AnthropicAPIKey = apiKey
	}
	if cfg.AnthropicAPIKey == "" {
		return &config.ConfigError{Field: "anthropic_api_key", Message: "an Anthropic API key is required"}
	}

	if opts.searchAPIKey != "" {
		cfg.Search.APIKey = opts.searchAPIKey
	}
	if opts.searchEngineID != "" {
		cfg.Search.EngineID = opts.searchEngineID
	}

	if opts.encrypt && cfg.CredentialKey == "" {
		key, err := credential.GenerateKey()
		if err != nil {
			return err
		}
		cfg.CredentialKey = key
		fmt.Fprintln(out, "Generated a credential encryption key.")
	}

	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved config: %s\n", path)

	if opts.skipAuth {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.NewCommandLogger(debugMode)
	manager, err := newCredentialManager(cfg, logger, nil, out)
	if err != nil {
		return err
	}

	// Every scope is requested up front so that sessions do not stop for
	// consent later.
	cred, err := manager.Obtain(ctx, google.DefaultScopes)
	if err != nil {
		return fmt.Errorf("google authorization failed: %w", err)
	}

	fmt.Fprintf(out, "Authorized Google account for %d scopes. Credential stored at %s\n", len(cred.Scopes), cfg.TokenFile)
	fmt.Fprintln(out, "Setup complete. Start chatting with: agentim run")
	return nil
}

// readAPIKey prompts for the API key. Input is hidden when in is a
// terminal.
func readAPIKey(in io.Reader, out io.Writer, haveExisting bool) (string, error) {
	prompt := "Anthropic API key: "
	if haveExisting {
		prompt = "Anthropic API key (leave empty to keep the current key): "
	}
	fmt.Fprint(out, prompt)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		key, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
