package google

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/agentim/internal/config"
	"github.com/teemow/agentim/internal/credential"
)

// LoadClientSecret reads the OAuth client-secret descriptor downloaded from
// the Google Cloud console ("Desktop app" client type). A missing or
// unreadable descriptor is a *config.ConfigError.
func LoadClientSecret(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &config.ConfigError{
			Field: "client_secret_file",
			Message: fmt.Sprintf("OAuth client-secret descriptor not found at %s; download it from the Google Cloud "+
				"console (APIs & Services > Credentials > OAuth client ID > Desktop app)", path),
			Err: err,
		}
	}
	if err != nil {
		return nil, &config.ConfigError{Field: "client_secret_file", Message: "cannot read OAuth client-secret descriptor", Err: err}
	}

	// Scopes and redirect URL are set per authorization.
	conf, err := google.ConfigFromJSON(data)
	if err != nil {
		return nil, &config.ConfigError{Field: "client_secret_file", Message: "invalid OAuth client-secret descriptor", Err: err}
	}
	return conf, nil
}

// NewHTTPClient returns an HTTP client for Google APIs authenticated with
// cred. The token is static: refreshing is left to the credential manager.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func NewHTTPClient(cred *credential.Credential, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(cred.Token()),
			Base: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
			},
		},
	}
}
