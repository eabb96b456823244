package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/retry"
)

// OAuthRefresher refreshes credentials against the token endpoint of the
// client-secret descriptor.
type OAuthRefresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuthRefresher creates a refresher whose token requests are bounded
// by timeout.
func NewOAuthRefresher(conf *oauth2.Config, timeout time.Duration) *OAuthRefresher {
	return &OAuthRefresher{
		config:     conf,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Refresh implements credential.Refresher.
func (r *OAuthRefresher) Refresh(ctx context.Context, cred *credential.Credential) (*credential.Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)

	// Without an access token the source always hits the token endpoint.
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}

	refreshed := credential.FromToken(tok, nil)
	if s := grantedScopes(tok, nil); len(s) > 0 {
		refreshed.Scopes = s
	}
	return refreshed, nil
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		// Transport level failure: DNS, connection, timeout.
		return &retry.TransientError{Op: "oauth.refresh", Err: err}
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	switch {
	case re.ErrorCode == "invalid_grant", re.ErrorCode == "unauthorized_client",
		status == http.StatusBadRequest, status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", credential.ErrRefreshRejected, err)
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return &retry.TransientError{Op: "oauth.refresh", Err: err}
	default:
		return fmt.Errorf("token refresh failed: %w", err)
	}
}
