package google

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/logging"
)

const callbackPage = `<html><body><h3>agentim is authorized.</h3><p>You can close this window.</p></body></html>`

// LoopbackAuthorizer runs the installed-app authorization flow: it listens
// on an ephemeral loopback port, sends the user to the consent page and
// exchanges the returned code (with PKCE) for a token.
type LoopbackAuthorizer struct {
	config      *oauth2.Config
	out         io.Writer
	openBrowser func(url string) error
	httpClient  *http.Client
	timeout     time.Duration
	logger      *slog.Logger
}

// AuthorizerOption configures a LoopbackAuthorizer.
type AuthorizerOption func(*LoopbackAuthorizer)

// WithPromptWriter sets where the consent URL is printed (default stderr).
func WithPromptWriter(w io.Writer) AuthorizerOption {
	return func(a *LoopbackAuthorizer) { a.out = w }
}

// WithBrowser replaces the function used to open the consent URL.
func WithBrowser(open func(url string) error) AuthorizerOption {
	return func(a *LoopbackAuthorizer) { a.openBrowser = open }
}

// WithAuthorizationTimeout bounds the wait for the user to give consent.
func WithAuthorizationTimeout(d time.Duration) AuthorizerOption {
	return func(a *LoopbackAuthorizer) { a.timeout = d }
}

// WithTokenHTTPClient sets the client used for the code exchange.
func WithTokenHTTPClient(c *http.Client) AuthorizerOption {
	return func(a *LoopbackAuthorizer) { a.httpClient = c }
}

// WithAuthorizerLogger sets the logger.
func WithAuthorizerLogger(l *slog.Logger) AuthorizerOption {
	return func(a *LoopbackAuthorizer) { a.logger = l }
}

// NewLoopbackAuthorizer creates an authorizer for the given client config.
func NewLoopbackAuthorizer(conf *oauth2.Config, opts ...AuthorizerOption) *LoopbackAuthorizer {
	a := &LoopbackAuthorizer{
		config:      conf,
		out:         os.Stderr,
		openBrowser: openBrowser,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		timeout:     5 * time.Minute,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements credential.Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, scopes []string) (*credential.Credential, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to start loopback listener: %w", err)
	}

	conf := *a.config
	conf.Scopes = scopes
	conf.RedirectURL = "http://" + ln.Addr().String() + "/"

	state, err := generateState()
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("loopback callback server stopped", logging.Err(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(a.out, "Authorize agentim by visiting this URL in your browser:\n\n  %s\n\n", authURL)
	if err := a.openBrowser(authURL); err != nil {
		a.logger.Debug("could not open browser", logging.Err(err))
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var code string
	select {
	case res := <-results:
		if res.err != nil {
			return nil, res.err
		}
		code = res.code
	case <-waitCtx.Done():
		return nil, fmt.Errorf("timed out waiting for authorization: %w", waitCtx.Err())
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := conf.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	granted := grantedScopes(tok, scopes)
	a.logger.Info("authorization completed", logging.Scopes(granted),
		slog.Bool("refresh_token", tok.RefreshToken != ""))
	return credential.FromToken(tok, granted), nil
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	deliver := func(res callbackResult) {
		select {
		case results <- res:
		default:
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()

		if q.Get("state") != state {
			http.Error(w, "invalid state parameter", http.StatusBadRequest)
			return
		}
		if errParam := q.Get("error"); errParam != "" {
			http.Error(w, "authorization was not granted: "+errParam, http.StatusForbidden)
			deliver(callbackResult{err: fmt.Errorf("authorization denied: %s", errParam)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("authorization response did not contain a code")})
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, callbackPage)
		deliver(callbackResult{code: code})
	})
}

// grantedScopes prefers the scope list reported by the token endpoint,
// which reflects what the user actually consented to.
func grantedScopes(tok *oauth2.Token, requested []string) []string {
	if s, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(s) != "" {
		return strings.Fields(s)
	}
	return requested
}

func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// openBrowser opens a URL in the default browser.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
	return cmd.Start()
}
