package google

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/agentim/internal/credential"
	"github.com/teemow/agentim/internal/logging"
)

func errorsIsRejected(err error) bool {
	return errors.Is(err, credential.ErrRefreshRejected)
}

// consentBrowser simulates the user approving (or denying) consent by
// following the redirect_uri of the consent URL.
func consentBrowser(t *testing.T, params url.Values) func(string) error {
	return func(authURL string) error {
		u, err := url.Parse(authURL)
		require.NoError(t, err)
		q := u.Query()

		assert.Equal(t, "offline", q.Get("access_type"))
		assert.Equal(t, "S256", q.Get("code_challenge_method"))
		assert.NotEmpty(t, q.Get("code_challenge"))

		callback, err := url.Parse(q.Get("redirect_uri"))
		require.NoError(t, err)
		cq := url.Values{}
		for k, v := range params {
			cq[k] = v
		}
		if cq.Get("state") == "" {
			cq.Set("state", q.Get("state"))
		}
		callback.RawQuery = cq.Encode()

		go func() {
			resp, err := http.Get(callback.String())
			if err == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
			}
		}()
		return nil
	}
}

func TestLoopbackAuthorizer_Authorize(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		assert.NotEmpty(t, r.Form.Get("code_verifier"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"ya29.fresh","refresh_token":"1//r","token_type":"Bearer","expires_in":3599}`))
	}))
	defer tokenSrv.Close()

	a := NewLoopbackAuthorizer(testOAuthConfig(tokenSrv.URL),
		WithPromptWriter(io.Discard),
		WithBrowser(consentBrowser(t, url.Values{"code": {"the-code"}})),
		WithAuthorizationTimeout(5*time.Second),
		WithAuthorizerLogger(logging.Discard()),
	)

	cred, err := a.Authorize(context.Background(), DefaultScopes)
	require.NoError(t, err)
	assert.Equal(t, "ya29.fresh", cred.AccessToken)
	assert.Equal(t, "1//r", cred.RefreshToken)
	assert.Equal(t, DefaultScopes, cred.Scopes)
	assert.True(t, cred.ValidAt(time.Now(), 0))
}

func TestLoopbackAuthorizer_Denied(t *testing.T) {
	a := NewLoopbackAuthorizer(testOAuthConfig("http://127.0.0.1:1/token"),
		WithPromptWriter(io.Discard),
		WithBrowser(consentBrowser(t, url.Values{"error": {"access_denied"}})),
		WithAuthorizationTimeout(5*time.Second),
		WithAuthorizerLogger(logging.Discard()),
	)

	_, err := a.Authorize(context.Background(), []string{ScopeGmailRead})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
}

func TestLoopbackAuthorizer_Timeout(t *testing.T) {
	a := NewLoopbackAuthorizer(testOAuthConfig("http://127.0.0.1:1/token"),
		WithPromptWriter(io.Discard),
		WithBrowser(func(string) error { return errors.New("no browser") }),
		WithAuthorizationTimeout(50*time.Millisecond),
		WithAuthorizerLogger(logging.Discard()),
	)

	_, err := a.Authorize(context.Background(), []string{ScopeGmailRead})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallbackHandler_RejectsWrongState(t *testing.T) {
	results := make(chan callbackResult, 1)
	h := callbackHandler("expected", results)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=forged&code=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, results)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?state=expected&code=x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x", (<-results).code)
}
