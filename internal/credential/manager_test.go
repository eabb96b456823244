package credential

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/retry"
)

const (
	scopeRead = "https://www.googleapis.com/auth/gmail.readonly"
	scopeSend = "https://www.googleapis.com/auth/gmail.send"
	scopeCal  = "https://www.googleapis.com/auth/calendar"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type memStore struct {
	mu      sync.Mutex
	cred    *Credential
	loadErr error
	saveErr error
	saves   int
}

func (s *memStore) Load(context.Context) (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.cred == nil {
		return nil, ErrNotFound
	}
	return s.cred.Clone(), nil
}

func (s *memStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.cred = cred.Clone()
	return nil
}

type fakeAuthorizer struct {
	calls     atomic.Int32
	requested [][]string
	mu        sync.Mutex
	err       error
	delay     time.Duration
	grant     func(scopes []string) []string
}

func (a *fakeAuthorizer) Authorize(_ context.Context, scopes []string) (*Credential, error) {
	n := a.calls.Add(1)
	a.mu.Lock()
	a.requested = append(a.requested, scopes)
	a.mu.Unlock()
	time.Sleep(a.delay)
	if a.err != nil {
		return nil, a.err
	}
	granted := scopes
	if a.grant != nil {
		granted = a.grant(scopes)
	}
	return &Credential{
		AccessToken:  fmt.Sprintf("authorized-%d", n),
		RefreshToken: "refresh-new",
		TokenType:    "Bearer",
		Expiry:       testNow.Add(time.Hour),
		Scopes:       granted,
	}, nil
}

type fakeRefresher struct {
	calls atomic.Int32
	fn    func(n int32, cred *Credential) (*Credential, error)
}

func (r *fakeRefresher) Refresh(_ context.Context, cred *Credential) (*Credential, error) {
	n := r.calls.Add(1)
	if r.fn != nil {
		return r.fn(n, cred)
	}
	return &Credential{
		AccessToken: "refreshed",
		TokenType:   "Bearer",
		Expiry:      testNow.Add(time.Hour),
	}, nil
}

func newTestManager(store Store, auth Authorizer, ref Refresher, opts ...Option) *Manager {
	opts = append([]Option{
		WithClock(func() time.Time { return testNow }),
		WithLogger(logging.Discard()),
		WithRetryDelay(time.Millisecond),
	}, opts...)
	return NewManager(store, auth, ref, opts...)
}

func expiredCredential(refreshToken string, scopes ...string) *Credential {
	return &Credential{
		AccessToken:  "stale",
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		Expiry:       testNow.Add(-time.Minute),
		Scopes:       scopes,
	}
}

func TestManager_RefreshesExpiredCredential(t *testing.T) {
	store := &memStore{cred: expiredCredential("refresh-1", scopeRead, scopeSend)}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{}
	m := newTestManager(store, auth, ref)

	assert.Equal(t, StateStored, m.Load(context.Background()))

	cred, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)

	assert.Equal(t, "refreshed", cred.AccessToken)
	assert.True(t, cred.Expiry.After(testNow.Add(-time.Minute)))
	assert.Equal(t, "refresh-1", cred.RefreshToken, "refresh token is kept when the provider omits it")
	assert.Equal(t, []string{scopeRead, scopeSend}, cred.Scopes)
	assert.Equal(t, StateValid, m.State())

	assert.Equal(t, int32(0), auth.calls.Load())
	assert.Equal(t, int32(1), ref.calls.Load())

	// the store now holds the refreshed credential
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "refreshed", store.cred.AccessToken)
	assert.Equal(t, cred.Expiry, store.cred.Expiry)
}

func TestManager_ValidStoredCredentialNeedsNoNetwork(t *testing.T) {
	store := &memStore{cred: &Credential{
		AccessToken: "good",
		Expiry:      testNow.Add(time.Hour),
		Scopes:      []string{scopeCal},
	}}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{}
	m := newTestManager(store, auth, ref)

	cred, err := m.Obtain(context.Background(), []string{scopeCal})
	require.NoError(t, err)
	assert.Equal(t, "good", cred.AccessToken)
	assert.Zero(t, auth.calls.Load())
	assert.Zero(t, ref.calls.Load())
	assert.Zero(t, store.saves)
}

func TestManager_ExpiredWithoutRefreshTokenAuthorizesOnce(t *testing.T) {
	store := &memStore{cred: expiredCredential("", scopeRead)}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{}
	m := newTestManager(store, auth, ref)

	for range 3 {
		cred, err := m.Obtain(context.Background(), []string{scopeRead})
		require.NoError(t, err)
		assert.Equal(t, "authorized-1", cred.AccessToken)
	}

	assert.Equal(t, int32(1), auth.calls.Load())
	assert.Zero(t, ref.calls.Load())
	assert.Equal(t, 1, store.saves)
}

func TestManager_AbsentAuthorizes(t *testing.T) {
	store := &memStore{}
	auth := &fakeAuthorizer{}
	m := newTestManager(store, auth, &fakeRefresher{})

	assert.Equal(t, StateAbsent, m.Load(context.Background()))

	cred, err := m.Obtain(context.Background(), []string{scopeRead, scopeSend})
	require.NoError(t, err)
	assert.Equal(t, "authorized-1", cred.AccessToken)
	assert.Equal(t, []string{scopeRead, scopeSend}, store.cred.Scopes)
}

func TestManager_ScopeMismatchReauthorizesWithUnion(t *testing.T) {
	store := &memStore{cred: &Credential{
		AccessToken:  "read-only",
		RefreshToken: "refresh-1",
		Expiry:       testNow.Add(time.Hour),
		Scopes:       []string{scopeRead},
	}}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{}
	m := newTestManager(store, auth, ref)

	cred, err := m.Obtain(context.Background(), []string{scopeSend})
	require.NoError(t, err)

	assert.Equal(t, int32(1), auth.calls.Load())
	assert.Zero(t, ref.calls.Load())
	assert.Equal(t, [][]string{{scopeSend, scopeRead}}, auth.requested)
	assert.True(t, cred.Covers([]string{scopeRead, scopeSend}))
}

func TestManager_RejectedRefreshFallsBackToAuthorization(t *testing.T) {
	store := &memStore{cred: expiredCredential("revoked", scopeRead)}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{fn: func(int32, *Credential) (*Credential, error) {
		return nil, fmt.Errorf("%w: invalid_grant", ErrRefreshRejected)
	}}
	m := newTestManager(store, auth, ref)

	cred, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	assert.Equal(t, "authorized-1", cred.AccessToken)
	assert.Equal(t, int32(1), ref.calls.Load(), "rejections are not retried")
	assert.Equal(t, int32(1), auth.calls.Load())
}

func TestManager_NetworkFailureRetriedOnceThenAuthError(t *testing.T) {
	store := &memStore{cred: expiredCredential("refresh-1", scopeRead)}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{fn: func(int32, *Credential) (*Credential, error) {
		return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	}}
	m := newTestManager(store, auth, ref)

	_, err := m.Obtain(context.Background(), []string{scopeRead})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "refresh", authErr.Op)
	assert.True(t, retry.IsTransient(err))
	assert.Equal(t, int32(2), ref.calls.Load())
	assert.Zero(t, auth.calls.Load())
	assert.Zero(t, store.saves)
	assert.Equal(t, StateExpired, m.State())
}

func TestManager_NetworkFailureRecoversOnRetry(t *testing.T) {
	store := &memStore{cred: expiredCredential("refresh-1", scopeRead)}
	ref := &fakeRefresher{fn: func(n int32, _ *Credential) (*Credential, error) {
		if n == 1 {
			return nil, context.DeadlineExceeded
		}
		return &Credential{AccessToken: "second-try", Expiry: testNow.Add(time.Hour)}, nil
	}}
	m := newTestManager(store, &fakeAuthorizer{}, ref)

	cred, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	assert.Equal(t, "second-try", cred.AccessToken)
	assert.Equal(t, int32(2), ref.calls.Load())
}

func TestManager_CorruptStoreTreatedAsAbsent(t *testing.T) {
	store := &memStore{loadErr: fmt.Errorf("%w: bad json", ErrCorrupt)}
	auth := &fakeAuthorizer{}
	m := newTestManager(store, auth, &fakeRefresher{})

	assert.Equal(t, StateAbsent, m.Load(context.Background()))

	_, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	assert.Equal(t, int32(1), auth.calls.Load())
}

func TestManager_AuthorizationFailure(t *testing.T) {
	auth := &fakeAuthorizer{err: errors.New("user denied consent")}
	m := newTestManager(&memStore{}, auth, &fakeRefresher{})

	_, err := m.Obtain(context.Background(), []string{scopeRead})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "authorize", authErr.Op)
	assert.Contains(t, err.Error(), "user denied consent")
	assert.Equal(t, StateAbsent, m.State())
}

func TestManager_PartialConsent(t *testing.T) {
	auth := &fakeAuthorizer{grant: func([]string) []string { return []string{scopeRead} }}
	m := newTestManager(&memStore{}, auth, &fakeRefresher{})

	_, err := m.Obtain(context.Background(), []string{scopeRead, scopeSend})

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "scope", authErr.Op)
}

func TestManager_PersistFailureKeepsCredential(t *testing.T) {
	store := &memStore{saveErr: errors.New("disk full")}
	m := newTestManager(store, &fakeAuthorizer{}, &fakeRefresher{})

	cred, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	assert.Equal(t, "authorized-1", cred.AccessToken)
	assert.Equal(t, 1, store.saves)
}

func TestManager_ConcurrentObtainAuthorizesOnce(t *testing.T) {
	auth := &fakeAuthorizer{delay: 20 * time.Millisecond}
	m := newTestManager(&memStore{}, auth, &fakeRefresher{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Obtain(context.Background(), []string{scopeRead})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), auth.calls.Load())
}

func TestManager_InvalidateForcesRefresh(t *testing.T) {
	store := &memStore{cred: &Credential{
		AccessToken:  "good",
		RefreshToken: "refresh-1",
		Expiry:       testNow.Add(time.Hour),
		Scopes:       []string{scopeRead},
	}}
	ref := &fakeRefresher{}
	m := newTestManager(store, &fakeAuthorizer{}, ref)

	_, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)

	m.Invalidate(context.Background())
	assert.Equal(t, StateExpired, m.State())

	cred, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	assert.Equal(t, "refreshed", cred.AccessToken)
	assert.Equal(t, int32(1), ref.calls.Load())
}

func TestManager_ExpirySkew(t *testing.T) {
	store := &memStore{cred: &Credential{
		AccessToken:  "almost-expired",
		RefreshToken: "refresh-1",
		Expiry:       testNow.Add(30 * time.Second),
		Scopes:       []string{scopeRead},
	}}
	ref := &fakeRefresher{}
	m := newTestManager(store, &fakeAuthorizer{}, ref, WithExpirySkew(time.Minute))

	cred, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	assert.Equal(t, "refreshed", cred.AccessToken)
}

func TestManager_ReturnsCopies(t *testing.T) {
	m := newTestManager(&memStore{}, &fakeAuthorizer{}, &fakeRefresher{})

	cred, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	cred.AccessToken = "tampered"
	cred.Scopes[0] = "tampered"

	again, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	assert.Equal(t, "authorized-1", again.AccessToken)
	assert.Equal(t, "authorized-1", m.Current().AccessToken)
}

func TestManager_ExpiredUnderScopedCredentialSkipsRefresh(t *testing.T) {
	store := &memStore{cred: expiredCredential("refresh-1", scopeRead)}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{fn: func(int32, *Credential) (*Credential, error) {
		return nil, &net.OpError{Op: "read", Err: errors.New("i/o timeout")}
	}}
	m := newTestManager(store, auth, ref)

	cred, err := m.Obtain(context.Background(), []string{scopeCal})
	require.NoError(t, err)

	assert.Zero(t, ref.calls.Load(), "refreshing cannot add scopes")
	assert.Equal(t, int32(1), auth.calls.Load())
	assert.Equal(t, [][]string{{scopeCal, scopeRead}}, auth.requested)
	assert.True(t, cred.Covers([]string{scopeRead, scopeCal}))
	assert.Equal(t, 1, store.saves)
}

func TestManager_InvalidatedUnderScopedCredentialReauthorizes(t *testing.T) {
	store := &memStore{cred: &Credential{
		AccessToken:  "good",
		RefreshToken: "refresh-1",
		Expiry:       testNow.Add(time.Hour),
		Scopes:       []string{scopeRead},
	}}
	auth := &fakeAuthorizer{}
	ref := &fakeRefresher{}
	m := newTestManager(store, auth, ref)

	_, err := m.Obtain(context.Background(), []string{scopeRead})
	require.NoError(t, err)
	m.Invalidate(context.Background())

	_, err = m.Obtain(context.Background(), []string{scopeSend})
	require.NoError(t, err)
	assert.Zero(t, ref.calls.Load())
	assert.Equal(t, int32(1), auth.calls.Load())
}

type blockingAuthorizer struct {
	entered chan struct{}
	release chan struct{}
}

func (a *blockingAuthorizer) Authorize(ctx context.Context, scopes []string) (*Credential, error) {
	close(a.entered)
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Credential{
		AccessToken: "granted",
		TokenType:   "Bearer",
		Expiry:      testNow.Add(time.Hour),
		Scopes:      scopes,
	}, nil
}

func TestManager_StatusReadsDoNotWaitForAuthorization(t *testing.T) {
	auth := &blockingAuthorizer{entered: make(chan struct{}), release: make(chan struct{})}
	m := newTestManager(&memStore{}, auth, &fakeRefresher{})

	obtained := make(chan error, 1)
	go func() {
		_, err := m.Obtain(context.Background(), []string{scopeRead})
		obtained <- err
	}()
	<-auth.entered

	type status struct {
		state  State
		loaded State
		cred   *Credential
	}
	read := make(chan status, 1)
	go func() {
		read <- status{state: m.State(), loaded: m.Load(context.Background()), cred: m.Current()}
	}()

	select {
	case got := <-read:
		assert.Equal(t, StateAbsent, got.state)
		assert.Equal(t, StateAbsent, got.loaded)
		assert.Nil(t, got.cred)
	case <-time.After(time.Second):
		t.Fatal("status reads blocked while authorization was pending")
	}

	close(auth.release)
	require.NoError(t, <-obtained)
	assert.Equal(t, StateValid, m.State())
	assert.Equal(t, "granted", m.Current().AccessToken)
}
