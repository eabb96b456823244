package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/agentim/internal/instrumentation"
	"github.com/teemow/agentim/internal/logging"
	"github.com/teemow/agentim/internal/retry"
)

// Authorizer runs the interactive consent flow and returns a fresh
// credential granted for (at least) the requested scopes.
type Authorizer interface {
	Authorize(ctx context.Context, scopes []string) (*Credential, error)
}

// Refresher exchanges the refresh token of cred for a new access token.
// A provider rejection must be reported by wrapping ErrRefreshRejected.
type Refresher interface {
	Refresh(ctx context.Context, cred *Credential) (*Credential, error)
}

// Manager drives the credential lifecycle:
//
//	absent  --authorize-->          valid
//	stored  --expiry in future-->   valid
//	stored  --expiry passed-->      expired
//	expired --refresh ok-->         valid
//	expired --rejected/no token-->  absent
//	valid   --scopes not covered--> absent
//
// A credential that does not cover the requested scopes goes straight to
// absent, whatever its expiry. Refresh and authorization are serialized;
// concurrent callers asking for the same scopes share one flight. State,
// Current and Load read a published snapshot and never wait for a flight.
type Manager struct {
	store      Store
	authorizer Authorizer
	refresher  Refresher

	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	now        func() time.Time
	skew       time.Duration
	retryDelay time.Duration

	flights singleflight.Group

	// mu serializes refresh and authorization and guards the fields below.
	mu     sync.Mutex
	loaded bool
	state  State
	cred   *Credential

	// viewMu guards view. It is never held across store or network calls.
	viewMu sync.RWMutex
	view   snapshot
}

type snapshot struct {
	loaded bool
	state  State
	cred   *Credential
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithExpirySkew treats credentials expiring within skew as expired.
func WithExpirySkew(skew time.Duration) Option {
	return func(m *Manager) { m.skew = skew }
}

// WithRetryDelay sets the pause before retrying a failed refresh.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// NewManager creates a Manager. Nothing is read from the store until the
// first call to Load or Obtain.
func NewManager(store Store, authorizer Authorizer, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		authorizer: authorizer,
		refresher:  refresher,
		logger:     slog.Default(),
		now:        time.Now,
		retryDelay: retry.DefaultDelay,
		state:      StateAbsent,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.WithService(m.logger, "credential")
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.snapshot().state
}

// Current returns a copy of the held credential without any validation,
// or nil.
func (m *Manager) Current() *Credential {
	return m.snapshot().cred.Clone()
}

// Load reads the store if that has not happened yet and returns the
// resulting state. An unreadable or corrupt store yields StateAbsent.
func (m *Manager) Load(ctx context.Context) State {
	if v := m.snapshot(); v.loaded {
		return v.state
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadLocked(ctx)
	return m.state
}

func (m *Manager) snapshot() snapshot {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view
}

// publishLocked copies the lifecycle fields into the snapshot read by
// State, Current and Load.
func (m *Manager) publishLocked() {
	v := snapshot{loaded: m.loaded, state: m.state, cred: m.cred.Clone()}
	m.viewMu.Lock()
	m.view = v
	m.viewMu.Unlock()
}

// Invalidate marks a valid credential as expired, for example after the
// provider answered 401 for it. The next Obtain refreshes.
func (m *Manager) Invalidate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateValid {
		m.transition(ctx, StateExpired)
	}
}

// Obtain returns a valid credential covering scopes, refreshing or
// authorizing as needed. Failures are reported as *AuthError.
func (m *Manager) Obtain(ctx context.Context, scopes []string) (*Credential, error) {
	key := slices.Clone(scopes)
	slices.Sort(key)

	v, err, _ := m.flights.Do(strings.Join(key, " "), func() (any, error) {
		ctx, span := instrumentation.StartSpan(ctx, "credential.obtain")
		defer span.End()

		m.mu.Lock()
		defer m.mu.Unlock()

		cred, err := m.obtainLocked(ctx, scopes)
		instrumentation.SetSpanError(span, err)
		return cred, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credential).Clone(), nil
}

func (m *Manager) obtainLocked(ctx context.Context, scopes []string) (*Credential, error) {
	m.loadLocked(ctx)

	for {
		switch m.state {
		case StateStored:
			if m.dropUncovered(ctx, scopes) {
				continue
			}
			if m.cred.ValidAt(m.now(), m.skew) {
				m.transition(ctx, StateValid)
			} else {
				m.transition(ctx, StateExpired)
			}

		case StateValid:
			if m.dropUncovered(ctx, scopes) {
				continue
			}
			if !m.cred.ValidAt(m.now(), m.skew) {
				m.transition(ctx, StateExpired)
				continue
			}
			return m.cred, nil

		case StateExpired:
			if m.dropUncovered(ctx, scopes) {
				continue
			}
			if !m.cred.Refreshable() {
				m.transition(ctx, StateAbsent)
				continue
			}
			refreshed, err := m.refreshLocked(ctx)
			if errors.Is(err, ErrRefreshRejected) {
				m.transition(ctx, StateAbsent)
				continue
			}
			if err != nil {
				return nil, &AuthError{Op: "refresh", Err: err}
			}
			if !refreshed.ValidAt(m.now(), m.skew) {
				return nil, &AuthError{Op: "refresh", Err: fmt.Errorf("provider returned an already expired token")}
			}
			m.cred = refreshed
			m.persistLocked(ctx)
			m.transition(ctx, StateValid)

		default:
			// Previously granted scopes are requested again so that a
			// scope upgrade does not silently drop earlier grants.
			var granted []string
			if m.cred != nil {
				granted = m.cred.Scopes
			}
			cred, err := m.authorizeLocked(ctx, UnionScopes(scopes, granted))
			if err != nil {
				return nil, &AuthError{Op: "authorize", Err: err}
			}
			if !cred.ValidAt(m.now(), m.skew) {
				return nil, &AuthError{Op: "authorize", Err: fmt.Errorf("provider returned an already expired token")}
			}
			m.cred = cred
			m.persistLocked(ctx)
			m.transition(ctx, StateValid)
			if !cred.Covers(scopes) {
				return nil, &AuthError{Op: "scope", Err: fmt.Errorf("consent did not grant all requested scopes")}
			}
			return m.cred, nil
		}
	}
}

// dropUncovered moves to StateAbsent when the held credential lacks some of
// scopes. Refreshing it would not add them.
func (m *Manager) dropUncovered(ctx context.Context, scopes []string) bool {
	if m.cred.Covers(scopes) {
		return false
	}
	m.logger.Info("credential does not cover requested scopes",
		logging.Scopes(scopes), slog.Any("granted", m.cred.Scopes))
	m.transition(ctx, StateAbsent)
	return true
}

func (m *Manager) loadLocked(ctx context.Context) {
	if m.loaded {
		return
	}
	m.loaded = true

	cred, err := m.store.Load(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		m.logger.Debug("no stored credential")
		m.state = StateAbsent
		m.publishLocked()
	case err != nil:
		m.logger.Warn("ignoring unreadable credential store", logging.Err(err))
		m.state = StateAbsent
		m.publishLocked()
	default:
		m.cred = cred
		m.transition(ctx, StateStored)
	}
}

func (m *Manager) refreshLocked(ctx context.Context) (*Credential, error) {
	current := m.cred.Clone()
	refreshed, err := retry.Do(ctx, "credential.refresh", func() (*Credential, error) {
		return m.refresher.Refresh(ctx, current.Clone())
	}, retry.WithDelay(m.retryDelay))

	switch {
	case errors.Is(err, ErrRefreshRejected):
		m.logger.Warn("refresh token rejected, authorization required", logging.Err(err))
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultRejected)
		return nil, err
	case err != nil:
		m.logger.Error("credential refresh failed", logging.Err(err))
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return nil, err
	}

	// Providers usually omit the refresh token and scopes on refresh.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = current.RefreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = current.Scopes
	}

	m.logger.Info("credential refreshed",
		slog.Time("expiry", refreshed.Expiry),
		slog.String("access_token", logging.SanitizeToken(refreshed.AccessToken)))
	m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	return refreshed, nil
}

func (m *Manager) authorizeLocked(ctx context.Context, scopes []string) (*Credential, error) {
	m.logger.Info("interactive authorization required", logging.Scopes(scopes))

	cred, err := m.authorizer.Authorize(ctx, scopes)
	if err != nil {
		m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, err
	}
	if len(cred.Scopes) == 0 {
		cred.Scopes = slices.Clone(scopes)
	}
	m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	return cred, nil
}

// persistLocked writes the held credential. A failed write is logged; the
// credential stays usable for the rest of the session.
func (m *Manager) persistLocked(ctx context.Context) {
	if err := m.store.Save(ctx, m.cred); err != nil {
		m.logger.Error("failed to persist credential", logging.Err(err))
		m.metrics.RecordCredentialStoreWrite(ctx, instrumentation.StatusError)
		return
	}
	m.metrics.RecordCredentialStoreWrite(ctx, instrumentation.StatusSuccess)
}

func (m *Manager) transition(ctx context.Context, to State) {
	from := m.state
	m.state = to
	m.publishLocked()
	m.logger.Debug("credential state transition",
		slog.String("from", from.String()), logging.State(to))
	m.metrics.RecordCredentialTransition(ctx, from.String(), to.String())
}
