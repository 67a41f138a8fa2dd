package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chatlens/internal/api"
)

var (
	// ErrExpired is the single session-failure signal. Refresh network
	// errors, token decode errors, and repeated 401s all collapse into it;
	// the only valid reaction is to re-authenticate.
	ErrExpired = errors.New("session expired")

	// ErrNotAuthenticated is returned when no session has been established.
	ErrNotAuthenticated = errors.New("not logged in")
)

// refreshLeeway is how close to the access token's expiry claim a proactive
// refresh kicks in.
const refreshLeeway = 60 * time.Second

const defaultHTTPTimeout = 30 * time.Second

// Option customises Manager construction.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for all requests.
func WithHTTPClient(client HTTPDoer) Option {
	return func(m *Manager) {
		m.httpClient = client
		m.authClient = nil
	}
}

// WithStore injects a custom persistence layer.
func WithStore(store Store) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithAuthClient injects a prebuilt auth endpoint client.
func WithAuthClient(client *AuthClient) Option {
	return func(m *Manager) {
		m.authClient = client
	}
}

// WithLogger sets the logger used for session events.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the time source (used in tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns the single live session for this process and wraps outbound
// requests with the refresh-and-retry policy.
type Manager struct {
	baseURL    string
	httpClient HTTPDoer
	authClient *AuthClient
	store      Store
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	current Session
}

// NewManager builds a Manager, loading any persisted session from the store.
func NewManager(baseURL, stateDir string, opts ...Option) (*Manager, error) {
	mgr := &Manager{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		store:      NewFileStore(stateDir),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(mgr)
	}
	if mgr.httpClient == nil {
		mgr.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if mgr.store == nil {
		mgr.store = NewFileStore(stateDir)
	}
	if mgr.authClient == nil {
		mgr.authClient = NewAuthClient(baseURL, mgr.httpClient)
	}

	state, err := mgr.store.Load()
	if err != nil {
		return nil, err
	}
	mgr.current = state
	return mgr, nil
}

// Authenticated reports whether a session is currently held.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Valid()
}

// Current returns a copy of the live session.
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsExpired decodes the token's expiry claim and reports whether now is
// within the refresh leeway of it. A token with a missing or unparseable
// claim is treated as NOT expired. That fails open on purpose: an opaque
// token never triggers a proactive refresh and relies entirely on the
// reactive 401 path.
func (m *Manager) IsExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !m.now().Add(refreshLeeway).Before(exp.Time)
}

// EnsureFresh guarantees a non-expired access token, refreshing at most once.
// Concurrent callers serialize on the manager lock and observe the outcome of
// a single refresh rather than issuing duplicates; refresh tokens are
// single-use server-side.
func (m *Manager) EnsureFresh(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.current.Valid() {
		return Session{}, ErrNotAuthenticated
	}
	if !m.IsExpired(m.current.AccessToken) {
		return m.current, nil
	}
	return m.refreshLocked(ctx)
}

func (m *Manager) refreshLocked(ctx context.Context) (Session, error) {
	if !m.current.Valid() {
		return Session{}, ErrNotAuthenticated
	}

	pair, err := m.authClient.Refresh(ctx, m.current.RefreshToken)
	if err != nil {
		m.logger.Warn("token refresh failed, clearing session", "component", "session", "error", err)
		m.clearLocked(ctx, false)
		return Session{}, fmt.Errorf("%w: %v", ErrExpired, err)
	}

	state := sessionFromPair(pair, m.now())
	if saveErr := m.store.Save(state); saveErr != nil {
		// The in-memory session stays usable; only cross-reload resume suffers.
		m.logger.Warn("persist refreshed session failed", "component", "session", "error", saveErr)
	}
	m.current = state
	return state, nil
}

// Authorize attaches a fresh access token to the request and issues it. On a
// 401 it refreshes and retries exactly once; a second 401 clears the session
// and returns ErrExpired.
func (m *Manager) Authorize(req *http.Request) (*http.Response, error) {
	sess, err := m.EnsureFresh(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := m.send(req, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	m.mu.Lock()
	sess, err = m.refreshLocked(req.Context())
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	retry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err = m.send(retry, sess.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		m.mu.Lock()
		m.clearLocked(req.Context(), true)
		m.mu.Unlock()
		return nil, ErrExpired
	}
	return resp, nil
}

func (m *Manager) send(req *http.Request, token string) (*http.Response, error) {
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return clone, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body for retry: %w", err)
	}
	clone.Body = body
	return clone, nil
}

// Login exchanges credentials for a session and persists it.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	pair, err := m.authClient.Login(ctx, email, password)
	if err != nil {
		return err
	}
	return m.adopt(pair)
}

// Register creates an account and persists its session.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	pair, err := m.authClient.Register(ctx, req)
	if err != nil {
		return err
	}
	return m.adopt(pair)
}

func (m *Manager) adopt(pair api.TokenPair) error {
	state := sessionFromPair(pair, m.now())
	if err := m.store.Save(state); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = state
	m.mu.Unlock()
	return nil
}

// Logout invalidates the refresh token server-side (best-effort) and clears
// all session state.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked(ctx, true)
}

func (m *Manager) clearLocked(ctx context.Context, notifyServer bool) {
	if notifyServer && m.current.Valid() {
		if err := m.authClient.Logout(ctx, m.current.AccessToken, m.current.RefreshToken); err != nil {
			m.logger.Debug("server logout failed", "component", "session", "error", err)
		}
	}
	m.current = Session{}
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("clear session state failed", "component", "session", "error", err)
	}
}

func sessionFromPair(pair api.TokenPair, now time.Time) Session {
	state := Session{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}
	if pair.ExpiresIn > 0 {
		state.ExpiresAt = now.Add(time.Duration(pair.ExpiresIn) * time.Second)
	}
	return state
}
