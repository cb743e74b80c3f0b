// ABOUTME: SessionManager owning login, registration, logout and restore
// ABOUTME: Mirrors identity into the persisted cache and reacts to expiry events

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/compliai/internal/auth"
	"github.com/2389/compliai/internal/client"
	"github.com/2389/compliai/internal/events"
	"github.com/2389/compliai/internal/store"
)

// Cache namespace and keys owned by the session manager.
const (
	CacheNamespace = "compliai.auth"
	KeyToken       = "token"
	KeyUser        = "user"
)

// Notices shown at the sign-in entry point.
const (
	SessionExpiredNotice = "Your session has expired. Please sign in again."
	RegisteredNotice     = "Account created. Please sign in."
)

// ErrSessionExpired is the last error after the expiry protocol ran.
var ErrSessionExpired = errors.New("session expired")

// ReasonReplaced is the logout payload when a new login ends the active session.
const ReasonReplaced = "session_replaced"

// AuthAPI is the backend surface the manager needs.
type AuthAPI interface {
	IdentityChecker
	Login(ctx context.Context, creds client.Credentials) (*client.AuthResult, error)
	Register(ctx context.Context, reg client.Registration) (*client.AuthResult, error)
}

// Navigator moves the user to the unauthenticated entry point.
type Navigator interface {
	ToSignIn(notice string)
}

// Manager owns the single active session.
type Manager struct {
	api       AuthAPI
	cache     *store.Namespaced
	bus       *events.Bus
	validator *Validator
	logger    *slog.Logger
	interval  time.Duration
	nav       Navigator

	// opMu serialises session-mutating operations.
	opMu sync.Mutex

	mu      sync.RWMutex
	session Session
	token   string
	lastErr error
	notice  string

	initOnce    sync.Once
	unsubscribe func()
}

// NewManager creates a manager subscribed to expiry events on bus.
// Pass nil logger for default.
func NewManager(api AuthAPI, cache store.Cache, bus *events.Bus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		api:      api,
		cache:    store.Namespace(cache, CacheNamespace),
		bus:      bus,
		logger:   logger.With("component", "session"),
		interval: DefaultValidationInterval,
	}
	m.validator = NewValidator(api, m, bus, logger)
	m.unsubscribe = bus.On(m.handleExpiry, events.KindTokenExpired, events.KindUnauthorized)
	return m
}

// SetNavigator sets where the user is sent after logout or expiry.
func (m *Manager) SetNavigator(nav Navigator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nav = nav
}

// SetValidationInterval changes the interval used by later validator starts.
func (m *Manager) SetValidationInterval(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.interval = d
	}
}

// Validator returns the background token validator.
func (m *Manager) Validator() *Validator {
	return m.validator
}

// Init restores a persisted session. Only the first call has any effect.
func (m *Manager) Init(ctx context.Context) {
	m.initOnce.Do(func() {
		m.opMu.Lock()
		defer m.opMu.Unlock()
		m.restore(ctx)
	})
}

func (m *Manager) restore(ctx context.Context) {
	var token string
	tokenErr := store.GetJSON(ctx, m.cache, KeyToken, &token)
	var user client.User
	userErr := store.GetJSON(ctx, m.cache, KeyUser, &user)

	if tokenErr != nil || userErr != nil || token == "" {
		if errors.Is(tokenErr, store.ErrNotFound) && errors.Is(userErr, store.ErrNotFound) {
			m.logger.Debug("no persisted session")
			return
		}
		m.logger.Warn("discarding incomplete or corrupt persisted session",
			"token_error", tokenErr,
			"user_error", userErr)
		m.purgeCache(ctx)
		return
	}

	if claims, err := auth.InspectToken(token); err == nil && claims.Expired(time.Now()) {
		m.logger.Info("persisted credential already expired", "token", auth.Fingerprint(token))
		m.purgeCache(ctx)
		return
	}

	m.mu.Lock()
	m.session = fromUser(user)
	m.token = token
	interval := m.interval
	m.mu.Unlock()

	m.validator.Start(interval)
	m.logger.Info("session restored", "user_id", user.ID, "token", auth.Fingerprint(token))
}

// Login authenticates with the backend. On failure any prior session is
// left untouched and LastError explains why. On success a prior session is
// ended first, with a logout event but no navigation.
func (m *Manager) Login(ctx context.Context, email, password string) bool {
	m.opMu.Lock()
	res, err := m.api.Login(ctx, client.Credentials{Email: email, Password: password})
	if err != nil {
		m.opMu.Unlock()
		m.fail("login", err)
		return false
	}
	replaced := m.replace()
	snapshot := m.establish(ctx, res)
	m.opMu.Unlock()

	m.announce(replaced, snapshot)
	return true
}

// Register validates req locally, then creates the account. If the backend
// issues no credential the session stays unauthenticated and Notice asks the
// user to sign in.
func (m *Manager) Register(ctx context.Context, req RegisterRequest) bool {
	if err := req.Validate(); err != nil {
		m.setError(err)
		return false
	}

	m.opMu.Lock()
	res, err := m.api.Register(ctx, req.wire())
	if err != nil {
		m.opMu.Unlock()
		m.fail("register", err)
		return false
	}
	if res.AccessToken == "" {
		m.opMu.Unlock()
		m.mu.Lock()
		m.lastErr = nil
		m.notice = RegisteredNotice
		m.mu.Unlock()
		m.logger.Info("registered without credential", "email", res.User.Email)
		return true
	}
	replaced := m.replace()
	snapshot := m.establish(ctx, res)
	m.opMu.Unlock()

	m.announce(replaced, snapshot)
	return true
}

// replace ends the active session, if any, ahead of a new one. Caller holds opMu.
func (m *Manager) replace() bool {
	prev := m.Session()
	if !prev.IsAuthenticated {
		return false
	}
	m.teardown()
	m.logger.Info("ending session for new login", "user_id", prev.UserID)
	return true
}

func (m *Manager) announce(replaced bool, snapshot Session) {
	if replaced {
		m.bus.Emit(events.KindLogout, ReasonReplaced)
	}
	m.bus.Emit(events.KindLogin, snapshot)
}

// establish installs a new session from an auth result. Caller holds opMu.
func (m *Manager) establish(ctx context.Context, res *client.AuthResult) Session {
	if err := store.SetJSON(ctx, m.cache, KeyToken, res.AccessToken); err != nil {
		m.logger.Warn("failed to persist credential", "error", err)
	}
	if err := store.SetJSON(ctx, m.cache, KeyUser, res.User); err != nil {
		m.logger.Warn("failed to persist identity", "error", err)
	}

	sess := fromUser(res.User)
	m.mu.Lock()
	m.session = sess
	m.token = res.AccessToken
	m.lastErr = nil
	m.notice = ""
	interval := m.interval
	m.mu.Unlock()

	m.validator.Start(interval)
	m.logger.Info("session established", "user_id", sess.UserID, "token", auth.Fingerprint(res.AccessToken))
	return sess.clone()
}

// Logout ends the session silently.
func (m *Manager) Logout() {
	m.opMu.Lock()
	m.teardown()
	m.opMu.Unlock()

	m.logger.Info("logged out")
	m.bus.Emit(events.KindLogout, nil)
	m.navigate("")
}

// handleExpiry runs the expiry protocol for token_expired and unauthorized.
// A token_expired carrying a credential other than the current one is stale.
func (m *Manager) handleExpiry(ev events.Event) error {
	m.opMu.Lock()
	current := m.Token()
	if rejected, ok := ev.Payload.(string); ok && rejected != "" && rejected != current {
		m.opMu.Unlock()
		m.logger.Debug("ignoring expiry for a replaced credential", "token", auth.Fingerprint(rejected))
		return nil
	}
	wasActive := current != ""
	m.teardown()
	if wasActive {
		m.mu.Lock()
		m.lastErr = ErrSessionExpired
		m.notice = SessionExpiredNotice
		m.mu.Unlock()
	}
	m.opMu.Unlock()

	if !wasActive {
		return nil
	}
	m.logger.Warn("session expired", "trigger", ev.Kind)
	m.bus.Emit(events.KindLogout, ev.Kind)
	m.navigate(SessionExpiredNotice)
	return nil
}

// teardown stops validation and clears the session from memory and cache.
// Caller holds opMu.
func (m *Manager) teardown() {
	m.validator.Stop()

	m.mu.Lock()
	m.session = Session{}
	m.token = ""
	m.mu.Unlock()

	m.purgeCache(context.Background())
}

func (m *Manager) purgeCache(ctx context.Context) {
	if err := m.cache.Delete(ctx, KeyToken, KeyUser); err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}
}

func (m *Manager) navigate(notice string) {
	m.mu.RLock()
	nav := m.nav
	m.mu.RUnlock()
	if nav != nil {
		nav.ToSignIn(notice)
	}
}

func (m *Manager) fail(op string, err error) {
	m.logger.Warn(op+" failed", "error", err)
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		err = fmt.Errorf("%s failed: %w", op, err)
	}
	m.setError(err)
}

func (m *Manager) setError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = err
}

// ClearError clears the displayed error and notice.
func (m *Manager) ClearError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErr = nil
	m.notice = ""
}

// LastError returns the error from the most recent failed operation.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Notice returns the message to show at the sign-in entry point, if any.
func (m *Manager) Notice() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notice
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.clone()
}

// IsAuthenticated reports whether a session is active.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.IsAuthenticated
}

// Token returns the current bearer credential, or "" when signed out.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Close stops validation and unsubscribes from the bus.
func (m *Manager) Close() {
	m.validator.Stop()
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}
