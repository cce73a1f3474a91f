// Package session tracks the authenticated session, persists it across restarts
// and ends it when it expires or the backend rejects it.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"storefront/internal/domain"
	"storefront/internal/kvstore"
	"storefront/internal/notify"
	"storefront/internal/state"

	"go.uber.org/zap"
)

// Persisted keys
const (
	KeyToken      = "authToken"
	KeyRole       = "userRole"
	KeyExpiration = "tokenExpiration"
)

// Login routes the user is sent to when a session ends
const (
	LoginRoute      = "/login"
	AdminLoginRoute = "/admin/login"
)

// DefaultCheckInterval is how often Watch checks for expiry
const DefaultCheckInterval = 60 * time.Second

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInsufficientRole = errors.New("insufficient role")
	ErrInvalidSession   = errors.New("invalid session parameters")
)

// Navigator performs client-side redirects
type Navigator interface {
	Redirect(route string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(route string)

func (f NavigatorFunc) Redirect(route string) { f(route) }

// LoginRouteFor returns the login route appropriate to role
func LoginRouteFor(role domain.Role) string {
	if role == domain.RoleAdmin {
		return AdminLoginRoute
	}
	return LoginRoute
}

// Store is the process-wide session holder
type Store struct {
	mu       sync.RWMutex
	current  *domain.Session
	kv       kvstore.Store
	app      *state.Store
	nav      Navigator
	notifier notify.Notifier
	now      func() time.Time
	logger   *zap.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a logged-out session store
func NewStore(kv kvstore.Store, app *state.Store, nav Navigator, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *Store {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if nav == nil {
		nav = NavigatorFunc(func(string) {})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		kv:       kv,
		app:      app,
		nav:      nav,
		notifier: notifier,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the active session
func (s *Store) Current() (domain.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return domain.Session{}, false
	}
	return *s.current, true
}

// LoggedIn reports whether a session is active
func (s *Store) LoggedIn() bool {
	_, ok := s.Current()
	return ok
}

// Token returns the bearer token of the active session
func (s *Store) Token() (string, bool) {
	sess, ok := s.Current()
	if !ok {
		return "", false
	}
	return sess.Token, true
}

// Login starts a session that expires expiresIn from now and persists it
func (s *Store) Login(ctx context.Context, token string, role domain.Role, expiresIn time.Duration) error {
	if token == "" || !role.Valid() || expiresIn <= 0 {
		return ErrInvalidSession
	}

	sess := domain.Session{
		Token:     token,
		Role:      role,
		ExpiresAt: s.now().Add(expiresIn),
	}

	if err := s.persist(ctx, sess); err != nil {
		return err
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	if s.app != nil {
		s.app.Dispatch(state.SessionStarted{Session: sess})
	}

	s.logger.Info("Session started",
		zap.String("role", string(role)),
		zap.Time("expires_at", sess.ExpiresAt),
	)
	return nil
}

func (s *Store) persist(ctx context.Context, sess domain.Session) error {
	values := [][2]string{
		{KeyToken, sess.Token},
		{KeyRole, string(sess.Role)},
		{KeyExpiration, strconv.FormatInt(sess.ExpiresAt.UnixMilli(), 10)},
	}
	for _, kv := range values {
		if err := s.kv.Set(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}
	return nil
}

// Logout ends the session, clears the persisted triple and redirects to login
func (s *Store) Logout(ctx context.Context) error {
	return s.end(ctx, "logout")
}

func (s *Store) end(ctx context.Context, reason string) error {
	role, ok := s.take(nil)
	if !ok {
		role = domain.RoleUser
	}
	return s.finish(ctx, reason, role)
}

// take clears the active session if match accepts it. Only one caller can
// take a given session.
func (s *Store) take(match func(domain.Session) bool) (domain.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil || (match != nil && !match(*s.current)) {
		return "", false
	}
	role := s.current.Role
	s.current = nil
	return role, true
}

func (s *Store) finish(ctx context.Context, reason string, role domain.Role) error {
	err := s.kv.Delete(ctx, KeyToken, KeyRole, KeyExpiration)
	if err != nil {
		s.logger.Error("Failed to clear persisted session", zap.Error(err))
		err = fmt.Errorf("failed to clear session: %w", err)
	}

	if s.app != nil {
		s.app.Dispatch(state.SessionEnded{Reason: reason})
	}

	s.logger.Info("Session ended", zap.String("reason", reason))
	s.nav.Redirect(LoginRouteFor(role))
	return err
}

// CheckExpiry ends the session if it has expired and reports whether it did
func (s *Store) CheckExpiry(ctx context.Context) bool {
	now := s.now()
	role, ok := s.take(func(sess domain.Session) bool { return sess.Expired(now) })
	if !ok {
		return false
	}

	s.notifier.Notify(notify.LevelWarning, "Session expired, please log in again")
	_ = s.finish(ctx, "expired", role)
	return true
}

// HandleAuthFailure ends the session after the backend rejected its credentials
func (s *Store) HandleAuthFailure(ctx context.Context, cause error) {
	s.logger.Warn("Backend rejected session", zap.Error(cause))
	role, ok := s.take(nil)
	if !ok {
		s.nav.Redirect(LoginRoute)
		return
	}
	s.notifier.Notify(notify.LevelWarning, "Your session has ended, please log in again")
	_ = s.finish(ctx, "unauthorized", role)
}

// Require returns the active session, or redirects to login when there is none
func (s *Store) Require(ctx context.Context) (domain.Session, error) {
	if s.CheckExpiry(ctx) {
		return domain.Session{}, ErrNotAuthenticated
	}

	sess, ok := s.Current()
	if !ok {
		s.nav.Redirect(LoginRoute)
		return domain.Session{}, ErrNotAuthenticated
	}
	return sess, nil
}

// RequireRole is Require plus a role check
func (s *Store) RequireRole(ctx context.Context, role domain.Role) (domain.Session, error) {
	sess, err := s.Require(ctx)
	if err != nil {
		return sess, err
	}
	if sess.Role != role {
		return sess, fmt.Errorf("%w: need %s", ErrInsufficientRole, role)
	}
	return sess, nil
}

// Restore reloads a persisted session on start. Expired or malformed state is cleared.
func (s *Store) Restore(ctx context.Context) (bool, error) {
	token, err := s.kv.Get(ctx, KeyToken)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session: %w", err)
	}

	role, roleErr := s.kv.Get(ctx, KeyRole)
	expRaw, expErr := s.kv.Get(ctx, KeyExpiration)
	expMillis, parseErr := strconv.ParseInt(expRaw, 10, 64)

	if roleErr != nil || expErr != nil || parseErr != nil || !domain.Role(role).Valid() || token == "" {
		s.logger.Warn("Discarding malformed persisted session")
		return false, s.clear(ctx)
	}

	sess := domain.Session{
		Token:     token,
		Role:      domain.Role(role),
		ExpiresAt: time.UnixMilli(expMillis),
	}
	if sess.Expired(s.now()) {
		s.logger.Info("Persisted session already expired")
		return false, s.clear(ctx)
	}

	s.mu.Lock()
	s.current = &sess
	s.mu.Unlock()

	if s.app != nil {
		s.app.Dispatch(state.SessionStarted{Session: sess})
	}
	return true, nil
}

func (s *Store) clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, KeyToken, KeyRole, KeyExpiration); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Watch checks for expiry every interval until ctx is canceled
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CheckExpiry(ctx)
		}
	}
}
