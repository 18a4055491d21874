package auth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/activesoft/go-backoffice/record"
)

// StatusKind is the manager's authentication state. The four kinds are
// mutually exclusive; Degraded means the session is valid but the profile
// row could not be loaded.
type StatusKind string

const (
	StatusUnauthenticated StatusKind = "unauthenticated"
	StatusAuthenticating  StatusKind = "authenticating"
	StatusAuthenticated   StatusKind = "authenticated"
	StatusDegraded        StatusKind = "degraded"
)

// State is an immutable snapshot of the manager. Fields other than Status
// are populated only for the kinds that carry them: User for Authenticated,
// Session for Authenticated and Degraded, ProfileErr for Degraded.
type State struct {
	Status     StatusKind
	User       *record.User
	Session    *Session
	ProfileErr error
}

// Manager owns the process's authentication state: one active session at a
// time, the signed-in user's profile, and activity logging around sign-in
// and sign-out. It reads profiles straight off the database handle rather
// than through a store so no write gate applies to it.
type Manager struct {
	provider Provider
	db       *bun.DB
	logger   *slog.Logger
	ip       *IPResolver

	// retryDelay spaces the second profile fetch attempt during
	// Initialize. Shortened in tests.
	retryDelay time.Duration

	mu        sync.RWMutex
	state     State
	listeners []func(State)
}

// NewManager builds a manager in the Unauthenticated state.
func NewManager(provider Provider, db *bun.DB, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider:   provider,
		db:         db,
		logger:     logger.With("component", "auth"),
		retryDelay: 2 * time.Second,
		state:      State{Status: StatusUnauthenticated},
	}
}

// UseIPResolver installs the public-IP fallback consulted when activity is
// logged without a caller-supplied address. Call before the first sign-in.
func (m *Manager) UseIPResolver(resolver *IPResolver) {
	m.ip = resolver
}

// clientIP returns ipAddress as given, falling back to the echo-service
// lookup when the caller could not determine an address itself.
func (m *Manager) clientIP(ctx context.Context, ipAddress string) string {
	if ipAddress != "" || m.ip == nil {
		return ipAddress
	}
	return m.ip.PublicIP(ctx)
}

// Initialize restores a session from a persisted token, typically at process
// start. An invalid or expired token leaves the manager unauthenticated
// without error; a profile load failure yields Degraded, not a sign-out.
func (m *Manager) Initialize(ctx context.Context, token string) error {
	if token == "" {
		m.setState(State{Status: StatusUnauthenticated})
		return nil
	}

	m.setState(State{Status: StatusAuthenticating})

	session, err := m.provider.SessionFromToken(ctx, token)
	if err != nil {
		m.logger.Info("stored session rejected", "reason", err)
		m.setState(State{Status: StatusUnauthenticated})
		return nil
	}

	m.adopt(ctx, session)
	return nil
}

// SignIn authenticates and loads the user's profile. ipAddress and userAgent
// are recorded in the activity log; an empty ipAddress falls back to the
// installed IP resolver.
func (m *Manager) SignIn(ctx context.Context, email, password, ipAddress, userAgent string) (State, error) {
	m.setState(State{Status: StatusAuthenticating})

	session, err := m.provider.SignIn(ctx, Credentials{Email: email, Password: password})
	if err != nil {
		m.setState(State{Status: StatusUnauthenticated})
		return m.State(), err
	}

	m.adopt(ctx, session)
	m.logActivity(session.UserID, "sign_in", m.clientIP(ctx, ipAddress), userAgent)
	return m.State(), nil
}

// SignOut clears the session unconditionally. The activity log entry and the
// provider call happen first so a failing backend cannot keep a user
// signed in.
func (m *Manager) SignOut(ctx context.Context, ipAddress, userAgent string) {
	m.mu.RLock()
	session := m.state.Session
	m.mu.RUnlock()

	if session != nil {
		m.logActivity(session.UserID, "sign_out", m.clientIP(ctx, ipAddress), userAgent)
		if err := m.provider.SignOut(ctx, session.Token); err != nil {
			m.logger.Warn("provider sign-out failed", "error", err)
		}
	}
	m.setState(State{Status: StatusUnauthenticated})
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsAuthenticated reports whether a live session exists. Degraded counts:
// the session is valid even though the profile is missing.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	if s.Session == nil || s.Session.Expired() {
		return false
	}
	return s.Status == StatusAuthenticated || s.Status == StatusDegraded
}

// HasRole reports whether the signed-in user carries the given role. Without
// a loaded profile (Degraded) no role check can pass.
func (m *Manager) HasRole(role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status == StatusAuthenticated &&
		m.state.User != nil && m.state.User.Role == role
}

// Actor implements the store's write gate: the acting user id when a live
// session exists.
func (m *Manager) Actor() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state.Session
	if s == nil || s.Expired() {
		return "", false
	}
	return s.UserID, true
}

// adopt installs a validated session and attempts to load the profile,
// retrying once after a short delay before settling for Degraded.
func (m *Manager) adopt(ctx context.Context, session *Session) {
	user, err := m.loadProfile(ctx, session.UserID)
	if err != nil {
		select {
		case <-time.After(m.retryDelay):
		case <-ctx.Done():
			m.setState(State{Status: StatusDegraded, Session: session, ProfileErr: err})
			return
		}
		user, err = m.loadProfile(ctx, session.UserID)
	}
	if err != nil {
		m.logger.Warn("profile load failed, session degraded", "user_id", session.UserID, "error", err)
		m.setState(State{Status: StatusDegraded, Session: session, ProfileErr: err})
		return
	}

	m.setState(State{Status: StatusAuthenticated, Session: session, User: user})
}

func (m *Manager) loadProfile(ctx context.Context, userID string) (*record.User, error) {
	user := new(record.User)
	err := m.db.NewSelect().Model(user).Where("id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.New("profile row missing")
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// OnStateChange registers a listener invoked after every state transition,
// outside the manager's lock. Typical consumers are route guards and the UI
// shell. Not safe to call concurrently with transitions.
func (m *Manager) OnStateChange(fn func(State)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	listeners := m.listeners
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

// logActivity appends a user_activity_logs row fire-and-forget.
func (m *Manager) logActivity(userID, action, ipAddress, userAgent string) {
	entry := &record.UserActivityLog{
		ID:        uuid.NewString(),
		UserID:    userID,
		Action:    action,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := m.db.NewInsert().Model(entry).Exec(ctx); err != nil {
			m.logger.Warn("activity log write failed", "action", action, "error", err)
		}
	}()
}
