package auth

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"nssportal/internal/idle"
	"nssportal/internal/metrics"
	"nssportal/internal/portal"
)

var (
	// ErrInvalidCredentials is the single failure reported for any login
	// that matches no officer, active coordinator or student.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated means the request carries no usable session.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrSessionExpired means the session was ended by the idle monitor.
	ErrSessionExpired = errors.New("session expired")
	// ErrForbidden means the session's role may not perform the operation.
	ErrForbidden = errors.New("forbidden")
)

// Credentials is a login attempt.
type Credentials struct {
	ID       string `json:"id" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Officer is the static officer credential pair.
type Officer struct {
	ID       string
	Password string
	Name     string
}

// Directory looks up coordinator and student credentials. Both methods
// return portal.ErrNotFound when nothing matches.
type Directory interface {
	FindActiveCoordinator(ctx context.Context, id, password string) (portal.Coordinator, error)
	FindStudent(ctx context.Context, id, password string) (portal.Student, error)
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Officer     Officer
	Issuer      string
	SigningKey  string
	TokenTTL    time.Duration
	IdleTimeout time.Duration
	NoticeTTL   time.Duration
}

// Manager logs users in and out and ends sessions that go idle.
type Manager struct {
	cfg     ManagerConfig
	dir     Directory
	store   SessionStore
	monitor *idle.Monitor
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewManager creates a manager. opts configure its idle monitor.
func NewManager(cfg ManagerConfig, dir Directory, store SessionStore, m *metrics.Metrics, opts ...idle.Option) *Manager {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = idle.DefaultWindow
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 12 * time.Hour
	}
	if cfg.NoticeTTL <= 0 {
		cfg.NoticeTTL = 24 * time.Hour
	}
	mgr := &Manager{cfg: cfg, dir: dir, store: store, metrics: m, now: time.Now}
	mgr.monitor = idle.New(cfg.IdleTimeout, mgr.ForceLogout, opts...)
	return mgr
}

// Notice is the message shown after an idle logout.
func (m *Manager) Notice() string { return idle.Notice(m.cfg.IdleTimeout) }

// Monitor exposes the idle monitor.
func (m *Manager) Monitor() *idle.Monitor { return m.monitor }

// Login checks credentials in priority order: the officer pair, then an
// active coordinator, then a student. The first match wins.
func (m *Manager) Login(ctx context.Context, creds Credentials) (Session, string, error) {
	if err := portal.Validate(creds); err != nil {
		m.metrics.Login("", metrics.OutcomeFailure)
		return Session{}, "", ErrInvalidCredentials
	}
	s, err := m.resolve(ctx, creds)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			m.metrics.Login("", metrics.OutcomeFailure)
		} else {
			m.metrics.Login("", metrics.OutcomeError)
		}
		return Session{}, "", err
	}

	now := m.now().UTC()
	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.LastActivity = now
	if err := m.store.Save(ctx, s, m.cfg.IdleTimeout); err != nil {
		return Session{}, "", &portal.StoreError{Collection: "sessions", Op: "insert", Err: err}
	}
	token, _, err := Issue(s.ID, s.Subject, string(s.Role), m.cfg.Issuer, m.cfg.SigningKey, m.cfg.TokenTTL)
	if err != nil {
		_ = m.store.Delete(ctx, s.ID)
		return Session{}, "", err
	}
	m.monitor.Arm(s.ID)
	m.metrics.SessionOpened()
	m.metrics.Login(string(s.Role), metrics.OutcomeSuccess)
	return s, token, nil
}

func (m *Manager) resolve(ctx context.Context, creds Credentials) (Session, error) {
	o := m.cfg.Officer
	if o.ID != "" && creds.ID == o.ID && creds.Password == o.Password {
		return Session{Role: RoleOfficer, Subject: o.ID, Name: o.Name}, nil
	}

	c, err := m.dir.FindActiveCoordinator(ctx, creds.ID, creds.Password)
	switch {
	case err == nil:
		return Session{Role: RoleCoordinator, Subject: c.ID, Name: c.Name, Coordinator: &c}, nil
	case !errors.Is(err, portal.ErrNotFound):
		return Session{}, &portal.StoreError{Collection: "coordinators", Op: "select", Err: err}
	}

	st, err := m.dir.FindStudent(ctx, creds.ID, creds.Password)
	switch {
	case err == nil:
		return Session{Role: RoleStudent, Subject: st.ID, Name: st.Name, Student: &st}, nil
	case !errors.Is(err, portal.ErrNotFound):
		return Session{}, &portal.StoreError{Collection: "students", Op: "select", Err: err}
	}
	return Session{}, ErrInvalidCredentials
}

// Logout ends the session. Unknown ids are ignored.
func (m *Manager) Logout(ctx context.Context, sessionID string) error {
	if m.monitor.Disarm(sessionID) {
		m.metrics.SessionClosed()
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		return &portal.StoreError{Collection: "sessions", Op: "delete", Err: err}
	}
	return nil
}

// Authenticate resolves a bearer token to its live session.
func (m *Manager) Authenticate(ctx context.Context, token string) (Session, error) {
	claims, err := Parse(token, m.cfg.SigningKey, m.cfg.Issuer)
	if err != nil {
		return Session{}, ErrUnauthenticated
	}
	s, err := m.store.Get(ctx, claims.SessionID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNoSession) {
		return Session{}, &portal.StoreError{Collection: "sessions", Op: "select", Err: err}
	}
	if _, expired, nerr := m.store.TakeNotice(ctx, claims.SessionID); nerr == nil && expired {
		return Session{}, ErrSessionExpired
	}
	return Session{}, ErrUnauthenticated
}

// Touch records user activity and restarts the idle window. A session
// created by another process is adopted by this process's monitor.
//
// The timer is restarted before the store is written and ForceLogout deletes
// before it disarms, so an idle logout racing Touch never leaves a timer for
// a session that no longer exists.
func (m *Manager) Touch(ctx context.Context, sessionID string) error {
	adopted := !m.monitor.Activity(sessionID)
	if adopted {
		m.monitor.Arm(sessionID)
	}
	err := m.store.Touch(ctx, sessionID, m.now().UTC(), m.cfg.IdleTimeout)
	switch {
	case err == nil:
		if adopted {
			m.metrics.SessionOpened()
		}
		return nil
	case errors.Is(err, ErrNoSession):
		if m.monitor.Disarm(sessionID) && !adopted {
			m.metrics.SessionClosed()
		}
		return ErrUnauthenticated
	default:
		if adopted {
			m.monitor.Disarm(sessionID)
		}
		return &portal.StoreError{Collection: "sessions", Op: "update", Err: err}
	}
}

// ForceLogout ends a session for inactivity and leaves a notice for its
// next request. The monitor calls it after removing the fired timer.
func (m *Manager) ForceLogout(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.Delete(ctx, sessionID); err != nil {
		log.Printf("idle logout %s: delete session: %v", sessionID, err)
	}
	// A Touch that raced the timer may have armed a new one.
	if m.monitor.Disarm(sessionID) {
		m.metrics.SessionClosed()
	}
	if err := m.store.MarkExpired(ctx, sessionID, m.Notice(), m.cfg.NoticeTTL); err != nil {
		log.Printf("idle logout %s: store notice: %v", sessionID, err)
	}
	m.metrics.IdleLogout()
	m.metrics.SessionClosed()
	log.Printf("session %s logged out after %s of inactivity", sessionID, m.cfg.IdleTimeout)
}

// Close stops every idle timer.
func (m *Manager) Close() { m.monitor.Close() }
