package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nssportal/internal/idle"
	"nssportal/internal/metrics"
	"nssportal/internal/portal"
)

type fakeTimer struct {
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) idle.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{f: f}
	c.timers = append(c.timers, t)
	return t
}

// expireLast fires the most recent timer as if the idle window elapsed.
func (c *fakeClock) expireLast() {
	c.mu.Lock()
	t := c.timers[len(c.timers)-1]
	c.mu.Unlock()
	t.f()
}

var testOfficer = Officer{ID: "OFFICER001", Password: "NSS@OFFICER2025", Name: "Program Officer"}

type harness struct {
	store    *portal.MemStore
	sessions *MemorySessionStore
	clock    *fakeClock
	metrics  *metrics.Metrics
	mgr      *Manager
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store := portal.NewMemStore()
	sessions := NewMemorySessionStore()
	clock := &fakeClock{}
	m := metrics.New(prometheus.NewRegistry())
	mgr := NewManager(ManagerConfig{
		Officer:     testOfficer,
		Issuer:      "nss-portal",
		SigningKey:  "test-key",
		IdleTimeout: 30 * time.Minute,
	}, store, sessions, m, idle.WithAfterFunc(clock.AfterFunc))
	t.Cleanup(mgr.Close)

	ctx := context.Background()
	_, err := store.InsertStudent(ctx, portal.NewStudent{ID: "101", Name: "Anu", Department: "CSE", Password: "stud101"})
	require.NoError(t, err)
	store.PutCoordinator(portal.Coordinator{ID: "COORD1001", Name: "Dr. Nair", Department: "CSE", Password: "coord123", IsActive: false})
	store.PutCoordinator(portal.Coordinator{ID: "COORD1002", Name: "Dr. Iyer", Department: "ECE", Password: "coord456", IsActive: true})
	return harness{store: store, sessions: sessions, clock: clock, metrics: m, mgr: mgr}
}

func TestLoginRoles(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name    string
		creds   Credentials
		role    Role
		subject string
	}{
		{"officer", Credentials{"OFFICER001", "NSS@OFFICER2025"}, RoleOfficer, "OFFICER001"},
		{"active coordinator", Credentials{"COORD1002", "coord456"}, RoleCoordinator, "COORD1002"},
		{"student", Credentials{"101", "stud101"}, RoleStudent, "101"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, token, err := h.mgr.Login(context.Background(), tt.creds)
			require.NoError(t, err)
			assert.Equal(t, tt.role, s.Role)
			assert.Equal(t, tt.subject, s.Subject)
			assert.NotEmpty(t, token)
			assert.True(t, h.mgr.Monitor().Armed(s.ID))
		})
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(h.metrics.ActiveSessions))
}

func TestLoginRejectsWithGenericError(t *testing.T) {
	h := newHarness(t)
	for _, creds := range []Credentials{
		{"COORD1001", "coord123"}, // inactive
		{"101", "wrong"},
		{"999", "stud101"},
		{"OFFICER001", "nope"},
		{"", ""},
	} {
		_, _, err := h.mgr.Login(context.Background(), creds)
		assert.ErrorIs(t, err, ErrInvalidCredentials, creds.ID)
	}
	assert.Equal(t, 5.0, testutil.ToFloat64(h.metrics.Logins.WithLabelValues("none", metrics.OutcomeFailure)))
	assert.Equal(t, 0, h.mgr.Monitor().Len())
}

func TestReactivatedCoordinatorCanLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, _, err := h.mgr.Login(ctx, Credentials{"COORD1001", "coord123"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	active := true
	require.NoError(t, h.store.UpdateCoordinator(ctx, "COORD1001", portal.CoordinatorPatch{IsActive: &active}))

	s, _, err := h.mgr.Login(ctx, Credentials{"COORD1001", "coord123"})
	require.NoError(t, err)
	assert.True(t, s.IsCoordinator())
	c, ok := s.CoordinatorRecord()
	require.True(t, ok)
	assert.Equal(t, "Dr. Nair", c.Name)
}

func TestLoginPrecedence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// A coordinator record that mirrors the officer pair still logs in as officer.
	h.store.PutCoordinator(portal.Coordinator{ID: "OFFICER001", Name: "Shadow", Password: "NSS@OFFICER2025", IsActive: true})
	s, _, err := h.mgr.Login(ctx, Credentials{"OFFICER001", "NSS@OFFICER2025"})
	require.NoError(t, err)
	assert.True(t, s.IsOfficer())

	// Coordinator beats student when both id and password match.
	h.store.PutCoordinator(portal.Coordinator{ID: "101", Name: "Coord 101", Password: "stud101", IsActive: true})
	s, _, err = h.mgr.Login(ctx, Credentials{"101", "stud101"})
	require.NoError(t, err)
	assert.True(t, s.IsCoordinator())

	// Only the tier whose password matches wins.
	h.store.PutCoordinator(portal.Coordinator{ID: "101", Name: "Coord 101", Password: "other", IsActive: true})
	s, _, err = h.mgr.Login(ctx, Credentials{"101", "stud101"})
	require.NoError(t, err)
	assert.True(t, s.IsStudent())
	id, ok := s.StudentID()
	require.True(t, ok)
	assert.Equal(t, "101", id)
}

type brokenDirectory struct{}

func (brokenDirectory) FindActiveCoordinator(ctx context.Context, id, pw string) (portal.Coordinator, error) {
	return portal.Coordinator{}, errors.New("connection refused")
}

func (brokenDirectory) FindStudent(ctx context.Context, id, pw string) (portal.Student, error) {
	return portal.Student{}, portal.ErrNotFound
}

func TestLoginStoreFailure(t *testing.T) {
	mgr := NewManager(ManagerConfig{Officer: testOfficer, SigningKey: "k"}, brokenDirectory{}, NewMemorySessionStore(), nil)
	defer mgr.Close()

	_, _, err := mgr.Login(context.Background(), Credentials{"COORD1001", "x"})
	assert.True(t, portal.IsStoreError(err))
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	// The officer never touches the store.
	s, _, err := mgr.Login(context.Background(), Credentials{"OFFICER001", "NSS@OFFICER2025"})
	require.NoError(t, err)
	assert.True(t, s.IsOfficer())
}

func TestAuthenticateAndLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, token, err := h.mgr.Login(ctx, Credentials{"101", "stud101"})
	require.NoError(t, err)

	got, err := h.mgr.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	require.NoError(t, h.mgr.Logout(ctx, s.ID))
	assert.False(t, h.mgr.Monitor().Armed(s.ID))
	_, err = h.mgr.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Logout is unconditional.
	assert.NoError(t, h.mgr.Logout(ctx, s.ID))
	assert.NoError(t, h.mgr.Logout(ctx, "unknown"))

	_, err = h.mgr.Authenticate(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestIdleExpiry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, token, err := h.mgr.Login(ctx, Credentials{"OFFICER001", "NSS@OFFICER2025"})
	require.NoError(t, err)

	h.clock.expireLast()

	assert.False(t, h.mgr.Monitor().Armed(s.ID))
	_, err = h.mgr.Authenticate(ctx, token)
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, "You have been automatically logged out due to inactivity (30 minutes).", h.mgr.Notice())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.IdleLogouts))

	// The notice is shown once.
	_, err = h.mgr.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestTouchRestartsWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s, token, err := h.mgr.Login(ctx, Credentials{"101", "stud101"})
	require.NoError(t, err)
	first := h.clock.timers[len(h.clock.timers)-1]

	require.NoError(t, h.mgr.Touch(ctx, s.ID))
	assert.True(t, first.stopped)

	// The superseded timer firing late has no effect.
	first.f()
	_, err = h.mgr.Authenticate(ctx, token)
	require.NoError(t, err)

	h.clock.expireLast()
	_, err = h.mgr.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestTouchAdoptsForeignSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	s := Session{ID: "from-other-process", Role: RoleStudent, Subject: "101"}
	require.NoError(t, h.sessions.Save(ctx, s, time.Hour))

	require.NoError(t, h.mgr.Touch(ctx, s.ID))
	assert.True(t, h.mgr.Monitor().Armed(s.ID))

	assert.ErrorIs(t, h.mgr.Touch(ctx, "missing"), ErrUnauthenticated)
}

// racingSessions fires the idle timer from inside Touch, either before or
// after the write reaches the store.
type racingSessions struct {
	*MemorySessionStore
	expire     func()
	afterWrite bool
}

func (r *racingSessions) Touch(ctx context.Context, id string, at time.Time, ttl time.Duration) error {
	if r.expire == nil {
		return r.MemorySessionStore.Touch(ctx, id, at, ttl)
	}
	expire := r.expire
	r.expire = nil
	if !r.afterWrite {
		expire()
		return r.MemorySessionStore.Touch(ctx, id, at, ttl)
	}
	err := r.MemorySessionStore.Touch(ctx, id, at, ttl)
	expire()
	return err
}

func TestTouchRacingIdleLogout(t *testing.T) {
	for _, afterWrite := range []bool{false, true} {
		name := "expires before write"
		if afterWrite {
			name = "expires after write"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			sessions := &racingSessions{MemorySessionStore: NewMemorySessionStore(), afterWrite: afterWrite}
			mgr := NewManager(ManagerConfig{
				Officer:     testOfficer,
				Issuer:      "nss-portal",
				SigningKey:  "test-key",
				IdleTimeout: 30 * time.Minute,
			}, h.store, sessions, h.metrics, idle.WithAfterFunc(h.clock.AfterFunc))
			t.Cleanup(mgr.Close)

			s, token, err := mgr.Login(ctx, Credentials{"101", "stud101"})
			require.NoError(t, err)
			sessions.expire = h.clock.expireLast

			err = mgr.Touch(ctx, s.ID)
			if afterWrite {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnauthenticated)
			}

			assert.False(t, mgr.Monitor().Armed(s.ID))
			_, err = sessions.Get(ctx, s.ID)
			assert.ErrorIs(t, err, ErrNoSession)
			assert.Equal(t, 0.0, testutil.ToFloat64(h.metrics.ActiveSessions))
			_, err = mgr.Authenticate(ctx, token)
			assert.ErrorIs(t, err, ErrSessionExpired)
		})
	}
}
