package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession is returned by a SessionStore for an unknown or lapsed id.
var ErrNoSession = errors.New("session not found")

// SessionStore keeps server-side sessions. Entries lapse after their TTL,
// which backs up the in-process idle monitor.
type SessionStore interface {
	Save(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (Session, error)
	// Touch records activity and extends the TTL.
	Touch(ctx context.Context, id string, at time.Time, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	// MarkExpired leaves a notice for a session ended by inactivity.
	MarkExpired(ctx context.Context, id, notice string, ttl time.Duration) error
	// TakeNotice returns and clears the notice left by MarkExpired.
	TakeNotice(ctx context.Context, id string) (string, bool, error)
}

type memSession struct {
	s       Session
	expires time.Time
}

type memNotice struct {
	msg     string
	expires time.Time
}

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memSession
	notices  map[string]memNotice
	now      func() time.Time
}

// NewMemorySessionStore creates an empty store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memSession),
		notices:  make(map[string]memNotice),
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Save(ctx context.Context, s Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memSession{s: s, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) Get(ctx context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNoSession
	}
	if !m.now().Before(e.expires) {
		delete(m.sessions, id)
		return Session{}, ErrNoSession
	}
	return e.s, nil
}

func (m *MemorySessionStore) Touch(ctx context.Context, id string, at time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok || !m.now().Before(e.expires) {
		return ErrNoSession
	}
	e.s.LastActivity = at
	e.expires = m.now().Add(ttl)
	m.sessions[id] = e
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemorySessionStore) MarkExpired(ctx context.Context, id, notice string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notices[id] = memNotice{msg: notice, expires: m.now().Add(ttl)}
	return nil
}

func (m *MemorySessionStore) TakeNotice(ctx context.Context, id string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notices[id]
	if !ok {
		return "", false, nil
	}
	delete(m.notices, id)
	if !m.now().Before(n.expires) {
		return "", false, nil
	}
	return n.msg, true, nil
}

// RedisSessionStore keeps sessions as JSON under session:<id> so every API
// process sees the same sessions.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore creates a store using keys under prefix.
func NewRedisSessionStore(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = "session:"
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (r *RedisSessionStore) key(id string) string       { return r.prefix + id }
func (r *RedisSessionStore) noticeKey(id string) string { return r.prefix + "expired:" + id }

func (r *RedisSessionStore) Save(ctx context.Context, s Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return r.client.Set(ctx, r.key(s.ID), data, ttl).Err()
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNoSession
		}
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return s, nil
}

// Touch rewrites the session only while its key exists, so a session deleted
// after the read is not brought back.
func (r *RedisSessionStore) Touch(ctx context.Context, id string, at time.Time, ttl time.Duration) error {
	s, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	s.LastActivity = at
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	err = r.client.SetArgs(ctx, r.key(id), data, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return ErrNoSession
	}
	return err
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}

func (r *RedisSessionStore) MarkExpired(ctx context.Context, id, notice string, ttl time.Duration) error {
	return r.client.Set(ctx, r.noticeKey(id), notice, ttl).Err()
}

func (r *RedisSessionStore) TakeNotice(ctx context.Context, id string) (string, bool, error) {
	msg, err := r.client.GetDel(ctx, r.noticeKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return msg, true, nil
}
