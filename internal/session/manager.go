package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/emandor/medai_service/internal/telemetry"
	"github.com/emandor/medai_service/internal/textutil"
)

// Store keeps live sessions; deleting one revokes its cookie.
type Store interface {
	Save(ctx context.Context, sid string, userID int64, ttl time.Duration) error
	Lookup(ctx context.Context, sid string) (int64, error)
	Delete(ctx context.Context, sid string) error
}

type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore { return &RedisStore{rdb: rdb} }

func (s *RedisStore) Save(ctx context.Context, sid string, userID int64, ttl time.Duration) error {
	return s.rdb.Set(ctx, "sess:"+sid, userID, ttl).Err()
}

func (s *RedisStore) Lookup(ctx context.Context, sid string) (int64, error) {
	val, err := s.rdb.Get(ctx, "sess:"+sid).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrRevoked
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	return s.rdb.Del(ctx, "sess:"+sid).Err()
}

type Manager struct {
	store  Store
	signer *Signer
	ttl    time.Duration
	audit  *sqlx.DB
}

// NewManager wires session storage. audit may be nil; when set, each login
// is recorded in user_sessions.
func NewManager(store Store, signer *Signer, ttl time.Duration, audit *sqlx.DB) *Manager {
	return &Manager{store: store, signer: signer, ttl: ttl, audit: audit}
}

func (m *Manager) TTL() time.Duration { return m.ttl }

// Start opens a session for userID and returns the cookie value.
func (m *Manager) Start(ctx context.Context, userID int64, ip, ua string) (string, error) {
	sid := RandomHex(16)
	if err := m.store.Save(ctx, sid, userID, m.ttl); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	if m.audit != nil {
		if _, err := m.audit.ExecContext(ctx, `INSERT INTO user_sessions (id, user_id, ip, user_agent, created_at)
			VALUES (?, ?, ?, ?, ?)`, sid, userID, ip, textutil.Truncate(ua, 512), time.Now().UTC()); err != nil {
			log := telemetry.L().With().Int64("user_id", userID).Str("session_id", sid).Logger()
			log.Error().Err(err).Msg("session_audit_failed")
		}
	}
	return m.signer.Sign(sid, userID)
}

// Lookup confirms the session is still live and belongs to the cookie's user.
func (m *Manager) Lookup(ctx context.Context, id Identity) (int64, error) {
	uid, err := m.store.Lookup(ctx, id.SessionID)
	if err != nil {
		return 0, err
	}
	if uid != id.UserID {
		return 0, ErrRevoked
	}
	return uid, nil
}

func (m *Manager) End(ctx context.Context, id Identity) error {
	if id.SessionID == "" {
		return nil
	}
	return m.store.Delete(ctx, id.SessionID)
}

func RandomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
