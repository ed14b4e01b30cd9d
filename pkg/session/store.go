// Package session implements Redis-backed session storage.
//
// Sessions are keyed by the SHA-256 hash of the bearer token, so a Redis
// compromise does not leak usable credentials. Each session carries an
// optional active organization pointer; the pointer is session-scoped and
// is cleared for every session of a user when that user's membership in
// the pointed-at organization is removed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/plumbline/plumbline/pkg/auth"
	"github.com/plumbline/plumbline/pkg/config"
)

// ErrNotFound is returned when no live session matches a token
var ErrNotFound = errors.New("session not found")

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "user_sessions:"
)

// NewRedisClient creates a Redis client from configuration and verifies
// connectivity
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options

	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.URL}
	}

	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DB >= 0 {
		opts.DB = cfg.DB
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// Store manages sessions in Redis
type Store struct {
	client      *redis.Client
	tokens      *auth.TokenGenerator
	ttl         time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// NewStore creates a session store
func NewStore(client *redis.Client, cfg config.SessionConfig) *Store {
	return &Store{
		client:      client,
		tokens:      auth.NewTokenGenerator(),
		ttl:         cfg.TTL,
		idleTimeout: cfg.IdleTimeout,
		now:         time.Now,
	}
}

func sessionKey(tokenHash string) string {
	return sessionKeyPrefix + tokenHash
}

func userIndexKey(userID int64) string {
	return fmt.Sprintf("%s%d", userIndexPrefix, userID)
}

// Create establishes a new session for the user and returns the bearer
// token. The token itself is never persisted.
func (s *Store) Create(ctx context.Context, userID int64) (*auth.Session, error) {
	token, tokenHash, err := s.tokens.GenerateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	now := s.now().UTC()
	sess := &auth.Session{
		Token:      token,
		UserID:     userID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
		LastSeenAt: now,
	}

	if err := s.write(ctx, tokenHash, sess); err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userIndexKey(userID), tokenHash)
	pipe.Expire(ctx, userIndexKey(userID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to index session: %w", err)
	}

	return sess, nil
}

// Get resolves a bearer token to its session. Returns ErrNotFound for
// unknown, expired, or idle-timed-out tokens. A successful lookup slides
// the idle window forward.
func (s *Store) Get(ctx context.Context, token string) (*auth.Session, error) {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return nil, ErrNotFound
	}

	tokenHash := s.tokens.HashToken(token)
	sess, err := s.read(ctx, tokenHash)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if sess.Expired(now) || now.Sub(sess.LastSeenAt) > s.idleTimeout {
		s.remove(ctx, tokenHash, sess.UserID)
		return nil, ErrNotFound
	}

	sess.LastSeenAt = now
	if err := s.write(ctx, tokenHash, sess); err != nil {
		return nil, err
	}

	sess.Token = token
	return sess, nil
}

// Delete removes a session. Unknown tokens are not an error.
func (s *Store) Delete(ctx context.Context, token string) error {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return nil
	}

	tokenHash := s.tokens.HashToken(token)
	sess, err := s.read(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	return s.remove(ctx, tokenHash, sess.UserID)
}

// DeleteAll removes every session belonging to the user
func (s *Store) DeleteAll(ctx context.Context, userID int64) error {
	hashes, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	pipe := s.client.Pipeline()
	for _, h := range hashes {
		pipe.Del(ctx, sessionKey(h))
	}
	pipe.Del(ctx, userIndexKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	return nil
}

// SetActiveOrg points the session at an organization. Setting the same
// organization again is a no-op success.
func (s *Store) SetActiveOrg(ctx context.Context, token string, orgID int64) error {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return ErrNotFound
	}

	tokenHash := s.tokens.HashToken(token)
	sess, err := s.read(ctx, tokenHash)
	if err != nil {
		return err
	}

	if sess.ActiveOrgID != nil && *sess.ActiveOrgID == orgID {
		return nil
	}

	sess.ActiveOrgID = &orgID
	return s.write(ctx, tokenHash, sess)
}

// ClearActiveOrg drops the session's organization pointer
func (s *Store) ClearActiveOrg(ctx context.Context, token string) error {
	if err := s.tokens.ValidateTokenFormat(token); err != nil {
		return ErrNotFound
	}

	tokenHash := s.tokens.HashToken(token)
	sess, err := s.read(ctx, tokenHash)
	if err != nil {
		return err
	}

	if sess.ActiveOrgID == nil {
		return nil
	}

	sess.ActiveOrgID = nil
	return s.write(ctx, tokenHash, sess)
}

// ClearActiveOrgForUser clears the active organization pointer in every
// session of the user that points at orgID. Called when the user's
// membership in that organization is removed, so no session keeps acting
// in an organization the user no longer belongs to.
func (s *Store) ClearActiveOrgForUser(ctx context.Context, userID, orgID int64) error {
	hashes, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list user sessions: %w", err)
	}

	for _, h := range hashes {
		sess, err := s.read(ctx, h)
		if errors.Is(err, ErrNotFound) {
			continue
		} else if err != nil {
			return err
		}

		if sess.ActiveOrgID == nil || *sess.ActiveOrgID != orgID {
			continue
		}

		sess.ActiveOrgID = nil
		if err := s.write(ctx, h, sess); err != nil {
			return err
		}
	}

	return nil
}

// CountActive returns the number of live sessions for metrics reporting
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var count int64
	var cursor uint64

	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan sessions: %w", err)
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return count, nil
}

func (s *Store) read(ctx context.Context, tokenHash string) (*auth.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var sess auth.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		// Corrupt entry, drop it
		s.client.Del(ctx, sessionKey(tokenHash))
		return nil, ErrNotFound
	}

	return &sess, nil
}

func (s *Store) write(ctx context.Context, tokenHash string, sess *auth.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	remaining := sess.ExpiresAt.Sub(s.now().UTC())
	if remaining <= 0 {
		remaining = time.Second
	}

	if err := s.client.Set(ctx, sessionKey(tokenHash), data, remaining).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (s *Store) remove(ctx context.Context, tokenHash string, userID int64) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionKey(tokenHash))
	pipe.SRem(ctx, userIndexKey(userID), tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
