package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/SoarinFerret/IdleWarden/internal/clock"
)

// CleanupInterval is the interval between expired revocation sweeps of MemoryStore.
const CleanupInterval = 5 * time.Minute

// Store records revoked token ids until they would have expired.
type Store interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore keeps revocations in Redis so every daemon instance sees them.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	log    logrus.FieldLogger
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(ctx context.Context, url, password, prefix string, dialTimeout time.Duration, logger logrus.FieldLogger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if password != "" {
		opts.Password = password
	}
	if dialTimeout > 0 {
		opts.DialTimeout = dialTimeout
	}

	s := &RedisStore{rdb: redis.NewClient(opts), prefix: prefix, log: logger}
	if err := s.Ping(ctx); err != nil {
		_ = s.rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis successfully")
	return s, nil
}

func (s *RedisStore) key(tokenID string) string {
	return s.prefix + ":revoked:" + tokenID
}

func (s *RedisStore) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(tokenID), "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	exists, err := s.rdb.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return exists == 1, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if err := s.rdb.Close(); err != nil {
		s.log.WithError(err).Error("Failed to close Redis connection")
		return err
	}
	s.log.Info("Redis connection closed")
	return nil
}

// MemoryStore is the single-instance Store used when Redis is disabled.
type MemoryStore struct {
	clock   clock.Clock
	log     logrus.FieldLogger
	mu      sync.RWMutex
	revoked map[string]time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewMemoryStore creates a store with a background sweep of expired entries.
func NewMemoryStore(clk clock.Clock, logger logrus.FieldLogger) *MemoryStore {
	if clk == nil {
		clk = clock.Real{}
	}
	s := &MemoryStore{
		clock:   clk,
		log:     logger,
		revoked: make(map[string]time.Time),
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.cleanup(); n > 0 {
				s.log.WithField("expired_items", n).Debug("Cleaned up expired revocations")
			}
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var n int
	for id, until := range s.revoked {
		if !now.Before(until) {
			delete(s.revoked, id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = s.clock.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	until, ok := s.revoked[tokenID]
	return ok && s.clock.Now().Before(until), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.stop) })
	return nil
}
