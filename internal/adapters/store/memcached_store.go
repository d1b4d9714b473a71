package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"
)

const (
	// memcached reads expirations beyond 30 days as absolute unix timestamps
	memcachedRelativeLimit = 30 * 24 * time.Hour
	memcachedMaxKeyLength  = 250
	hashedKeyPrefix        = "h_"
)

// MemcachedStore is a memcached implementation of core.KVStore
type MemcachedStore struct {
	client *memcache.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewMemcachedStore creates a store for the given memcached servers
func NewMemcachedStore(servers []string, timeout time.Duration, logger *zap.Logger) *MemcachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &MemcachedStore{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Get retrieves a live value. The client has no context support, so ctx is only
// checked before the round trip; client.Timeout bounds the call itself.
func (s *MemcachedStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, fmt.Errorf("memcached get failed: %w", err)
	}
	item, err := s.client.Get(s.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("memcached get failed: %w", err)
	}
	return string(item.Value), true, nil
}

// Set stores a value with a TTL
func (s *MemcachedStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memcached set failed: %w", err)
	}
	err := s.client.Set(&memcache.Item{
		Key:        s.key(key),
		Value:      []byte(value),
		Expiration: s.expiration(ttl),
	})
	if err != nil {
		return fmt.Errorf("memcached set failed: %w", err)
	}
	return nil
}

// Stop is a no-op; the client holds only idle connections
func (s *MemcachedStore) Stop() {}

// key maps key to the name stored in memcached
func (s *MemcachedStore) key(key string) string {
	mapped := memcachedKey(key)
	if mapped != key {
		s.logger.Debug("Hashed illegal memcached key",
			zap.String("key", key),
			zap.String("hashed", mapped))
	}
	return mapped
}

// expiration converts ttl to memcached's expiration field
func (s *MemcachedStore) expiration(ttl time.Duration) int32 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if ttl > memcachedRelativeLimit {
		return int32(s.now().Unix() + secs)
	}
	return int32(secs)
}

// memcachedKey returns key unchanged when memcached accepts it, otherwise a stable hash
// of it so every server sharing the cache derives the same key
func memcachedKey(key string) string {
	if legalMemcachedKey(key) {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return hashedKeyPrefix + hex.EncodeToString(sum[:])
}

func legalMemcachedKey(key string) bool {
	if key == "" || len(key) > memcachedMaxKeyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}
