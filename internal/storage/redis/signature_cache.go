package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"solana-holder-ledger/internal/storage"
)

const keyPrefix = "ledger:sig:"

// SignatureCache implements storage.SignatureCache with expiring Redis keys.
type SignatureCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSignatureCache connects to url (redis://host:port/db) and verifies the connection.
// A non-positive ttl uses storage.DefaultSignatureTTL.
func NewSignatureCache(ctx context.Context, url string, ttl time.Duration) (*SignatureCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewSignatureCacheWithClient(client, ttl), nil
}

// NewSignatureCacheWithClient wraps an existing client.
func NewSignatureCacheWithClient(client *redis.Client, ttl time.Duration) *SignatureCache {
	if ttl <= 0 {
		ttl = storage.DefaultSignatureTTL
	}
	return &SignatureCache{client: client, ttl: ttl}
}

// Seen reports whether the signature was marked and has not expired.
func (c *SignatureCache) Seen(ctx context.Context, signature string) (bool, error) {
	err := c.client.Get(ctx, keyPrefix+signature).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get signature: %w", err)
	}
	return true, nil
}

// Mark records a committed signature.
func (c *SignatureCache) Mark(ctx context.Context, signature string) error {
	if signature == "" {
		return storage.ErrInvalidInput
	}
	if err := c.client.Set(ctx, keyPrefix+signature, 1, c.ttl).Err(); err != nil {
		return fmt.Errorf("set signature: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *SignatureCache) Close() error {
	return c.client.Close()
}

var _ storage.SignatureCache = (*SignatureCache)(nil)
