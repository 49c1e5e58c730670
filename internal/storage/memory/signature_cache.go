package memory

import (
	"context"
	"sync"
	"time"

	"solana-holder-ledger/internal/storage"
)

// SignatureCache is an in-memory implementation of storage.SignatureCache.
// Entries expire after the configured TTL.
type SignatureCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time // signature -> expiry
	now     func() time.Time
}

// NewSignatureCache creates a cache. A non-positive ttl uses storage.DefaultSignatureTTL.
func NewSignatureCache(ttl time.Duration) *SignatureCache {
	if ttl <= 0 {
		ttl = storage.DefaultSignatureTTL
	}
	return &SignatureCache{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen reports whether the signature was marked and has not expired.
func (c *SignatureCache) Seen(_ context.Context, signature string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.entries[signature]
	if !ok {
		return false, nil
	}
	if !c.now().Before(exp) {
		delete(c.entries, signature)
		return false, nil
	}
	return true, nil
}

// Mark records a committed signature.
func (c *SignatureCache) Mark(_ context.Context, signature string) error {
	if signature == "" {
		return storage.ErrInvalidInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[signature] = now.Add(c.ttl)
	if len(c.entries)%1024 == 0 {
		for sig, exp := range c.entries {
			if !now.Before(exp) {
				delete(c.entries, sig)
			}
		}
	}
	return nil
}

var _ storage.SignatureCache = (*SignatureCache)(nil)
