package authz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

// DecisionCache caches authorization decisions. Keys embed the snapshot
// version, so a reload implicitly invalidates every cached decision.
type DecisionCache interface {
	// Get retrieves a cached decision.
	Get(ctx context.Context, key *CacheKey) (*CachedDecision, bool)

	// Set stores a decision in the cache.
	Set(ctx context.Context, key *CacheKey, decision *CachedDecision)

	// Delete removes a decision from the cache.
	Delete(ctx context.Context, key *CacheKey)

	// Clear clears all cached decisions.
	Clear(ctx context.Context)

	// Close closes the cache.
	Close() error
}

// CacheKey identifies one decision: the request triple, the snapshot it
// was decided against, and a digest of the attribute bag.
type CacheKey struct {
	// Subject is the subject identifier.
	Subject string

	// Resource is the resource being accessed.
	Resource string

	// Action is the action being performed.
	Action string

	// SnapshotVersion is the version of the snapshot the decision used.
	SnapshotVersion string

	// AttributeDigest is the digest of the request's attribute bag, or
	// empty for basic requests.
	AttributeDigest string
}

// NewCacheKey builds the cache key for a request against a snapshot
// version.
func NewCacheKey(req *Request, snapshotVersion string) *CacheKey {
	return &CacheKey{
		Subject:         req.Subject,
		Resource:        req.Resource,
		Action:          req.Action,
		SnapshotVersion: snapshotVersion,
		AttributeDigest: req.Attributes.digest(),
	}
}

// String returns a fixed-length string form of the cache key.
func (k *CacheKey) String() string {
	h := sha256.New()
	h.Write([]byte(k.Subject))
	h.Write([]byte{0})
	h.Write([]byte(k.Resource))
	h.Write([]byte{0})
	h.Write([]byte(k.Action))
	h.Write([]byte{0})
	h.Write([]byte(k.SnapshotVersion))
	h.Write([]byte{0})
	h.Write([]byte(k.AttributeDigest))
	return hex.EncodeToString(h.Sum(nil))
}

// digest hashes the bag deterministically: keys sorted, values
// normalized to their string forms. A nil bag digests to "".
func (b AttributeBag) digest() string {
	if b == nil {
		return ""
	}

	keys := make([]string, 0, len(b))
	for key := range b {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, key := range keys {
		h.Write([]byte(key))
		h.Write([]byte{'='})
		if s, ok := b[key].(string); ok {
			h.Write([]byte(s))
		} else if seq, ok := b.Strings(key); ok {
			for _, item := range seq {
				h.Write([]byte{1})
				h.Write([]byte(item))
			}
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CachedDecision is the cached subset of a decision. Matched rules and
// evaluation errors are not cached; a hit reproduces only the outcome.
type CachedDecision struct {
	// Allowed indicates if the request was allowed.
	Allowed bool `json:"allowed"`

	// Reason is the reason for the decision.
	Reason Reason `json:"reason,omitempty"`

	// SnapshotVersion is the snapshot the decision used.
	SnapshotVersion string `json:"snapshot_version,omitempty"`

	// CachedAt is when the decision was cached.
	CachedAt time.Time `json:"cached_at"`

	// ExpiresAt is when the cached decision expires.
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the cached decision has expired.
func (d *CachedDecision) IsExpired() bool {
	return time.Now().After(d.ExpiresAt)
}

// memoryDecisionCache implements DecisionCache using an in-memory map.
type memoryDecisionCache struct {
	mu       sync.RWMutex
	entries  map[string]*CachedDecision
	ttl      time.Duration
	maxSize  int
	stopChan chan struct{}
}

// NewMemoryDecisionCache creates a new in-memory decision cache.
func NewMemoryDecisionCache(ttl time.Duration, maxSize int) DecisionCache {
	c := &memoryDecisionCache{
		entries:  make(map[string]*CachedDecision),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// Get retrieves a cached decision.
func (c *memoryDecisionCache) Get(_ context.Context, key *CacheKey) (*CachedDecision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	decision, ok := c.entries[key.String()]
	if !ok || decision.IsExpired() {
		return nil, false
	}
	return decision, true
}

// Set stores a decision in the cache.
func (c *memoryDecisionCache) Set(_ context.Context, key *CacheKey, decision *CachedDecision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	decision.CachedAt = time.Now()
	decision.ExpiresAt = time.Now().Add(c.ttl)
	c.entries[key.String()] = decision
}

// Delete removes a decision from the cache.
func (c *memoryDecisionCache) Delete(_ context.Context, key *CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key.String())
}

// Clear clears all cached decisions.
func (c *memoryDecisionCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CachedDecision)
}

// Close stops the cleanup goroutine.
func (c *memoryDecisionCache) Close() error {
	close(c.stopChan)
	return nil
}

// evictOldest evicts expired entries first, then the oldest entry if
// still over capacity. Caller holds the write lock.
func (c *memoryDecisionCache) evictOldest() {
	for key, decision := range c.entries {
		if decision.IsExpired() {
			delete(c.entries, key)
		}
	}

	if len(c.entries) >= c.maxSize {
		var oldestKey string
		var oldestTime time.Time

		for key, decision := range c.entries {
			if oldestKey == "" || decision.CachedAt.Before(oldestTime) {
				oldestKey = key
				oldestTime = decision.CachedAt
			}
		}

		if oldestKey != "" {
			delete(c.entries, oldestKey)
		}
	}
}

// cleanupLoop periodically removes expired entries.
func (c *memoryDecisionCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopChan:
			return
		}
	}
}

// cleanup removes expired entries.
func (c *memoryDecisionCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, decision := range c.entries {
		if decision.IsExpired() {
			delete(c.entries, key)
		}
	}
}

// noopDecisionCache is a no-op cache that doesn't cache anything.
type noopDecisionCache struct{}

// NewNoopDecisionCache creates a new no-op decision cache.
func NewNoopDecisionCache() DecisionCache {
	return &noopDecisionCache{}
}

// Get always returns false.
func (c *noopDecisionCache) Get(context.Context, *CacheKey) (*CachedDecision, bool) {
	return nil, false
}

// Set does nothing.
func (c *noopDecisionCache) Set(context.Context, *CacheKey, *CachedDecision) {}

// Delete does nothing.
func (c *noopDecisionCache) Delete(context.Context, *CacheKey) {}

// Clear does nothing.
func (c *noopDecisionCache) Clear(context.Context) {}

// Close does nothing.
func (c *noopDecisionCache) Close() error {
	return nil
}

// Ensure implementations satisfy the interface.
var (
	_ DecisionCache = (*memoryDecisionCache)(nil)
	_ DecisionCache = (*noopDecisionCache)(nil)
)
