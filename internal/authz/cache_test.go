package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey_Deterministic(t *testing.T) {
	t.Parallel()

	a := NewCacheKey(&Request{
		Subject:  "alice",
		Resource: "/orders/42",
		Action:   "GET",
		Attributes: AttributeBag{
			"department": "eng",
			"tags":       []string{"a", "b"},
		},
	}, "v1")
	b := NewCacheKey(&Request{
		Subject:  "alice",
		Resource: "/orders/42",
		Action:   "GET",
		Attributes: AttributeBag{
			"tags":       []interface{}{"a", "b"},
			"department": "eng",
		},
	}, "v1")

	assert.Equal(t, a.String(), b.String())
}

func TestCacheKey_Distinguishes(t *testing.T) {
	t.Parallel()

	base := &Request{Subject: "alice", Resource: "/orders/42", Action: "GET"}
	key := NewCacheKey(base, "v1").String()

	tests := []struct {
		name string
		req  *Request
		ver  string
	}{
		{name: "subject", req: &Request{Subject: "bob", Resource: "/orders/42", Action: "GET"}, ver: "v1"},
		{name: "resource", req: &Request{Subject: "alice", Resource: "/orders/43", Action: "GET"}, ver: "v1"},
		{name: "action", req: &Request{Subject: "alice", Resource: "/orders/42", Action: "PUT"}, ver: "v1"},
		{name: "snapshot version", req: base, ver: "v2"},
		{
			name: "attribute bag",
			req: &Request{
				Subject: "alice", Resource: "/orders/42", Action: "GET",
				Attributes: AttributeBag{"department": "eng"},
			},
			ver: "v1",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotEqual(t, key, NewCacheKey(tt.req, tt.ver).String())
		})
	}
}

func TestMemoryDecisionCache(t *testing.T) {
	t.Parallel()

	cache := NewMemoryDecisionCache(time.Minute, 100)
	defer cache.Close()

	ctx := context.Background()
	key := NewCacheKey(&Request{Subject: "alice", Resource: "/x", Action: "GET"}, "v1")

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	cache.Set(ctx, key, &CachedDecision{Allowed: true, Reason: ReasonAllowed, SnapshotVersion: "v1"})

	cached, ok := cache.Get(ctx, key)
	require.True(t, ok)
	assert.True(t, cached.Allowed)
	assert.Equal(t, ReasonAllowed, cached.Reason)

	cache.Delete(ctx, key)
	_, ok = cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestMemoryDecisionCache_Expiry(t *testing.T) {
	t.Parallel()

	cache := NewMemoryDecisionCache(-time.Second, 100)
	defer cache.Close()

	ctx := context.Background()
	key := NewCacheKey(&Request{Subject: "alice", Resource: "/x", Action: "GET"}, "v1")

	cache.Set(ctx, key, &CachedDecision{Allowed: true})

	// Already expired at insertion time.
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestMemoryDecisionCache_Eviction(t *testing.T) {
	t.Parallel()

	cache := NewMemoryDecisionCache(time.Minute, 2)
	defer cache.Close()

	ctx := context.Background()
	keys := []*CacheKey{
		NewCacheKey(&Request{Subject: "a", Resource: "/x", Action: "GET"}, "v1"),
		NewCacheKey(&Request{Subject: "b", Resource: "/x", Action: "GET"}, "v1"),
		NewCacheKey(&Request{Subject: "c", Resource: "/x", Action: "GET"}, "v1"),
	}

	for _, key := range keys {
		cache.Set(ctx, key, &CachedDecision{Allowed: true})
	}

	// Capacity is two; at least one entry survives and the newest is it.
	_, ok := cache.Get(ctx, keys[2])
	assert.True(t, ok)
}

func TestMemoryDecisionCache_Clear(t *testing.T) {
	t.Parallel()

	cache := NewMemoryDecisionCache(time.Minute, 100)
	defer cache.Close()

	ctx := context.Background()
	key := NewCacheKey(&Request{Subject: "alice", Resource: "/x", Action: "GET"}, "v1")
	cache.Set(ctx, key, &CachedDecision{Allowed: true})

	cache.Clear(ctx)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestNoopDecisionCache(t *testing.T) {
	t.Parallel()

	cache := NewNoopDecisionCache()

	ctx := context.Background()
	key := NewCacheKey(&Request{Subject: "alice", Resource: "/x", Action: "GET"}, "v1")

	cache.Set(ctx, key, &CachedDecision{Allowed: true})
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	assert.NoError(t, cache.Close())
}
