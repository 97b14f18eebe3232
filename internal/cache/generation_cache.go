package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/pkg/story"
)

// GenerationCache is the fingerprint-keyed artifact cache (C7). A cache hit
// returns a previously assembled GenerationResponse for a request whose
// fingerprint (pkg/story.Fingerprint) matches; concurrent requests sharing a
// fingerprint collapse onto a single in-flight generation via singleflight,
// grounded on the teacher's condition_cache LRU and the original holodeck
// server's cache_key/is_expired performance cache.
type GenerationCache struct {
	ttl   time.Duration
	redis *RedisCache

	mu   sync.RWMutex
	local map[string]*localEntry

	group singleflight.Group
}

type localEntry struct {
	payload   []byte
	expiresAt time.Time
}

func (e *localEntry) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// NewGenerationCache builds a GenerationCache. redisCache may be nil, in
// which case the cache falls back to an in-process map only (matching the
// teacher's pattern of degrading gracefully when Redis is unavailable).
func NewGenerationCache(cfg config.CacheConfig, redisCache *RedisCache) *GenerationCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &GenerationCache{
		ttl:   ttl,
		redis: redisCache,
		local: make(map[string]*localEntry),
	}
}

const keyPrefix = "storyforge:gen:"

// Lookup returns a previously cached response for fingerprint, if present
// and unexpired.
func (c *GenerationCache) Lookup(ctx context.Context, fingerprint string) (*story.GenerationResponse, bool) {
	key := keyPrefix + fingerprint

	if c.redis != nil {
		raw, err := c.redis.Get(ctx, key)
		if err == nil && raw != "" {
			var resp story.GenerationResponse
			if jsonErr := json.Unmarshal([]byte(raw), &resp); jsonErr == nil {
				return &resp, true
			}
		}
	}

	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if !ok || entry.isExpired() {
		return nil, false
	}

	var resp story.GenerationResponse
	if err := json.Unmarshal(entry.payload, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

// Store writes resp under fingerprint with the configured TTL.
func (c *GenerationCache) Store(ctx context.Context, fingerprint string, resp *story.GenerationResponse) error {
	key := keyPrefix + fingerprint
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.local[key] = &localEntry{payload: payload, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	if c.redis != nil {
		return c.redis.Set(ctx, key, string(payload), c.ttl)
	}
	return nil
}

// GetOrGenerate returns the cached response for fingerprint if present;
// otherwise it invokes generate exactly once per fingerprint even under
// concurrent callers (single-flight de-duplication), caching the result
// before returning it.
func (c *GenerationCache) GetOrGenerate(ctx context.Context, fingerprint string, generate func(context.Context) (*story.GenerationResponse, error)) (*story.GenerationResponse, error) {
	if resp, ok := c.Lookup(ctx, fingerprint); ok {
		return resp, nil
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		if resp, ok := c.Lookup(ctx, fingerprint); ok {
			return resp, nil
		}
		resp, genErr := generate(ctx)
		if genErr != nil {
			return nil, genErr
		}
		if storeErr := c.Store(ctx, fingerprint, resp); storeErr != nil {
			return resp, nil
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*story.GenerationResponse), nil
}

// Purge removes expired local entries, mirroring the original performance
// cache's retain(|entry| !is_expired()) sweep. Nothing in this module
// schedules it; CacheConfig.MaintenanceCron is not read by any caller.
func (c *GenerationCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, entry := range c.local {
		if entry.isExpired() {
			delete(c.local, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of locally-held entries (including possibly
// expired ones not yet purged).
func (c *GenerationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.local)
}
