package license

import (
	"context"
	"sync"
	"time"
)

// Cache TTLs. Invalid verdicts expire faster so a freshly activated
// machine is admitted without waiting out a long negative entry.
const (
	DefaultValidTTL   = 5 * time.Minute
	DefaultInvalidTTL = time.Minute
)

// Cache serves recent verdicts to request-path callers so the HTTP gate
// does not run a full verification pass per request. A deployment holds
// exactly one artifact, so this is a single-entry cache.
type Cache struct {
	verifier *Verifier

	validTTL   time.Duration
	invalidTTL time.Duration

	mu        sync.Mutex
	verdict   *Verdict
	fetchedAt time.Time
	hitCount  int64
	missCount int64
}

// NewCache wraps a verifier. Non-positive TTLs select the defaults.
func NewCache(verifier *Verifier, validTTL, invalidTTL time.Duration) *Cache {
	if validTTL <= 0 {
		validTTL = DefaultValidTTL
	}
	if invalidTTL <= 0 {
		invalidTTL = DefaultInvalidTTL
	}
	return &Cache{
		verifier:   verifier,
		validTTL:   validTTL,
		invalidTTL: invalidTTL,
	}
}

// Status returns the cached verdict, re-verifying when the entry has
// aged out. Failures fold into the verdict the way Verifier.Status does.
func (c *Cache) Status(ctx context.Context) *Verdict {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.verdict != nil && time.Since(c.fetchedAt) < c.ttlFor(c.verdict) {
		c.hitCount++
		return c.verdict
	}

	c.missCount++
	c.verdict = c.verifier.Status(ctx)
	c.fetchedAt = time.Now()
	return c.verdict
}

// Invalidate drops the cached verdict. Called after a new artifact is
// installed so the next request sees it immediately.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdict = nil
}

// Stats reports cache effectiveness for the health endpoint.
func (c *Cache) Stats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}
	return map[string]any{
		"hit_count":           c.hitCount,
		"miss_count":          c.missCount,
		"hit_ratio":           ratio,
		"valid_ttl_seconds":   c.validTTL.Seconds(),
		"invalid_ttl_seconds": c.invalidTTL.Seconds(),
	}
}

func (c *Cache) ttlFor(v *Verdict) time.Duration {
	if v.Valid {
		return c.validTTL
	}
	return c.invalidTTL
}
