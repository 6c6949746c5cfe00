package client

import (
	"strings"
	"sync"
	"time"

	"github.com/jmerrifield20/paymail/pkg/paymail"
)

// cacheEntry holds a discovered capability document and the base URL it was
// fetched from. Entries are replaced whole, never mutated.
type cacheEntry struct {
	caps      *paymail.Capabilities
	baseURL   string
	expiresAt time.Time
}

// capabilityCache is a mutex-guarded per-domain TTL cache. Expired entries are
// dropped when next looked up; evict sweeps them all at once.
type capabilityCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

func newCapabilityCache(ttl time.Duration, now func() time.Time) *capabilityCache {
	return &capabilityCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func cacheKey(domain string) string {
	return strings.ToLower(strings.TrimSuffix(domain, "."))
}

// get returns the live entry for domain, deleting it if it has expired.
func (c *capabilityCache) get(domain string) (*cacheEntry, bool) {
	key := cacheKey(domain)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// set stores a new entry for domain, replacing any previous one.
func (c *capabilityCache) set(domain string, caps *paymail.Capabilities, baseURL string) *cacheEntry {
	e := &cacheEntry{
		caps:      caps,
		baseURL:   baseURL,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(domain)] = e
	return e
}

// invalidate removes the entry for domain.
func (c *capabilityCache) invalidate(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(domain))
}

// evict removes all expired entries and returns how many were removed.
func (c *capabilityCache) evict() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// len returns the number of cached entries (including expired).
func (c *capabilityCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
