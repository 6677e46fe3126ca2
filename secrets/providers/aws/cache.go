package aws

import (
	"strings"
	"sync"
	"time"
)

// cachedValue is one GetSecretValue result before field selection.
type cachedValue struct {
	value      []byte
	version    string
	created    time.Time
	expiration time.Time
}

// valueCache holds raw secret values for a short TTL so several fields of
// one JSON secret cost a single API call.
type valueCache struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*cachedValue
}

func newValueCache(ttl time.Duration) *valueCache {
	return &valueCache{ttl: ttl, now: time.Now, entries: make(map[string]*cachedValue)}
}

func cacheKey(path, version string) string {
	return path + "@" + version
}

// get returns a copy of the cached value.
func (c *valueCache) get(key string) (cachedValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return cachedValue{}, false
	}
	if c.now().After(e.expiration) {
		clear(e.value)
		delete(c.entries, key)
		return cachedValue{}, false
	}
	out := *e
	out.value = append([]byte(nil), e.value...)
	return out, true
}

func (c *valueCache) set(key string, v cachedValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v.value = append([]byte(nil), v.value...)
	v.expiration = c.now().Add(c.ttl)
	c.entries[key] = &v
}

// invalidate drops every version of path.
func (c *valueCache) invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if strings.HasPrefix(k, path+"@") {
			clear(e.value)
			delete(c.entries, k)
		}
	}
}

// purge zeroes and drops everything.
func (c *valueCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		clear(e.value)
		delete(c.entries, k)
	}
}

func (c *valueCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
