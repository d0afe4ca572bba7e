package risk

import (
	"sync"
	"time"
)

// DefaultCacheTTL matches the oracle refresh cadence.
const DefaultCacheTTL = 5 * time.Minute

// Cache is a bounded-TTL read cache for risk entries, owned by the query
// and API layers — never by the engine, which always reads the registry
// through the ledger. Staleness is explicit: every read reports whether
// the entry is past its TTL, and the caller decides whether stale data is
// acceptable for its (display-only) purpose.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedEntry
	now     func() time.Time
}

type cachedEntry struct {
	entry    Entry
	cachedAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cachedEntry),
		now:     time.Now,
	}
}

// Get returns the cached entry and whether it is stale. ok is false when
// the protocol has never been cached.
func (c *Cache) Get(protocolID string) (entry Entry, stale bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ce, ok := c.entries[protocolID]
	if !ok {
		return Entry{}, false, false
	}
	return ce.entry, c.now().Sub(ce.cachedAt) > c.ttl, true
}

// Put stores an entry with the current time as its cache instant.
func (c *Cache) Put(entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.ProtocolID] = cachedEntry{entry: entry, cachedAt: c.now()}
}

// Invalidate drops a protocol's cached entry, e.g. when the oracle feed
// delivers an update.
func (c *Cache) Invalidate(protocolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, protocolID)
}
