package statuscache

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type memEntry struct {
	record   Record
	expireAt time.Time
}

// MemoryCache is the in-process fallback backend: a mutex-guarded map
// of key to (value, expire_time) with lazy expiry and a prefix scan,
// used when Config.Redis.URL is empty.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry

	hits, misses, updates, evictions int64
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memEntry)}
}

func statusEntryKey(robotID string) string { return "status:" + robotID }
func onlineEntryKey(robotID string) string { return "online:" + robotID }

// listKeys returns the suffixes of every live (non-expired) key
// carrying the given prefix, evicting expired keys it encounters
// along the way. Caller must hold c.mu.
func (c *MemoryCache) listKeys(prefix string) []string {
	now := time.Now()
	var matches []string
	for key, entry := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if now.After(entry.expireAt) {
			delete(c.entries, key)
			atomic.AddInt64(&c.evictions, 1)
			continue
		}
		matches = append(matches, strings.TrimPrefix(key, prefix))
	}
	return matches
}

func (c *MemoryCache) Update(_ context.Context, robotID string, status map[string]interface{}, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	record := Record{RobotID: robotID, Status: status, LastSeen: time.Now(), SessionID: sessionID}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[statusEntryKey(robotID)] = memEntry{record: record, expireAt: time.Now().Add(ttl)}
	c.entries[onlineEntryKey(robotID)] = memEntry{expireAt: time.Now().Add(2 * ttl)}
	atomic.AddInt64(&c.updates, 1)
	return nil
}

func (c *MemoryCache) Get(_ context.Context, robotID string) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[statusEntryKey(robotID)]
	if !ok || time.Now().After(entry.expireAt) {
		if ok {
			delete(c.entries, statusEntryKey(robotID))
			atomic.AddInt64(&c.evictions, 1)
		}
		atomic.AddInt64(&c.misses, 1)
		return nil, nil
	}

	atomic.AddInt64(&c.hits, 1)
	record := entry.record
	return &record, nil
}

func (c *MemoryCache) ListOnline(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listKeys("online:"), nil
}

func (c *MemoryCache) ListOnlineStatuses(_ context.Context) ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	robotIDs := c.listKeys("online:")
	records := make([]Record, 0, len(robotIDs))
	now := time.Now()
	for _, robotID := range robotIDs {
		entry, ok := c.entries[statusEntryKey(robotID)]
		if !ok || now.After(entry.expireAt) {
			continue
		}
		records = append(records, entry.record)
	}
	return records, nil
}

func (c *MemoryCache) Remove(_ context.Context, robotID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, statusEntryKey(robotID))
	delete(c.entries, onlineEntryKey(robotID))
	return nil
}

func (c *MemoryCache) InvalidateSession(ctx context.Context, sessionID string) error {
	records, err := c.ListOnlineStatuses(ctx)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.SessionID == sessionID {
			if err := c.Remove(ctx, record.RobotID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *MemoryCache) HealthCheck(_ context.Context) Health {
	return Health{
		Backend:   "memory",
		Healthy:   true,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Updates:   atomic.LoadInt64(&c.updates),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}
