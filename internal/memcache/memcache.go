// Package memcache is an in-process JSON file cache with LRU eviction,
// content-hash invalidation, and a TTL that adapts to how often each
// file actually changes.
package memcache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Category controls the base TTL for a cached file.
type Category string

const (
	// CategoryCore holds rarely-changing core context.
	CategoryCore Category = "core"
	// CategoryIndexed holds on-demand indexed context.
	CategoryIndexed Category = "indexed"
	// CategoryHistory is never cached; records must be read fresh.
	CategoryHistory Category = "history"
)

// baseTTL per category. Zero disables caching.
var baseTTL = map[Category]time.Duration{
	CategoryCore:    time.Hour,
	CategoryIndexed: 30 * time.Minute,
	CategoryHistory: 0,
}

// minTTL floors the adaptive TTL for frequently-changing files.
const minTTL = time.Minute

// changeHistoryLimit bounds per-file change tracking.
const changeHistoryLimit = 10

// DefaultMaxSize is the entry cap when NewCache gets zero.
const DefaultMaxSize = 100

// Stats counts cache activity since creation.
type Stats struct {
	Size          int    `json:"size"`
	MaxSize       int    `json:"max_size"`
	Hits          int    `json:"hits"`
	Misses        int    `json:"misses"`
	HitRate       string `json:"hit_rate"`
	Invalidations int    `json:"invalidations"`
	Evictions     int    `json:"evictions"`
	TotalRequests int    `json:"total_requests"`
}

type entry struct {
	path        string
	data        json.RawMessage
	storedAt    time.Time
	contentHash string
	accessCount int
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	maxSize int

	order   *list.List // front = most recently used
	entries map[string]*list.Element

	// changeHistory holds invalidation timestamps per file, feeding
	// the adaptive TTL.
	changeHistory map[string][]time.Time

	hits, misses, invalidations, evictions int

	now func() time.Time
}

// NewCache returns a cache holding up to maxSize entries.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{
		maxSize:       maxSize,
		order:         list.New(),
		entries:       make(map[string]*list.Element),
		changeHistory: make(map[string][]time.Time),
		now:           time.Now,
	}
}

// Load fetches path as JSON through the cache, decoding into out. A
// cached copy is used only while the file's content hash and TTL both
// hold. History-category files always hit the disk.
func (c *Cache) Load(path string, category Category, out any) error {
	if raw, ok := c.get(path, category); ok {
		return json.Unmarshal(raw, out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if baseTTL[category] > 0 {
		c.set(path, data)
	}
	return nil
}

// get returns the cached raw JSON for path when still valid.
func (c *Cache) get(path string, category Category) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[path]
	if !ok {
		c.misses++
		return nil, false
	}
	e := el.Value.(*entry)

	hash, err := contentHash(path)
	if err != nil {
		// File is gone or unreadable.
		c.removeLocked(el)
		c.invalidations++
		return nil, false
	}
	if hash != e.contentHash {
		c.removeLocked(el)
		c.invalidations++
		c.recordChangeLocked(path)
		return nil, false
	}

	if ttl := c.adaptiveTTLLocked(path, category); ttl > 0 && c.now().Sub(e.storedAt) > ttl {
		c.removeLocked(el)
		c.invalidations++
		return nil, false
	}

	c.order.MoveToFront(el)
	e.accessCount++
	c.hits++
	return e.data, true
}

func (c *Cache) set(path string, data json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash, err := contentHash(path)
	if err != nil {
		return
	}

	if el, ok := c.entries[path]; ok {
		c.removeLocked(el)
	}
	for len(c.entries) >= c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}

	el := c.order.PushFront(&entry{
		path:        path,
		data:        data,
		storedAt:    c.now(),
		contentHash: hash,
		accessCount: 1,
	})
	c.entries[path] = el
}

// adaptiveTTLLocked shrinks the base TTL toward half the file's average
// change interval, floored at one minute.
func (c *Cache) adaptiveTTLLocked(path string, category Category) time.Duration {
	base := baseTTL[category]
	if base == 0 {
		return 0
	}

	changes := c.changeHistory[path]
	if len(changes) < 2 {
		return base
	}

	var total time.Duration
	for i := 1; i < len(changes); i++ {
		total += changes[i].Sub(changes[i-1])
	}
	avg := total / time.Duration(len(changes)-1)

	ttl := avg / 2
	if ttl > base {
		ttl = base
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	return ttl
}

func (c *Cache) recordChangeLocked(path string) {
	history := append(c.changeHistory[path], c.now())
	if len(history) > changeHistoryLimit {
		history = history[len(history)-changeHistoryLimit:]
	}
	c.changeHistory[path] = history
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.path)
}

// Invalidate drops entries whose path contains pattern. "*" drops
// everything.
func (c *Cache) Invalidate(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	for path, el := range c.entries {
		if pattern == "*" || strings.Contains(path, pattern) {
			c.removeLocked(el)
			dropped++
		}
	}
	c.invalidations += dropped
	return dropped
}

// Warm pre-loads the given files under the core category. Missing
// files are skipped.
func (c *Cache) Warm(paths []string) int {
	warmed := 0
	for _, path := range paths {
		var discard json.RawMessage
		if err := c.Load(path, CategoryCore, &discard); err == nil {
			warmed++
		}
	}
	return warmed
}

// Stats snapshots cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total) * 100
	}
	return Stats{
		Size:          len(c.entries),
		MaxSize:       c.maxSize,
		Hits:          c.hits,
		Misses:        c.misses,
		HitRate:       fmt.Sprintf("%.1f%%", rate),
		Invalidations: c.invalidations,
		Evictions:     c.evictions,
		TotalRequests: total,
	}
}

func contentHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
