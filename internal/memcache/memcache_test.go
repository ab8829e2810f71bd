package memcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeJSON(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_HitAndMiss(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "profile.json", `{"name":"demo"}`)

	c := NewCache(10)
	var out map[string]string

	if err := c.Load(path, CategoryCore, &out); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if out["name"] != "demo" {
		t.Errorf("Load() = %v", out)
	}

	if err := c.Load(path, CategoryCore, &out); err != nil {
		t.Fatalf("second Load() error = %v", err)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
}

func TestLoad_HistoryNeverCached(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "bug.json", `{"id":"BUG-1"}`)

	c := NewCache(10)
	var out map[string]string
	for i := 0; i < 3; i++ {
		if err := c.Load(path, CategoryHistory, &out); err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	}

	stats := c.Stats()
	if stats.Hits != 0 {
		t.Errorf("history reads produced %d cache hits, want 0", stats.Hits)
	}
	if stats.Size != 0 {
		t.Errorf("history entry stored in cache, size = %d", stats.Size)
	}
}

func TestLoad_ContentHashInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "profile.json", `{"v":"one"}`)

	c := NewCache(10)
	var out map[string]string
	if err := c.Load(path, CategoryCore, &out); err != nil {
		t.Fatal(err)
	}

	writeJSON(t, dir, "profile.json", `{"v":"two"}`)

	if err := c.Load(path, CategoryCore, &out); err != nil {
		t.Fatalf("Load() after rewrite error = %v", err)
	}
	if out["v"] != "two" {
		t.Errorf("Load() served stale content: %v", out)
	}
	if got := c.Stats().Invalidations; got != 1 {
		t.Errorf("Invalidations = %d, want 1", got)
	}
}

func TestLoad_DeletedFileInvalidates(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "profile.json", `{}`)

	c := NewCache(10)
	var out map[string]string
	if err := c.Load(path, CategoryCore, &out); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if err := c.Load(path, CategoryCore, &out); err == nil {
		t.Error("Load() of deleted file error = nil, want error")
	}
	if got := c.Stats().Size; got != 0 {
		t.Errorf("cache size = %d after deletion, want 0", got)
	}
}

func TestLRUEviction(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(2)

	paths := []string{
		writeJSON(t, dir, "a.json", `{"f":"a"}`),
		writeJSON(t, dir, "b.json", `{"f":"b"}`),
		writeJSON(t, dir, "c.json", `{"f":"c"}`),
	}

	var out map[string]string
	for _, p := range paths {
		if err := c.Load(p, CategoryCore, &out); err != nil {
			t.Fatal(err)
		}
	}

	stats := c.Stats()
	if stats.Size != 2 {
		t.Errorf("Size = %d, want 2", stats.Size)
	}
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}

	// a.json was evicted; loading it again is a miss.
	before := c.Stats().Misses
	if err := c.Load(paths[0], CategoryCore, &out); err != nil {
		t.Fatal(err)
	}
	if c.Stats().Misses != before+1 {
		t.Error("evicted entry served from cache")
	}
}

func TestAdaptiveTTL(t *testing.T) {
	c := NewCache(10)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	// No change history: base TTL applies.
	if got := c.adaptiveTTLLocked("x.json", CategoryCore); got != time.Hour {
		t.Errorf("ttl with no history = %v, want 1h", got)
	}

	// Changes every 10 minutes: TTL shrinks to half the interval.
	c.changeHistory["x.json"] = []time.Time{
		base.Add(-30 * time.Minute),
		base.Add(-20 * time.Minute),
		base.Add(-10 * time.Minute),
	}
	if got := c.adaptiveTTLLocked("x.json", CategoryCore); got != 5*time.Minute {
		t.Errorf("ttl with 10m interval = %v, want 5m", got)
	}

	// Very hot files still get the minimum TTL.
	c.changeHistory["x.json"] = []time.Time{
		base.Add(-2 * time.Second),
		base.Add(-time.Second),
	}
	if got := c.adaptiveTTLLocked("x.json", CategoryCore); got != time.Minute {
		t.Errorf("ttl for hot file = %v, want 1m floor", got)
	}

	if got := c.adaptiveTTLLocked("x.json", CategoryHistory); got != 0 {
		t.Errorf("history ttl = %v, want 0", got)
	}
}

func TestInvalidate(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(10)

	var out map[string]string
	core := writeJSON(t, dir, "core-profile.json", `{}`)
	idx := writeJSON(t, dir, "indexed-tools.json", `{}`)
	if err := c.Load(core, CategoryCore, &out); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(idx, CategoryIndexed, &out); err != nil {
		t.Fatal(err)
	}

	if dropped := c.Invalidate("core-"); dropped != 1 {
		t.Errorf("Invalidate(core-) = %d, want 1", dropped)
	}
	if dropped := c.Invalidate("*"); dropped != 1 {
		t.Errorf("Invalidate(*) = %d, want 1 remaining", dropped)
	}
	if got := c.Stats().Size; got != 0 {
		t.Errorf("Size = %d after full invalidation, want 0", got)
	}
}

func TestWarm(t *testing.T) {
	dir := t.TempDir()
	a := writeJSON(t, dir, "a.json", `{}`)
	b := writeJSON(t, dir, "b.json", `{}`)
	missing := filepath.Join(dir, "absent.json")

	c := NewCache(10)
	if warmed := c.Warm([]string{a, b, missing}); warmed != 2 {
		t.Errorf("Warm() = %d, want 2", warmed)
	}
	if got := c.Stats().Size; got != 2 {
		t.Errorf("Size = %d after warm, want 2", got)
	}
}
