// Package watch provides the long-running daemon behind 'pg watch'.
//
// The daemon:
// 1. Watches the history directories for record file changes
// 2. Syncs changed records into the query cache
// 3. Periodically runs an incremental knowledge base update
// 4. Handles graceful shutdown
package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/project-guardian/guardian/internal/kb"
	"github.com/project-guardian/guardian/internal/lockfile"
	"github.com/project-guardian/guardian/internal/querycache"
	"github.com/project-guardian/guardian/internal/scanner"
)

// Config holds configuration for the daemon.
type Config struct {
	// UpdateInterval is how often to run an incremental update pass.
	UpdateInterval time.Duration

	// DebounceInterval is how long to wait before processing file
	// changes, batching rapid updates together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		UpdateInterval:   30 * time.Second,
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// Notifier receives daemon events, typically to push them to dashboard
// websocket clients.
type Notifier interface {
	Notify(event string, payload any)
}

// Daemon orchestrates file watching and query cache synchronization.
type Daemon struct {
	kb       *kb.KB
	db       *querycache.DB
	config   *Config
	notifier Notifier

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon for an initialized knowledge base. db may be nil
// to run without the query cache.
func New(k *kb.KB, db *querycache.DB, config *Config) (*Daemon, error) {
	if k == nil {
		return nil, fmt.Errorf("kb cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		kb:          k,
		db:          db,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// SetNotifier registers a notifier for record-update and sync-complete
// events. Call before Start.
func (d *Daemon) SetNotifier(n Notifier) {
	d.notifier = n
}

// Start begins the daemon's operation.
//
// The daemon performs a full query cache sync, then watches the history
// directories and the project root for changes. This blocks until ctx
// is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting watch daemon")

	if err := d.fullSync(); err != nil {
		return fmt.Errorf("initial sync failed: %w", err)
	}

	for _, kind := range kb.Kinds() {
		dir := d.kb.HistoryDir(kind)
		if err := d.watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	if err := d.watcher.Add(d.kb.Root); err != nil {
		return fmt.Errorf("failed to watch project root: %w", err)
	}

	d.config.Logger.Printf("Watching: %s", d.kb.Dir())

	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.runIncremental()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping watch daemon")

	d.cancel()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()

	d.config.Logger.Println("Watch daemon stopped")
	return nil
}

// fullSync pushes every record into the query cache.
func (d *Daemon) fullSync() error {
	if d.db == nil {
		return nil
	}

	stats, err := d.db.Sync(d.ctx, d.kb)
	if err != nil {
		return err
	}
	d.config.Logger.Printf("Full sync complete: %d upserted, %d pruned", stats.Upserted, stats.Pruned)
	d.notify("sync-complete", stats)
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !d.interesting(event.Name) {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// interesting filters events down to record files and root config files.
func (d *Daemon) interesting(path string) bool {
	name := filepath.Base(path)
	if d.isRecordFile(path) {
		return !strings.HasPrefix(name, "_")
	}
	return filepath.Dir(path) == d.kb.Root && scanner.IsConfigFile(name)
}

func (d *Daemon) isRecordFile(path string) bool {
	if filepath.Ext(path) != ".json" {
		return false
	}
	dir := filepath.Dir(path)
	for _, kind := range kb.Kinds() {
		if dir == d.kb.HistoryDir(kind) {
			return true
		}
	}
	return false
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges syncs files that have been queued for at least
// one debounce interval.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	configTouched := false

	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}

		if d.isRecordFile(path) {
			if err := d.syncRecordFile(path); err != nil {
				d.config.Logger.Printf("Error syncing %s: %v", path, err)
			}
		} else {
			configTouched = true
		}

		delete(d.changeQueue, path)
	}

	if configTouched {
		if _, err := d.incrementalPass(); err != nil {
			d.config.Logger.Printf("Error running incremental update: %v", err)
		}
	}
}

// syncRecordFile pushes a single record change into the query cache and
// keeps the bug index current.
func (d *Daemon) syncRecordFile(path string) error {
	id := strings.TrimSuffix(filepath.Base(path), ".json")
	kind, err := kb.KindForID(id)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		d.config.Logger.Printf("Record deleted: %s", id)
		if kind == kb.KindBug {
			if err := d.kb.RebuildBugIndex(lockfile.Options{}); err != nil {
				d.config.Logger.Printf("Error rebuilding bug index: %v", err)
			}
		}
		if d.db != nil {
			if err := d.db.Delete(d.ctx, id); err != nil {
				return err
			}
		}
		d.notify("record-update", map[string]any{"id": id, "op": "delete"})
		return nil
	}

	rec, err := d.readRecord(kind, id)
	if err != nil {
		return err
	}

	if bug, ok := rec.(*kb.Bug); ok {
		if err := d.kb.UpdateBugIndex(bug, lockfile.Options{}); err != nil {
			d.config.Logger.Printf("Error updating bug index: %v", err)
		}
	}
	if d.db != nil {
		if err := d.db.Upsert(d.ctx, rec); err != nil {
			return err
		}
	}
	d.notify("record-update", map[string]any{"id": id, "op": "upsert"})
	return nil
}

func (d *Daemon) readRecord(kind kb.Kind, id string) (kb.Record, error) {
	switch kind {
	case kb.KindBug:
		return d.kb.ReadBug(id)
	case kb.KindRequirement:
		return d.kb.ReadRequirement(id)
	case kb.KindDecision:
		return d.kb.ReadDecision(id)
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// runIncremental runs periodic incremental update passes.
func (d *Daemon) runIncremental() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			result, err := d.incrementalPass()
			if err != nil {
				d.config.Logger.Printf("Error running incremental update: %v", err)
				continue
			}
			if result.Updated {
				d.config.Logger.Printf("Incremental update: %d added, %d modified, %d deleted",
					len(result.Changes.Added), len(result.Changes.Modified), len(result.Changes.Deleted))
			}
		}
	}
}

func (d *Daemon) incrementalPass() (*scanner.UpdateResult, error) {
	result, err := scanner.NewIncremental(d.kb).Run()
	if err != nil {
		return nil, err
	}
	if result.Updated {
		d.notify("update-complete", result)
	}
	return result, nil
}

func (d *Daemon) notify(event string, payload any) {
	if d.notifier != nil {
		d.notifier.Notify(event, payload)
	}
}
