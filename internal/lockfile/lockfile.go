// Package lockfile provides advisory-lock-protected JSON file access.
//
// Multiple guardian processes may race on the same knowledge base file
// (two CLI invocations, or the watch daemon plus a CLI). Every mutation
// goes through an exclusive flock held for the duration of a
// read-modify-write cycle. Lock acquisition polls and fails with
// ErrLockTimeout after a configurable timeout; callers are expected to
// surface the failure rather than queue.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLockTimeout is returned when the exclusive lock cannot be acquired
// within the configured timeout. Check with errors.Is.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// DefaultTimeout is the lock acquisition timeout used when Options.Timeout
// is zero.
const DefaultTimeout = 10 * time.Second

// pollInterval is how long to sleep between lock attempts.
const pollInterval = 100 * time.Millisecond

// Options configures lock acquisition.
type Options struct {
	// Timeout bounds how long to wait for the lock. Zero means DefaultTimeout.
	Timeout time.Duration
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return DefaultTimeout
	}
	return o.Timeout
}

// withLocked opens path (creating it and its parent directory if needed),
// acquires an exclusive advisory lock, and invokes fn with the open file.
// The lock is released and the file closed when fn returns.
func withLocked(path string, opts Options, fn func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	deadline := time.Now().Add(opts.timeout())
	for {
		err := flock(f)
		if err == nil {
			break
		}
		if !errors.Is(err, errWouldBlock) {
			return fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s (another process may be holding it)", ErrLockTimeout, path)
		}
		time.Sleep(pollInterval)
	}
	defer funlock(f)

	return fn(f)
}

// Read decodes the JSON file at path under a shared critical section.
// If the file does not exist or holds invalid JSON, out is left at the
// caller's default and no error is returned; I/O and lock failures are
// reported.
func Read(path string, out any, opts Options) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return withLocked(path, opts, func(f *os.File) error {
		dec := json.NewDecoder(f)
		if err := dec.Decode(out); err != nil {
			// Malformed content is treated like a missing file: the
			// caller's default value stands.
			return nil
		}
		return nil
	})
}

// Write replaces the JSON file at path under the exclusive lock.
func Write(path string, data any, opts Options) error {
	return withLocked(path, opts, func(f *os.File) error {
		return writeJSON(f, data)
	})
}

// Update performs a locked read-modify-write cycle on the JSON file at
// path. The current contents are decoded into a value of type T (def is
// used when the file is empty or corrupt), transform produces the new
// value, and the result is written back with truncation. transform errors
// abort the update without touching the file.
func Update[T any](path string, def T, transform func(current T) (T, error), opts Options) error {
	return withLocked(path, opts, func(f *os.File) error {
		current := def
		var decoded T
		if err := json.NewDecoder(f).Decode(&decoded); err == nil {
			current = decoded
		}

		updated, err := transform(current)
		if err != nil {
			return err
		}
		return writeJSON(f, updated)
	})
}

// writeJSON rewinds f, writes indented JSON, and truncates the remainder.
func writeJSON(f *os.File, data any) error {
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("failed to rewind file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Truncate(int64(len(buf))); err != nil {
		return fmt.Errorf("failed to truncate file: %w", err)
	}
	return f.Sync()
}
