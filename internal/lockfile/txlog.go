package lockfile

import (
	"bufio"
	"encoding/json"
	"os"
	"time"
)

// TxLog records knowledge base mutations to an append-only JSONL file.
// It exists for post-mortem inspection after a crashed or interrupted
// update; writes that fail are dropped silently so logging can never
// block the operation being logged.
type TxLog struct {
	path string
	opts Options
}

// TxEntry is one logged operation.
type TxEntry struct {
	Timestamp time.Time       `json:"timestamp"`
	Operation string          `json:"operation"` // create, update, delete
	FilePath  string          `json:"file_path"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewTxLog creates a transaction log writing to path.
func NewTxLog(path string) *TxLog {
	return &TxLog{path: path, opts: Options{Timeout: 5 * time.Second}}
}

// Log appends an operation entry. Failures are swallowed.
func (l *TxLog) Log(operation, filePath string, data any) {
	entry := TxEntry{
		Timestamp: time.Now(),
		Operation: operation,
		FilePath:  filePath,
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			entry.Data = raw
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_ = withLocked(l.path, l.opts, func(f *os.File) error {
		if _, err := f.Seek(0, 2); err != nil {
			return err
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return err
		}
		return nil
	})
}

// Recent returns up to count most recent entries, oldest first.
// Lines that fail to parse are skipped.
func (l *TxLog) Recent(count int) ([]TxEntry, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		return nil, nil
	}

	var entries []TxEntry
	err := withLocked(l.path, l.opts, func(f *os.File) error {
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var e TxEntry
			if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
				continue
			}
			entries = append(entries, e)
		}
		return scanner.Err()
	})
	if err != nil {
		return nil, err
	}

	if count > 0 && len(entries) > count {
		entries = entries[len(entries)-count:]
	}
	return entries, nil
}
