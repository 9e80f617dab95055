package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// FileRecordStore writes one JSON file per record under a data directory.
// Record names are namespace-prefixed so several deployments can share a
// directory without colliding.
type FileRecordStore struct {
	dir       string
	namespace string
}

// NewFileRecordStore ensures the data directory exists.
func NewFileRecordStore(dir, namespace string) (*FileRecordStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("data directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if namespace = strings.TrimSpace(namespace); namespace == "" {
		namespace = "agrovision"
	}
	return &FileRecordStore{dir: dir, namespace: namespace}, nil
}

func (f *FileRecordStore) path(name string) string {
	return filepath.Join(f.dir, f.namespace+"_"+sanitizeRecordName(name)+".json")
}

// Save writes the record atomically via a temp file rename.
func (f *FileRecordStore) Save(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", name, err)
	}
	target := f.path(name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("commit record %s: %w", name, err)
	}
	return nil
}

// Load reads the record into out; absent or malformed records report false.
func (f *FileRecordStore) Load(name string, out any) bool {
	data, err := os.ReadFile(f.path(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("record unreadable", "record", name, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("discarding malformed record", "record", name, "err", err)
		return false
	}
	return true
}

// Delete removes the record file if present.
func (f *FileRecordStore) Delete(name string) error {
	if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete record %s: %w", name, err)
	}
	return nil
}

func sanitizeRecordName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
