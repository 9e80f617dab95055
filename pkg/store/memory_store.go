package store

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// MemoryRecordStore keeps records in-process. Used in tests and as the
// fallback when neither a data directory nor a database is configured.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryRecordStore initializes an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string][]byte)}
}

// Save serializes and stores the value under name.
func (m *MemoryRecordStore) Save(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = data
	return nil
}

// Load reads the record into out; absent or malformed records report false.
func (m *MemoryRecordStore) Load(name string, out any) bool {
	m.mu.RLock()
	data, ok := m.records[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Warn("discarding malformed record", "record", name, "err", err)
		return false
	}
	return true
}

// Delete removes the record.
func (m *MemoryRecordStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

// Corrupt overwrites a record with raw bytes, bypassing serialization.
// Test helper for exercising the malformed-record path.
func (m *MemoryRecordStore) Corrupt(name string, raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[name] = raw
}
