package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is the persistence capability the session engine depends on. Both the
// durable credential slot and the ephemeral guest-session slot are plain
// string key/value stores; components never reach for a concrete backend
// directly so tests can substitute an in-memory one.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Memory is a process-lifetime Store. It backs session-scoped state (the
// guest session id) and every store in tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *Memory) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
}

// File is a Store persisted as a JSON document on disk. It backs durable
// state (the login credential) across process restarts. Writes are flushed
// eagerly; a write failure leaves the in-memory view intact.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFile loads the store at path, tolerating a missing or unreadable file by
// starting empty.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is empty")
	}
	f := &File{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	// A corrupt state file is discarded rather than surfaced: every value in
	// it is recoverable (re-login, re-mint).
	_ = json.Unmarshal(data, &f.values)
	if f.values == nil {
		f.values = make(map[string]string)
	}
	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.values[key]; ok && existing == value {
		return
	}
	f.values[key] = value
	f.flush()
}

func (f *File) Remove(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	f.flush()
}

func (f *File) flush() {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, f.path)
}
