// Package store remembers which calendar the student picked: the raw
// events of the last uploaded file, or the last ICS link.
//
// Writes are last-writer-wins; there is one user driving them.
package store

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"

	"campuscal/internal/fsutil"
)

// Key names a remembered value.
type Key string

const (
	// KeyEvents holds the JSON-encoded raw events of the last upload.
	KeyEvents Key = "calendarEvents"
	// KeyICSURL holds the last-used ICS source URL.
	KeyICSURL Key = "calendarIcsUrl"
	// KeyFileName holds the display name of the last uploaded file.
	KeyFileName Key = "calendarFileName"
)

// Keys lists every key the application writes.
var Keys = []Key{KeyEvents, KeyICSURL, KeyFileName}

// Store is a small typed key-value store.
type Store interface {
	Get(k Key) (string, bool, error)
	Set(k Key, v string) error
	Delete(k Key) error
	Clear() error
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	vals map[Key]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vals: make(map[Key]string)}
}

func (m *MemoryStore) Get(k Key) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[k]
	return v, ok, nil
}

func (m *MemoryStore) Set(k Key, v string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[k] = v
	return nil
}

func (m *MemoryStore) Delete(k Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vals, k)
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals = make(map[Key]string)
	return nil
}

// FileStore persists values as one JSON object on disk so they survive
// restarts. Every write rewrites the file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store: path is empty")
	}
	return &FileStore{path: path}, nil
}

func (f *FileStore) Get(k Key) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	vals, err := f.load()
	if err != nil {
		return "", false, err
	}
	v, ok := vals[k]
	return v, ok, nil
}

func (f *FileStore) Set(k Key, v string) error {
	return f.update(func(vals map[Key]string) {
		vals[k] = v
	})
}

func (f *FileStore) Delete(k Key) error {
	return f.update(func(vals map[Key]string) {
		delete(vals, k)
	})
}

func (f *FileStore) Clear() error {
	return f.update(func(vals map[Key]string) {
		clear(vals)
	})
}

func (f *FileStore) update(fn func(map[Key]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	vals, err := f.load()
	if err != nil {
		return err
	}
	fn(vals)
	return f.save(vals)
}

func (f *FileStore) load() (map[Key]string, error) {
	vals := make(map[Key]string)
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return vals, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return vals, nil
	}
	if err := json.Unmarshal(data, &vals); err != nil {
		return nil, err
	}
	return vals, nil
}

func (f *FileStore) save(vals map[Key]string) error {
	data, err := json.MarshalIndent(vals, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.path, data, ".campuscal-state-*.tmp")
}
