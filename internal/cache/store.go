package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store is the stage cache contract. Reads never fail: unreadable, partial or
// empty entries are reported as misses so the caller recomputes them.
// Concurrent writers to one key are tolerated and the last write wins.
type Store interface {
	Has(ctx context.Context, key Key) bool
	Read(ctx context.Context, key Key) ([]byte, bool)
	Write(ctx context.Context, key Key, data []byte) error
}

// FSStore keeps cache entries as files below a root directory.
type FSStore struct {
	root   string
	logger *slog.Logger
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates the root directory if needed.
func NewFSStore(root string, logger *slog.Logger) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FSStore{root: root, logger: logger}, nil
}

// Root returns the directory the store writes under.
func (s *FSStore) Root() string {
	return s.root
}

// Has reports whether a non-empty entry exists for key.
func (s *FSStore) Has(_ context.Context, key Key) bool {
	if key.IsZero() {
		return false
	}
	info, err := os.Stat(s.path(key))
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Read returns the entry for key or a miss.
func (s *FSStore) Read(_ context.Context, key Key) ([]byte, bool) {
	if key.IsZero() {
		return nil, false
	}
	// #nosec G304 -- key components are validated identities
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("cache entry unreadable, treating as miss", "key", key.String(), "error", err)
		}
		return nil, false
	}
	if len(data) == 0 {
		s.logger.Warn("cache entry empty, treating as miss", "key", key.String())
		return nil, false
	}
	return data, true
}

// Write stores data atomically: a temporary file in the target directory is renamed into place.
func (s *FSStore) Write(_ context.Context, key Key, data []byte) error {
	if key.IsZero() {
		return fmt.Errorf("write cache: empty key")
	}
	target := s.path(key)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp entry: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp entry: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("commit cache entry %s: %w", key.String(), err)
	}
	return nil
}

func (s *FSStore) path(key Key) string {
	return filepath.Join(s.root, filepath.FromSlash(key.String()))
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string][]byte{}}
}

func (m *MemoryStore) Has(_ context.Context, key Key) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[key.String()]) > 0
}

func (m *MemoryStore) Read(_ context.Context, key Key) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data := m.entries[key.String()]
	if len(data) == 0 {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

func (m *MemoryStore) Write(_ context.Context, key Key, data []byte) error {
	if key.IsZero() {
		return fmt.Errorf("write cache: empty key")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key.String()] = append([]byte(nil), data...)
	return nil
}

// FullyCached reports whether every key is present.
func FullyCached(ctx context.Context, store Store, keys ...Key) bool {
	for _, key := range keys {
		if !store.Has(ctx, key) {
			return false
		}
	}
	return len(keys) > 0
}

// ReadJSON decodes the entry for key into v. It returns false on a miss and an
// error when the entry exists but cannot be decoded; callers treat both as a miss.
func ReadJSON(ctx context.Context, store Store, key Key, v any) (bool, error) {
	data, ok := store.Read(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key.String(), err)
	}
	return true, nil
}

// WriteJSON encodes v and stores it under key.
func WriteJSON(ctx context.Context, store Store, key Key, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key.String(), err)
	}
	return store.Write(ctx, key, data)
}
