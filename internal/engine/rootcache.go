package engine

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Current schema version - increment when rootPayload format changes
const rootCacheSchemaVersion uint16 = 1

// RootCache persists resolved global package roots between server runs, so a
// fresh server does not have to shell out to the package manager before the
// first lint. Thread-safe for concurrent access.
type RootCache struct {
	mu   sync.Mutex
	path string
}

type rootPayload struct {
	Schema uint16
	Roots  map[string]string
}

// OpenRootCache initializes the cache file at the standard location.
func OpenRootCache(app string) (*RootCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &RootCache{path: filepath.Join(dir, "global-roots.mp")}, nil
}

// All returns every persisted root, keyed by package manager.
func (c *RootCache) All() map[PackageManager]string {
	out := make(map[PackageManager]string)
	if c == nil {
		return out
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	payload, err := c.load()
	if err != nil {
		return out
	}
	for pm, root := range payload.Roots {
		out[PackageManager(pm)] = root
	}
	return out
}

// Put records the global root for a package manager and rewrites the file
// atomically.
func (c *RootCache) Put(pm PackageManager, root string) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := c.load()
	if err != nil {
		payload = &rootPayload{Schema: rootCacheSchemaVersion, Roots: make(map[string]string)}
	}
	payload.Roots[string(pm)] = root

	f, err := os.CreateTemp(filepath.Dir(c.path), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(f.Name())
	}()
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), c.path)
}

func (c *RootCache) load() (*rootPayload, error) {
	f, err := os.Open(c.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &rootPayload{Schema: rootCacheSchemaVersion, Roots: make(map[string]string)}, nil
		}
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	var payload rootPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Schema != rootCacheSchemaVersion {
		return &rootPayload{Schema: rootCacheSchemaVersion, Roots: make(map[string]string)}, nil
	}
	if payload.Roots == nil {
		payload.Roots = make(map[string]string)
	}
	return &payload, nil
}
