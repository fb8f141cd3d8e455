package team

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type cachedConfig struct {
	cfg     Config
	modTime time.Time
	size    int64
}

// ConfigCache memoizes decoded configs by resolved path. An entry is
// reused only while the file's modification time and size are unchanged;
// writers in this process call Invalidate after saving. A nil cache is
// valid and caches nothing.
type ConfigCache struct {
	mu      sync.RWMutex
	entries map[string]cachedConfig
}

// NewConfigCache returns an empty cache.
func NewConfigCache() *ConfigCache {
	return &ConfigCache{entries: make(map[string]cachedConfig)}
}

func resolve(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return path
}

// Load returns the cached config for path, calling load on a miss.
func (c *ConfigCache) Load(path string, load func() (Config, error)) (Config, error) {
	if c == nil {
		return load()
	}
	key := resolve(path)
	info, statErr := os.Stat(key)

	if statErr == nil {
		c.mu.RLock()
		entry, ok := c.entries[key]
		c.mu.RUnlock()
		if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
			return cloneConfig(entry.cfg), nil
		}
	}

	cfg, err := load()
	if err != nil {
		c.Invalidate(path)
		return Config{}, err
	}
	if statErr == nil {
		c.mu.Lock()
		c.entries[key] = cachedConfig{cfg: cloneConfig(cfg), modTime: info.ModTime(), size: info.Size()}
		c.mu.Unlock()
	}
	return cfg, nil
}

// Invalidate drops the entry for path.
func (c *ConfigCache) Invalidate(path string) {
	if c == nil {
		return
	}
	key := resolve(path)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll empties the cache.
func (c *ConfigCache) InvalidateAll() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]cachedConfig)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *ConfigCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cloneConfig copies the slices and maps of cfg so cached values cannot be
// mutated through a returned config.
func cloneConfig(cfg Config) Config {
	workers := make([]Worker, len(cfg.Workers))
	for i, w := range cfg.Workers {
		w.AssignedTasks = append([]string(nil), w.AssignedTasks...)
		workers[i] = w
	}
	cfg.Workers = workers
	if cfg.Extra != nil {
		extra := make(map[string]json.RawMessage, len(cfg.Extra))
		for k, v := range cfg.Extra {
			extra[k] = append(json.RawMessage(nil), v...)
		}
		cfg.Extra = extra
	}
	return cfg
}
