// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache stores downloaded artifacts on disk, content-addressed by
// the hash of the paper's canonical id. Entries carry a TTL in a YAML
// sidecar; a sweep evicts expired entries first and falls back to LRU when
// the store is over capacity.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/sesla/securipaperbot/internal/fetch"
	"github.com/sesla/securipaperbot/pkg/types"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

const (
	binSuffix  = ".bin"
	metaSuffix = ".meta.yaml"
)

// entryMeta is the sidecar record persisted next to each payload.
type entryMeta struct {
	Key        string        `yaml:"key"`
	CreatedAt  time.Time     `yaml:"created_at"`
	LastAccess time.Time     `yaml:"last_access_at"`
	Size       int64         `yaml:"size"`
	TTL        time.Duration `yaml:"ttl"`
}

func (m entryMeta) expired(now time.Time) bool {
	return m.TTL > 0 && now.Sub(m.CreatedAt) > m.TTL
}

// Cache is the on-disk artifact store. The index of entry metadata is held
// in memory under mu; payload and sidecar I/O for a key is serialized by a
// per-key lock, so operations on distinct keys proceed independently.
// Entries are evicted only by the cache's own sweep, never by callers.
type Cache struct {
	dir     string
	maxSize int64
	ttl     time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	index map[string]entryMeta
	total int64

	keyLocks sync.Map // key -> *sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// New opens the cache directory, rebuilds the index from the sidecar
// files, and starts the background sweep when a cleanup interval is
// configured.
func New(cfg types.CacheConfig, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fetch.CacheIO("create cache dir", err)
	}

	c := &Cache{
		dir:     cfg.Path,
		maxSize: cfg.MaxSize,
		ttl:     cfg.TTL,
		logger:  logger,
		index:   make(map[string]entryMeta),
		done:    make(chan struct{}),
	}
	if err := c.loadIndex(); err != nil {
		return nil, err
	}

	if cfg.CleanupInterval > 0 {
		go c.sweepLoop(cfg.CleanupInterval)
	}
	return c, nil
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Cache) loadIndex() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fetch.CacheIO("read cache dir", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, e.Name()))
		if err != nil {
			c.logger.Warn("unreadable cache sidecar", "file", e.Name(), "err", err)
			continue
		}
		var m entryMeta
		if err := yaml.Unmarshal(data, &m); err != nil || m.Key == "" {
			c.logger.Warn("corrupt cache sidecar", "file", e.Name())
			continue
		}
		c.index[m.Key] = m
		c.total += m.Size
	}
	return nil
}

func (c *Cache) keyLock(key string) *sync.Mutex {
	l, _ := c.keyLocks.LoadOrStore(key, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (c *Cache) binPath(key string) string  { return filepath.Join(c.dir, key+binSuffix) }
func (c *Cache) metaPath(key string) string { return filepath.Join(c.dir, key+metaSuffix) }

// Get returns the payload for key, or ErrMiss when the key is absent or
// its TTL has elapsed. Expired entries are removed; a hit refreshes the
// entry's last-access time.
func (c *Cache) Get(key string) ([]byte, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	m, ok := c.index[key]
	if ok && m.expired(time.Now()) {
		delete(c.index, key)
		c.total -= m.Size
		c.mu.Unlock()
		c.removeFiles(key)
		return nil, ErrMiss
	}
	if !ok {
		c.mu.Unlock()
		return nil, ErrMiss
	}
	m.LastAccess = time.Now()
	c.index[key] = m
	c.mu.Unlock()

	data, err := os.ReadFile(c.binPath(key))
	if err != nil {
		return nil, fetch.CacheIO("read cache entry", err)
	}
	if err := c.writeMeta(m); err != nil {
		c.logger.Warn("cache sidecar update failed", "key", key, "err", err)
	}
	return data, nil
}

// Put stores data under key. The write is atomic (temp file then rename)
// and idempotent for the same key: the last write wins. If admission would
// push the store over capacity, the sweep runs first.
func (c *Cache) Put(key string, data []byte) error {
	needed := int64(len(data))
	if c.maxSize > 0 && needed > c.maxSize {
		return fetch.CacheIO("cache put", fmt.Errorf("entry of %d bytes exceeds cache capacity %d", len(data), c.maxSize))
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	// Retire any previous version of this key from the accounting before
	// admission, so replacement never double-counts.
	c.mu.Lock()
	if old, ok := c.index[key]; ok {
		delete(c.index, key)
		c.total -= old.Size
	}
	c.mu.Unlock()

	if err := c.reserve(needed); err != nil {
		return err
	}

	if err := atomicWrite(c.binPath(key), data); err != nil {
		c.release(needed)
		return fetch.CacheIO("write cache entry", err)
	}

	now := time.Now()
	m := entryMeta{
		Key:        key,
		CreatedAt:  now,
		LastAccess: now,
		Size:       needed,
		TTL:        c.ttl,
	}
	if err := c.writeMeta(m); err != nil {
		os.Remove(c.binPath(key))
		c.release(needed)
		return err
	}

	// The reservation already counted the bytes, so only the index entry
	// is added here.
	c.mu.Lock()
	c.index[key] = m
	c.mu.Unlock()
	return nil
}

// reserve evicts entries until needed bytes fit under the cap, then counts
// them into the byte total in the same critical section that passed the
// check. Concurrent admissions therefore cannot jointly overshoot the cap:
// each sees the others' reservations. The caller must insert an index entry
// of exactly that size or call release on failure. Expired entries are
// evicted first, then least-recently-accessed.
func (c *Cache) reserve(needed int64) error {
	for {
		c.mu.Lock()
		if c.maxSize <= 0 || c.total+needed <= c.maxSize {
			c.total += needed
			c.mu.Unlock()
			return nil
		}
		victim := c.pickVictim(time.Now())
		c.mu.Unlock()

		if victim == "" {
			return fetch.CacheIO("cache admission", fmt.Errorf("cannot free %d bytes", needed))
		}
		c.remove(victim)
	}
}

// release returns a reservation after a failed write.
func (c *Cache) release(n int64) {
	c.mu.Lock()
	c.total -= n
	c.mu.Unlock()
}

// pickVictim chooses the next entry to evict. Caller holds mu.
func (c *Cache) pickVictim(now time.Time) string {
	var oldest string
	var oldestAccess time.Time
	for key, m := range c.index {
		if m.expired(now) {
			return key
		}
		if oldest == "" || m.LastAccess.Before(oldestAccess) {
			oldest = key
			oldestAccess = m.LastAccess
		}
	}
	return oldest
}

// remove drops one entry: index first, then files, under the key lock.
func (c *Cache) remove(key string) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	c.mu.Lock()
	if m, ok := c.index[key]; ok {
		delete(c.index, key)
		c.total -= m.Size
	}
	c.mu.Unlock()

	c.removeFiles(key)
}

func (c *Cache) removeFiles(key string) {
	os.Remove(c.binPath(key))
	os.Remove(c.metaPath(key))
}

func (c *Cache) writeMeta(m entryMeta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fetch.CacheIO("marshal cache sidecar", err)
	}
	if err := atomicWrite(c.metaPath(m.Key), data); err != nil {
		return fetch.CacheIO("write cache sidecar", err)
	}
	return nil
}

// atomicWrite writes data to path via a temp file and rename, so readers
// never observe a partial entry.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return writeErr
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return closeErr
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Stats reports the entry count and total bytes on disk.
func (c *Cache) Stats() (entries int, bytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index), c.total
}

// Sweep removes expired entries and, if the store is still over capacity,
// least-recently-accessed entries until it fits.
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	var expired []string
	for key, m := range c.index {
		if m.expired(now) {
			expired = append(expired, key)
		}
	}
	c.mu.Unlock()

	for _, key := range expired {
		c.remove(key)
	}
	if len(expired) > 0 {
		c.logger.Debug("cache sweep removed expired entries", "count", len(expired))
	}

	if c.maxSize <= 0 {
		return
	}
	for {
		c.mu.Lock()
		if c.total <= c.maxSize {
			c.mu.Unlock()
			return
		}
		victim := c.pickVictim(now)
		c.mu.Unlock()
		if victim == "" {
			return
		}
		c.remove(victim)
	}
}

// Keys returns the cached keys sorted for deterministic listings.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Sweep(time.Now())
		}
	}
}
