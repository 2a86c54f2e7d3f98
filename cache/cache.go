// Package cache provides a Pebble-backed local key-value store with
// write debouncing, used to keep inventory and session state on disk
// between runs.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// Sentinel errors returned by cache operations.
var (
	// ErrNotFound is returned when a key has no value.
	ErrNotFound = errors.New("cache: key not found")

	// ErrClosed is returned when the cache has been closed.
	ErrClosed = errors.New("cache: closed")
)

// Config holds configuration for the Cache.
type Config struct {
	// Path is the directory holding the Pebble database.
	// Required.
	Path string

	// FlushInterval is how long writes coalesce in memory before they
	// are flushed to disk. Each write restarts the timer, so a burst of
	// updates costs a single disk write.
	// Default: 750ms
	FlushInterval time.Duration

	// Logger receives flush failures from the background timer.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		FlushInterval: 750 * time.Millisecond,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 750 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// entry is a pending write. A nil value with deleted set is a tombstone.
type entry struct {
	value   []byte
	deleted bool
}

// Cache is a durable key-value store. Reads see pending writes
// immediately; the disk catches up after the debounce interval or on
// Flush/Close.
type Cache struct {
	db     *pebble.DB
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	dirty  map[string]entry
	timer  *time.Timer
	closed bool

	// flushMu serializes flushers against Close so a batch commit
	// never races the database shutting down.
	flushMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Open opens (or creates) the cache at cfg.Path.
func Open(cfg Config) (*Cache, error) {
	cfg.validate()
	if cfg.Path == "" {
		return nil, errors.New("cache: path is required")
	}

	db, err := pebble.Open(cfg.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", cfg.Path, err)
	}

	return &Cache{
		db:     db,
		cfg:    cfg,
		logger: cfg.Logger,
		dirty:  make(map[string]entry),
	}, nil
}

// Get returns the value for key. Pending writes are visible before
// they reach disk.
func (c *Cache) Get(key string) ([]byte, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if e, ok := c.dirty[key]; ok {
		c.mu.Unlock()
		if e.deleted {
			return nil, ErrNotFound
		}
		out := make([]byte, len(e.value))
		copy(out, e.value)
		return out, nil
	}
	c.mu.Unlock()

	val, closer, err := c.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %q: %w", key, err)
	}
	out := make([]byte, len(val))
	copy(out, val)
	_ = closer.Close()
	return out, nil
}

// Put records a value for key. The write is visible to Get immediately
// and reaches disk after the debounce interval.
func (c *Cache) Put(key string, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.dirty[key] = entry{value: buf}
	c.scheduleLocked()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.dirty[key] = entry{deleted: true}
	c.scheduleLocked()
	return nil
}

// scheduleLocked arms (or re-arms) the debounce timer. Caller holds mu.
func (c *Cache) scheduleLocked() {
	if c.timer != nil {
		c.timer.Reset(c.cfg.FlushInterval)
		return
	}
	c.timer = time.AfterFunc(c.cfg.FlushInterval, func() {
		if err := c.Flush(); err != nil && err != ErrClosed {
			c.logger.Error("cache flush failed", "error", err)
		}
	})
}

// Flush writes all pending entries to disk synchronously.
func (c *Cache) Flush() error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.flush()
}

// flush does the batch write. Caller holds flushMu.
func (c *Cache) flush() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if len(c.dirty) == 0 {
		c.mu.Unlock()
		return nil
	}
	pending := c.dirty
	c.dirty = make(map[string]entry)
	c.mu.Unlock()

	batch := c.db.NewBatch()
	for key, e := range pending {
		if e.deleted {
			_ = batch.Delete([]byte(key), nil)
		} else {
			_ = batch.Set([]byte(key), e.value, nil)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		// Put the failed entries back so the next flush retries them,
		// without clobbering anything written since.
		c.mu.Lock()
		for key, e := range pending {
			if _, ok := c.dirty[key]; !ok {
				c.dirty[key] = e
			}
		}
		c.mu.Unlock()
		return fmt.Errorf("cache: flush: %w", err)
	}
	return nil
}

// Close flushes pending writes and closes the database. It is safe to
// call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.flushMu.Lock()
		err := c.flush()

		c.mu.Lock()
		c.closed = true
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.mu.Unlock()

		if cerr := c.db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("cache: close: %w", cerr)
		}
		c.flushMu.Unlock()
		c.closeErr = err
	})
	return c.closeErr
}
