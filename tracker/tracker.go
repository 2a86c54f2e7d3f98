// Package tracker maintains the working inventory: the in-memory map,
// its cached copy on disk, and the remote session it syncs with.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/davparache/auditory-updated/cache"
	"github.com/davparache/auditory-updated/inventory"
	"github.com/davparache/auditory-updated/session"
	"github.com/davparache/auditory-updated/zone"
)

// ErrReadOnly is returned when a mutation arrives while the session is
// read-only.
var ErrReadOnly = errors.New("tracker: session is read-only")

// ErrEmptyPart is returned when an upsert carries a blank part number.
var ErrEmptyPart = errors.New("tracker: part number is required")

// ErrClosed is returned when the tracker has been closed.
var ErrClosed = errors.New("tracker: closed")

// pushTimeout caps a single remote push.
const pushTimeout = 30 * time.Second

// Pusher is the remote side of the tracker, satisfied by
// *session.Engine. A nil Pusher means offline: mutations are allowed
// and nothing is pushed.
type Pusher interface {
	// Push uploads the full inventory snapshot.
	Push(ctx context.Context, m inventory.Map) error

	// ReadOnly reports whether the live session denies writes.
	ReadOnly() bool
}

// Config holds configuration for the Tracker.
type Config struct {
	// Cache persists the inventory between runs. Required.
	Cache *cache.Cache

	// CacheKey is the cache key the inventory lives under.
	// Default: "inventory"
	CacheKey string

	// Logger receives persistence and push diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.CacheKey == "" {
		c.CacheKey = "inventory"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Tracker owns the working inventory map. All mutations go through it
// so the map steps atomically between consistent values: they persist
// to the cache immediately (the cache debounces the disk write) and
// wake the push worker when an admin session is live.
type Tracker struct {
	config Config
	logger *slog.Logger

	mu     sync.Mutex
	inv    inventory.Map
	engine Pusher
	closed bool

	pushCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New creates a Tracker, loading the inventory cached by an earlier
// run. A cache entry that no longer decodes is discarded so a bad
// shutdown can't brick the device.
func New(config Config) (*Tracker, error) {
	if config.Cache == nil {
		return nil, errors.New("tracker: config needs a cache")
	}
	config.validate()

	t := &Tracker{
		config: config,
		logger: config.Logger,
		inv:    inventory.Map{},
		pushCh: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	data, err := config.Cache.Get(config.CacheKey)
	switch {
	case err == nil:
		m, derr := inventory.Decode(data)
		if derr != nil {
			t.logger.Warn("discarding unreadable cached inventory", "error", derr)
			m = inventory.Map{}
		}
		t.inv = m
	case errors.Is(err, cache.ErrNotFound):
	default:
		return nil, fmt.Errorf("load cached inventory: %w", err)
	}

	go t.pushLoop()
	return t, nil
}

// AttachEngine connects the tracker to a sync engine. Pass the engine
// before calling its Connect so no snapshot is missed.
func (t *Tracker) AttachEngine(p Pusher) {
	t.mu.Lock()
	t.engine = p
	t.mu.Unlock()
}

// Items returns an independent copy of the inventory.
func (t *Tracker) Items() inventory.Map {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inv.Clone()
}

// Item returns one entry by part number.
func (t *Tracker) Item(part string) (inventory.Item, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.inv[inventory.NormalizePart(part)]
	return item, ok
}

// Len returns the number of tracked parts.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inv)
}

// Zones classifies every bin and returns the derived zone tree.
func (t *Tracker) Zones() map[string]zone.Group {
	t.mu.Lock()
	defer t.mu.Unlock()
	return zone.Hierarchy(t.inv)
}

// Upsert writes one entry wholesale, normalizing the part and bin and
// stamping LastUpdated. It returns the entry as stored.
func (t *Tracker) Upsert(item inventory.Item) (inventory.Item, error) {
	item.Part = inventory.NormalizePart(item.Part)
	if item.Part == "" {
		return inventory.Item{}, ErrEmptyPart
	}
	item.Bin = inventory.NormalizeBin(item.Bin)
	item.LastUpdated = inventory.Timestamp(time.Now())

	t.mu.Lock()
	if err := t.writableLocked(); err != nil {
		t.mu.Unlock()
		return inventory.Item{}, err
	}
	t.inv[item.Part] = item
	t.persistLocked()
	t.mu.Unlock()

	t.kickPush()
	return item, nil
}

// Remove deletes one entry. Removing an unknown part is a no-op.
func (t *Tracker) Remove(part string) error {
	p := inventory.NormalizePart(part)

	t.mu.Lock()
	if err := t.writableLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	if _, ok := t.inv[p]; !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.inv, p)
	t.persistLocked()
	t.mu.Unlock()

	t.kickPush()
	return nil
}

// BulkReplace swaps in a whole new inventory, dropping everything the
// new map doesn't mention.
func (t *Tracker) BulkReplace(m inventory.Map) error {
	t.mu.Lock()
	if err := t.writableLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.inv = m.Clone()
	t.persistLocked()
	t.mu.Unlock()

	t.kickPush()
	return nil
}

// ApplyAudit merges completed count-sheet entries into the inventory.
// This is the only partial merge in the system: untouched fields and
// unmentioned parts survive.
func (t *Tracker) ApplyAudit(entries []inventory.AuditEntry) error {
	t.mu.Lock()
	if err := t.writableLocked(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.inv = t.inv.ApplyAudit(entries)
	t.persistLocked()
	t.mu.Unlock()

	t.kickPush()
	return nil
}

// ApplySnapshot replaces the inventory with a remote snapshot. It is
// the engine's OnSnapshot callback: remote state wins wholesale, and
// nothing is pushed back.
func (t *Tracker) ApplySnapshot(m inventory.Map, readOnly bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.inv = m.Clone()
	t.persistLocked()
	t.mu.Unlock()

	t.logger.Debug("snapshot applied", "items", len(m), "readOnly", readOnly)
}

// Close stops the push worker, letting a queued push drain first, and
// flushes the cache. Further mutations fail with ErrClosed.
func (t *Tracker) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		t.mu.Unlock()

		close(t.pushCh)
		<-t.done
		t.closeErr = t.config.Cache.Flush()
	})
	return t.closeErr
}

// writableLocked rejects mutations once closed or while the attached
// session is read-only.
func (t *Tracker) writableLocked() error {
	if t.closed {
		return ErrClosed
	}
	if t.engine != nil && t.engine.ReadOnly() {
		return ErrReadOnly
	}
	return nil
}

// persistLocked hands the serialized map to the cache. Persistence
// trouble is logged, never propagated: the in-memory map is the source
// of truth and a flaky disk must not reject counts.
func (t *Tracker) persistLocked() {
	data, err := t.inv.Encode()
	if err != nil {
		t.logger.Error("encode inventory", "error", err)
		return
	}
	if err := t.config.Cache.Put(t.config.CacheKey, data); err != nil {
		t.logger.Error("persist inventory", "error", err)
	}
}

// kickPush wakes the push worker. The slot is conflated: however many
// mutations land while a push is in flight, one follow-up push uploads
// the then-current map. The mu check keeps the send from racing Close.
func (t *Tracker) kickPush() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.pushCh <- struct{}{}:
	default:
	}
}

// pushLoop uploads the current inventory whenever kicked. A failed
// push only logs: the mutation already landed locally and the next
// mutation or reconnect retries.
func (t *Tracker) pushLoop() {
	defer close(t.done)

	for range t.pushCh {
		t.mu.Lock()
		engine := t.engine
		m := t.inv.Clone()
		t.mu.Unlock()

		if engine == nil || engine.ReadOnly() {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		err := engine.Push(ctx, m)
		cancel()
		switch {
		case err == nil:
		case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrReadOnly):
			// Expected while offline or demoted; the map is safe locally.
			t.logger.Debug("push skipped", "reason", err)
		default:
			t.logger.Error("inventory push failed", "error", err)
		}
	}
}
