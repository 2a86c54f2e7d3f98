package tracker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/davparache/auditory-updated/cache"
	"github.com/davparache/auditory-updated/inventory"
	"github.com/davparache/auditory-updated/tracker"
	"github.com/davparache/auditory-updated/zone"
)

// TestMain ensures the push worker never outlives its tracker.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakePusher records pushes and plays the engine's write-access role.
type fakePusher struct {
	mu       sync.Mutex
	readOnly bool
	err      error
	pushes   []inventory.Map
}

func (p *fakePusher) Push(_ context.Context, m inventory.Map) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, m.Clone())
	return p.err
}

func (p *fakePusher) ReadOnly() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readOnly
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pushes)
}

func (p *fakePusher) last() inventory.Map {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pushes) == 0 {
		return nil
	}
	return p.pushes[len(p.pushes)-1]
}

func openCache(t *testing.T, dir string) *cache.Cache {
	t.Helper()
	c, err := cache.Open(cache.Config{
		Path:          dir,
		FlushInterval: 10 * time.Millisecond,
		Logger:        discardLogger,
	})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func newTracker(t *testing.T) *tracker.Tracker {
	t.Helper()
	c := openCache(t, t.TempDir())
	tr, err := tracker.New(tracker.Config{Cache: c, Logger: discardLogger})
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// --- Mutations ---

func TestUpsert_NormalizesAndStamps(t *testing.T) {
	tr := newTracker(t)

	stored, err := tr.Upsert(inventory.Item{Part: " ab-100 ", Bin: " 307a ", Qty: 4})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if stored.Part != "AB-100" {
		t.Errorf("expected normalized part, got %q", stored.Part)
	}
	if stored.Bin != "307A" {
		t.Errorf("expected normalized bin, got %q", stored.Bin)
	}
	if stored.LastUpdated == "" {
		t.Error("expected LastUpdated stamped")
	}

	item, ok := tr.Item("ab-100")
	if !ok {
		t.Fatal("expected item findable by lower-case part")
	}
	if item.Qty != 4 {
		t.Errorf("expected qty 4, got %d", item.Qty)
	}
}

func TestUpsert_EmptyPart(t *testing.T) {
	tr := newTracker(t)

	if _, err := tr.Upsert(inventory.Item{Part: "   "}); !errors.Is(err, tracker.ErrEmptyPart) {
		t.Errorf("expected ErrEmptyPart, got %v", err)
	}
}

func TestUpsert_ReplacesWholesale(t *testing.T) {
	tr := newTracker(t)

	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Qty: 4, Description: "starter"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Qty: 5}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	item, _ := tr.Item("AB-100")
	if item.Description != "" {
		t.Errorf("expected description dropped by full replace, got %q", item.Description)
	}
	if item.Qty != 5 {
		t.Errorf("expected qty 5, got %d", item.Qty)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	tr := newTracker(t)

	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Qty: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tr.Remove("ab-100"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := tr.Remove("ab-100"); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if tr.Len() != 0 {
		t.Errorf("expected empty inventory, got %d items", tr.Len())
	}
}

func TestBulkReplace_DropsAbsent(t *testing.T) {
	tr := newTracker(t)

	if _, err := tr.Upsert(inventory.Item{Part: "OLD-1", Qty: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := tr.Upsert(inventory.Item{Part: "OLD-2", Qty: 2}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	next := inventory.Map{"NEW-1": {Part: "NEW-1", Qty: 9}}
	if err := tr.BulkReplace(next); err != nil {
		t.Fatalf("bulk replace: %v", err)
	}

	if tr.Len() != 1 {
		t.Fatalf("expected 1 item after replace, got %d", tr.Len())
	}
	if _, ok := tr.Item("OLD-1"); ok {
		t.Error("expected OLD-1 dropped")
	}
	if _, ok := tr.Item("NEW-1"); !ok {
		t.Error("expected NEW-1 present")
	}
}

func TestApplyAudit_MergesDoneEntriesOnly(t *testing.T) {
	tr := newTracker(t)

	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Bin: "307A", Qty: 4, Description: "starter"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	err := tr.ApplyAudit([]inventory.AuditEntry{
		{Part: "AB-100", Bin: "308B", Qty: 7, Done: true},
		{Part: "CD-200", Bin: "309C", Qty: 1, Done: false},
		{Part: "EF-300", Bin: "NG-2", Qty: 2, Done: true},
	})
	if err != nil {
		t.Fatalf("apply audit: %v", err)
	}

	item, _ := tr.Item("AB-100")
	if item.Qty != 7 || item.Bin != "308B" {
		t.Errorf("expected counted values, got qty %d bin %q", item.Qty, item.Bin)
	}
	if item.Description != "starter" {
		t.Errorf("expected description preserved, got %q", item.Description)
	}
	if _, ok := tr.Item("CD-200"); ok {
		t.Error("expected undone entry ignored")
	}
	if _, ok := tr.Item("EF-300"); !ok {
		t.Error("expected done entry for unknown part created")
	}
}

// --- Write Access ---

func TestMutationsRejectedWhenReadOnly(t *testing.T) {
	tr := newTracker(t)
	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Qty: 4}); err != nil {
		t.Fatalf("seed upsert: %v", err)
	}

	pusher := &fakePusher{readOnly: true}
	tr.AttachEngine(pusher)

	if _, err := tr.Upsert(inventory.Item{Part: "CD-200", Qty: 1}); !errors.Is(err, tracker.ErrReadOnly) {
		t.Errorf("expected upsert rejected, got %v", err)
	}
	if err := tr.Remove("AB-100"); !errors.Is(err, tracker.ErrReadOnly) {
		t.Errorf("expected remove rejected, got %v", err)
	}
	if err := tr.BulkReplace(inventory.Map{}); !errors.Is(err, tracker.ErrReadOnly) {
		t.Errorf("expected bulk replace rejected, got %v", err)
	}
	if err := tr.ApplyAudit([]inventory.AuditEntry{{Part: "AB-100", Qty: 9, Done: true}}); !errors.Is(err, tracker.ErrReadOnly) {
		t.Errorf("expected audit rejected, got %v", err)
	}

	if tr.Len() != 1 {
		t.Errorf("expected inventory untouched, got %d items", tr.Len())
	}
	if pusher.count() != 0 {
		t.Errorf("expected no pushes, got %d", pusher.count())
	}
}

func TestOfflineMutationsAllowed(t *testing.T) {
	tr := newTracker(t)

	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Qty: 4}); err != nil {
		t.Fatalf("expected offline upsert allowed, got %v", err)
	}
}

// --- Sync ---

func TestMutationPushesWhenAdmin(t *testing.T) {
	tr := newTracker(t)
	pusher := &fakePusher{}
	tr.AttachEngine(pusher)

	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Qty: 4}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	waitFor(t, "push", func() bool { return pusher.count() >= 1 })
	if _, ok := pusher.last()["AB-100"]; !ok {
		t.Error("expected pushed map to carry the new part")
	}
}

func TestPushFailureKeepsLocalMutation(t *testing.T) {
	tr := newTracker(t)
	pusher := &fakePusher{err: errors.New("backend down")}
	tr.AttachEngine(pusher)

	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Qty: 4}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	waitFor(t, "failed push attempt", func() bool { return pusher.count() >= 1 })
	if _, ok := tr.Item("AB-100"); !ok {
		t.Error("expected local mutation kept after push failure")
	}
}

func TestApplySnapshot_DoesNotPushBack(t *testing.T) {
	tr := newTracker(t)
	pusher := &fakePusher{}
	tr.AttachEngine(pusher)

	tr.ApplySnapshot(inventory.Map{"AB-100": {Part: "AB-100", Qty: 4}}, false)

	if _, ok := tr.Item("AB-100"); !ok {
		t.Fatal("expected snapshot applied")
	}
	time.Sleep(50 * time.Millisecond)
	if pusher.count() != 0 {
		t.Errorf("expected no push echo, got %d", pusher.count())
	}
}

func TestApplySnapshot_Idempotent(t *testing.T) {
	tr := newTracker(t)

	snap := inventory.Map{"AB-100": {Part: "AB-100", Qty: 4}}
	tr.ApplySnapshot(snap, false)
	tr.ApplySnapshot(snap, false)

	if tr.Len() != 1 {
		t.Errorf("expected 1 item, got %d", tr.Len())
	}
	item, _ := tr.Item("AB-100")
	if item.Qty != 4 {
		t.Errorf("expected qty 4, got %d", item.Qty)
	}
}

// --- Persistence ---

func TestReopen_RestoresInventory(t *testing.T) {
	dir := t.TempDir()

	c := openCache(t, dir)
	tr, err := tracker.New(tracker.Config{Cache: c, Logger: discardLogger})
	if err != nil {
		t.Fatalf("new tracker: %v", err)
	}
	if _, err := tr.Upsert(inventory.Item{Part: "AB-100", Bin: "307A", Qty: 4}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close tracker: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close cache: %v", err)
	}

	c2 := openCache(t, dir)
	tr2, err := tracker.New(tracker.Config{Cache: c2, Logger: discardLogger})
	if err != nil {
		t.Fatalf("reopen tracker: %v", err)
	}
	t.Cleanup(func() { tr2.Close() })

	item, ok := tr2.Item("AB-100")
	if !ok {
		t.Fatal("expected inventory restored from cache")
	}
	if item.Bin != "307A" || item.Qty != 4 {
		t.Errorf("expected restored values, got bin %q qty %d", item.Bin, item.Qty)
	}
}

func TestCorruptCacheStartsEmpty(t *testing.T) {
	c := openCache(t, t.TempDir())
	if err := c.Put("inventory", []byte("{broken")); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	tr, err := tracker.New(tracker.Config{Cache: c, Logger: discardLogger})
	if err != nil {
		t.Fatalf("expected tracker to start despite corrupt cache, got %v", err)
	}
	t.Cleanup(func() { tr.Close() })

	if tr.Len() != 0 {
		t.Errorf("expected empty inventory, got %d items", tr.Len())
	}
}

// --- Zones ---

func TestZones_GroupsBins(t *testing.T) {
	tr := newTracker(t)

	seed := []inventory.Item{
		{Part: "AB-100", Bin: "307A", Qty: 1},
		{Part: "CD-200", Bin: "307B", Qty: 1},
		{Part: "EF-300", Bin: "NG-2", Qty: 1},
		{Part: "GH-400", Bin: "", Qty: 1},
	}
	for _, item := range seed {
		if _, err := tr.Upsert(item); err != nil {
			t.Fatalf("upsert %s: %v", item.Part, err)
		}
	}

	zones := tr.Zones()
	if got := zones["307"].TotalItems; got != 2 {
		t.Errorf("expected 2 items in aisle 307, got %d", got)
	}
	if got := zones[zone.GroupOverflow].TotalItems; got != 1 {
		t.Errorf("expected 1 overflow item, got %d", got)
	}
	if got := zones[zone.GroupNoLocation].TotalItems; got != 1 {
		t.Errorf("expected 1 unlocated item, got %d", got)
	}
}

// --- Lifecycle ---

func TestClose_Idempotent(t *testing.T) {
	tr := newTracker(t)

	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMutationsAfterClose(t *testing.T) {
	tr := newTracker(t)
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := tr.Upsert(inventory.Item{Part: "AB-100"}); !errors.Is(err, tracker.ErrClosed) {
		t.Errorf("expected ErrClosed from upsert, got %v", err)
	}
	if err := tr.Remove("AB-100"); !errors.Is(err, tracker.ErrClosed) {
		t.Errorf("expected ErrClosed from remove, got %v", err)
	}
}

func TestNew_RequiresCache(t *testing.T) {
	if _, err := tracker.New(tracker.Config{}); err == nil {
		t.Error("expected error for missing cache")
	}
}
