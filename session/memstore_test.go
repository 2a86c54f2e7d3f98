package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/davparache/auditory-updated/session"
)

// --- Conditional writes ---

func TestMemStore_GetMissing(t *testing.T) {
	st := session.NewMemStore()

	_, err := st.Get(context.Background(), "NOPE")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_CreateTwice(t *testing.T) {
	st := session.NewMemStore()
	doc := session.Document{ID: "DAY1", AdminPin: "1234", JSON: "{}"}

	if err := st.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := st.Create(context.Background(), doc)
	if !errors.Is(err, session.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestMemStore_ClaimMissing(t *testing.T) {
	st := session.NewMemStore()

	err := st.Claim(context.Background(), "NOPE", "1234", "2025-03-09T12:00:00Z")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_ClaimSetsPinOnce(t *testing.T) {
	st := session.NewMemStore()
	if err := st.Create(context.Background(), session.Document{ID: "DAY1", JSON: "{}"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := st.Claim(context.Background(), "DAY1", "1234", "2025-03-09T12:00:00Z"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	doc, err := st.Get(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.AdminPin != "1234" {
		t.Errorf("expected pin '1234', got %q", doc.AdminPin)
	}
	if doc.Updated != "2025-03-09T12:00:00Z" {
		t.Errorf("expected claim to stamp updated, got %q", doc.Updated)
	}

	err = st.Claim(context.Background(), "DAY1", "9999", "2025-03-09T12:01:00Z")
	if !errors.Is(err, session.ErrAlreadyClaimed) {
		t.Errorf("expected ErrAlreadyClaimed, got %v", err)
	}
	doc, _ = st.Get(context.Background(), "DAY1")
	if doc.AdminPin != "1234" {
		t.Errorf("expected pin to survive failed claim, got %q", doc.AdminPin)
	}
}

func TestMemStore_UpdateSnapshotChecksPin(t *testing.T) {
	st := session.NewMemStore()
	seed := session.Document{ID: "DAY1", AdminPin: "1234", JSON: "{}"}
	if err := st.Create(context.Background(), seed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	err := st.UpdateSnapshot(context.Background(), "DAY1", "9999", `{"X":{}}`, "2025-03-09T12:00:00Z")
	if !errors.Is(err, session.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}

	if err := st.UpdateSnapshot(context.Background(), "DAY1", "1234", `{"X":{}}`, "2025-03-09T12:00:00Z"); err != nil {
		t.Fatalf("UpdateSnapshot failed: %v", err)
	}
	doc, _ := st.Get(context.Background(), "DAY1")
	if doc.JSON != `{"X":{}}` {
		t.Errorf("expected payload to update, got %q", doc.JSON)
	}
}

func TestMemStore_UpdateSnapshotMissing(t *testing.T) {
	st := session.NewMemStore()

	err := st.UpdateSnapshot(context.Background(), "NOPE", "1234", "{}", "2025-03-09T12:00:00Z")
	if !errors.Is(err, session.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStore_TouchCreatesBareDocument(t *testing.T) {
	st := session.NewMemStore()

	if err := st.Touch(context.Background(), "DAY1", "2025-03-09T12:00:00Z"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	doc, err := st.Get(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.AdminPin != "" || doc.JSON != "" {
		t.Errorf("expected bare document, got pin %q payload %q", doc.AdminPin, doc.JSON)
	}
	if doc.Updated != "2025-03-09T12:00:00Z" {
		t.Errorf("expected touched timestamp, got %q", doc.Updated)
	}
}

func TestMemStore_TouchLeavesPayloadAlone(t *testing.T) {
	st := session.NewMemStore()
	seed := session.Document{ID: "DAY1", AdminPin: "1234", JSON: `{"X":{}}`}
	if err := st.Create(context.Background(), seed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := st.Touch(context.Background(), "DAY1", "2025-03-09T13:00:00Z"); err != nil {
		t.Fatalf("Touch failed: %v", err)
	}
	doc, _ := st.Get(context.Background(), "DAY1")
	if doc.AdminPin != "1234" {
		t.Errorf("expected pin untouched, got %q", doc.AdminPin)
	}
	if doc.JSON != `{"X":{}}` {
		t.Errorf("expected payload untouched, got %q", doc.JSON)
	}
	if doc.Updated != "2025-03-09T13:00:00Z" {
		t.Errorf("expected updated to move, got %q", doc.Updated)
	}
}

// --- Watch ---

func TestMemStore_WatchDeliversCurrentFirst(t *testing.T) {
	st := session.NewMemStore()
	seed := session.Document{ID: "DAY1", AdminPin: "1234", JSON: "{}"}
	if err := st.Create(context.Background(), seed); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sub, err := st.Watch(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer sub.Close()

	select {
	case doc := <-sub.Documents():
		if doc.AdminPin != "1234" {
			t.Errorf("expected current document first, got pin %q", doc.AdminPin)
		}
	default:
		t.Fatal("expected the current document to be waiting")
	}
}

func TestMemStore_WatchConflatesForSlowConsumers(t *testing.T) {
	st := session.NewMemStore()
	if err := st.Create(context.Background(), session.Document{ID: "DAY1", JSON: "v0"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	sub, err := st.Watch(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer sub.Close()

	// Five writes while the consumer sleeps; only the newest survives.
	for _, v := range []string{"v1", "v2", "v3", "v4", "v5"} {
		doc := session.Document{ID: "DAY1", JSON: v}
		if err := st.Put(context.Background(), doc); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	doc := <-sub.Documents()
	if doc.JSON != "v5" {
		t.Errorf("expected newest document 'v5', got %q", doc.JSON)
	}
	select {
	case extra := <-sub.Documents():
		t.Errorf("expected no queued documents, got %q", extra.JSON)
	default:
	}
}

func TestMemStore_WatchIgnoresOtherSessions(t *testing.T) {
	st := session.NewMemStore()

	sub, err := st.Watch(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer sub.Close()

	if err := st.Put(context.Background(), session.Document{ID: "OTHER", JSON: "{}"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	select {
	case doc := <-sub.Documents():
		t.Errorf("expected no delivery for another session, got %q", doc.ID)
	default:
	}
}

func TestMemStore_MultipleSubscribers(t *testing.T) {
	st := session.NewMemStore()
	if err := st.Create(context.Background(), session.Document{ID: "DAY1", JSON: "v0"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	a, err := st.Watch(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer a.Close()
	b, err := st.Watch(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer b.Close()

	if err := st.Put(context.Background(), session.Document{ID: "DAY1", JSON: "v1"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	for i, sub := range []session.Subscription{a, b} {
		doc := <-sub.Documents()
		if doc.JSON != "v1" {
			t.Errorf("subscriber %d: expected 'v1', got %q", i, doc.JSON)
		}
	}
}

func TestMemStore_WatchCloseIdempotent(t *testing.T) {
	st := session.NewMemStore()

	sub, err := st.Watch(context.Background(), "DAY1")
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, ok := <-sub.Documents(); ok {
		t.Error("expected delivery channel to be closed")
	}
	if err := sub.Err(); err != nil {
		t.Errorf("expected nil Err after clean close, got %v", err)
	}
}
