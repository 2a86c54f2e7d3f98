package session

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store for tests and offline demos. It
// honors the same conditional write and conflated watch contracts as
// the real backends.
type MemStore struct {
	mu   sync.Mutex
	docs map[string]Document
	subs map[*memSub]struct{}
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		docs: make(map[string]Document),
		subs: make(map[*memSub]struct{}),
	}
}

// Get returns the document with the given id.
func (m *MemStore) Get(ctx context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// Create writes a new document.
func (m *MemStore) Create(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return ErrAlreadyExists
	}
	m.docs[doc.ID] = doc
	m.notifyLocked(doc)
	return nil
}

// Put writes the full document unconditionally.
func (m *MemStore) Put(ctx context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.ID] = doc
	m.notifyLocked(doc)
	return nil
}

// Claim atomically sets the admin pin on an unclaimed document.
func (m *MemStore) Claim(ctx context.Context, id, pin, updated string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.Claimed() {
		return ErrAlreadyClaimed
	}
	doc.AdminPin = pin
	doc.Updated = updated
	m.docs[id] = doc
	m.notifyLocked(doc)
	return nil
}

// UpdateSnapshot replaces the JSON payload of a document pin holds.
func (m *MemStore) UpdateSnapshot(ctx context.Context, id, pin, json, updated string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.AdminPin != pin {
		return ErrReadOnly
	}
	doc.JSON = json
	doc.Updated = updated
	m.docs[id] = doc
	m.notifyLocked(doc)
	return nil
}

// Touch merge-writes only the updated timestamp, creating the
// document if missing.
func (m *MemStore) Touch(ctx context.Context, id, updated string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.docs[id]
	doc.ID = id
	doc.Updated = updated
	m.docs[id] = doc
	m.notifyLocked(doc)
	return nil
}

// Watch subscribes to changes of the document. The current state, if
// any, is delivered immediately. Stop delivery with Close; the
// context is not consulted.
func (m *MemStore) Watch(ctx context.Context, id string) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub := &memSub{
		store: m,
		id:    id,
		ch:    make(chan Document, 1),
	}
	m.subs[sub] = struct{}{}
	if doc, ok := m.docs[id]; ok {
		sub.ch <- doc
	}
	return sub, nil
}

// notifyLocked delivers doc to every subscription watching it,
// dropping any stale value a slow consumer hasn't taken yet. Caller
// holds mu.
func (m *MemStore) notifyLocked(doc Document) {
	for sub := range m.subs {
		if sub.id != doc.ID {
			continue
		}
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- doc
	}
}

// memSub is a MemStore subscription. Sends and the channel close are
// serialized by the store mutex, so delivery never races Close.
type memSub struct {
	store *MemStore
	id    string
	ch    chan Document
}

func (s *memSub) Documents() <-chan Document {
	return s.ch
}

func (s *memSub) Err() error {
	return nil
}

func (s *memSub) Close() error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if _, ok := s.store.subs[s]; !ok {
		return nil
	}
	delete(s.store.subs, s)
	close(s.ch)
	return nil
}
