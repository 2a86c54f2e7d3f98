package dynamo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/davparache/auditory-updated/session"
)

// Watch polls the document at the configured interval, delivering the
// current state immediately and then every observed change. Delivery
// is conflated so a slow consumer always sees the newest state. The
// watch ends when ctx is canceled, Close is called, or the backend
// denies reads.
func (s *Store) Watch(ctx context.Context, id string) (session.Subscription, error) {
	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{
		store:  s,
		id:     id,
		cancel: cancel,
		ch:     make(chan session.Document, 1),
		done:   make(chan struct{}),
	}
	go w.poll(wctx)
	return w, nil
}

// fingerprint is the change-detection key of a document.
type fingerprint struct {
	updated  string
	adminPin string
	json     string
}

// watcher polls one document and conflates deliveries.
type watcher struct {
	store  *Store
	id     string
	cancel context.CancelFunc
	ch     chan session.Document
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (w *watcher) poll(ctx context.Context) {
	defer close(w.done)
	defer close(w.ch)

	ticker := time.NewTicker(w.store.config.PollInterval)
	defer ticker.Stop()

	var last fingerprint
	first := true

	for {
		doc, err := w.store.Get(ctx, w.id)
		switch {
		case err == nil:
			fp := fingerprint{doc.Updated, doc.AdminPin, doc.JSON}
			if first || fp != last {
				first = false
				last = fp
				w.deliver(doc)
			}

		case errors.Is(err, session.ErrNotFound):
			// Deleted or expired; keep polling, it may come back.

		case errors.Is(err, session.ErrPermissionDenied):
			w.fail(err)
			return

		case ctx.Err() != nil:
			return

		default:
			// Transient backend trouble; the next tick retries.
			w.store.config.Logger.Debug("session poll failed",
				"session", w.id, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// deliver replaces any undelivered document with doc. Only the poll
// goroutine touches the channel's send side.
func (w *watcher) deliver(doc session.Document) {
	select {
	case <-w.ch:
	default:
	}
	w.ch <- doc
}

func (w *watcher) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func (w *watcher) Documents() <-chan session.Document {
	return w.ch
}

func (w *watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *watcher) Close() error {
	w.cancel()
	<-w.done
	return nil
}
