package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davparache/auditory-updated/session"
)

// Watch holds a dedicated LISTEN connection, delivering the current
// state immediately and then refetching on every change notification.
// Delivery is conflated so a slow consumer always sees the newest
// state. The watch ends when ctx is canceled, Close is called, or the
// backend denies reads.
func (s *Store) Watch(ctx context.Context, id string) (session.Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	listen := "LISTEN " + pgx.Identifier{s.config.Channel}.Sanitize()
	if _, err := conn.Exec(ctx, listen); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", s.config.Channel, mapErr(err))
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watcher{
		store:  s,
		id:     id,
		conn:   conn,
		cancel: cancel,
		ch:     make(chan session.Document, 1),
		done:   make(chan struct{}),
	}
	go w.run(wctx)
	return w, nil
}

// fingerprint is the change-detection key of a document.
type fingerprint struct {
	updated  string
	adminPin string
	json     string
}

// watcher listens on one connection and conflates deliveries.
type watcher struct {
	store  *Store
	id     string
	conn   *pgxpool.Conn
	cancel context.CancelFunc
	ch     chan session.Document
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func (w *watcher) run(ctx context.Context) {
	defer close(w.done)
	defer close(w.ch)
	defer w.conn.Release()

	var last fingerprint
	first := true

	// Refetches go through the pool so the dedicated connection stays
	// parked in WaitForNotification.
	refetch := func() bool {
		doc, err := w.store.Get(ctx, w.id)
		switch {
		case err == nil:
			fp := fingerprint{doc.Updated, doc.AdminPin, doc.JSON}
			if first || fp != last {
				first = false
				last = fp
				w.deliver(doc)
			}
			return true

		case errors.Is(err, session.ErrNotFound):
			// Deleted; keep listening, it may come back.
			return true

		case errors.Is(err, session.ErrPermissionDenied):
			w.fail(err)
			return false

		case ctx.Err() != nil:
			return false

		default:
			// Transient backend trouble; the next notification retries.
			w.store.config.Logger.Debug("session refetch failed",
				"session", w.id, "error", err)
			return true
		}
	}

	if !refetch() {
		return
	}

	for {
		n, err := w.conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.fail(fmt.Errorf("wait for notification: %w", err))
			return
		}
		if n.Payload != w.id {
			continue
		}
		if !refetch() {
			return
		}
	}
}

// deliver replaces any undelivered document with doc. Only the run
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
