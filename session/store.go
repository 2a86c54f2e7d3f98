package session

import "context"

// Store is a backend holding session documents. Implementations map
// their native errors onto the sentinel errors in this package.
type Store interface {
	// Get returns the document with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)

	// Create writes a new document, failing with ErrAlreadyExists if
	// the id is taken.
	Create(ctx context.Context, doc Document) error

	// Put writes the full document unconditionally, creating or
	// replacing it.
	Put(ctx context.Context, doc Document) error

	// Claim atomically sets the admin pin on an unclaimed document.
	// It fails with ErrAlreadyClaimed when another admin holds the
	// session, or ErrNotFound when the document doesn't exist.
	Claim(ctx context.Context, id, pin, updated string) error

	// UpdateSnapshot replaces the JSON payload of a document the
	// caller's pin holds. It fails with ErrNotFound when the document
	// doesn't exist and ErrReadOnly when the pin doesn't match.
	UpdateSnapshot(ctx context.Context, id, pin, json, updated string) error

	// Touch merge-writes only the updated timestamp, creating the
	// document if missing. It never writes the pin or the payload.
	Touch(ctx context.Context, id, updated string) error

	// Watch subscribes to changes of the document. The current state
	// is delivered first, then every observed change. Slow consumers
	// see conflated (latest-wins) delivery.
	Watch(ctx context.Context, id string) (Subscription, error)
}

// Subscription is a live feed of one document's changes.
type Subscription interface {
	// Documents returns the delivery channel. It is closed when the
	// subscription ends.
	Documents() <-chan Document

	// Err returns the error that ended the subscription, or nil after
	// a clean Close.
	Err() error

	// Close stops the subscription and releases its resources. It is
	// safe to call more than once.
	Close() error
}
