// Package session keeps a local inventory in step with one shared
// remote session document.
//
// A session is a single document in a backend store, keyed by an
// upper-cased id users type to join. The [Engine] connects to it,
// watches it, and pushes local snapshots back. State replacement is
// wholesale: the last writer wins and there is no field-level merge.
//
// # Connection Lifecycle
//
// The engine moves through [Disconnected], [Connecting], and one of
// [ConnectedAdmin] or [ConnectedReadOnly]; an established session
// that breaks ends in [Failed] until the next Connect. Connect may be
// called from any state and tears the previous session down first, so
// at most one watch is live per engine.
//
// Connecting probes the document:
//
//   - absent: a conditional create claims the session, even when the
//     pin is empty
//   - present and unclaimed: an atomic claim sets the supplied pin
//   - present and claimed: the pins are compared; a mismatch makes
//     the connection read-only
//   - probe denied: a blind timestamp write keeps set-only
//     deployments usable, read-only until the watch proves otherwise
//
// # Write Access
//
// A connection is read-only when the document is claimed by a
// different pin. The admin pin is permanent until reset out of band.
// A snapshot whose payload fails to parse applies as an empty
// inventory and forces that snapshot read-only.
//
// # Backends
//
// Backends implement the [Store] interface:
//
//	type Store interface {
//	    Get(ctx context.Context, id string) (Document, error)
//	    Create(ctx context.Context, doc Document) error
//	    Put(ctx context.Context, doc Document) error
//	    Claim(ctx context.Context, id, pin, updated string) error
//	    UpdateSnapshot(ctx context.Context, id, pin, json, updated string) error
//	    Touch(ctx context.Context, id, updated string) error
//	    Watch(ctx context.Context, id string) (Subscription, error)
//	}
//
// The dynamo and postgres subpackages provide production backends;
// [MemStore] serves tests and offline demos. Watches deliver the
// current document first, then every observed change, conflated so a
// slow consumer always sees the newest state.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - document doesn't exist
//   - [ErrAlreadyExists] - create hit an existing id
//   - [ErrAlreadyClaimed] - claim hit a session another admin holds
//   - [ErrPermissionDenied] - backend rejected the credentials
//   - [ErrUnavailable] - backend unreachable or not set up
//   - [ErrReadOnly] - write attempted without the admin pin
//   - [ErrNotConnected] - operation needs an established session
package session
