package session

import "errors"

var (
	// ErrNotFound is returned when a session document doesn't exist.
	ErrNotFound = errors.New("session: document not found")

	// ErrAlreadyExists is returned when attempting to create a document with an existing ID.
	ErrAlreadyExists = errors.New("session: document already exists")

	// ErrAlreadyClaimed is returned when attempting to claim a document another admin holds.
	ErrAlreadyClaimed = errors.New("session: document already claimed")

	// ErrPermissionDenied is returned when the backend rejects the caller's credentials.
	ErrPermissionDenied = errors.New("session: permission denied")

	// ErrUnavailable is returned when the backend cannot be reached or is not set up.
	ErrUnavailable = errors.New("session: backend unavailable")

	// ErrReadOnly is returned when a connection without the admin pin attempts a write.
	ErrReadOnly = errors.New("session: connection is read-only")

	// ErrNotConnected is returned when an operation requires an established connection.
	ErrNotConnected = errors.New("session: not connected")
)
