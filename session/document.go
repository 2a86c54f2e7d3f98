package session

// Document is one shared session as the backend stores it. The JSON
// payload is opaque at this layer; the engine decodes it into an
// inventory map when applying snapshots.
type Document struct {
	// ID is the session identifier users type to join.
	ID string

	// AdminPin is the pin of the admin holding the session. Empty
	// means the session is unclaimed.
	AdminPin string

	// JSON is the encoded inventory payload. Empty means the session
	// has no inventory yet.
	JSON string

	// Updated is the ISO-8601 UTC timestamp of the last write.
	Updated string
}

// Claimed reports whether an admin holds the session.
func (d Document) Claimed() bool {
	return d.AdminPin != ""
}
