// Package inventory defines the part inventory data model shared by the
// sync engine, the local cache, and the zone classifier.
package inventory

import (
	"strings"
	"time"
)

// Item is a single tracked part.
type Item struct {
	// Part is the unique part number (upper-cased).
	Part string `json:"part"`

	// Bin is the free-text location code (upper-cased, may be empty).
	Bin string `json:"bin"`

	// Qty is the counted quantity. Negative values are kept and flagged
	// by Suspicious, never rejected.
	Qty int `json:"qty"`

	// Backorder is the open backorder quantity.
	Backorder int `json:"backorder"`

	// Description is the human-readable part description.
	Description string `json:"description,omitempty"`

	// LastUpdated is the ISO 8601 timestamp of the last change to this
	// entry. Empty when unknown.
	LastUpdated string `json:"lastUpdated,omitempty"`
}

// Suspicious reports whether the item carries values that usually mean a
// data-entry mistake (negative counts).
func (it Item) Suspicious() bool {
	return it.Qty < 0 || it.Backorder < 0
}

// Map is a full inventory keyed by part number.
type Map map[string]Item

// Clone returns an independent copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// NormalizePart returns the canonical form of a part number.
func NormalizePart(part string) string {
	return strings.ToUpper(strings.TrimSpace(part))
}

// NormalizeBin returns the canonical form of a bin code.
func NormalizeBin(bin string) string {
	return strings.ToUpper(strings.TrimSpace(bin))
}

// Timestamp formats t the way LastUpdated is stored on the wire.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
