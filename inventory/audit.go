package inventory

import "time"

// AuditEntry is one line of a physical count sheet.
type AuditEntry struct {
	// Part is the counted part number.
	Part string

	// Bin is the location the part was found in.
	Bin string

	// Qty is the counted quantity.
	Qty int

	// Backorder is the open backorder quantity observed during the count.
	Backorder int

	// Done marks the entry as completed. Entries not marked done are
	// ignored by ApplyAudit.
	Done bool
}

// ApplyAudit merges completed count entries into a copy of the map and
// returns it. Only Bin, Qty and Backorder are taken from an entry;
// fields the count sheet doesn't carry (Description) keep their current
// values, and parts the audit never mentions are left untouched. A done
// entry for an unknown part creates it.
func (m Map) ApplyAudit(entries []AuditEntry) Map {
	out := m.Clone()
	now := Timestamp(time.Now())

	for _, e := range entries {
		if !e.Done {
			continue
		}
		part := NormalizePart(e.Part)
		if part == "" {
			continue
		}

		item := out[part]
		item.Part = part
		item.Bin = NormalizeBin(e.Bin)
		item.Qty = e.Qty
		item.Backorder = e.Backorder
		item.LastUpdated = now
		out[part] = item
	}

	return out
}
