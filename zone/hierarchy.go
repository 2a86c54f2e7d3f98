package zone

import "github.com/davparache/auditory-updated/inventory"

// Group aggregates the classified bins of one zone.
type Group struct {
	// TotalItems is the number of inventory items in the zone.
	TotalItems int

	// Subgroups maps a subgroup key to the set of normalized bin codes
	// it contains.
	Subgroups map[string]map[string]struct{}
}

// Hierarchy classifies every item's bin and builds the zone tree. The
// result is derived on demand and never stored.
func Hierarchy(inv inventory.Map) map[string]Group {
	out := make(map[string]Group)

	for _, item := range inv {
		g, sg := Classify(item.Bin)

		grp, ok := out[g]
		if !ok {
			grp = Group{Subgroups: make(map[string]map[string]struct{})}
		}
		grp.TotalItems++

		bins, ok := grp.Subgroups[sg]
		if !ok {
			bins = make(map[string]struct{})
			grp.Subgroups[sg] = bins
		}
		bins[inventory.NormalizeBin(item.Bin)] = struct{}{}

		out[g] = grp
	}

	return out
}
