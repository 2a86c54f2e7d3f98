// Package zone groups free-text warehouse bin codes into audit zones.
package zone

import "strings"

// Zone keys produced by the classifier for bins that don't map to a
// physical aisle.
const (
	GroupNoLocation = "NO_LOCATION"
	GroupOverflow   = "NG"
	GroupAreas      = "AREAS"
	GroupDataCheck  = "DATA_CHECK"
	GroupMisc       = "MISC"

	SubgroupNoLocation = "0"
	SubgroupOverflow   = "NG1"
	SubgroupBadData    = "BAD_DATA"
	SubgroupGeneral    = "GENERAL"
)

// badBinWords are part-description words that show up in the bin column
// when an import slips a row.
var badBinWords = map[string]bool{
	"ALTERNATOR": true,
	"ASSY":       true,
	"KIT":        true,
	"SET":        true,
	"HOLDER":     true,
	"BOLT":       true,
	"NUT":        true,
	"WASHER":     true,
	"CLIP":       true,
	"SENSOR":     true,
}

// Classify assigns a raw bin code to its audit zone, returning the group
// and subgroup keys. It is total and deterministic: every input maps
// somewhere, and the rules apply in strict priority order:
//
//  1. Blank, "0" and "UNASSIGNED" bins have no location.
//  2. Numeric aisles: exactly three leading digits with first digit
//     2, 3 or 6. A single trailing letter selects the rack face.
//  3. NG overflow bins collapse into one zone.
//  4. AREA staging bins group under their first token.
//  5. Overlong codes, embedded spaces and known part-description words
//     go to the data-quality zone rather than a physical one.
//  6. Anything else is miscellaneous.
func Classify(bin string) (group, subgroup string) {
	b := strings.ToUpper(strings.TrimSpace(bin))

	// 1. No location
	if b == "" || b == "0" || b == "UNASSIGNED" {
		return GroupNoLocation, SubgroupNoLocation
	}

	// 2. Three-digit aisles (2xx, 3xx, 6xx)
	if len(b) >= 3 && isDigit(b[0]) && isDigit(b[1]) && isDigit(b[2]) &&
		(len(b) == 3 || !isDigit(b[3])) &&
		(b[0] == '2' || b[0] == '3' || b[0] == '6') {
		prefix := b[:3]
		if len(b) > 3 && isLetter(b[3]) {
			return prefix, b[:4]
		}
		return prefix, prefix
	}

	// 3. Overflow
	if strings.HasPrefix(b, "NG") {
		return GroupOverflow, SubgroupOverflow
	}

	// 4. Staging areas
	if strings.HasPrefix(b, "AREA") {
		sub, _, _ := strings.Cut(b, " ")
		return GroupAreas, sub
	}

	// 5. Data-quality problems
	if len(b) > 8 || strings.Contains(b, " ") || badBinWords[b] {
		return GroupDataCheck, SubgroupBadData
	}

	// 6. Everything else
	return GroupMisc, SubgroupGeneral
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return c >= 'A' && c <= 'Z'
}
