package inventory

import (
	"encoding/json"
	"fmt"
)

// Encode serializes the map to its wire JSON form. An empty or nil map
// encodes as "{}".
func (m Map) Encode() ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode inventory: %w", err)
	}
	return data, nil
}

// Decode parses wire JSON into a Map. Empty input decodes to an empty
// map; malformed input returns an error and no map.
//
// Entries whose Part field is blank get it backfilled from the map key,
// so older snapshots that only keyed by part still round-trip.
func Decode(data []byte) (Map, error) {
	if len(data) == 0 {
		return Map{}, nil
	}
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	if m == nil {
		return Map{}, nil
	}
	for part, item := range m {
		if item.Part == "" {
			item.Part = part
			m[part] = item
		}
	}
	return m, nil
}
