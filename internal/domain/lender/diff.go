package lender

import (
	"bytes"
	"encoding/json"
)

type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Changes maps a comparable field name to its old and new value.
type Changes map[string]Change

// Diff compares the comparable fields of existing against incoming. It
// returns nil, not an empty map, when nothing differs. Values are compared
// by their canonical JSON form: decimals by numeric value, lists by full
// contents in order.
func Diff(existing, incoming Fields) Changes {
	var out Changes
	for _, f := range comparableFields {
		oldVal := f.get(&existing)
		newVal := f.get(&incoming)
		if oldVal == nil && newVal == nil {
			continue
		}
		if bytes.Equal(canonical(oldVal), canonical(newVal)) {
			continue
		}
		if out == nil {
			out = Changes{}
		}
		out[f.name] = Change{Old: oldVal, New: newVal}
	}
	return out
}

func canonical(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}
