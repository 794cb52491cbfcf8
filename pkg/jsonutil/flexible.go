package jsonutil

import (
	"encoding/json"
	"fmt"
)

// FlexibleStringValue converts a json.RawMessage to a string. Imported record
// attributes arrive as strings, numbers or booleans depending on the source
// file, so all of them are rendered the same way. Returns empty string for null/empty.
func FlexibleStringValue(raw json.RawMessage) string {
	s, _ := FlexibleString(raw)
	return s
}

// FlexibleString is FlexibleStringValue that also reports whether a value was
// present at all. JSON null counts as absent.
func FlexibleString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}

	var strVal string
	if err := json.Unmarshal(raw, &strVal); err == nil {
		return strVal, true
	}

	var numVal float64
	if err := json.Unmarshal(raw, &numVal); err == nil {
		if numVal == float64(int64(numVal)) {
			return fmt.Sprintf("%d", int64(numVal)), true
		}
		return fmt.Sprintf("%g", numVal), true
	}

	var boolVal bool
	if err := json.Unmarshal(raw, &boolVal); err == nil {
		return fmt.Sprintf("%t", boolVal), true
	}

	// Objects and arrays: keep the raw text
	return string(raw), true
}
