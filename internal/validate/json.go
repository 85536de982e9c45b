package validate

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JSON decodes payload into a generic value. When the payload is not valid
// JSON the trimmed payload string is returned instead, so raw broker tokens
// like ON or 21.5 still come through.
func JSON(payload []byte) any {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed)
	}
	return v
}

// Lookup walks a dotted path ("state.brightness") through nested maps.
// An empty path returns v itself.
func Lookup(v any, path string) (any, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
