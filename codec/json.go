package codec

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// ParseJSON decodes b as UTF-8 JSON text into a generic value
// (map[string]any, []any, string, float64, bool, nil).
func ParseJSON(b []byte) (any, error) {
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("%w: invalid UTF-8", ErrParse)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return v, nil
}
