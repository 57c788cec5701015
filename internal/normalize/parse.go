package normalize

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoJSONObject is returned when free-form text carries no decodable JSON object.
var ErrNoJSONObject = errors.New("no json object found in model output")

// ParseObject decodes a JSON object from free-form model output. It tries the
// text as-is, then with markdown code fences removed, then the substring between
// the first '{' and the last '}'.
func ParseObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoJSONObject
	}

	for _, candidate := range []string{raw, stripCodeFence(raw), braceSpan(raw)} {
		if candidate == "" {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal([]byte(candidate), &data); err == nil && data != nil {
			return data, nil
		}
	}

	return nil, ErrNoJSONObject
}

func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return ""
	}
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSpace(raw)
	if idx := strings.LastIndex(raw, "```"); idx != -1 {
		raw = raw[:idx]
	}
	return strings.TrimSpace(raw)
}

func braceSpan(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
