// Package nodes implements the decision units of the conversation engine.
// Model-backed nodes call a scene and interpret its structured reply; local
// nodes run business logic against the stores. Every node carries its own
// conservative fallback for the executor to use after retries are exhausted.
package nodes

import (
	"errors"
	"strings"
)

// errEmptyAnswer flags a structurally valid reply whose answer field is blank.
var errEmptyAnswer = errors.New("empty answer in model reply")

// yesNo reads a "yes"/"no" field out of a structured model reply. When the
// field is absent it falls back to the leading word of a free-text "content"
// field, then to def.
func yesNo(resp map[string]any, field string, def bool) bool {
	if v, ok := resp[field].(string); ok {
		return strings.EqualFold(strings.TrimSpace(v), "yes")
	}
	if content, ok := resp["content"].(string); ok {
		upper := strings.ToUpper(strings.TrimSpace(content))
		if strings.HasPrefix(upper, "YES") {
			return true
		}
		if strings.HasPrefix(upper, "NO") {
			return false
		}
	}
	return def
}

// stringField reads a trimmed string field, or "".
func stringField(resp map[string]any, field string) string {
	v, _ := resp[field].(string)
	return strings.TrimSpace(v)
}

// intField reads a numeric field. JSON numbers decode as float64.
func intField(resp map[string]any, field string) (int, bool) {
	switch v := resp[field].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}
