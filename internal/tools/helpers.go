// ABOUTME: Conversion and shaping helpers for tool handlers
// ABOUTME: Loosely-typed JSON access, compact list projection, safe serialization

package tools

import (
	"encoding/json"
	"fmt"
	"math"
)

// resultSoftCap bounds most tool payloads well under the history cap so one
// noisy tool cannot crowd out everything else in the context.
const resultSoftCap = 8000

const truncationNote = "\n\n... [truncated – use more specific filters to narrow results]"

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	}
	return fallback
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func asList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

// stringListArg reads a tool argument that should be a list of strings,
// tolerating a single bare string.
func stringListArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, asString(item))
		}
		return out
	case []string:
		return v
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

func stringArg(args map[string]any, key string) string {
	return asString(args[key])
}

func intArg(args map[string]any, key string, fallback int) int {
	if _, ok := args[key]; !ok {
		return fallback
	}
	return asInt(args[key], fallback)
}

// safeJSON serializes data with indentation, truncating oversized payloads
// with a note steering the model toward narrower queries.
func safeJSON(data any, maxLen int) string {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	s := string(out)
	if len(s) > maxLen {
		return s[:maxLen] + truncationNote
	}
	return s
}

// compactList projects each item to only the named keys, capping the list and
// appending a note when items were omitted.
func compactList(items []any, keys []string, maxItems int) []any {
	results := make([]any, 0, maxItems+1)
	for i, item := range items {
		if i >= maxItems {
			break
		}
		m := asMap(item)
		if m == nil {
			results = append(results, item)
			continue
		}
		entry := map[string]any{}
		for _, k := range keys {
			if v, ok := m[k]; ok {
				entry[k] = v
			}
		}
		results = append(results, entry)
	}
	if len(items) > maxItems {
		results = append(results, map[string]any{
			"_note": fmt.Sprintf("Showing %d of %d total. Use search/filters to narrow.", maxItems, len(items)),
		})
	}
	return results
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// errorPayload builds the structured error JSON returned to the model in place
// of tool output. error_type is one of SERVICE_NOT_CONFIGURED, API_ERROR,
// UNKNOWN_ERROR.
func errorPayload(errorType, message, service string, extra map[string]any) string {
	payload := map[string]any{
		"error":   errorType,
		"message": message,
		"service": service,
	}
	for k, v := range extra {
		payload[k] = v
	}
	out, _ := json.Marshal(payload)
	return string(out)
}
