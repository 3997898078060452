package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// Argument coercion helpers. Function-call arguments arrive as decoded JSON
// (strings, float64, bool), but models routinely send numbers for string
// fields and strings for numeric ones, so each helper accepts both.

// hasArg reports whether key is present at all. Presence is what drives
// partial updates: an absent key is "don't touch", an empty value is a value.
func hasArg(args map[string]any, key string) bool {
	_, ok := args[key]
	return ok
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

func floatArg(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func intArg(args map[string]any, key string) (int, bool) {
	f, ok := floatArg(args, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return fallback
		}
		return parsed
	case float64:
		return b != 0
	default:
		return fallback
	}
}

// missingRequired returns the names from required that are absent or empty.
func missingRequired(args map[string]any, required ...string) []string {
	var missing []string
	for _, key := range required {
		if stringArg(args, key) == "" {
			missing = append(missing, key)
		}
	}
	return missing
}
