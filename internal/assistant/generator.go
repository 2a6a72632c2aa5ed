package assistant

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
)

// Generator produces text from a system instruction and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// resetter is implemented by generators that can rebuild their underlying client.
type resetter interface {
	Reset()
}

// extractObject returns the first balanced {...} span of text. Braces inside JSON
// strings are ignored.
func extractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// decodeObject parses model output into a generic object: the whole text first,
// then its first balanced {...} span.
func decodeObject(text string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err == nil && out != nil {
		return out, true
	}
	span, ok := extractObject(text)
	if !ok {
		return nil, false
	}
	if err := json.Unmarshal([]byte(span), &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func boolField(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

func floatField(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringsField(m map[string]any, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
