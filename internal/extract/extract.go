// Package extract turns generative AI output into flat string records. It
// strips markdown fences, decodes JSON when it can and falls back to a
// "key: value" line scan otherwise.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"recruitcrm/api/internal/metrics"
)

var (
	ErrNotObject = errors.New("response is not a JSON object")

	sentinels = map[string]struct{}{
		"n/a":           {},
		"not available": {},
	}

	policy = bluemonday.StrictPolicy()
)

// StripFences removes a ```json or ``` wrapper and stray backticks.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```JSON")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// Decode is the strict path: the fence-stripped text must be one JSON object.
func Decode(raw string) (map[string]any, error) {
	cleaned := StripFences(raw)
	if cleaned == "" {
		return nil, ErrNotObject
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out == nil {
		return nil, ErrNotObject
	}
	return out, nil
}

// FromMap keeps the schema fields of a decoded object.
func FromMap(values map[string]any, schema Schema) Record {
	out := schema.Empty()
	// Alias keys first so an exact field name wins when both are present.
	for _, exact := range []bool{false, true} {
		for key, value := range values {
			field, ok := schema.Canonical(key)
			if !ok || (foldKey(key) == foldKey(field)) != exact {
				continue
			}
			if cleaned := cleanValue(coerceString(value), field, schema); cleaned != "" {
				out[field] = cleaned
			}
		}
	}
	return out
}

// Normalize never fails: it returns every schema field, empty when the text
// did not yield a usable value.
func Normalize(raw string, schema Schema) Record {
	cleaned := StripFences(raw)

	if values, err := Decode(cleaned); err == nil {
		metrics.ExtractionsTotal.WithLabelValues(schema.Name, "json").Inc()
		return FromMap(values, schema)
	}
	if embedded := embeddedObject(cleaned); embedded != "" {
		if values, err := Decode(embedded); err == nil {
			metrics.ExtractionsTotal.WithLabelValues(schema.Name, "embedded_json").Inc()
			return FromMap(values, schema)
		}
	}

	metrics.ExtractionsTotal.WithLabelValues(schema.Name, "lines").Inc()
	return scanLines(cleaned, schema)
}

func scanLines(text string, schema Schema) Record {
	out := schema.Empty()
	for _, line := range strings.Split(text, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		field, ok := schema.Canonical(cleanKey(key))
		if !ok {
			continue
		}
		if cleaned := cleanValue(value, field, schema); cleaned != "" {
			out[field] = cleaned
		}
	}
	return out
}

// cleanKey drops list bullets, numbering, quotes and markdown emphasis.
func cleanKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimLeft(key, "-*•># \t")
	key = strings.TrimLeft(key, "0123456789.) ")
	key = strings.ReplaceAll(key, "**", "")
	key = strings.ReplaceAll(key, "__", "")
	return strings.Trim(key, "\"' \t")
}

func cleanValue(value, field string, schema Schema) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "**", "")
	value = strings.TrimSuffix(value, ",")
	value = strings.Trim(value, "\"'` \t\r")
	value = strings.TrimSpace(html.UnescapeString(policy.Sanitize(value)))
	if value == "" || IsSentinel(value) {
		return ""
	}
	if transform, ok := schema.Transforms[field]; ok {
		value = transform(value)
	}
	return value
}

// IsSentinel reports whether value is a placeholder meaning "unknown".
func IsSentinel(value string) bool {
	_, ok := sentinels[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// embeddedObject returns the first balanced {...} span in text, or "".
func embeddedObject(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
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
				return text[start : i+1]
			}
		}
	}
	return ""
}

func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	case []any:
		parts := make([]string, 0, len(val))
		scalar := true
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				scalar = false
				break
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		if scalar {
			return strings.Join(parts, ", ")
		}
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(encoded)
}
