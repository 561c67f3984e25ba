package nodes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// getString извлекает строковое значение.
func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		switch s := v.(type) {
		case string:
			return s
		case nil:
			return ""
		default:
			return fmt.Sprint(s)
		}
	}
	return ""
}

// getFloat извлекает числовое значение; строки разбираются.
func getFloat(m map[string]any, key string) (float64, bool) {
	v, ok := m[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// getBool извлекает булево значение.
func getBool(m map[string]any, key string, defaultVal bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// getMapString извлекает map[string]string.
func getMapString(m map[string]any, key string) map[string]string {
	if v, ok := m[key]; ok {
		switch mm := v.(type) {
		case map[string]string:
			return mm
		case map[string]any:
			result := make(map[string]string, len(mm))
			for k, val := range mm {
				if s, ok := val.(string); ok {
					result[k] = s
				} else if val != nil {
					result[k] = fmt.Sprint(val)
				}
			}
			return result
		}
	}
	return nil
}

// getStringMap извлекает map строк (mappings, шаблоны).
func getStringMap(m map[string]any, key string) map[string]string {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil
	}

	switch mm := raw.(type) {
	case map[string]string:
		return mm
	case map[string]any:
		result := make(map[string]string, len(mm))
		for k, val := range mm {
			if s, ok := val.(string); ok {
				result[k] = s
			}
		}
		return result
	default:
		return nil
	}
}

// getDuration разбирает длительность: строка ("1.5s", "200ms")
// или число секунд.
func getDuration(m map[string]any, key string) (time.Duration, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidInput, key)
	}
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, nil
		}
	}
	sec, ok := toFloat(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s: cannot parse %v as duration", ErrInvalidInput, key, v)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// parseValue пытается разобрать строку как JSON.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	// Пробуем как JSON object
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	// Пробуем как JSON array
	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	// Пробуем как JSON number
	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}
