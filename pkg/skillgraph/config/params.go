package config

import (
	"time"
)

// Params wraps node parameters for typed extraction. Accessors return the
// default when the key is missing or holds an unconvertible value.
//
// Node params usually come from JSON or YAML, so numbers arrive as float64
// (JSON) or int (YAML); both are accepted wherever a number is expected.
type Params struct {
	data map[string]any
}

// NewParams wraps data. A nil map behaves as empty.
func NewParams(data map[string]any) Params {
	if data == nil {
		data = make(map[string]any)
	}
	return Params{data: data}
}

// String returns the string at key, or defaultVal.
func (p Params) String(key, defaultVal string) string {
	if s, ok := p.data[key].(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the bool at key, or defaultVal.
func (p Params) Bool(key string, defaultVal bool) bool {
	if b, ok := p.data[key].(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer at key, or defaultVal. Floats are accepted only
// without a fractional part.
func (p Params) Int(key string, defaultVal int) int {
	if v, ok := p.int64(key); ok {
		return int(v)
	}
	return defaultVal
}

// Int64 returns the integer at key and whether one was present.
func (p Params) Int64(key string) (int64, bool) {
	return p.int64(key)
}

func (p Params) int64(key string) (int64, bool) {
	switch v := p.data[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
	}
	return 0, false
}

// Float returns the number at key, or defaultVal.
func (p Params) Float(key string, defaultVal float64) float64 {
	switch v := p.data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// Duration returns the duration at key, or defaultVal.
// Strings are parsed with time.ParseDuration; numbers are seconds.
func (p Params) Duration(key string, defaultVal time.Duration) time.Duration {
	switch v := p.data[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case float64:
		return time.Duration(v * float64(time.Second))
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case time.Duration:
		return v
	}
	return defaultVal
}

// StringSlice returns the strings at key, or defaultVal if any element is
// not a string.
func (p Params) StringSlice(key string, defaultVal []string) []string {
	switch v := p.data[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultVal
			}
			out = append(out, s)
		}
		return out
	}
	return defaultVal
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.data[key]
	return ok
}

// Raw returns the underlying map. It must not be modified.
func (p Params) Raw() map[string]any {
	return p.data
}
