package handler

import (
	"math"
	"strconv"

	"workclock/internal/model"
)

// body is a decoded JSON request. Fields are read leniently so clients that
// send numbers as strings, or the older field names, keep working.
type body map[string]any

// str returns the first non-empty string among keys.
func (b body) str(keys ...string) string {
	for _, k := range keys {
		if s, ok := b[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (b body) float(key string) *float64 {
	switch v := b[key].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

// userID returns 0 when the id is absent or not a positive integer.
func (b body) userID() int64 {
	switch v := b["userId"].(type) {
	case float64:
		if v > 0 && v == math.Trunc(v) && v < math.MaxInt64 {
			return int64(v)
		}
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil && id > 0 {
			return id
		}
	}
	return 0
}

// photo returns nil unless the field is a non-empty string.
func (b body) photo(key string) model.Photo {
	if s, ok := b[key].(string); ok && s != "" {
		return model.Photo(s)
	}
	return nil
}
