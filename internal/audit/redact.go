package audit

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// PhotoPrefixLength is how much of a photo-like value survives redaction.
const PhotoPrefixLength = 100

const redacted = "[redacted]"

var credentialKeys = map[string]bool{
	"credentialdigest": true,
	"passwordhash":     true,
	"password":         true,
	"accesstoken":      true,
}

// Redact returns a copy of req in which photo-like values are cut to
// PhotoPrefixLength characters plus "..." and credentials are masked.
// Nested objects and arrays are redacted too.
func Redact(req map[string]any) map[string]any {
	if req == nil {
		return nil
	}
	out := make(map[string]any, len(req))
	for k, v := range req {
		lower := strings.ToLower(k)
		switch {
		case credentialKeys[lower]:
			out[k] = redacted
		case strings.Contains(lower, "photo") || strings.Contains(lower, "image"):
			out[k] = truncatePhoto(v)
		default:
			out[k] = redactValue(v)
		}
	}
	return out
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Redact(t)
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			res[i] = redactValue(item)
		}
		return res
	}
	return v
}

func truncatePhoto(v any) any {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return redacted
		}
		s = string(b)
		if utf8.RuneCountInString(s) <= PhotoPrefixLength {
			return v
		}
	}
	if utf8.RuneCountInString(s) <= PhotoPrefixLength {
		return s
	}
	return string([]rune(s)[:PhotoPrefixLength]) + "..."
}
