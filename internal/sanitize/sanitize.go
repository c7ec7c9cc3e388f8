// Package sanitize scrubs request input before any other stage sees it.
// Strings are trimmed and stripped of control characters, NUL bytes and
// invalid UTF-8 are rejected, and keys that look like query operators ("$where", "a.b") are
// dropped from both the query string and JSON bodies.
package sanitize

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"storefront.org/internal/apperr"
)

var (
	// ErrNUL is returned when input contains a NUL byte.
	ErrNUL = errors.New("sanitize: input contains NUL byte")
	// ErrInvalidUTF8 is returned when input is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("sanitize: input is not valid UTF-8")
)

// String trims s and removes control characters other than tab and
// newlines.
func String(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", ErrNUL
	}
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	s = strings.TrimSpace(s)
	if strings.IndexFunc(s, isStripped) < 0 {
		return s, nil
	}
	return strings.Map(func(r rune) rune {
		if isStripped(r) {
			return -1
		}
		return r
	}, s), nil
}

func isStripped(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return unicode.IsControl(r)
}

// Key reports whether a map or query key is acceptable.
func Key(k string) bool {
	return k != "" && !strings.HasPrefix(k, "$") && !strings.Contains(k, ".")
}

// Query returns a cleaned copy of q.
func Query(q url.Values) (url.Values, error) {
	out := make(url.Values, len(q))
	for k, vals := range q {
		if !Key(k) {
			continue
		}
		cleaned := make([]string, 0, len(vals))
		for _, v := range vals {
			s, err := String(v)
			if err != nil {
				return nil, badInput("query", k, err)
			}
			cleaned = append(cleaned, s)
		}
		out[k] = cleaned
	}
	return out, nil
}

// Body cleans a JSON document. An empty body yields nil. Bodies that are
// not valid JSON are rejected.
func Body(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.BadRequest("Request body is not valid JSON")
	}
	if dec.More() {
		return nil, apperr.BadRequest("Request body is not valid JSON")
	}
	cleaned, err := value(v, "")
	if err != nil {
		return nil, err
	}
	return json.Marshal(cleaned)
}

func value(v any, field string) (any, error) {
	switch t := v.(type) {
	case string:
		s, err := String(t)
		if err != nil {
			return nil, badInput("body", field, err)
		}
		return s, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			if !Key(k) {
				continue
			}
			cleaned, err := value(item, join(field, k))
			if err != nil {
				return nil, err
			}
			out[k] = cleaned
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			cleaned, err := value(item, field)
			if err != nil {
				return nil, err
			}
			out[i] = cleaned
		}
		return out, nil
	default:
		return v, nil
	}
}

func join(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func badInput(location, field string, err error) error {
	msg := "NUL bytes are not allowed"
	if errors.Is(err, ErrInvalidUTF8) {
		msg = "Value is not valid UTF-8"
	}
	return apperr.New(apperr.KindBadRequest, "Request contains invalid characters", apperr.Detail{
		Field:    field,
		Location: location,
		Code:     "invalid_characters",
		Message:  msg,
	})
}
