// Package validate checks request fields against declarative schemas and
// reports every failure as an apperr.Detail.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"storefront.org/internal/apperr"
	"storefront.org/internal/ids"
)

// Locations of validated values.
const (
	LocBody   = "body"
	LocQuery  = "query"
	LocParams = "params"
)

// Rule checks one property of a present value.
type Rule struct {
	Code    string
	Message string
	Test    func(v any) bool
}

// Field names a value and the rules it must satisfy. Elem applies to every
// object of an array value.
type Field struct {
	Name     string
	Required bool
	Rules    []Rule
	Elem     []Field
}

// Schema groups field rules by location.
type Schema struct {
	Body   []Field
	Query  []Field
	Params []Field
}

// Empty reports whether the schema has no rules.
func (s Schema) Empty() bool {
	return len(s.Body) == 0 && len(s.Query) == 0 && len(s.Params) == 0
}

// Check validates the request parts and returns all failures.
func (s Schema) Check(body []byte, query url.Values, params map[string]string) []apperr.Detail {
	var details []apperr.Detail
	if len(s.Body) > 0 {
		doc, ok := decodeObject(body)
		if !ok {
			return []apperr.Detail{{Location: LocBody, Code: "type", Message: "body must be a JSON object"}}
		}
		details = append(details, checkFields(s.Body, LocBody, "", func(name string) (any, bool) {
			return lookup(doc, name)
		})...)
	}
	details = append(details, checkFields(s.Query, LocQuery, "", func(name string) (any, bool) {
		if !query.Has(name) {
			return nil, false
		}
		return query.Get(name), true
	})...)
	details = append(details, checkFields(s.Params, LocParams, "", func(name string) (any, bool) {
		v, ok := params[name]
		return v, ok
	})...)
	return details
}

// Error returns a validation error for details, or nil when there are none.
func Error(details []apperr.Detail) error {
	if len(details) == 0 {
		return nil
	}
	return apperr.Validation(details)
}

func checkFields(fields []Field, loc, prefix string, get func(string) (any, bool)) []apperr.Detail {
	var details []apperr.Detail
	for _, f := range fields {
		name := prefix + f.Name
		v, present := get(f.Name)
		if present && isBlank(v) {
			present = false
		}
		if !present {
			if f.Required {
				details = append(details, apperr.Detail{
					Field: name, Location: loc, Code: "required",
					Message: name + " is required",
				})
			}
			continue
		}
		failed := false
		for _, r := range f.Rules {
			if !r.Test(v) {
				details = append(details, apperr.Detail{
					Field: name, Location: loc, Code: r.Code,
					Message: name + " " + r.Message,
				})
				failed = true
				break
			}
		}
		if failed || len(f.Elem) == 0 {
			continue
		}
		items, _ := v.([]any)
		for i, item := range items {
			obj, ok := item.(map[string]any)
			elemName := fmt.Sprintf("%s[%d]", name, i)
			if !ok {
				details = append(details, apperr.Detail{
					Field: elemName, Location: loc, Code: "type",
					Message: elemName + " must be an object",
				})
				continue
			}
			details = append(details, checkFields(f.Elem, loc, elemName+".", func(n string) (any, bool) {
				return lookup(obj, n)
			})...)
		}
	}
	return details
}

func decodeObject(body []byte) (map[string]any, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, true
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return nil, false
	}
	return doc, true
}

func lookup(doc map[string]any, name string) (any, bool) {
	v, ok := doc[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// String requires a string value.
func String() Rule {
	return Rule{Code: "type", Message: "must be a string", Test: func(v any) bool {
		_, ok := v.(string)
		return ok
	}}
}

// Email requires a bare email address.
func Email() Rule {
	return Rule{Code: "email", Message: "must be a valid email address", Test: func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		addr, err := mail.ParseAddress(s)
		return err == nil && addr.Address == s
	}}
}

// MinLen requires a string of at least n characters or an array of at
// least n elements.
func MinLen(n int) Rule {
	return Rule{Code: "min_length", Message: fmt.Sprintf("must have at least %d characters", n), Test: func(v any) bool {
		l, ok := length(v)
		return ok && l >= n
	}}
}

// MaxLen requires a string of at most n characters or an array of at most
// n elements.
func MaxLen(n int) Rule {
	return Rule{Code: "max_length", Message: fmt.Sprintf("must have at most %d characters", n), Test: func(v any) bool {
		l, ok := length(v)
		return ok && l <= n
	}}
}

// Int requires an integer, given as a JSON number or a decimal string.
func Int() Rule {
	return Rule{Code: "type", Message: "must be an integer", Test: func(v any) bool {
		_, ok := integer(v)
		return ok
	}}
}

// Number requires a numeric value.
func Number() Rule {
	return Rule{Code: "type", Message: "must be a number", Test: func(v any) bool {
		_, ok := number(v)
		return ok
	}}
}

// Min requires a number greater than or equal to min.
func Min(min float64) Rule {
	return Rule{Code: "min", Message: "must be at least " + strconv.FormatFloat(min, 'f', -1, 64), Test: func(v any) bool {
		f, ok := number(v)
		return ok && f >= min
	}}
}

// Max requires a number less than or equal to max.
func Max(max float64) Rule {
	return Rule{Code: "max", Message: "must be at most " + strconv.FormatFloat(max, 'f', -1, 64), Test: func(v any) bool {
		f, ok := number(v)
		return ok && f <= max
	}}
}

// OneOf requires one of the allowed string values.
func OneOf(allowed ...string) Rule {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return Rule{Code: "one_of", Message: "must be one of " + strings.Join(allowed, ", "), Test: func(v any) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		_, ok = set[s]
		return ok
	}}
}

// Bool requires a boolean, given as JSON or as "true"/"false".
func Bool() Rule {
	return Rule{Code: "type", Message: "must be a boolean", Test: func(v any) bool {
		switch t := v.(type) {
		case bool:
			return true
		case string:
			_, err := strconv.ParseBool(t)
			return err == nil
		}
		return false
	}}
}

// ID requires a well-formed resource identifier.
func ID() Rule {
	return Rule{Code: "id", Message: "must be a valid identifier", Test: func(v any) bool {
		s, ok := v.(string)
		return ok && ids.Valid(s)
	}}
}

// Array requires a JSON array.
func Array() Rule {
	return Rule{Code: "type", Message: "must be an array", Test: func(v any) bool {
		_, ok := v.([]any)
		return ok
	}}
}

func length(v any) (int, bool) {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t), true
	case []any:
		return len(t), true
	}
	return 0, false
}

func integer(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		i, err := t.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	case float64:
		return t, true
	}
	return 0, false
}
