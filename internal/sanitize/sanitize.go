// Package sanitize strips PII-risk keys and bounds the size of event
// properties before they are queued.
package sanitize

import (
	"math"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultBlocklist names free-text and PII-risk keys. Matching is case-insensitive.
var DefaultBlocklist = []string{
	"query", "searchQuery", "keyword",
	"content", "reviewContent", "comment", "text", "message",
	"address", "roadAddress", "detailAddress",
	"phone", "phoneNumber", "tel", "email",
	"imageUrl", "imageUrls", "profileImageUrl", "thumbnailUrl",
}

// Options bound what survives sanitization.
type Options struct {
	Blocklist    []string
	MaxStringLen int // in runes
	MaxArrayLen  int
	// MaxDepth is the deepest level at which a map or slice may appear.
	// Top-level property values are level 1.
	MaxDepth int
}

// DefaultOptions returns the production limits.
func DefaultOptions() Options {
	return Options{
		Blocklist:    DefaultBlocklist,
		MaxStringLen: 200,
		MaxArrayLen:  30,
		MaxDepth:     2,
	}
}

// Sanitizer applies Options recursively. It is safe for concurrent use.
type Sanitizer struct {
	opts    Options
	blocked map[string]struct{}
}

// New builds a Sanitizer from opts.
func New(opts Options) *Sanitizer {
	s := &Sanitizer{opts: opts, blocked: make(map[string]struct{}, len(opts.Blocklist))}
	for _, k := range opts.Blocklist {
		s.blocked[strings.ToLower(k)] = struct{}{}
	}
	return s
}

var defaultSanitizer = New(DefaultOptions())

// Sanitize cleans props with the default options.
func Sanitize(props map[string]any) map[string]any {
	return defaultSanitizer.Sanitize(props)
}

// Sanitize returns a cleaned copy of props. The input is never modified.
func (s *Sanitizer) Sanitize(props map[string]any) map[string]any {
	if props == nil {
		return map[string]any{}
	}
	return s.mapValue(props, 0)
}

// Blocked reports whether key is dropped regardless of its value.
func (s *Sanitizer) Blocked(key string) bool {
	_, ok := s.blocked[strings.ToLower(key)]
	return ok
}

func (s *Sanitizer) mapValue(m map[string]any, depth int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if s.Blocked(k) {
			continue
		}
		if clean, ok := s.value(v, depth+1); ok {
			out[k] = clean
		}
	}
	return out
}

func (s *Sanitizer) sliceValue(items []any, depth int) []any {
	if len(items) > s.opts.MaxArrayLen {
		items = items[:s.opts.MaxArrayLen]
	}
	out := make([]any, 0, len(items))
	for _, v := range items {
		if clean, ok := s.value(v, depth+1); ok {
			out = append(out, clean)
		}
	}
	return out
}

// value returns the cleaned form of v and whether it should be kept.
func (s *Sanitizer) value(v any, depth int) (any, bool) {
	switch tv := v.(type) {
	case nil:
		return nil, true
	case string:
		return s.truncate(tv), true
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return tv, true
	case float32:
		return tv, finite(float64(tv))
	case float64:
		return tv, finite(tv)
	case time.Time:
		return tv, true
	case map[string]any:
		if depth > s.opts.MaxDepth {
			return nil, false
		}
		return s.mapValue(tv, depth), true
	case []any:
		if depth > s.opts.MaxDepth {
			return nil, false
		}
		return s.sliceValue(tv, depth), true
	}
	return s.reflectValue(reflect.ValueOf(v), depth)
}

// reflectValue normalizes typed slices, typed maps, pointers and named scalars.
func (s *Sanitizer) reflectValue(rv reflect.Value, depth int) (any, bool) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, true
		}
		return s.value(rv.Elem().Interface(), depth)
	case reflect.String:
		return s.truncate(rv.String()), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), finite(rv.Float())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil, true
		}
		if depth > s.opts.MaxDepth {
			return nil, false
		}
		n := rv.Len()
		if n > s.opts.MaxArrayLen {
			n = s.opts.MaxArrayLen
		}
		items := make([]any, n)
		for i := 0; i < n; i++ {
			items[i] = rv.Index(i).Interface()
		}
		return s.sliceValue(items, depth), true
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		if rv.IsNil() {
			return nil, true
		}
		if depth > s.opts.MaxDepth {
			return nil, false
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return s.mapValue(m, depth), true
	}
	// structs, funcs, channels, complex numbers
	return nil, false
}

func (s *Sanitizer) truncate(str string) string {
	if utf8.RuneCountInString(str) <= s.opts.MaxStringLen {
		return str
	}
	runes := []rune(str)
	return string(runes[:s.opts.MaxStringLen])
}

// finite reports whether f can be encoded as JSON. NaN and ±Inf cannot.
func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
