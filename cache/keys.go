package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode"
)

// KeySeparator delimits cache key segments. Invalidation patterns rely on it:
// every key built for collection "services" starts with "services::".
const KeySeparator = "::"

// KeyBuilder builds stable cache keys from a collection name, a method name
// and arbitrary arguments.
type KeyBuilder interface {
	Key(collection, method string, args ...any) string
}

// Prefix returns the anchored pattern matching every key of a collection,
// suitable for CacheService.InvalidatePattern.
func Prefix(collection string) string {
	return "^" + toSnake(collection) + KeySeparator
}

type defaultKeyBuilder struct{}

// NewKeyBuilder creates the default reflection-based key builder. It produces
// deterministic keys for basic types, slices, sorted maps and exported struct
// fields, falling back to JSON for anything else.
func NewKeyBuilder() KeyBuilder {
	return &defaultKeyBuilder{}
}

func (b *defaultKeyBuilder) Key(collection, method string, args ...any) string {
	parts := make([]string, 0, len(args)+2)
	parts = append(parts, toSnake(collection), toSnake(method))
	for _, arg := range args {
		parts = append(parts, b.serialize(arg))
	}
	return strings.Join(parts, KeySeparator)
}

func (b *defaultKeyBuilder) serialize(v any) string {
	if v == nil {
		return "nil"
	}

	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return b.serialize(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return "[]"
		}
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = b.serialize(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ",") + "]"

	case reflect.Map:
		if rv.IsNil() {
			return "{}"
		}
		// Sorted pairs keep map keys deterministic across runs.
		pairs := make([]string, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			pairs = append(pairs, b.serialize(iter.Key().Interface())+"="+b.serialize(iter.Value().Interface()))
		}
		sort.Strings(pairs)
		return "{" + strings.Join(pairs, ",") + "}"

	case reflect.Struct:
		rt := rv.Type()
		parts := make([]string, 0, rt.NumField())
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			if !field.IsExported() {
				continue
			}
			parts = append(parts, field.Name+":"+b.serialize(rv.Field(i).Interface()))
		}
		return "{" + strings.Join(parts, ",") + "}"

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", v)

	case reflect.Func, reflect.Chan:
		// Pointer formatting is stable within a process, which is all an
		// in-memory cache needs.
		return fmt.Sprintf("%T:%p", v, v)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	return string(data)
}

// toSnake converts s to snake_case, stripping punctuation that can show up in
// reflected type names; leaving it in would break prefix-based invalidation.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 && !lastUnderscore {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
