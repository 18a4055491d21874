package store

import (
	"reflect"
	"strings"
)

var bracketStripper = strings.NewReplacer("<", "", ">", "")

// cleanString trims surrounding whitespace and strips angle brackets. This
// narrows the injection surface of free-text admin input; it is not a
// substitute for output encoding.
func cleanString(s string) string {
	return bracketStripper.Replace(strings.TrimSpace(s))
}

// sanitizeRecord walks the exported string fields of a struct pointer,
// including embedded structs, and cleans them in place.
func sanitizeRecord(v any) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return
	}
	sanitizeValue(rv.Elem())
}

func sanitizeValue(rv reflect.Value) {
	if rv.Kind() != reflect.Struct {
		return
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		if !rt.Field(i).IsExported() {
			continue
		}
		field := rv.Field(i)
		switch field.Kind() {
		case reflect.String:
			if field.CanSet() {
				field.SetString(cleanString(field.String()))
			}
		case reflect.Struct:
			sanitizeValue(field)
		case reflect.Pointer:
			if !field.IsNil() {
				sanitizeValue(field.Elem())
			}
		}
	}
}

// sanitizePatch cleans the string values of a column patch without mutating
// the caller's map.
func sanitizePatch(patch map[string]any) map[string]any {
	clean := make(map[string]any, len(patch))
	for k, v := range patch {
		if s, ok := v.(string); ok {
			clean[k] = cleanString(s)
			continue
		}
		clean[k] = v
	}
	return clean
}
