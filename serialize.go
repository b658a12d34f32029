package weft

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
)

// marshalOpts carries a route's serialization flags, applied while
// converting a response value graph to primitives.
type marshalOpts struct {
	include       map[string]bool // top-level field allowlist
	exclude       map[string]bool // top-level field denylist
	useFieldNames bool            // Go field names instead of json tag aliases
	omitNil       bool            // drop nil-valued fields
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// toPrimitives recursively converts a value graph — structs, maps, slices,
// nested combinations — into JSON-compatible primitives, honoring the
// route's serialization flags. Types with their own marshalers (including
// time.Time) pass through untouched for the encoder to handle.
func toPrimitives(v any, o marshalOpts) any {
	if v == nil {
		return nil
	}
	return convertValue(reflect.ValueOf(v), o, 0)
}

func convertValue(v reflect.Value, o marshalOpts, depth int) any {
	if !v.IsValid() {
		return nil
	}

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	t := v.Type()
	if t == timeType || t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		return v.Interface()
	}

	//exhaustive:ignore
	switch v.Kind() {
	case reflect.Struct:
		out := make(map[string]any, t.NumField())
		for i := range t.NumField() {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}

			name := jsonFieldName(f)
			if name == "-" {
				continue
			}
			if o.useFieldNames {
				name = f.Name
			}

			if depth == 0 {
				if o.include != nil && !o.include[name] {
					continue
				}
				if o.exclude[name] {
					continue
				}
			}

			fv := v.Field(i)
			_, opts := tagOptions(f.Tag.Get("json"))
			if tagContains(opts, "omitempty") && fv.IsZero() {
				continue
			}

			val := convertValue(fv, o, depth+1)
			if o.omitNil && val == nil {
				continue
			}
			out[name] = val
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprint(iter.Key().Interface())
			val := convertValue(iter.Value(), o, depth+1)
			if o.omitNil && val == nil {
				continue
			}
			out[key] = val
		}
		return out

	case reflect.Slice:
		if t == byteSliceType {
			return v.Interface()
		}
		if v.IsNil() {
			return nil
		}
		out := make([]any, v.Len())
		for i := range v.Len() {
			out[i] = convertValue(v.Index(i), o, depth+1)
		}
		return out

	case reflect.Array:
		out := make([]any, v.Len())
		for i := range v.Len() {
			out[i] = convertValue(v.Index(i), o, depth+1)
		}
		return out

	default:
		return v.Interface()
	}
}

// stringify renders an already-converted primitive graph as text, without
// the final JSON encoding step.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}
