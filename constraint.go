package weft

import (
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// constraintSet holds the validation constraints parsed from one field's
// tags. Parsed once at registration; checked per request.
type constraintSet struct {
	minLength  *int
	maxLength  *int
	pattern    *regexp.Regexp
	patternSrc string
	minimum    *float64
	maximum    *float64
	exclMin    *float64
	exclMax    *float64
	enum       []string
	minItems   *int
	maxItems   *int
}

func (c *constraintSet) empty() bool {
	return c == nil || (c.minLength == nil && c.maxLength == nil && c.pattern == nil &&
		c.minimum == nil && c.maximum == nil && c.exclMin == nil && c.exclMax == nil &&
		c.enum == nil && c.minItems == nil && c.maxItems == nil)
}

// parseConstraints reads the constraint tags off a struct field. Malformed
// constraint values are registration-time errors, not silent no-ops.
func parseConstraints(tag reflect.StructTag, field string) (*constraintSet, error) {
	c := &constraintSet{}

	intTag := func(key string, dst **int) error {
		raw, ok := tag.Lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("invalid %s %q", key, raw)}
		}
		*dst = &n
		return nil
	}
	floatTag := func(key string, dst **float64) error {
		raw, ok := tag.Lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("invalid %s %q", key, raw)}
		}
		*dst = &n
		return nil
	}

	if err := intTag("minLength", &c.minLength); err != nil {
		return nil, err
	}
	if err := intTag("maxLength", &c.maxLength); err != nil {
		return nil, err
	}
	if err := intTag("minItems", &c.minItems); err != nil {
		return nil, err
	}
	if err := intTag("maxItems", &c.maxItems); err != nil {
		return nil, err
	}
	if err := floatTag("minimum", &c.minimum); err != nil {
		return nil, err
	}
	if err := floatTag("maximum", &c.maximum); err != nil {
		return nil, err
	}
	if err := floatTag("exclusiveMinimum", &c.exclMin); err != nil {
		return nil, err
	}
	if err := floatTag("exclusiveMaximum", &c.exclMax); err != nil {
		return nil, err
	}

	if raw, ok := tag.Lookup("pattern"); ok {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, &ConfigError{Field: field, Reason: fmt.Sprintf("invalid pattern %q: %v", raw, err)}
		}
		c.pattern = re
		c.patternSrc = raw
	}
	if raw, ok := tag.Lookup("enum"); ok {
		c.enum = strings.Split(raw, ",")
	}

	if c.empty() {
		return nil, nil
	}
	return c, nil
}

// check evaluates the constraint set against a bound value and appends one
// FieldError per violation. Loc is owned by the caller and copied as needed.
func (c *constraintSet) check(loc []string, v reflect.Value, errs *[]FieldError) {
	if c.empty() {
		return
	}
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		v = v.Elem()
	}

	fail := func(typ, msg string, ctx map[string]any) {
		*errs = append(*errs, FieldError{Type: typ, Loc: slices.Clone(loc), Msg: msg, Ctx: ctx})
	}

	if v.Kind() == reflect.String {
		s := v.String()
		if c.minLength != nil && len(s) < *c.minLength {
			fail("string_too_short",
				fmt.Sprintf("must be at least %d characters", *c.minLength),
				map[string]any{"min_length": *c.minLength})
		}
		if c.maxLength != nil && len(s) > *c.maxLength {
			fail("string_too_long",
				fmt.Sprintf("must be at most %d characters", *c.maxLength),
				map[string]any{"max_length": *c.maxLength})
		}
		if c.pattern != nil && !c.pattern.MatchString(s) {
			fail("string_pattern_mismatch",
				fmt.Sprintf("must match pattern %s", c.patternSrc),
				map[string]any{"pattern": c.patternSrc})
		}
		if c.enum != nil && !slices.Contains(c.enum, s) {
			fail("not_in_enum",
				fmt.Sprintf("must be one of [%s]", strings.Join(c.enum, ",")),
				map[string]any{"allowed": c.enum})
		}
	}

	if isNumericKind(v.Kind()) {
		n := toFloat64(v)
		if c.minimum != nil && n < *c.minimum {
			fail("too_small",
				fmt.Sprintf("must be at least %v", *c.minimum),
				map[string]any{"minimum": *c.minimum})
		}
		if c.maximum != nil && n > *c.maximum {
			fail("too_large",
				fmt.Sprintf("must be at most %v", *c.maximum),
				map[string]any{"maximum": *c.maximum})
		}
		if c.exclMin != nil && n <= *c.exclMin {
			fail("too_small",
				fmt.Sprintf("must be greater than %v", *c.exclMin),
				map[string]any{"exclusive_minimum": *c.exclMin})
		}
		if c.exclMax != nil && n >= *c.exclMax {
			fail("too_large",
				fmt.Sprintf("must be less than %v", *c.exclMax),
				map[string]any{"exclusive_maximum": *c.exclMax})
		}
	}

	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		length := v.Len()
		if v.Type() == byteSliceType {
			// Byte bodies measure length in bytes.
			if c.minLength != nil && length < *c.minLength {
				fail("string_too_short",
					fmt.Sprintf("must be at least %d bytes", *c.minLength),
					map[string]any{"min_length": *c.minLength})
			}
			if c.maxLength != nil && length > *c.maxLength {
				fail("string_too_long",
					fmt.Sprintf("must be at most %d bytes", *c.maxLength),
					map[string]any{"max_length": *c.maxLength})
			}
			return
		}
		if c.minItems != nil && length < *c.minItems {
			fail("too_few_items",
				fmt.Sprintf("must have at least %d items", *c.minItems),
				map[string]any{"min_items": *c.minItems})
		}
		if c.maxItems != nil && length > *c.maxItems {
			fail("too_many_items",
				fmt.Sprintf("must have at most %d items", *c.maxItems),
				map[string]any{"max_items": *c.maxItems})
		}
	}
}

func isNumericKind(k reflect.Kind) bool {
	//exhaustive:ignore
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func toFloat64(v reflect.Value) float64 {
	//exhaustive:ignore
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint())
	default: // float32, float64
		return v.Float()
	}
}
