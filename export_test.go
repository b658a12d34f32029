package weft

import "reflect"

// Test-only exports for internal functions.
var (
	TagOptions    = tagOptions
	TagContains   = tagContains
	JSONFieldName = jsonFieldName

	InferContentType = inferContentType
	PickEncoding     = pickEncoding
	Stringify        = stringify
)

// CompilePlanErr compiles a request type and returns the compile error, if any.
func CompilePlanErr(t reflect.Type) error {
	_, err := compilePlan(t)
	return err
}

// ParsePatternErr parses a route pattern and returns the stripped mux
// pattern, the declared path variable names and the parse error.
func ParsePatternErr(pattern string) (string, []string, error) {
	stripped, vars, err := parsePattern(pattern)
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		names = append(names, v.name)
	}
	return stripped, names, err
}

// ToPrimitives converts a value the way the JSON response path does.
func ToPrimitives(v any, include, exclude []string, useFieldNames, omitNil bool) any {
	return toPrimitives(v, marshalOpts{
		include:       fieldSet(include),
		exclude:       fieldSet(exclude),
		useFieldNames: useFieldNames,
		omitNil:       omitNil,
	})
}

func fieldSet(fields []string) map[string]bool {
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
