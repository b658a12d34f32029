package weft

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// source identifies where a request field's value is extracted from.
type source int

const (
	sourcePath source = iota
	sourceQuery
	sourceHeader
	sourceCookie
	sourceForm
	sourceBody
)

func (s source) String() string {
	switch s {
	case sourcePath:
		return "path"
	case sourceQuery:
		return "query"
	case sourceHeader:
		return "header"
	case sourceCookie:
		return "cookie"
	case sourceForm:
		return "form"
	case sourceBody:
		return "body"
	}
	return "unknown"
}

// bindOrder is the order sources are extracted and their errors reported.
// Body is last because reading it is the only step that performs I/O.
var bindOrder = []source{sourcePath, sourceQuery, sourceHeader, sourceCookie, sourceForm}

// bindMode describes how a field consumes its source.
type bindMode int

const (
	modeSingle bindMode = iota // one named value
	modeSchema                 // a user struct bound field-by-field from the bulk source
	modeRaw                    // the transport-native container, unvalidated
)

// fieldPlan is the compiled descriptor for one bound request field.
// Built once at registration, immutable afterwards.
type fieldPlan struct {
	name        string // Go field name
	index       int
	src         source
	mode        bindMode
	alias       string
	def         string
	hasDef      bool
	required    bool
	constraints *constraintSet
	typ         reflect.Type
	schema      []schemaField // modeSchema only
}

// schemaField is one field of a bulk-bound user struct.
type schemaField struct {
	name        string
	index       int
	alias       string
	def         string
	hasDef      bool
	required    bool
	constraints *constraintSet
	typ         reflect.Type
}

// bodyKind selects the single body-reading strategy for a route.
type bodyKind int

const (
	bodyJSON   bodyKind = iota // decode via the content type's registered decoder
	bodyBytes                  // raw byte read regardless of content type
	bodyStream                 // inject the live body stream, no validation
	bodyText                   // decode bytes using the request charset
)

// bodyPlan is the compiled descriptor for a route's body parameter.
type bodyPlan struct {
	kind         bodyKind
	index        int // field index of Body; -1 when the whole struct is the body
	typ          reflect.Type
	contentType  string // declared content type
	checkContent bool   // verify the request Content-Type against contentType
	maxBytes     int64
	def          string
	hasDef       bool
	defValue     reflect.Value // def parsed at registration, ready to inject
	optional     bool
	constraints  *constraintSet   // bytes/text bodies
	checks       []bodyFieldCheck // struct bodies
}

// bodyFieldCheck is one precompiled constraint location inside a decoded body.
type bodyFieldCheck struct {
	loc         []string
	index       []int
	required    bool
	constraints *constraintSet
}

// requestPlan is the compiled binding plan for one request type. It is the
// synthesized validation model: per-source ordered field plans plus the body
// strategy, built exactly once per route and shared read-only by every
// request.
type requestPlan struct {
	reqType     reflect.Type
	fields      []fieldPlan
	body        *bodyPlan
	rawReqIndex int // index of a RawRequest field, -1 if none
	respIndex   int // index of a *Response field, -1 if none
}

// sourceTags maps binding tag keys to sources, in extraction order.
var sourceTags = []struct {
	key string
	src source
}{
	{"path", sourcePath},
	{"query", sourceQuery},
	{"header", sourceHeader},
	{"cookie", sourceCookie},
	{"form", sourceForm},
}

var (
	rawRequestType  = reflect.TypeFor[RawRequest]()
	responsePtrType = reflect.TypeFor[*Response]()
	readCloserType  = reflect.TypeFor[io.ReadCloser]()
	byteSliceType   = reflect.TypeFor[[]byte]()
	headerType      = reflect.TypeFor[http.Header]()
	valuesType      = reflect.TypeFor[url.Values]()
	cookieSliceType = reflect.TypeFor[[]*http.Cookie]()
	durationType    = reflect.TypeFor[time.Duration]()
	timeType        = reflect.TypeFor[time.Time]()
	fileUploadType  = reflect.TypeFor[FileUpload]()
	fileUploadsType = reflect.TypeFor[[]FileUpload]()
	voidType        = reflect.TypeFor[Void]()
)

// compilePlan inspects a request type and produces its binding plan.
// Errors are *ConfigError with Field and Reason set; the caller fills in
// the route identity.
func compilePlan(t reflect.Type) (*requestPlan, error) {
	p := &requestPlan{reqType: t, rawReqIndex: -1, respIndex: -1}

	if t == voidType {
		return p, nil
	}

	if t.Kind() != reflect.Struct {
		// Non-struct request types (maps, slices) are a whole-body shorthand.
		p.body = &bodyPlan{kind: bodyJSON, index: -1, typ: t, contentType: "application/json", optional: true}
		return p, nil
	}

	// First single-mode and first bulk-mode field seen per source, for the
	// mixed-binding conflict check.
	type sourceUse struct {
		single string
		bulk   string
	}
	uses := make(map[source]*sourceUse)

	bound := false
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		if f.Type == rawRequestType {
			p.rawReqIndex = i
			bound = true
			continue
		}
		if f.Type == responsePtrType {
			p.respIndex = i
			bound = true
			continue
		}

		if f.Name == "Body" {
			bp, err := compileBody(f, i)
			if err != nil {
				return nil, err
			}
			p.body = bp
			bound = true
			continue
		}

		fp, err := compileField(f, i)
		if err != nil {
			return nil, err
		}
		if fp == nil {
			// No binding tags: the field belongs to middleware/context
			// injection and the binder never touches it.
			continue
		}
		bound = true

		use := uses[fp.src]
		if use == nil {
			use = &sourceUse{}
			uses[fp.src] = use
		}
		if fp.mode == modeSingle {
			if use.bulk != "" {
				return nil, &ConfigError{
					Field:  use.bulk + ", " + f.Name,
					Reason: fmt.Sprintf("source %s is bound in bulk by %s and per-field by %s; mixing is not allowed", fp.src, use.bulk, f.Name),
				}
			}
			if use.single == "" {
				use.single = f.Name
			}
		} else {
			if use.single != "" {
				return nil, &ConfigError{
					Field:  use.single + ", " + f.Name,
					Reason: fmt.Sprintf("source %s is bound per-field by %s and in bulk by %s; mixing is not allowed", fp.src, use.single, f.Name),
				}
			}
			if use.bulk != "" {
				return nil, &ConfigError{
					Field:  use.bulk + ", " + f.Name,
					Reason: fmt.Sprintf("source %s is bound in bulk twice (%s and %s)", fp.src, use.bulk, f.Name),
				}
			}
			use.bulk = f.Name
		}

		p.fields = append(p.fields, *fp)
	}

	if !bound {
		// No binding declarations at all: the entire struct is the JSON body.
		checks, err := compileBodyChecks(t, []string{"body"}, nil)
		if err != nil {
			return nil, err
		}
		p.body = &bodyPlan{
			kind:        bodyJSON,
			index:       -1,
			typ:         t,
			contentType: "application/json",
			optional:    true,
			checks:      checks,
		}
	}

	return p, nil
}

// compileField builds a fieldPlan from one struct field, or returns nil if
// the field carries no binding tag.
func compileField(f reflect.StructField, index int) (*fieldPlan, error) {
	var (
		src   source
		found bool
		alias string
		opts  string
	)
	for _, st := range sourceTags {
		tag, ok := f.Tag.Lookup(st.key)
		if !ok {
			continue
		}
		if found {
			return nil, &ConfigError{Field: f.Name, Reason: "field binds more than one source"}
		}
		found = true
		src = st.src
		alias, opts = tagOptions(tag)
	}
	if !found {
		return nil, nil
	}

	mode := modeSingle
	switch {
	case tagContains(opts, "schema"):
		mode = modeSchema
	case tagContains(opts, "raw"):
		mode = modeRaw
	}

	cs, err := parseConstraints(f.Tag, f.Name)
	if err != nil {
		return nil, err
	}

	def, hasDef := f.Tag.Lookup("default")
	required := f.Tag.Get("required") == "true"

	fp := &fieldPlan{
		name:        f.Name,
		index:       index,
		src:         src,
		mode:        mode,
		alias:       alias,
		def:         def,
		hasDef:      hasDef,
		required:    required,
		constraints: cs,
		typ:         f.Type,
	}

	if src == sourcePath {
		if hasDef {
			return nil, &ConfigError{Field: f.Name, Reason: "path parameters cannot carry a default value"}
		}
		if mode != modeSingle {
			return nil, &ConfigError{Field: f.Name, Reason: "path parameters only support per-field binding"}
		}
	}

	switch mode {
	case modeSingle:
		if alias == "" {
			return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("%s tag needs a name", src)}
		}
		if !isBindableScalar(f.Type) && f.Type != fileUploadType && f.Type != fileUploadsType {
			return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("unsupported type %s for %s binding", f.Type, src)}
		}
		if (f.Type == fileUploadType || f.Type == fileUploadsType) && src != sourceForm {
			return nil, &ConfigError{Field: f.Name, Reason: "file uploads can only be bound from form data"}
		}

	case modeSchema:
		if src != sourceQuery && src != sourceHeader && src != sourceCookie {
			return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("schema binding is not supported for source %s", src)}
		}
		if f.Type.Kind() != reflect.Struct {
			return nil, &ConfigError{Field: f.Name, Reason: "schema binding needs a struct field"}
		}
		schema, err := compileSchema(f.Type, src)
		if err != nil {
			cfg := &ConfigError{}
			if asConfigError(err, &cfg) {
				cfg.Field = f.Name + "." + cfg.Field
				return nil, cfg
			}
			return nil, err
		}
		fp.schema = schema

	case modeRaw:
		if !cs.empty() {
			return nil, &ConfigError{Field: f.Name, Reason: "raw binding cannot carry validation constraints"}
		}
		if hasDef {
			return nil, &ConfigError{Field: f.Name, Reason: "raw binding cannot carry a default value"}
		}
		want := map[source]reflect.Type{
			sourceHeader: headerType,
			sourceQuery:  valuesType,
			sourceCookie: cookieSliceType,
		}[src]
		if want == nil {
			return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("raw binding is not supported for source %s", src)}
		}
		if f.Type != want {
			return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("raw %s binding needs a %s field", src, want)}
		}
	}

	return fp, nil
}

// compileSchema builds the per-field plans for a bulk-bound user struct.
// The struct is used as-is, never wrapped; aliases come from the struct's
// own source tags or field names.
func compileSchema(t reflect.Type, src source) ([]schemaField, error) {
	var tagKey string
	for _, st := range sourceTags {
		if st.src == src {
			tagKey = st.key
		}
	}

	var fields []schemaField
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}

		alias := f.Name
		if tag, ok := f.Tag.Lookup(tagKey); ok {
			name, _ := tagOptions(tag)
			if name != "" {
				alias = name
			}
		}

		if !isBindableScalar(f.Type) {
			return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("unsupported type %s for %s binding", f.Type, src)}
		}

		cs, err := parseConstraints(f.Tag, f.Name)
		if err != nil {
			return nil, err
		}
		def, hasDef := f.Tag.Lookup("default")

		fields = append(fields, schemaField{
			name:        f.Name,
			index:       i,
			alias:       alias,
			def:         def,
			hasDef:      hasDef,
			required:    f.Tag.Get("required") == "true",
			constraints: cs,
			typ:         f.Type,
		})
	}
	return fields, nil
}

// compileBody builds the body plan from a request type's Body field.
func compileBody(f reflect.StructField, index int) (*bodyPlan, error) {
	bp := &bodyPlan{index: index, typ: f.Type}

	cs, err := parseConstraints(f.Tag, f.Name)
	if err != nil {
		return nil, err
	}

	def, hasDef := f.Tag.Lookup("default")
	bp.def, bp.hasDef = def, hasDef
	bp.optional = f.Tag.Get("optional") == "true"
	bp.checkContent = f.Tag.Get("checkContent") == "true"
	bp.contentType = f.Tag.Get("content")

	if tag := f.Tag.Get("maxBytes"); tag != "" {
		n, err := strconv.ParseInt(tag, 10, 64)
		if err != nil || n <= 0 {
			return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("invalid maxBytes %q", tag)}
		}
		bp.maxBytes = n
	}

	switch {
	case f.Type == byteSliceType:
		bp.kind = bodyBytes
		bp.constraints = cs
		if bp.contentType == "" {
			bp.contentType = "application/octet-stream"
		}

	case f.Type == readCloserType:
		bp.kind = bodyStream
		if hasDef {
			return nil, &ConfigError{Field: f.Name, Reason: "a streaming body has no absent state and cannot carry a default value"}
		}
		if !cs.empty() {
			return nil, &ConfigError{Field: f.Name, Reason: "a streaming body bypasses validation and cannot carry constraints"}
		}
		if bp.contentType == "" {
			bp.contentType = "application/octet-stream"
		}

	case f.Type.Kind() == reflect.String:
		bp.kind = bodyText
		bp.constraints = cs
		if bp.contentType == "" {
			bp.contentType = "text/plain"
		}

	default:
		bp.kind = bodyJSON
		if !cs.empty() {
			return nil, &ConfigError{Field: f.Name, Reason: "constraints on a structured body go on its fields, not the Body field"}
		}
		if bp.contentType == "" {
			bp.contentType = "application/json"
		}
		checks, err := compileBodyChecks(f.Type, []string{"body"}, nil)
		if err != nil {
			return nil, err
		}
		bp.checks = checks
	}

	if bp.hasDef {
		switch bp.kind {
		case bodyBytes:
			bp.defValue = reflect.ValueOf([]byte(def))
		case bodyText:
			bp.defValue = reflect.ValueOf(def).Convert(f.Type)
		case bodyJSON:
			// The default is a JSON document, parsed once at registration so
			// a malformed one can never reach serving.
			ptr := reflect.New(f.Type)
			if err := json.Unmarshal([]byte(def), ptr.Interface()); err != nil {
				return nil, &ConfigError{Field: f.Name, Reason: fmt.Sprintf("invalid default %q: %v", def, err)}
			}
			bp.defValue = ptr.Elem()
		}
	}

	return bp, nil
}

// compileBodyChecks walks a struct body type once and records every field
// with constraint tags, keyed by its JSON location, so serving only replays
// the precompiled list.
func compileBodyChecks(t reflect.Type, prefix []string, seen map[reflect.Type]bool) ([]bodyFieldCheck, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType {
		return nil, nil
	}
	if seen[t] {
		return nil, nil
	}
	if seen == nil {
		seen = make(map[reflect.Type]bool)
	}
	seen[t] = true

	var checks []bodyFieldCheck
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := jsonFieldName(f)
		if name == "-" {
			continue
		}

		loc := make([]string, 0, len(prefix)+1)
		loc = append(loc, prefix...)
		loc = append(loc, name)

		cs, err := parseConstraints(f.Tag, f.Name)
		if err != nil {
			return nil, err
		}
		required := f.Tag.Get("required") == "true"
		if !cs.empty() || required {
			checks = append(checks, bodyFieldCheck{
				loc:         loc,
				index:       []int{i},
				required:    required,
				constraints: cs,
			})
		}

		sub, err := compileBodyChecks(f.Type, loc, seen)
		if err != nil {
			return nil, err
		}
		for _, c := range sub {
			c.index = append([]int{i}, c.index...)
			checks = append(checks, c)
		}
	}
	return checks, nil
}

// isBindableScalar reports whether a string value can be coerced into the
// given type by setFieldValue.
func isBindableScalar(t reflect.Type) bool {
	if t == durationType {
		return true
	}
	//exhaustive:ignore
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if ok {
		*target = ce
	}
	return ok
}

// tagOptions splits a struct tag value on comma and returns
// the name and remaining options.
func tagOptions(tag string) (string, string) {
	name, opts, _ := strings.Cut(tag, ",")
	return name, opts
}

// tagContains reports whether a comma-separated list of options
// contains a particular option.
func tagContains(opts string, name string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == name {
			return true
		}
	}
	return false
}

// jsonFieldName returns the JSON field name for a struct field.
func jsonFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// pathVar is one named segment of a route pattern, with an optional
// compiled regexp constraint.
type pathVar struct {
	name string
	re   *regexp.Regexp
}

// parsePattern splits regexp constraints out of a route pattern:
// "/users/{id:[0-9]+}" becomes the mux pattern "/users/{id}" plus a compiled
// constraint for "id". Plain "{name}" segments keep the mux's default
// matching (anything but "/").
func parsePattern(pattern string) (string, []pathVar, error) {
	var (
		vars []pathVar
		out  strings.Builder
	)
	rest := pattern
	for {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", nil, fmt.Errorf("unclosed { in pattern %q", pattern)
		}
		end += start

		out.WriteString(rest[:start])
		seg := rest[start+1 : end]

		name, expr, hasExpr := strings.Cut(seg, ":")
		if name == "" {
			return "", nil, fmt.Errorf("empty parameter name in pattern %q", pattern)
		}
		pv := pathVar{name: strings.TrimSuffix(name, "...")}
		if hasExpr {
			re, err := regexp.Compile("^(?:" + expr + ")$")
			if err != nil {
				return "", nil, fmt.Errorf("parameter %s: %w", name, err)
			}
			pv.re = re
		}
		vars = append(vars, pv)

		out.WriteString("{" + name + "}")
		rest = rest[end+1:]
	}
	return out.String(), vars, nil
}
