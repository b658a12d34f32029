package weft

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"
)

// maxMultipartMemory is the maximum memory used for multipart form parsing (32 MB).
const maxMultipartMemory = 32 << 20

// bind executes the compiled plan against a live request, populating target
// (a *Req) and returning every FieldError found. Sources never short-circuit
// each other: all of them are attempted and their errors aggregated in
// source order, then field-declaration order, so the caller sees every
// invalid field at once. Body extraction runs last and exactly once.
func (p *requestPlan) bind(target any, r *http.Request, codecs *codecRegistry) []FieldError {
	v := reflect.ValueOf(target).Elem()
	var errs []FieldError

	if p.rawReqIndex >= 0 {
		v.Field(p.rawReqIndex).Set(reflect.ValueOf(RawRequest{Request: r}))
	}

	formReady := false
	for _, src := range bindOrder {
		if src == sourceForm && p.hasSource(sourceForm) {
			if ferr := parseFormRequest(r); ferr != nil {
				errs = append(errs, *ferr)
				continue
			}
			formReady = true
		}
		for i := range p.fields {
			fp := &p.fields[i]
			if fp.src != src {
				continue
			}
			if src == sourceForm && !formReady {
				continue
			}
			p.bindField(fp, v, r, &errs)
		}
	}

	if p.body != nil {
		p.bindBody(v, r, codecs, &errs)
	}

	return errs
}

func (p *requestPlan) hasSource(src source) bool {
	for i := range p.fields {
		if p.fields[i].src == src {
			return true
		}
	}
	return false
}

func (p *requestPlan) bindField(fp *fieldPlan, v reflect.Value, r *http.Request, errs *[]FieldError) {
	field := v.Field(fp.index)

	switch fp.mode {
	case modeRaw:
		// Transport-native container, injected unmodified. Validation is
		// skipped entirely for this source.
		switch fp.src {
		case sourceHeader:
			field.Set(reflect.ValueOf(r.Header))
		case sourceQuery:
			field.Set(reflect.ValueOf(r.URL.Query()))
		case sourceCookie:
			field.Set(reflect.ValueOf(r.Cookies()))
		}

	case modeSchema:
		for i := range fp.schema {
			sf := &fp.schema[i]
			bindScalar(field.Field(sf.index), fp.src, sf.alias, sf.def, sf.hasDef, sf.required, sf.constraints, r, errs)
		}

	case modeSingle:
		if fp.typ == fileUploadType || fp.typ == fileUploadsType {
			bindFile(field, fp.alias, fp.required, r, errs)
			return
		}
		bindScalar(field, fp.src, fp.alias, fp.def, fp.hasDef, fp.required, fp.constraints, r, errs)
	}
}

// bindScalar extracts one named value, applies the default, coerces it into
// the field, and runs its constraints.
func bindScalar(field reflect.Value, src source, alias, def string, hasDef, required bool, cs *constraintSet, r *http.Request, errs *[]FieldError) {
	loc := []string{src.String(), alias}

	raw, ok := lookupValue(src, alias, r)
	if !ok || raw == "" {
		if hasDef {
			raw = def
		} else {
			if required {
				*errs = append(*errs, FieldError{
					Type: "missing",
					Loc:  loc,
					Msg:  "field is required",
				})
			}
			return
		}
	}

	if err := setFieldValue(field, raw); err != nil {
		*errs = append(*errs, FieldError{
			Type: "type_error",
			Loc:  loc,
			Msg:  fmt.Sprintf("cannot parse %q as %s", raw, field.Type()),
			Ctx:  map[string]any{"value": raw, "expected": field.Type().String()},
		})
		return
	}

	cs.check(loc, field, errs)
}

// lookupValue reads one named value from a synchronous source. Alias
// resolution happens here, never during plan compilation.
func lookupValue(src source, alias string, r *http.Request) (string, bool) {
	switch src {
	case sourcePath:
		v := r.PathValue(alias)
		return v, v != ""
	case sourceQuery:
		q := r.URL.Query()
		if !q.Has(alias) {
			return "", false
		}
		return q.Get(alias), true
	case sourceHeader:
		v := r.Header.Get(alias)
		return v, v != ""
	case sourceCookie:
		c, err := r.Cookie(alias)
		if err != nil {
			return "", false
		}
		return c.Value, true
	case sourceForm:
		vs, ok := r.Form[alias]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}
	return "", false
}

// parseFormRequest runs the transport's form parsing once per request.
// Multipart and urlencoded forms share this single entry point.
func parseFormRequest(r *http.Request) *FieldError {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var err error
	if ct == "multipart/form-data" {
		err = r.ParseMultipartForm(maxMultipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return &FieldError{Type: "decode_error", Loc: []string{"form"}, Msg: err.Error()}
	}
	return nil
}

// bindFile binds one FileUpload or []FileUpload field from a parsed
// multipart form.
func bindFile(field reflect.Value, alias string, required bool, r *http.Request, errs *[]FieldError) {
	loc := []string{"form", alias}

	if field.Type() == fileUploadType {
		file, header, err := r.FormFile(alias)
		if errors.Is(err, http.ErrMissingFile) {
			if required {
				*errs = append(*errs, FieldError{Type: "missing", Loc: loc, Msg: "file is required"})
			}
			return
		}
		if err != nil {
			*errs = append(*errs, FieldError{Type: "decode_error", Loc: loc, Msg: err.Error()})
			return
		}
		field.Set(reflect.ValueOf(FileUpload{
			Filename: header.Filename,
			Size:     header.Size,
			Header:   header,
			file:     file,
		}))
		return
	}

	if r.MultipartForm == nil || len(r.MultipartForm.File[alias]) == 0 {
		if required {
			*errs = append(*errs, FieldError{Type: "missing", Loc: loc, Msg: "file is required"})
		}
		return
	}
	headers := r.MultipartForm.File[alias]
	uploads := make([]FileUpload, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			*errs = append(*errs, FieldError{Type: "decode_error", Loc: loc, Msg: err.Error()})
			return
		}
		uploads = append(uploads, FileUpload{
			Filename: header.Filename,
			Size:     header.Size,
			Header:   header,
			file:     file,
		})
	}
	field.Set(reflect.ValueOf(uploads))
}

// bindBody runs the route's single body-reading strategy.
func (p *requestPlan) bindBody(v reflect.Value, r *http.Request, codecs *codecRegistry, errs *[]FieldError) {
	bp := p.body
	bodyLoc := []string{"body"}

	var field reflect.Value
	if bp.index >= 0 {
		field = v.Field(bp.index)
	} else {
		field = v
	}

	if bp.checkContent {
		actual := r.Header.Get("Content-Type")
		if !contentTypeMatches(bp.contentType, actual) {
			*errs = append(*errs, FieldError{
				Type: "content_type_mismatch",
				Loc:  bodyLoc,
				Msg:  fmt.Sprintf("expected content type %s, got %s", bp.contentType, actual),
				Ctx:  map[string]any{"expected": bp.contentType, "actual": actual},
			})
			return
		}
	}

	// Stream injection bypasses reading and validation entirely.
	if bp.kind == bodyStream {
		field.Set(reflect.ValueOf(r.Body))
		return
	}

	data, ferr := readBody(r, bp.maxBytes)
	if ferr != nil {
		*errs = append(*errs, *ferr)
		return
	}

	// Absence is decided before any content validation runs.
	if len(data) == 0 {
		if bp.hasDef {
			field.Set(bp.defValue)
			return
		}
		if !bp.optional {
			*errs = append(*errs, FieldError{Type: "missing", Loc: bodyLoc, Msg: "request body is required"})
		}
		return
	}

	switch bp.kind {
	case bodyBytes:
		field.SetBytes(data)
		bp.constraints.check(bodyLoc, field, errs)

	case bodyText:
		s, err := decodeTextCharset(data, r.Header.Get("Content-Type"))
		if err != nil {
			*errs = append(*errs, FieldError{Type: "decode_error", Loc: bodyLoc, Msg: err.Error()})
			return
		}
		field.SetString(s)
		bp.constraints.check(bodyLoc, field, errs)

	case bodyJSON:
		dec, ok := codecs.decoderFor(bp.contentType)
		if !ok {
			*errs = append(*errs, FieldError{
				Type: "decode_error",
				Loc:  bodyLoc,
				Msg:  fmt.Sprintf("no decoder registered for content type %s", bp.contentType),
			})
			return
		}
		if err := dec.Decode(bytes.NewReader(data), field.Addr().Interface()); err != nil {
			*errs = append(*errs, FieldError{Type: "decode_error", Loc: bodyLoc, Msg: err.Error()})
			return
		}
		for _, chk := range bp.checks {
			runBodyCheck(field, chk, errs)
		}
	}
}

// runBodyCheck replays one precompiled constraint location against the
// decoded body value.
func runBodyCheck(root reflect.Value, chk bodyFieldCheck, errs *[]FieldError) {
	fv := root
	for _, idx := range chk.index {
		for fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				return
			}
			fv = fv.Elem()
		}
		if fv.Kind() != reflect.Struct {
			return
		}
		fv = fv.Field(idx)
	}

	if chk.required && fv.IsZero() {
		*errs = append(*errs, FieldError{Type: "missing", Loc: chk.loc, Msg: "field is required"})
		return
	}
	chk.constraints.check(chk.loc, fv, errs)
}

// readBody drains the request body, honoring the plan's size cap.
func readBody(r *http.Request, maxBytes int64) ([]byte, *FieldError) {
	if r.Body == nil {
		return nil, nil
	}

	var reader io.Reader = r.Body
	if maxBytes > 0 {
		reader = io.LimitReader(r.Body, maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, &FieldError{
				Type: "body_too_large",
				Loc:  []string{"body"},
				Msg:  fmt.Sprintf("request body exceeds %d bytes", mbe.Limit),
				Ctx:  map[string]any{"max_bytes": mbe.Limit},
			}
		}
		return nil, &FieldError{Type: "read_error", Loc: []string{"body"}, Msg: err.Error()}
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, &FieldError{
			Type: "body_too_large",
			Loc:  []string{"body"},
			Msg:  fmt.Sprintf("request body exceeds %d bytes", maxBytes),
			Ctx:  map[string]any{"max_bytes": maxBytes},
		}
	}
	return data, nil
}

// contentTypeMatches compares media types, ignoring parameters. A declared
// type ending in "/*" matches any subtype.
func contentTypeMatches(declared, actual string) bool {
	want, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return false
	}
	got, _, err := mime.ParseMediaType(actual)
	if err != nil {
		return false
	}
	if prefix, ok := strings.CutSuffix(want, "/*"); ok {
		return strings.HasPrefix(got, prefix+"/")
	}
	return want == got
}

// decodeTextCharset decodes body bytes using the client's declared charset,
// defaulting to UTF-8.
func decodeTextCharset(data []byte, contentType string) (string, error) {
	cs := "utf-8"
	if contentType != "" {
		if _, params, err := mime.ParseMediaType(contentType); err == nil {
			if v := params["charset"]; v != "" {
				cs = v
			}
		}
	}
	if strings.EqualFold(cs, "utf-8") {
		return string(data), nil
	}

	enc, err := htmlindex.Get(cs)
	if err != nil {
		return "", fmt.Errorf("unsupported charset %q", cs)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// setFieldValue sets a reflect.Value from a string, supporting common types.
func setFieldValue(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(d))
		return nil
	}

	//exhaustive:ignore
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(value, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(n)
	default:
		return fmt.Errorf("unsupported type: %s", field.Type())
	}
	return nil
}
