package weft

import (
	"encoding"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"
)

// Response is the explicit in-flight response scaffold. Declare a *Response
// field on a request type to have one injected per request; mutate its
// status, headers, and cookies from the handler, and the returned value
// becomes its body. Returning a *Response from a handler sends it verbatim,
// bypassing validation and all route-level response configuration.
type Response struct {
	StatusCode  int
	ContentType string
	Charset     string
	Body        []byte

	header  http.Header
	cookies []*http.Cookie
}

// Header returns the response's mutable header map.
func (r *Response) Header() http.Header {
	if r.header == nil {
		r.header = make(http.Header)
	}
	return r.header
}

// SetCookie adds a Set-Cookie header to the response.
func (r *Response) SetCookie(c *http.Cookie) {
	r.cookies = append(r.cookies, c)
}

// CookieSetter is optionally implemented by response types to set cookies.
type CookieSetter interface {
	Cookies() []*http.Cookie
}

// HeaderSetter is optionally implemented by response types to set response headers.
type HeaderSetter interface {
	SetHeaders(h http.Header)
}

// Redirect is returned from a handler to issue an HTTP redirect.
type Redirect struct {
	URL    string
	Status int
}

// responseMeta is a route's compiled response configuration.
type responseMeta struct {
	status      int
	contentType string // explicit override; empty means infer from the value
	charset     string // text-family charset; default utf-8
	marshal     marshalOpts
}

type contentFamily int

const (
	familyJSON contentFamily = iota
	familyText
	familyBinary
)

// writeResponse sends a Response object as-is.
func writeResponse(w http.ResponseWriter, resp *Response, fallbackStatus int) {
	h := w.Header()
	for k, vs := range resp.header {
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	for _, c := range resp.cookies {
		http.SetCookie(w, c)
	}
	if resp.ContentType != "" {
		h.Set("Content-Type", withCharset(resp.ContentType, resp.Charset))
	}

	status := resp.StatusCode
	if status == 0 {
		status = fallbackStatus
	}
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(resp.Body) > 0 {
		//nolint:errcheck,gosec // best-effort after WriteHeader
		w.Write(resp.Body)
	}
}

// encodeResponse resolves a handler's return value into a final body,
// content type, and charset, and writes it. injected is the per-request
// *Response scaffold if the request type declared one.
func encodeResponse(w http.ResponseWriter, r *http.Request, resp any, meta responseMeta, codecs *codecRegistry, injected *Response) {
	// A returned live Response wins over everything, including an injected
	// one: if the handler returned the injected instance, this is the same
	// object and no new response is constructed.
	if out, ok := resp.(*Response); ok && out != nil {
		writeResponse(w, out, meta.status)
		return
	}

	if rd, ok := resp.(*Redirect); ok {
		status := rd.Status
		if status == 0 {
			status = http.StatusFound
		}
		http.Redirect(w, r, rd.URL, status)
		return
	}

	// Stream response — caller controls content type and body.
	if s, ok := resp.(*Stream); ok {
		writeStream(w, s)
		return
	}

	// SSE stream — long-lived event stream.
	if s, ok := resp.(*SSEStream); ok {
		writeSSEStream(w, r, s)
		return
	}

	status := meta.status

	// An injected Response is the base: headers, cookies, and status the
	// handler set on it carry over, and the returned value becomes its body.
	if injected != nil {
		for k, vs := range injected.header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		for _, c := range injected.cookies {
			http.SetCookie(w, c)
		}
		if injected.StatusCode != 0 {
			status = injected.StatusCode
		}
		if meta.contentType == "" && injected.ContentType != "" {
			meta.contentType = injected.ContentType
		}
		if meta.charset == "" {
			meta.charset = injected.Charset
		}
	}

	// Apply cookies and headers before writing status.
	if cs, ok := resp.(CookieSetter); ok {
		for _, c := range cs.Cookies() {
			http.SetCookie(w, c)
		}
	}
	if hs, ok := resp.(HeaderSetter); ok {
		hs.SetHeaders(w.Header())
	}

	// Let the response override the status dynamically.
	if sc, ok := resp.(StatusCoder); ok {
		status = sc.StatusCode()
	}

	val := deref(resp)
	if val == nil {
		// Nothing returned: send the injected response's current state if
		// one exists, otherwise just the status. Headers and cookies were
		// already copied above.
		if injected != nil {
			if injected.ContentType != "" {
				w.Header().Set("Content-Type", withCharset(injected.ContentType, injected.Charset))
			}
			w.WriteHeader(status)
			if len(injected.Body) > 0 {
				//nolint:errcheck,gosec // best-effort after WriteHeader
				w.Write(injected.Body)
			}
			return
		}
		w.WriteHeader(status)
		return
	}

	ct := meta.contentType
	if ct == "" {
		ct = inferContentType(val)
	}

	switch classifyContent(ct) {
	case familyText:
		var body string
		if s, ok := val.(string); ok {
			body = s
		} else {
			body = stringify(toPrimitives(val, meta.marshal))
		}
		w.Header().Set("Content-Type", withCharset(ct, meta.charset))
		w.WriteHeader(status)
		//nolint:errcheck,gosec // best-effort after WriteHeader
		io.WriteString(w, body)

	case familyBinary:
		if b, ok := val.([]byte); ok {
			w.Header().Set("Content-Type", ct)
			w.WriteHeader(status)
			//nolint:errcheck,gosec // best-effort after WriteHeader
			w.Write(b)
			return
		}
		if rd, ok := val.(io.Reader); ok {
			w.Header().Set("Content-Type", ct)
			w.WriteHeader(status)
			//nolint:errcheck,gosec // best-effort streaming copy
			io.Copy(w, rd)
			return
		}
		// Anything else falls back to the JSON path under the binary type.
		writeJSON(w, r, val, ct, status, meta, codecs, false)

	default:
		writeJSON(w, r, val, ct, status, meta, codecs, meta.contentType == "")
	}
}

// writeJSON serializes val through the primitive conversion and the
// negotiated or default encoder. negotiable is true only when the content
// type was inferred, so an explicit route content type is never overridden
// by the Accept header.
func writeJSON(w http.ResponseWriter, r *http.Request, val any, ct string, status int, meta responseMeta, codecs *codecRegistry, negotiable bool) {
	enc := codecs.encoders[0]
	if negotiable {
		if e, ok := codecs.negotiate(r.Header.Get("Accept")); ok {
			enc = e
		}
	}

	var payload any
	if enc.ContentType() == "application/json" {
		// A string return under JSON content type becomes a JSON string
		// literal; the conversion handles the escaping.
		payload = toPrimitives(val, meta.marshal)
	} else {
		// Non-JSON encoders (XML and friends) need the original value.
		payload = val
		ct = enc.ContentType()
	}

	w.Header().Set("Content-Type", ct)
	w.WriteHeader(status)
	//nolint:errcheck,gosec // best-effort after WriteHeader
	enc.Encode(w, payload)
}

// deref unwraps handler return pointers down to the value to serialize.
// Returns nil for nil pointers and *Void.
func deref(resp any) any {
	if resp == nil {
		return nil
	}
	if _, ok := resp.(*Void); ok {
		return nil
	}
	rv := reflect.ValueOf(resp)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

// inferContentType maps a return value to a content type when the route
// does not configure one: records and containers serialize as JSON, scalars
// as plain text, raw bytes and readers as octet streams.
func inferContentType(val any) string {
	switch val.(type) {
	case []byte:
		return "application/octet-stream"
	case string:
		return "text/plain"
	}
	if _, ok := val.(io.Reader); ok {
		return "application/octet-stream"
	}
	if _, ok := val.(encoding.TextMarshaler); ok {
		return "text/plain"
	}

	rv := reflect.ValueOf(val)
	//exhaustive:ignore
	switch rv.Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		return "application/json"
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// classifyContent buckets a media type into a serialization family.
func classifyContent(ct string) contentFamily {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		mt = ct
	}
	switch {
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return familyJSON
	case strings.HasPrefix(mt, "text/"):
		return familyText
	default:
		return familyBinary
	}
}

// withCharset appends a charset parameter for text-family content types.
func withCharset(ct, charset string) string {
	if !strings.HasPrefix(ct, "text/") || strings.Contains(ct, "charset=") {
		return ct
	}
	if charset == "" {
		charset = "utf-8"
	}
	return ct + "; charset=" + charset
}
