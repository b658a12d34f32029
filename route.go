package weft

import (
	"net/http"
	"reflect"
)

// routeInfo holds the compiled state of one registered route: the binding
// plan, the response metadata, and the wrapped handler. Built once at
// registration, read-only while serving.
type routeInfo struct {
	method  string
	pattern string // mux pattern, regexp constraints stripped

	meta        responseMeta
	compressMin int
	bodyLimit   int64

	reqType  reflect.Type
	respType reflect.Type

	plan     *requestPlan
	pathVars []pathVar

	handler http.Handler
}

// RouteOption configures a route at registration time.
type RouteOption func(*routeInfo)

// WithStatus sets the default HTTP status code for the response.
func WithStatus(code int) RouteOption {
	return func(ri *routeInfo) {
		ri.meta.status = code
	}
}

// WithContentType overrides the response content type. Without it, the
// content type is inferred from the returned value.
func WithContentType(ct string) RouteOption {
	return func(ri *routeInfo) {
		ri.meta.contentType = ct
	}
}

// WithCharset sets the charset parameter for text-family responses.
// Default is utf-8.
func WithCharset(charset string) RouteOption {
	return func(ri *routeInfo) {
		ri.meta.charset = charset
	}
}

// WithInclude limits response serialization to the named top-level fields.
func WithInclude(fields ...string) RouteOption {
	return func(ri *routeInfo) {
		if ri.meta.marshal.include == nil {
			ri.meta.marshal.include = make(map[string]bool, len(fields))
		}
		for _, f := range fields {
			ri.meta.marshal.include[f] = true
		}
	}
}

// WithExclude drops the named top-level fields from response serialization.
func WithExclude(fields ...string) RouteOption {
	return func(ri *routeInfo) {
		if ri.meta.marshal.exclude == nil {
			ri.meta.marshal.exclude = make(map[string]bool, len(fields))
		}
		for _, f := range fields {
			ri.meta.marshal.exclude[f] = true
		}
	}
}

// WithFieldNames serializes responses using Go field names instead of
// json tag aliases.
func WithFieldNames() RouteOption {
	return func(ri *routeInfo) {
		ri.meta.marshal.useFieldNames = true
	}
}

// WithOmitNil drops nil-valued fields from serialized responses.
func WithOmitNil() RouteOption {
	return func(ri *routeInfo) {
		ri.meta.marshal.omitNil = true
	}
}

// WithCompression compresses responses larger than minSize bytes,
// negotiating gzip or deflate from the Accept-Encoding header.
func WithCompression(minSize int) RouteOption {
	return func(ri *routeInfo) {
		ri.compressMin = minSize
	}
}

// WithBodyLimit sets a per-route maximum request body size in bytes.
// This overrides any global BodyLimit middleware for this route.
func WithBodyLimit(maxBytes int64) RouteOption {
	return func(ri *routeInfo) {
		ri.bodyLimit = maxBytes
	}
}
