package weft

import (
	"fmt"
	"net/http"
	"reflect"
)

// Registrar is the interface accepted by the registration functions.
// Both *Router and *Group implement it.
type Registrar interface {
	addRoute(ri routeInfo)
	config() *Router
	fullPattern(pattern string) string
	routeMiddleware() []Middleware
}

func (r *Router) config() *Router                   { return r }
func (r *Router) fullPattern(pattern string) string { return pattern }
func (r *Router) routeMiddleware() []Middleware     { return nil }

// register is the internal generic registration function. It compiles the
// request type into a binding plan and fails fast: any invalid declaration
// panics with a *ConfigError before the server can start.
func register[Req, Resp any](reg Registrar, method, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	rt := reg.config()

	ri := routeInfo{
		method:   method,
		reqType:  reflect.TypeFor[Req](),
		respType: reflect.TypeFor[Resp](),
	}
	for _, opt := range opts {
		opt(&ri)
	}

	full := reg.fullPattern(pattern)
	routeID := method + " " + full

	muxPattern, vars, err := parsePattern(full)
	if err != nil {
		panic(&ConfigError{Route: routeID, ReqType: ri.reqType.String(), Field: "(pattern)", Reason: err.Error()})
	}
	ri.pattern = muxPattern
	ri.pathVars = vars

	plan, err := compilePlan(ri.reqType)
	if err != nil {
		var ce *ConfigError
		if asConfigError(err, &ce) {
			ce.Route = routeID
			ce.ReqType = ri.reqType.String()
			panic(ce)
		}
		panic(err)
	}

	// Every path-bound field must name a declared route segment; a typo
	// here would otherwise surface as a permanently-missing value.
	for i := range plan.fields {
		fp := &plan.fields[i]
		if fp.src != sourcePath {
			continue
		}
		declared := false
		for _, pv := range vars {
			if pv.name == fp.alias {
				declared = true
				break
			}
		}
		if !declared {
			panic(&ConfigError{
				Route:   routeID,
				ReqType: ri.reqType.String(),
				Field:   fp.name,
				Reason:  fmt.Sprintf("path parameter %q is not declared in the route pattern", fp.alias),
			})
		}
	}
	ri.plan = plan

	// Default status: Void response → 204, otherwise 200.
	if ri.meta.status == 0 {
		if ri.respType == voidType {
			ri.meta.status = http.StatusNoContent
		} else {
			ri.meta.status = http.StatusOK
		}
	}

	ri.handler = buildHandler(rt, h, &ri)

	if ri.compressMin > 0 {
		ri.handler = Compress(CompressConfig{MinSize: ri.compressMin})(ri.handler)
	}

	// Apply route-level middleware (from Group).
	routeMW := reg.routeMiddleware()
	for i := len(routeMW) - 1; i >= 0; i-- {
		ri.handler = routeMW[i](ri.handler)
	}

	reg.addRoute(ri)
}

// buildHandler wraps a typed Handler into an http.Handler running the full
// pipeline: path constraints, binding, validation, the handler itself, and
// response resolution.
func buildHandler[Req, Resp any](rt *Router, h Handler[Req, Resp], ri *routeInfo) http.Handler {
	plan := ri.plan
	meta := ri.meta
	vars := ri.pathVars
	bodyLimit := ri.bodyLimit

	writeErr := func(w http.ResponseWriter, r *http.Request, err error) {
		if rt.errorHandler != nil {
			rt.errorHandler(w, r, err)
			return
		}
		writeErrorResponse(w, err)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, pv := range vars {
			if pv.re != nil && !pv.re.MatchString(r.PathValue(pv.name)) {
				http.NotFound(w, r)
				return
			}
		}

		if bodyLimit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
		}

		req := new(Req)

		var injected *Response
		if plan.respIndex >= 0 {
			injected = &Response{}
			reflect.ValueOf(req).Elem().Field(plan.respIndex).Set(reflect.ValueOf(injected))
		}

		if ferrs := plan.bind(req, r, rt.codecs); len(ferrs) > 0 {
			writeErr(w, r, &ValidationError{Errors: ferrs})
			return
		}

		// Run SelfValidator if implemented.
		if sv, ok := any(req).(SelfValidator); ok {
			if err := sv.Validate(); err != nil {
				writeErr(w, r, err)
				return
			}
		}

		// Run global validator if set.
		if rt.validator != nil {
			if err := rt.validator.Validate(req); err != nil {
				writeErr(w, r, err)
				return
			}
		}

		resp, err := h(r.Context(), req)
		if err != nil {
			writeErr(w, r, err)
			return
		}

		encodeResponse(w, r, any(resp), meta, rt.codecs, injected)
	})
}

// Get registers a GET handler.
func Get[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	register(reg, http.MethodGet, pattern, h, opts...)
}

// Post registers a POST handler.
func Post[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	register(reg, http.MethodPost, pattern, h, opts...)
}

// Put registers a PUT handler.
func Put[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	register(reg, http.MethodPut, pattern, h, opts...)
}

// Patch registers a PATCH handler.
func Patch[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	register(reg, http.MethodPatch, pattern, h, opts...)
}

// Delete registers a DELETE handler.
func Delete[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	register(reg, http.MethodDelete, pattern, h, opts...)
}

// Head registers a HEAD handler.
func Head[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	register(reg, http.MethodHead, pattern, h, opts...)
}

// Options registers an OPTIONS handler.
func Options[Req, Resp any](reg Registrar, pattern string, h Handler[Req, Resp], opts ...RouteOption) {
	register(reg, http.MethodOptions, pattern, h, opts...)
}

// Raw registers a raw http.Handler, bypassing binding and response
// resolution entirely.
func Raw(reg Registrar, method, pattern string, h RawHandler) {
	full := reg.fullPattern(pattern)
	muxPattern, vars, err := parsePattern(full)
	if err != nil {
		panic(&ConfigError{Route: method + " " + full, Field: "(pattern)", Reason: err.Error()})
	}

	ri := routeInfo{
		method:   method,
		pattern:  muxPattern,
		pathVars: vars,
		handler:  http.HandlerFunc(h),
	}

	routeMW := reg.routeMiddleware()
	for i := len(routeMW) - 1; i >= 0; i-- {
		ri.handler = routeMW[i](ri.handler)
	}

	reg.addRoute(ri)
}
