// Package weft is a typed request-binding and response-resolution layer over
// net/http. Handler types are the source of truth — path, query, header,
// cookie, and body parameters are declared as struct fields with binding
// tags, and the package compiles each request type into an immutable binding
// plan at registration time, executes it per request, and aggregates every
// field failure into one structured 422 response.
//
// The core handler signature removes http.ResponseWriter and *http.Request:
//
//	type Handler[Req, Resp any] func(ctx context.Context, req *Req) (*Resp, error)
//
// Routes are registered with package-level generic functions:
//
//	r := weft.New(weft.WithLogger(logger))
//	weft.Get[ListReq, ListResp](r, "/items", listItems)
//	weft.Post[CreateReq, Item](r, "/items", createItem, weft.WithStatus(http.StatusCreated))
//
// Request types use struct tags for parameter binding and a Body field for
// request bodies. Constraint tags are checked during binding and every
// violation across every source is reported, never just the first:
//
//	type CreateReq struct {
//	    OrgID string `path:"org_id"`
//	    Host  string `header:"Host"`
//	    Body  struct {
//	        Username string `json:"username" minLength:"3"`
//	        Password string `json:"password" minLength:"8"`
//	    }
//	}
//
// A failed binding produces HTTP 422 with a body of the form
//
//	{"errors":[{"type":"string_too_short","loc":["body","username"],"msg":"...","ctx":{"min_length":3}}]}
//
// Invalid route declarations — a default on a path parameter, a default on a
// streaming body, single-field and bulk binding mixed for one source — panic
// with a *ConfigError at registration, before the server can start.
//
// Middleware uses the standard func(http.Handler) http.Handler signature,
// so the entire Go middleware ecosystem works natively.
package weft
