package weft

import "net/http"

// BodyLimit returns middleware that caps the request body at maxBytes.
// Requests declaring a larger Content-Length are rejected outright with
// 413; undeclared (chunked) bodies are capped while being read.
func BodyLimit(maxBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeErrorResponse(w, &HTTPError{
					Status:  http.StatusRequestEntityTooLarge,
					Message: "request body too large",
				})
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
