package weft

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusCoder is implemented by errors or responses that carry an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// FieldError describes one field-level binding or validation failure.
// Loc identifies the field by source and name, e.g. ["body","username"],
// ["query","page"], or ["body"] for whole-body failures.
type FieldError struct {
	Type string         `json:"type"`
	Loc  []string       `json:"loc"`
	Msg  string         `json:"msg"`
	Ctx  map[string]any `json:"ctx,omitempty"`
}

// ValidationError aggregates every FieldError produced while binding one
// request, across all sources. It is raised as a single error so that
// error-handler middleware can intercept the full list before the default
// 422 response is written.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a short summary; the detail lives in Errors.
func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("request validation failed: %s: %s", strings.Join(e.Errors[0].Loc, "."), e.Errors[0].Msg)
	}
	return fmt.Sprintf("request validation failed: %d invalid fields", len(e.Errors))
}

// StatusCode returns 422 Unprocessable Entity.
func (e *ValidationError) StatusCode() int { return http.StatusUnprocessableEntity }

// ConfigError reports an invalid route declaration. Registration panics
// with it, so a misconfigured handler can never reach serving.
type ConfigError struct {
	Route   string // "POST /api/{user_id}"
	ReqType string // request type name
	Field   string // offending field name(s)
	Reason  string
}

// Error names the route, request type, and offending attribute.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("weft: invalid route %s: %s.%s: %s", e.Route, e.ReqType, e.Field, e.Reason)
}

// ProblemDetail is an RFC 9457 problem details response, used for every
// error other than request validation failures.
//
//nolint:errname // RFC 9457 standard name
type ProblemDetail struct {
	Type     string       `json:"type,omitempty"`
	Title    string       `json:"title,omitempty"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail,omitempty"`
	Instance string       `json:"instance,omitempty"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// Error returns the detail message (or title if detail is empty).
func (p *ProblemDetail) Error() string {
	if p.Detail != "" {
		return p.Detail
	}
	return p.Title
}

// StatusCode returns the HTTP status code.
func (p *ProblemDetail) StatusCode() int { return p.Status }

// HTTPError is an error with an HTTP status code.
type HTTPError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error returns the error message.
func (e *HTTPError) Error() string { return e.Message }

// StatusCode returns the HTTP status code.
func (e *HTTPError) StatusCode() int { return e.Status }

// Error returns an error with the given HTTP status code and message.
func Error(status int, message string) error {
	return &HTTPError{Status: status, Message: message}
}

// Errorf returns a formatted error with the given HTTP status code.
func Errorf(status int, format string, args ...any) error {
	return &HTTPError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// ErrorStatus extracts the HTTP status code from an error. Returns
// http.StatusInternalServerError if the error does not implement StatusCoder.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

// validationBody is the wire shape of a 422 response.
type validationBody struct {
	Errors []FieldError `json:"errors"`
}

// writeErrorResponse writes err in its canonical wire form: a
// {"errors":[...]} body for validation failures, an RFC 9457 problem
// details body for everything else.
func writeErrorResponse(w http.ResponseWriter, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(ve.StatusCode())
		//nolint:errcheck,errchkjson,gosec // best-effort after WriteHeader
		json.NewEncoder(w).Encode(validationBody{Errors: ve.Errors})
		return
	}

	status := ErrorStatus(err)

	// If the error is already a ProblemDetail, use it directly.
	var pd *ProblemDetail
	if errors.As(err, &pd) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(pd.Status)
		//nolint:errcheck,errchkjson,gosec // best-effort after WriteHeader
		json.NewEncoder(w).Encode(pd)
		return
	}

	problem := &ProblemDetail{
		Type:   "about:blank",
		Title:  http.StatusText(status),
		Status: status,
		Detail: err.Error(),
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson,gosec // best-effort after WriteHeader
	json.NewEncoder(w).Encode(problem)
}
