package weft_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft"
)

func TestErrors_validation_wire_shape(t *testing.T) {
	t.Parallel()

	type Req struct {
		Name string `query:"name" required:"true"`
	}

	r := weft.New()
	weft.Get(r, "/exact", func(_ context.Context, _ *Req) (*weft.Void, error) {
		return &weft.Void{}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/exact", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"errors":[{"type":"missing","loc":["query","name"],"msg":"field is required"}]}`,
		string(raw),
	)
}

func TestErrors_aggregated_across_sources(t *testing.T) {
	t.Parallel()

	// All sources are attempted; nothing short-circuits. Errors arrive in
	// source order with body last.
	type Req struct {
		Name string `query:"name" required:"true"`
		Auth string `header:"X-Auth" required:"true"`
		Body struct {
			Title string `json:"title" required:"true"`
		}
	}

	r := weft.New()
	weft.Post(r, "/multi", func(_ context.Context, _ *Req) (*weft.Void, error) {
		return &weft.Void{}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	hdr := http.Header{"Content-Type": {"application/json"}}
	status, errs := fetchErrors(t, srv, http.MethodPost, "/multi", strings.NewReader(`{}`), hdr)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, errs, 3)
	assert.Equal(t, []string{"query", "name"}, errs[0].Loc)
	assert.Equal(t, []string{"header", "X-Auth"}, errs[1].Loc)
	assert.Equal(t, []string{"body", "title"}, errs[2].Loc)
	for _, fe := range errs {
		assert.Equal(t, "missing", fe.Type)
	}
}

func TestErrors_http_error_problem_detail(t *testing.T) {
	t.Parallel()

	r := weft.New()
	weft.Get(r, "/missing", func(_ context.Context, _ *weft.Void) (*weft.Void, error) {
		return nil, weft.Errorf(http.StatusNotFound, "thing %d not found", 9)
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/missing", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	var pd weft.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pd))
	assert.Equal(t, http.StatusNotFound, pd.Status)
	assert.Equal(t, "Not Found", pd.Title)
	assert.Equal(t, "thing 9 not found", pd.Detail)
}

func TestErrors_plain_error_is_500(t *testing.T) {
	t.Parallel()

	r := weft.New()
	weft.Get(r, "/boom", func(_ context.Context, _ *weft.Void) (*weft.Void, error) {
		return nil, io.ErrUnexpectedEOF
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/boom", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestErrors_custom_error_handler(t *testing.T) {
	t.Parallel()

	type Req struct {
		Name string `query:"name" required:"true"`
	}

	var captured error
	r := weft.New(weft.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
		captured = err
		w.WriteHeader(http.StatusTeapot)
	}))
	weft.Get(r, "/custom", func(_ context.Context, _ *Req) (*weft.Void, error) {
		return &weft.Void{}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/custom", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)

	var ve *weft.ValidationError
	require.ErrorAs(t, captured, &ve)
	require.Len(t, ve.Errors, 1)
	assert.Equal(t, []string{"query", "name"}, ve.Errors[0].Loc)
}

type signupReq struct {
	Body struct {
		Email string `json:"email" required:"true"`
	}
}

func (r *signupReq) Validate() error {
	if !strings.Contains(r.Body.Email, "@") {
		return weft.Error(http.StatusBadRequest, "email must contain @")
	}
	return nil
}

func TestErrors_self_validator(t *testing.T) {
	t.Parallel()

	r := weft.New()
	weft.Post(r, "/signup", func(_ context.Context, _ *signupReq) (*weft.Void, error) {
		return &weft.Void{}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/signup", strings.NewReader(`{"email":"nope"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var pd weft.ProblemDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pd))
	assert.Equal(t, "email must contain @", pd.Detail)
}

type rejectAll struct{}

func (rejectAll) Validate(any) error {
	return weft.Error(http.StatusForbidden, "rejected by policy")
}

func TestErrors_global_validator(t *testing.T) {
	t.Parallel()

	r := weft.New(weft.WithValidator(rejectAll{}))
	weft.Get(r, "/anything", func(_ context.Context, _ *weft.Void) (*weft.Void, error) {
		return &weft.Void{}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/anything", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
