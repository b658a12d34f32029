package weft_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft"
)

func TestRequest_path_params(t *testing.T) {
	t.Parallel()

	type Req struct {
		ID string `path:"id"`
	}
	type Resp struct {
		ID string `json:"id"`
	}

	r := weft.New()
	weft.Get(r, "/items/{id}", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{ID: req.ID}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/items/abc123", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "abc123", body.ID)
}

func TestRequest_query_params(t *testing.T) {
	t.Parallel()

	type Req struct {
		Page int    `query:"page" default:"1"`
		Sort string `query:"sort" default:"name"`
	}
	type Resp struct {
		Page int    `json:"page"`
		Sort string `json:"sort"`
	}

	r := weft.New()
	weft.Get(r, "/items", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{Page: req.Page, Sort: req.Sort}, nil
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tests := map[string]struct {
		query      string
		expectPage int
		expectSort string
	}{
		"explicit values": {
			query:      "?page=3&sort=date",
			expectPage: 3,
			expectSort: "date",
		},
		"defaults": {
			query:      "",
			expectPage: 1,
			expectSort: "name",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/items"+tc.query, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer func() { require.NoError(t, resp.Body.Close()) }()

			var body Resp
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tc.expectPage, body.Page)
			assert.Equal(t, tc.expectSort, body.Sort)
		})
	}
}

func TestRequest_query_type_error(t *testing.T) {
	t.Parallel()

	type Req struct {
		Page int `query:"page"`
	}

	r := weft.New()
	weft.Get(r, "/items", func(_ context.Context, _ *Req) (*weft.Void, error) {
		return &weft.Void{}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	status, errs := fetchErrors(t, srv, http.MethodGet, "/items?page=abc", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.Len(t, errs, 1)
	assert.Equal(t, "type_error", errs[0].Type)
	assert.Equal(t, []string{"query", "page"}, errs[0].Loc)
	assert.Equal(t, "abc", errs[0].Ctx["value"])
}

func TestRequest_header_and_cookie(t *testing.T) {
	t.Parallel()

	type Req struct {
		Token   string `header:"Authorization"`
		Session string `cookie:"session"`
	}
	type Resp struct {
		Token   string `json:"token"`
		Session string `json:"session"`
	}

	r := weft.New()
	weft.Get(r, "/auth", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{Token: req.Token, Session: req.Session}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/auth", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")
	req.AddCookie(&http.Cookie{Name: "session", Value: "sess-1"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Bearer tok", body.Token)
	assert.Equal(t, "sess-1", body.Session)
}

func TestRequest_form_binding(t *testing.T) {
	t.Parallel()

	type Req struct {
		Name string `form:"name" required:"true"`
		Age  int    `form:"age" default:"21"`
	}
	type Resp struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}

	r := weft.New()
	weft.Post(r, "/people", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{Name: req.Name, Age: req.Age}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	form := url.Values{"name": {"Ada"}}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/people", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Ada", body.Name)
	assert.Equal(t, 21, body.Age)
}

func TestRequest_duration_field(t *testing.T) {
	t.Parallel()

	type Req struct {
		TTL time.Duration `query:"ttl" default:"30s"`
	}
	type Resp struct {
		Millis int64 `json:"millis"`
	}

	r := weft.New()
	weft.Get(r, "/cache", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{Millis: req.TTL.Milliseconds()}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/cache?ttl=5s", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, int64(5000), body.Millis)
}

func TestRequest_schema_binding(t *testing.T) {
	t.Parallel()

	type Paging struct {
		Page int `query:"page" default:"1" minimum:"1"`
		Size int `query:"size" default:"20" maximum:"100"`
	}
	type Req struct {
		Paging Paging `query:",schema"`
	}
	type Resp struct {
		Page int `json:"page"`
		Size int `json:"size"`
	}

	r := weft.New()
	weft.Get(r, "/search", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{Page: req.Paging.Page, Size: req.Paging.Size}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/search?page=2", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body.Page)
	assert.Equal(t, 20, body.Size)
}

func TestRequest_raw_containers(t *testing.T) {
	t.Parallel()

	type Req struct {
		Headers http.Header    `header:",raw"`
		Query   url.Values     `query:",raw"`
		Cookies []*http.Cookie `cookie:",raw"`
	}
	type Resp struct {
		Agent   string `json:"agent"`
		Q       string `json:"q"`
		Cookies int    `json:"cookies"`
	}

	r := weft.New()
	weft.Get(r, "/raw", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{
			Agent:   req.Headers.Get("User-Agent"),
			Q:       req.Query.Get("q"),
			Cookies: len(req.Cookies),
		}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/raw?q=hello", nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "weft-test")
	req.AddCookie(&http.Cookie{Name: "a", Value: "1"})
	req.AddCookie(&http.Cookie{Name: "b", Value: "2"})

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "weft-test", body.Agent)
	assert.Equal(t, "hello", body.Q)
	assert.Equal(t, 2, body.Cookies)
}

func TestRequest_raw_request_injection(t *testing.T) {
	t.Parallel()

	type Req struct {
		weft.RawRequest
		ID string `path:"id"`
	}
	type Resp struct {
		Method string `json:"method"`
		ID     string `json:"id"`
	}

	r := weft.New()
	weft.Get(r, "/inspect/{id}", func(_ context.Context, req *Req) (*Resp, error) {
		return &Resp{Method: req.Request.Method, ID: req.ID}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/inspect/x1", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.MethodGet, body.Method)
	assert.Equal(t, "x1", body.ID)
}

func TestRequest_file_upload(t *testing.T) {
	t.Parallel()

	type Req struct {
		Doc weft.FileUpload `form:"doc" required:"true"`
	}
	type Resp struct {
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}

	r := weft.New()
	weft.Post(r, "/upload", func(_ context.Context, req *Req) (*Resp, error) {
		rc, err := req.Doc.Open()
		if err != nil {
			return nil, err
		}
		defer func() {
			//nolint:errcheck,gosec // test cleanup
			rc.Close()
		}()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, err
		}
		return &Resp{Filename: req.Doc.Filename, Content: string(data)}, nil
	})

	srv := httptest.NewServer(r)
	defer srv.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("doc", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("file contents"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body Resp
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "notes.txt", body.Filename)
	assert.Equal(t, "file contents", body.Content)
}

func TestRequest_constraint_violations(t *testing.T) {
	t.Parallel()

	type Req struct {
		Name  string `query:"name" minLength:"3" maxLength:"10"`
		Age   int    `query:"age" minimum:"18" maximum:"120"`
		Color string `query:"color" enum:"red,green,blue"`
	}

	r := weft.New()
	weft.Get(r, "/check", func(_ context.Context, _ *Req) (*weft.Void, error) {
		return &weft.Void{}, nil
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tests := map[string]struct {
		query      string
		expectType string
		expectLoc  []string
	}{
		"too short": {
			query:      "?name=ab",
			expectType: "string_too_short",
			expectLoc:  []string{"query", "name"},
		},
		"too small": {
			query:      "?age=12",
			expectType: "too_small",
			expectLoc:  []string{"query", "age"},
		},
		"not in enum": {
			query:      "?color=purple",
			expectType: "not_in_enum",
			expectLoc:  []string{"query", "color"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			status, errs := fetchErrors(t, srv, http.MethodGet, "/check"+tc.query, nil, nil)
			assert.Equal(t, http.StatusUnprocessableEntity, status)
			require.Len(t, errs, 1)
			assert.Equal(t, tc.expectType, errs[0].Type)
			assert.Equal(t, tc.expectLoc, errs[0].Loc)
		})
	}
}

// fetchErrors sends a request and decodes the {"errors":[...]} wire body.
func fetchErrors(t *testing.T, srv *httptest.Server, method, path string, body io.Reader, hdr http.Header) (int, []weft.FieldError) {
	t.Helper()

	req, err := http.NewRequestWithContext(context.Background(), method, srv.URL+path, body)
	require.NoError(t, err)
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { require.NoError(t, resp.Body.Close()) }()

	var out struct {
		Errors []weft.FieldError `json:"errors"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out.Errors
}
