package weft

import (
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
)

// CompressConfig configures the Compress middleware.
type CompressConfig struct {
	Level   int      // compression level (1-9, default: 5)
	MinSize int      // minimum response size to compress (default: 1024)
	Types   []string // content types to compress (default: application/json, text/*)
}

// Compress returns middleware that compresses responses with gzip or
// deflate, picked from the request's Accept-Encoding. Responses smaller
// than MinSize, or with a content type outside Types, pass through
// unchanged.
func Compress(cfg ...CompressConfig) Middleware {
	c := CompressConfig{
		Level:   5,
		MinSize: 1024,
		Types:   []string{"application/json", "text/"},
	}
	if len(cfg) > 0 {
		if cfg[0].Level > 0 {
			c.Level = cfg[0].Level
		}
		if cfg[0].MinSize > 0 {
			c.MinSize = cfg[0].MinSize
		}
		if len(cfg[0].Types) > 0 {
			c.Types = cfg[0].Types
		}
	}

	gzipPool := &sync.Pool{
		New: func() any {
			gz, _ := gzip.NewWriterLevel(io.Discard, c.Level) //nolint:errcheck // level is pre-validated
			return gz
		},
	}
	flatePool := &sync.Pool{
		New: func() any {
			fw, _ := flate.NewWriter(io.Discard, c.Level) //nolint:errcheck // level is pre-validated
			return fw
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			encoding := pickEncoding(r.Header.Get("Accept-Encoding"))
			if encoding == "" {
				next.ServeHTTP(w, r)
				return
			}

			rw := &compressResponseWriter{
				ResponseWriter: w,
				encoding:       encoding,
				minSize:        c.MinSize,
				types:          c.Types,
			}
			// The pooled writer must only touch the connection once the
			// first Write decides to compress: resetting it up front would
			// flush an empty compressed stream after a pass-through body.
			rw.acquire = func() compressWriter {
				if encoding == "deflate" {
					fw := flatePool.Get().(*flate.Writer) //nolint:errcheck,forcetypeassert // pool.New always returns *flate.Writer
					fw.Reset(w)
					return fw
				}
				gz := gzipPool.Get().(*gzip.Writer) //nolint:errcheck,forcetypeassert // pool.New always returns *gzip.Writer
				gz.Reset(w)
				return gz
			}

			w.Header().Set("Vary", "Accept-Encoding")
			next.ServeHTTP(rw, r)
			rw.flushHeader()
			if rw.active {
				//nolint:errcheck,gosec // best-effort flush
				rw.writer.Close()
				if encoding == "deflate" {
					flatePool.Put(rw.writer)
				} else {
					gzipPool.Put(rw.writer)
				}
			}
		})
	}
}

// pickEncoding selects the strongest supported encoding from an
// Accept-Encoding header, preferring gzip over deflate.
func pickEncoding(accept string) string {
	var deflateOK bool
	for part := range strings.SplitSeq(accept, ",") {
		enc := strings.TrimSpace(part)
		if i := strings.IndexByte(enc, ';'); i >= 0 {
			enc = strings.TrimSpace(enc[:i])
		}
		switch enc {
		case "gzip":
			return "gzip"
		case "deflate":
			deflateOK = true
		}
	}
	if deflateOK {
		return "deflate"
	}
	return ""
}

type compressWriter interface {
	io.WriteCloser
	Flush() error
}

// compressResponseWriter delays WriteHeader until the first body write, so
// the compress-or-not decision can still set Content-Encoding.
type compressResponseWriter struct {
	http.ResponseWriter
	writer     compressWriter
	acquire    func() compressWriter
	encoding   string
	minSize    int
	types      []string
	status     int
	active     bool
	headerSent bool
}

func (c *compressResponseWriter) WriteHeader(code int) {
	if c.headerSent {
		return
	}
	c.status = code
}

func (c *compressResponseWriter) Write(b []byte) (int, error) {
	if !c.headerSent {
		ct := c.Header().Get("Content-Type")
		if c.shouldCompress(ct) && len(b) >= c.minSize {
			c.active = true
			c.writer = c.acquire()
			c.Header().Set("Content-Encoding", c.encoding)
			c.Header().Del("Content-Length")
		}
		c.flushHeader()
	}

	if c.active {
		return c.writer.Write(b)
	}
	return c.ResponseWriter.Write(b)
}

// flushHeader forwards the delayed status line. Safe to call more than once.
func (c *compressResponseWriter) flushHeader() {
	if c.headerSent {
		return
	}
	c.headerSent = true
	if c.status != 0 {
		c.ResponseWriter.WriteHeader(c.status)
	}
}

func (c *compressResponseWriter) shouldCompress(contentType string) bool {
	// Skip SSE and already-compressed responses.
	if strings.Contains(contentType, "event-stream") {
		return false
	}
	if c.Header().Get("Content-Encoding") != "" {
		return false
	}
	for _, t := range c.types {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}

// Flush implements http.Flusher so event streams keep working behind the
// middleware.
func (c *compressResponseWriter) Flush() {
	c.flushHeader()
	if c.active {
		//nolint:errcheck,gosec // best-effort flush
		c.writer.Flush()
	}
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (c *compressResponseWriter) Unwrap() http.ResponseWriter {
	return c.ResponseWriter
}
