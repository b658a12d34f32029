package weft

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// Router is the central type that holds routes, middleware, and
// configuration. It implements http.Handler.
type Router struct {
	mux        *http.ServeMux
	middleware []Middleware
	routes     []routeInfo

	logger       *zap.Logger
	validator    Validator
	errorHandler ErrorHandler

	userEncoders []Encoder
	userDecoders []Decoder
	jsonEnc      JSONEncodeFunc
	jsonDec      JSONDecodeFunc
	codecs       *codecRegistry

	startup  []func(context.Context) error
	shutdown []func(context.Context) error

	mu sync.Mutex
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the router's logger. There is no package-level logger;
// everything the router logs goes through this handle. Default is a no-op
// logger.
func WithLogger(logger *zap.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithValidator sets a global request validator, run after tag constraints
// and SelfValidator.
func WithValidator(v Validator) RouterOption {
	return func(r *Router) {
		r.validator = v
	}
}

// ErrorHandler is a custom error response writer. It receives every error
// the pipeline produces, including *ValidationError, whose Errors field
// carries the full aggregated list.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WithErrorHandler sets a custom error handler for the router.
func WithErrorHandler(h ErrorHandler) RouterOption {
	return func(r *Router) {
		r.errorHandler = h
	}
}

// WithEncoder registers an additional response encoder.
func WithEncoder(enc Encoder) RouterOption {
	return func(r *Router) {
		r.userEncoders = append(r.userEncoders, enc)
	}
}

// WithDecoder registers an additional request body decoder. A decoder for a
// content type the built-ins already claim takes precedence.
func WithDecoder(dec Decoder) RouterOption {
	return func(r *Router) {
		r.userDecoders = append(r.userDecoders, dec)
	}
}

// WithJSONEncoder swaps the JSON encoding function used for responses.
func WithJSONEncoder(fn JSONEncodeFunc) RouterOption {
	return func(r *Router) {
		r.jsonEnc = fn
	}
}

// WithJSONDecoder swaps the JSON decoding function used for request bodies.
func WithJSONDecoder(fn JSONDecodeFunc) RouterOption {
	return func(r *Router) {
		r.jsonDec = fn
	}
}

// New creates a new Router with the given options.
func New(opts ...RouterOption) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		logger:  zap.NewNop(),
		jsonEnc: json.Marshal,
		jsonDec: json.Unmarshal,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.codecs = newCodecRegistry(jsonCodec{enc: r.jsonEnc, dec: r.jsonDec}, r.userEncoders, r.userDecoders)
	return r
}

// Use adds middleware to the router. Middleware is applied in the order added.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// OnStartup adds a hook run before the server starts accepting requests.
// A hook error aborts startup.
func (r *Router) OnStartup(fn func(context.Context) error) {
	r.startup = append(r.startup, fn)
}

// OnShutdown adds a hook run after the server has stopped.
func (r *Router) OnShutdown(fn func(context.Context) error) {
	r.shutdown = append(r.shutdown, fn)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	handler.ServeHTTP(w, req)
}

// Serve starts an HTTP server per the config, runs the startup hooks, and
// blocks until the context is cancelled, then shuts down gracefully and
// runs the shutdown hooks.
func (r *Router) Serve(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()

	for _, fn := range r.startup {
		if err := fn(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout.Std(),
		ReadTimeout:       cfg.ReadTimeout.Std(),
		WriteTimeout:      cfg.WriteTimeout.Std(),
		IdleTimeout:       cfg.IdleTimeout.Std(),
	}

	r.logger.Info("server listening", zap.String("addr", cfg.Addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		serveErr = err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
		defer cancel()
		serveErr = srv.Shutdown(shutdownCtx)
	}

	var hookErrs []error
	for _, fn := range r.shutdown {
		if err := fn(context.Background()); err != nil {
			r.logger.Error("shutdown hook failed", zap.Error(err))
			hookErrs = append(hookErrs, err)
		}
	}

	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	return errors.Join(append([]error{serveErr}, hookErrs...)...)
}

// ListenAndServe starts an HTTP server on the given address with default
// config. It blocks until the context is cancelled, then shuts down
// gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	cfg := DefaultConfig()
	cfg.Addr = addr
	return r.Serve(ctx, cfg)
}

// addRoute registers a routeInfo with the router's mux. Global middleware
// is applied in ServeHTTP, not here — only group middleware is baked into
// ri.handler.
func (r *Router) addRoute(ri routeInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.mux.Handle(ri.method+" "+ri.pattern, ri.handler)
	r.routes = append(r.routes, ri)
	r.logger.Debug("route registered",
		zap.String("method", ri.method),
		zap.String("pattern", ri.pattern),
	)
}
