// Package server holds the small set of net/http middleware the demo
// application's posts API is wrapped in, adapted from the teacher's
// server/middleware.go. The shape (a Middleware func(http.Handler)
// http.Handler and a Chain combinator) is unchanged; Logger and Recover now
// report through a querylog.Logger instead of the standard log package, and
// RequestID mints a uuid instead of a timestamp+counter pair, matching the
// rest of the module's ambient stack.
package server

import (
	"net/http"
	"time"

	"github.com/dougbarrett/reactivequery/querylog"
	"github.com/google/uuid"
)

// Middleware is a function that wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain combines multiple middleware into a single middleware, applied
// outermost-first.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logger logs request method, path and duration at debug level.
func Logger(log querylog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug("http request", map[string]any{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start).String(),
			})
		})
	}
}

// CORS adds Cross-Origin Resource Sharing headers.
func CORS(opts CORSOptions) Middleware {
	if opts.AllowOrigin == "" {
		opts.AllowOrigin = "*"
	}
	if opts.AllowMethods == "" {
		opts.AllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	}
	if opts.AllowHeaders == "" {
		opts.AllowHeaders = "Content-Type, Authorization"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", opts.AllowOrigin)
			w.Header().Set("Access-Control-Allow-Methods", opts.AllowMethods)
			w.Header().Set("Access-Control-Allow-Headers", opts.AllowHeaders)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSOptions configures CORS.
type CORSOptions struct {
	AllowOrigin  string
	AllowMethods string
	AllowHeaders string
}

// Recover catches panics in the handler chain, logs them, and returns 500
// instead of crashing the process.
func Recover(log querylog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("http handler panic", nil, map[string]any{
						"path":  r.URL.Path,
						"panic": err,
					})
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID adds a unique request ID header to every response.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Request-ID", uuid.NewString())
			next.ServeHTTP(w, r)
		})
	}
}
