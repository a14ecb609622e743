package middleware

import (
	"net/http"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"
)

// DetectDoubleWrite logs the stack when a handler writes a status twice,
// e.g. a guard that answers and then falls through to the next handler.
// Disabled it is a pass-through.
func DetectDoubleWrite(enabled bool, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	if !enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	log.Infow("double-write detection enabled")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(&statusOnce{ResponseWriter: w, log: log, method: r.Method, path: r.URL.Path}, r)
		})
	}
}

type statusOnce struct {
	http.ResponseWriter
	log    *zap.SugaredLogger
	wrote  atomic.Bool
	method string
	path   string
	code   int
}

func (s *statusOnce) WriteHeader(code int) {
	if s.wrote.CompareAndSwap(false, true) {
		s.code = code
		s.ResponseWriter.WriteHeader(code)
		return
	}
	s.log.Errorw("status written twice", "method", s.method, "path", s.path, "first", s.code, "second", code, "stack", string(debug.Stack()))
}

func (s *statusOnce) Write(b []byte) (int, error) {
	if !s.wrote.Load() {
		s.WriteHeader(http.StatusOK)
	}
	return s.ResponseWriter.Write(b)
}
