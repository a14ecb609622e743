// pkg/middleware/recover.go
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"dealergate/pkg/problems"
)

func Recover(log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Errorw("panic", "err", rec, "path", r.URL.Path, "reqid", RequestIDFrom(r.Context()), "stack", string(debug.Stack()))
					problems.Write(w, http.StatusInternalServerError, "internal", "Internal error", "The request could not be completed")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
