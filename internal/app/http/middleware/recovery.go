// Package middleware holds the HTTP middleware chain: request ids with a
// request-scoped logger, panic recovery and access logging with metrics.
package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/munistream/signature/internal/observability/logger"
)

func Recovery(next http.Handler) http.Handler {
	if next == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.From(r.Context()).Error("panic",
					zap.Any("recovered", rec),
					logger.Path(r.URL.Path),
					zap.ByteString("stack", debug.Stack()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
