package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/munistream/signature/internal/observability/logger"
	"github.com/munistream/signature/pkg/id"
)

const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID propagates or assigns a request id, echoes it in the response
// and stores a logger carrying it in the request context.
func RequestID(gen id.Generator, base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get(RequestIDHeader)
			if rid == "" || len(rid) > maxRequestIDLen {
				rid = gen.New()
			}
			w.Header().Set(RequestIDHeader, rid)
			ctx := logger.ToContext(r.Context(), base.With(logger.RequestID(rid)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
