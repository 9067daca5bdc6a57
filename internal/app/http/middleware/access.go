package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/munistream/signature/internal/metrics"
	"github.com/munistream/signature/internal/observability/logger"
)

// AccessLog logs one line per request and records it under its route
// pattern, so path parameters do not blow up metric cardinality.
func AccessLog(rec metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			d := time.Since(start)
			rec.HTTPRequest(r.Method, routePattern(r), status, d)

			log := logger.From(r.Context())
			fields := []zap.Field{logger.Method(r.Method), logger.Path(r.URL.Path), logger.Status(status), logger.Duration(d)}
			switch {
			case status >= 500:
				log.Error("request", fields...)
			case status >= 400:
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
