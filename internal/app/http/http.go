package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/munistream/signature/internal/app/http/handler"
	"github.com/munistream/signature/internal/app/http/middleware"
	"github.com/munistream/signature/internal/metrics"
	"github.com/munistream/signature/internal/observability/logger"
	"github.com/munistream/signature/internal/service"
	"github.com/munistream/signature/pkg/id"
)

// Deps is everything the HTTP adapter needs. Only Service is required.
type Deps struct {
	Service *service.SignableService
	// Metrics enables request metrics and the scrape endpoint when set.
	Metrics     *metrics.Metrics
	MetricsPath string
	IDs         id.Generator
	Logger      *zap.Logger

	ReadHeaderTimeout time.Duration
}

const shutdownTimeout = 10 * time.Second

func defaultListenAndServe(srv *http.Server) error { return srv.ListenAndServe() }

var listenAndServe = defaultListenAndServe

// Start assembles the server. If test==true it returns without serving (for coverage/CI).
// Cancelling ctx shuts the server down gracefully.
func Start(ctx context.Context, addr string, deps Deps, test bool) error {
	srv := buildServer(addr, deps)
	if test {
		return nil
	}
	log := logger.Or(deps.Logger, "http")
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Warn("shutdown", logger.Err(err))
			}
		})
		defer stop()
	}
	log.Info("listening", zap.String("addr", addr))
	if err := listenAndServe(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// buildServer is kept package-private so tests can exercise routes without binding a port.
func buildServer(addr string, deps Deps) *http.Server {
	timeout := deps.ReadHeaderTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: timeout,
	}
}

// NewHandler returns the routed API with its middleware chain, for
// embedding in another server or an in-process test server.
func NewHandler(deps Deps) http.Handler {
	log := logger.Or(deps.Logger, "http")
	ids := deps.IDs
	if ids == nil {
		ids = id.UUID{}
	}
	var rec metrics.Recorder = metrics.Nop{}
	if deps.Metrics != nil {
		rec = deps.Metrics
	}
	h := handler.NewSignature(deps.Service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID(ids, log))
	r.Use(middleware.AccessLog(rec))
	r.Use(middleware.Recovery)

	r.Get("/v1/health", h.Health)
	r.Post("/v1/validate-certificate", h.ValidateCertificate)
	r.Post("/v1/maintenance/cleanup", h.Cleanup)
	r.Route("/v1/instances/{instanceID}", func(ir chi.Router) {
		ir.Post("/signable-data/{field}", h.Issue)
		ir.Get("/signable-data/{field}", h.SignableData)
		ir.Post("/signatures/{field}", h.Submit)
		ir.Get("/signature-status/{field}", h.Status)
		ir.Get("/verification/{field}", h.Verify)
	})
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.Metrics.Handler())
	}
	return r
}
