package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	httpApp "github.com/munistream/signature/internal/app/http"
	"github.com/munistream/signature/internal/observability/logger"
	"github.com/munistream/signature/pkg/id"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var (
		addr            string
		test            bool
		cleanupInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := bootstrap(ctx, o)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			if cleanupInterval > 0 && !test {
				go runCleanupLoop(ctx, a, cleanupInterval)
			}
			return httpStart(ctx, addr, httpApp.Deps{
				Service:           a.svc,
				Metrics:           a.metrics,
				MetricsPath:       a.cfg.Metrics.Path,
				IDs:               id.UUID{},
				Logger:            a.log.Named("http"),
				ReadHeaderTimeout: a.cfg.ReadHeaderTimeout(),
			}, test)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().BoolVarP(&test, "test", "t", false, "test mode: build server only")
	cmd.Flags().DurationVar(&cleanupInterval, "cleanup-interval", 0, "run the expired-record sweep at this interval (0 disables)")
	return cmd
}

func runCleanupLoop(ctx context.Context, a *app, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.svc.CleanupExpiredSignatures(ctx); err != nil {
				a.log.Warn("scheduled cleanup failed", logger.Err(err))
			}
		}
	}
}
