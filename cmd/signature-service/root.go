package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/munistream/signature/internal/certificate"
	"github.com/munistream/signature/internal/config"
	"github.com/munistream/signature/internal/metrics"
	"github.com/munistream/signature/internal/observability/logger"
	"github.com/munistream/signature/internal/service"
	"github.com/munistream/signature/internal/storage"
	"github.com/munistream/signature/internal/verifier"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "signature-service",
		Short:         "Signable data issuance, signature submission and verification",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "config.yaml", "YAML config file (optional)")
	root.PersistentFlags().StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before environment overrides (optional)")

	root.AddCommand(
		newServeCmd(o),
		newCleanupCmd(o),
		newVerifyCmd(o),
		newSignCmd(),
		newCertCmd(o),
	)
	return root
}

// app is the wired service graph shared by the server and operator commands.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	repo    storage.Repository
	metrics *metrics.Metrics
	certs   *certificate.Manager
	svc     *service.SignableService
}

func bootstrap(ctx context.Context, o *rootOptions) (*app, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Env:         cfg.Log.Env,
		Level:       cfg.Log.Level,
		ServiceName: "signature-service",
		Version:     version,
		File: logger.FileConfig{
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxBackups: cfg.Log.File.MaxBackups,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
			Compress:   cfg.Log.File.Compress,
		},
	})
	log := logger.L()

	repo, err := storage.Open(ctx, cfg, log.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{cfg: cfg, log: log, repo: repo}
	opts := service.Options{
		Logger:         log.Named("service"),
		DefaultTimeout: cfg.DefaultTimeout(),
		CleanupGrace:   cfg.CleanupGrace(),
		CryptoWorkers:  cfg.Signature.CryptoWorkers,
	}
	if cfg.MetricsEnabled() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		if a.metrics, err = metrics.New(reg); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("metrics: %w", err)
		}
		opts.Metrics = a.metrics
	}

	a.certs = certificate.New(certificate.Options{
		Logger:            log.Named("certificate"),
		ExpiryWarningDays: cfg.Signature.ExpiryWarningDays,
		MinKeyBits:        cfg.Signature.MinKeyBits,
	})
	v := verifier.New(a.certs, verifier.Options{Logger: log.Named("verifier")})
	a.svc = service.New(repo, a.certs, v, opts)
	return a, nil
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.log.Warn("close storage", logger.Err(err))
	}
	_ = logger.Sync()
}
