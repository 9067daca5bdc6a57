package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/munistream/signature/internal/config"
	"github.com/munistream/signature/internal/observability/logger"
)

// Open builds the repository selected by cfg.Storage.Driver.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (Repository, error) {
	log = logger.Or(log, "storage")
	st := cfg.Storage
	switch st.Driver {
	case "memory":
		log.Info("storage: memory")
		return NewMemory(), nil
	case "redis":
		log.Info("storage: redis", zap.String("addr", st.Redis.Addr), zap.Int("db", st.Redis.DB))
		return NewRedis(ctx, RedisOptions{
			Addr:     st.Redis.Addr,
			Password: st.Redis.Password,
			DB:       st.Redis.DB,
			Prefix:   st.Redis.Prefix,
		})
	case "postgres":
		log.Info("storage: postgres")
		var lifetime time.Duration
		if st.Postgres.ConnMaxLifetime != "" {
			lifetime, _ = time.ParseDuration(st.Postgres.ConnMaxLifetime) // validated by config.Load
		}
		return NewPostgres(ctx, PostgresOptions{
			DSN:             st.Postgres.DSN,
			MaxConns:        int32(st.Postgres.MaxConns),
			ConnMaxLifetime: lifetime,
		})
	case "badger":
		log.Info("storage: badger", zap.String("path", st.Badger.Path), zap.Bool("in_memory", st.Badger.InMemory))
		return NewBadger(BadgerOptions{Path: st.Badger.Path, InMemory: st.Badger.InMemory, Logger: log.Named("badger")})
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", st.Driver)
	}
}
