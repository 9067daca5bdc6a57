package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/munistream/signature/internal/domain"
)

// The document column is json, not jsonb: jsonb rewrites number literals
// and the payload must keep its exact encoding.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS signable_records (
	instance_id TEXT        NOT NULL,
	field       TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	document    JSON        NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (instance_id, field)
);
CREATE INDEX IF NOT EXISTS signable_records_expires_idx ON signable_records (status, expires_at);
`

type PostgresOptions struct {
	DSN             string
	MaxConns        int32
	ConnMaxLifetime time.Duration
}

type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and creates the table when missing.
func NewPostgres(ctx context.Context, o PostgresOptions) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(o.DSN)
	if err != nil {
		return nil, storageErr("parse dsn", err)
	}
	if o.MaxConns > 0 {
		cfg.MaxConns = o.MaxConns
	}
	if o.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = o.ConnMaxLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storageErr("create pool", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, storageErr("create schema", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Put(ctx context.Context, rec *domain.SignableRecord) error {
	if err := validKey(rec.InstanceID, rec.Field); err != nil {
		return err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO signable_records (instance_id, field, status, expires_at, document, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (instance_id, field) DO UPDATE
		SET status = EXCLUDED.status, expires_at = EXCLUDED.expires_at,
		    document = EXCLUDED.document, updated_at = now()`,
		rec.InstanceID, rec.Field, string(rec.Status), rec.ExpiresAt, string(b))
	if err != nil {
		return storageErr("pg upsert", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, instanceID, field string) (*domain.SignableRecord, error) {
	var b []byte
	err := p.pool.QueryRow(ctx,
		`SELECT document FROM signable_records WHERE instance_id = $1 AND field = $2`,
		instanceID, field).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("pg select", err)
	}
	return decodeRecord(b)
}

func (p *Postgres) Update(ctx context.Context, instanceID, field string, fn func(*domain.SignableRecord) error) error {
	var fnErr error
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var b []byte
		err := tx.QueryRow(ctx,
			`SELECT document FROM signable_records WHERE instance_id = $1 AND field = $2 FOR UPDATE`,
			instanceID, field).Scan(&b)
		if errors.Is(err, pgx.ErrNoRows) {
			fnErr = domain.ErrNotFound
			return fnErr
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(b)
		if err != nil {
			fnErr = err
			return err
		}
		if err := fn(rec); err != nil {
			fnErr = err
			return err
		}
		out, err := encodeRecord(rec)
		if err != nil {
			fnErr = err
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE signable_records
			SET status = $3, expires_at = $4, document = $5, updated_at = now()
			WHERE instance_id = $1 AND field = $2`,
			instanceID, field, string(rec.Status), rec.ExpiresAt, string(out))
		return err
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return storageErr("pg update", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, instanceID, field string) error {
	if _, err := p.pool.Exec(ctx,
		`DELETE FROM signable_records WHERE instance_id = $1 AND field = $2`, instanceID, field); err != nil {
		return storageErr("pg delete", err)
	}
	return nil
}

func (p *Postgres) DeleteIf(ctx context.Context, instanceID, field string, pred func(*domain.SignableRecord) bool) (bool, error) {
	var (
		deleted bool
		decErr  error
	)
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var b []byte
		err := tx.QueryRow(ctx,
			`SELECT document FROM signable_records WHERE instance_id = $1 AND field = $2 FOR UPDATE`,
			instanceID, field).Scan(&b)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(b)
		if err != nil {
			decErr = err
			return err
		}
		if !pred(rec) {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM signable_records WHERE instance_id = $1 AND field = $2`, instanceID, field); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if decErr != nil {
		return false, decErr
	}
	if err != nil {
		return false, storageErr("pg conditional delete", err)
	}
	return deleted, nil
}

func (p *Postgres) List(ctx context.Context) ([]*domain.SignableRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT document FROM signable_records ORDER BY instance_id, field`)
	if err != nil {
		return nil, storageErr("pg list", err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, storageErr("pg list", err)
	}
	out := make([]*domain.SignableRecord, 0, len(docs))
	for _, b := range docs {
		rec, err := decodeRecord(b)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var _ Repository = (*Postgres)(nil)
