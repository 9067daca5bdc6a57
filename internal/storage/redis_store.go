package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/munistream/signature/internal/domain"
)

const redisMaxRetries = 32

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key, default "signature".
	Prefix string
}

// Redis stores one JSON document per key and serializes updates with
// WATCH/MULTI optimistic transactions.
type Redis struct {
	c      *redis.Client
	prefix string
}

func NewRedis(ctx context.Context, o RedisOptions) (*Redis, error) {
	if o.Prefix == "" {
		o.Prefix = "signature"
	}
	c := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, storageErr("redis ping", err)
	}
	return &Redis{c: c, prefix: o.Prefix}, nil
}

func (r *Redis) key(instanceID, field string) string {
	return fmt.Sprintf("%s:record:%s", r.prefix, recordKey(instanceID, field))
}

func (r *Redis) Put(ctx context.Context, rec *domain.SignableRecord) error {
	if err := validKey(rec.InstanceID, rec.Field); err != nil {
		return err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := r.c.Set(ctx, r.key(rec.InstanceID, rec.Field), b, 0).Err(); err != nil {
		return storageErr("redis set", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, instanceID, field string) (*domain.SignableRecord, error) {
	b, err := r.c.Get(ctx, r.key(instanceID, field)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("redis get", err)
	}
	return decodeRecord(b)
}

func (r *Redis) Update(ctx context.Context, instanceID, field string, fn func(*domain.SignableRecord) error) error {
	key := r.key(instanceID, field)
	var fnErr error
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		fnErr = nil
		err := r.c.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return storageErr("redis update", err)
		}
	}
	return storageErr("redis update", fmt.Errorf("gave up after %d conflicting writes", redisMaxRetries))
}

func (r *Redis) Delete(ctx context.Context, instanceID, field string) error {
	if err := r.c.Del(ctx, r.key(instanceID, field)).Err(); err != nil {
		return storageErr("redis del", err)
	}
	return nil
}

func (r *Redis) DeleteIf(ctx context.Context, instanceID, field string, pred func(*domain.SignableRecord) bool) (bool, error) {
	key := r.key(instanceID, field)
	var (
		deleted bool
		decErr  error
	)
	txf := func(tx *redis.Tx) error {
		b, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		if err == nil {
			deleted = true
		}
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		deleted, decErr = false, nil
		err := r.c.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return deleted, nil
		case decErr != nil:
			return false, decErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return false, storageErr("redis conditional delete", err)
		}
	}
	return false, storageErr("redis conditional delete", fmt.Errorf("gave up after %d conflicting writes", redisMaxRetries))
}

func (r *Redis) List(ctx context.Context) ([]*domain.SignableRecord, error) {
	var out []*domain.SignableRecord
	iter := r.c.Scan(ctx, 0, r.prefix+":record:*", 200).Iterator()
	for iter.Next(ctx) {
		b, err := r.c.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, storageErr("redis get", err)
		}
		rec, err := decodeRecord(b)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, storageErr("redis scan", err)
	}
	return out, nil
}

func (r *Redis) Close() error { return r.c.Close() }

var _ Repository = (*Redis)(nil)
