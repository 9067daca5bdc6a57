package storage

import (
	"context"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/munistream/signature/internal/domain"
)

const (
	badgerPrefix     = "record/"
	badgerMaxRetries = 32
)

type BadgerOptions struct {
	Path     string
	InMemory bool
	Logger   *zap.Logger
}

// Badger embeds the store in-process. Updates run in serializable badger
// transactions and are retried on conflict.
type Badger struct {
	db *badgerdb.DB
}

func NewBadger(o BadgerOptions) (*Badger, error) {
	opts := badgerdb.DefaultOptions(o.Path)
	if o.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	if o.Logger != nil {
		opts.Logger = badgerLogger{o.Logger.Sugar()}
	}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, storageErr("badger open", err)
	}
	return &Badger{db: db}, nil
}

func badgerKey(instanceID, field string) []byte {
	return []byte(badgerPrefix + recordKey(instanceID, field))
}

func (b *Badger) Put(_ context.Context, rec *domain.SignableRecord) error {
	if err := validKey(rec.InstanceID, rec.Field); err != nil {
		return err
	}
	v, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(badgerKey(rec.InstanceID, rec.Field), v)
	}); err != nil {
		return storageErr("badger set", err)
	}
	return nil
}

func (b *Badger) Get(_ context.Context, instanceID, field string) (*domain.SignableRecord, error) {
	var v []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(badgerKey(instanceID, field))
		if err != nil {
			return err
		}
		v, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("badger get", err)
	}
	return decodeRecord(v)
}

func (b *Badger) Update(_ context.Context, instanceID, field string, fn func(*domain.SignableRecord) error) error {
	key := badgerKey(instanceID, field)
	for i := 0; i < badgerMaxRetries; i++ {
		var fnErr error
		err := b.db.Update(func(txn *badgerdb.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				fnErr = domain.ErrNotFound
				return fnErr
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(v)
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
			return txn.Set(key, out)
		})
		switch {
		case fnErr != nil:
			return fnErr
		case err == nil:
			return nil
		case errors.Is(err, badgerdb.ErrConflict):
			continue
		default:
			return storageErr("badger update", err)
		}
	}
	return storageErr("badger update", fmt.Errorf("gave up after %d conflicts", badgerMaxRetries))
}

func (b *Badger) Delete(_ context.Context, instanceID, field string) error {
	if err := b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(badgerKey(instanceID, field))
	}); err != nil {
		return storageErr("badger delete", err)
	}
	return nil
}

func (b *Badger) DeleteIf(_ context.Context, instanceID, field string, pred func(*domain.SignableRecord) bool) (bool, error) {
	key := badgerKey(instanceID, field)
	for i := 0; i < badgerMaxRetries; i++ {
		var (
			deleted bool
			decErr  error
		)
		err := b.db.Update(func(txn *badgerdb.Txn) error {
			item, err := txn.Get(key)
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(v)
			if err != nil {
				decErr = err
				return err
			}
			if !pred(rec) {
				return nil
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
			deleted = true
			return nil
		})
		switch {
		case decErr != nil:
			return false, decErr
		case err == nil:
			return deleted, nil
		case errors.Is(err, badgerdb.ErrConflict):
			continue
		default:
			return false, storageErr("badger conditional delete", err)
		}
	}
	return false, storageErr("badger conditional delete", fmt.Errorf("gave up after %d conflicts", badgerMaxRetries))
}

func (b *Badger) List(_ context.Context) ([]*domain.SignableRecord, error) {
	var out []*domain.SignableRecord
	prefix := []byte(badgerPrefix)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			return nil, err
		}
		return nil, storageErr("badger scan", err)
	}
	return out, nil
}

func (b *Badger) Close() error { return b.db.Close() }

// badgerLogger routes badger's printf-style logs to zap.
type badgerLogger struct{ s *zap.SugaredLogger }

func (l badgerLogger) Errorf(f string, args ...interface{})   { l.s.Errorf("badger: "+f, args...) }
func (l badgerLogger) Warningf(f string, args ...interface{}) { l.s.Warnf("badger: "+f, args...) }
func (l badgerLogger) Infof(f string, args ...interface{})    { l.s.Debugf("badger: "+f, args...) }
func (l badgerLogger) Debugf(f string, args ...interface{})   { l.s.Debugf("badger: "+f, args...) }

var _ Repository = (*Badger)(nil)
