package storage

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/munistream/signature/internal/domain"
)

// Memory keeps encoded records in a go-cache instance without expiry;
// record expiry is a protocol concern, not a cache one.
type Memory struct {
	items *cache.Cache
	// keys hash onto a fixed set of mutexes, so the lock table never grows
	locks [memoryLockShards]sync.Mutex
}

const memoryLockShards = 64

func NewMemory() *Memory {
	return &Memory{items: cache.New(cache.NoExpiration, 0)}
}

func (m *Memory) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	l := &m.locks[h.Sum32()%memoryLockShards]
	l.Lock()
	return l.Unlock
}

func (m *Memory) Put(_ context.Context, rec *domain.SignableRecord) error {
	if err := validKey(rec.InstanceID, rec.Field); err != nil {
		return err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	key := recordKey(rec.InstanceID, rec.Field)
	defer m.lock(key)()
	m.items.Set(key, b, cache.NoExpiration)
	return nil
}

func (m *Memory) Get(_ context.Context, instanceID, field string) (*domain.SignableRecord, error) {
	v, ok := m.items.Get(recordKey(instanceID, field))
	if !ok {
		return nil, domain.ErrNotFound
	}
	return decodeRecord(v.([]byte))
}

func (m *Memory) Update(_ context.Context, instanceID, field string, fn func(*domain.SignableRecord) error) error {
	key := recordKey(instanceID, field)
	defer m.lock(key)()

	v, ok := m.items.Get(key)
	if !ok {
		return domain.ErrNotFound
	}
	rec, err := decodeRecord(v.([]byte))
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		return err
	}
	b, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	m.items.Set(key, b, cache.NoExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, instanceID, field string) error {
	key := recordKey(instanceID, field)
	defer m.lock(key)()
	m.items.Delete(key)
	return nil
}

func (m *Memory) DeleteIf(_ context.Context, instanceID, field string, pred func(*domain.SignableRecord) bool) (bool, error) {
	key := recordKey(instanceID, field)
	defer m.lock(key)()

	v, ok := m.items.Get(key)
	if !ok {
		return false, nil
	}
	rec, err := decodeRecord(v.([]byte))
	if err != nil {
		return false, err
	}
	if !pred(rec) {
		return false, nil
	}
	m.items.Delete(key)
	return true, nil
}

// List returns records ordered by key.
func (m *Memory) List(_ context.Context) ([]*domain.SignableRecord, error) {
	items := m.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*domain.SignableRecord, 0, len(keys))
	for _, k := range keys {
		rec, err := decodeRecord(items[k].Object.([]byte))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.items.Flush()
	return nil
}

var _ Repository = (*Memory)(nil)
