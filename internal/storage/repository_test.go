package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/domain"
)

// runRepositoryContract exercises behaviour every backend must share.
func runRepositoryContract(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()
	inst := "wf-" + uuid.NewString()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	newRec := func(field string) *domain.SignableRecord {
		return &domain.SignableRecord{
			InstanceID: inst,
			Field:      field,
			Payload:    domain.Payload{"a": 1, "f": 2.0, "big": 1e20, "nested": map[string]any{"x": []any{"s", true, nil}}},
			CreatedAt:  created,
			ExpiresAt:  created.Add(time.Minute),
			Status:     domain.StatusPending,
		}
	}

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, inst, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("put and get keep payload bytes", func(t *testing.T) {
		rec := newRec("approval_sig")
		require.NoError(t, repo.Put(ctx, rec))

		got, err := repo.Get(ctx, inst, "approval_sig")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
		assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

		want, err := canonical.Marshal(rec.Payload)
		require.NoError(t, err)
		have, err := canonical.Marshal(got.Payload)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(have))
		assert.Equal(t, json.Number("1"), got.Payload["a"])
	})

	t.Run("update commits", func(t *testing.T) {
		signedAt := created.Add(10 * time.Second)
		err := repo.Update(ctx, inst, "approval_sig", func(r *domain.SignableRecord) error {
			r.Status = domain.StatusSigned
			r.SignedAt = &signedAt
			r.Signature = &domain.SignatureEnvelope{Signature: "c2ln", Certificate: "PEM", Algorithm: domain.AlgRSASHA256}
			return nil
		})
		require.NoError(t, err)

		got, err := repo.Get(ctx, inst, "approval_sig")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSigned, got.Status)
		require.NotNil(t, got.SignedAt)
		assert.True(t, signedAt.Equal(*got.SignedAt))
		require.NotNil(t, got.Signature)
		assert.Equal(t, "c2ln", got.Signature.Signature)
	})

	t.Run("update fn error is returned and discards changes", func(t *testing.T) {
		want := errors.New("fn error")
		err := repo.Update(ctx, inst, "approval_sig", func(r *domain.SignableRecord) error {
			r.Status = domain.StatusPending
			return want
		})
		assert.ErrorIs(t, err, want)

		got, err := repo.Get(ctx, inst, "approval_sig")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusSigned, got.Status)
	})

	t.Run("update missing", func(t *testing.T) {
		err := repo.Update(ctx, inst, "missing", func(*domain.SignableRecord) error { return nil })
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("concurrent updates are serialized", func(t *testing.T) {
		rec := newRec("counter")
		rec.Payload = domain.Payload{"n": 0}
		require.NoError(t, repo.Put(ctx, rec))

		const workers = 8
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				err := repo.Update(ctx, inst, "counter", func(r *domain.SignableRecord) error {
					n, err := r.Payload["n"].(json.Number).Int64()
					if err != nil {
						return err
					}
					r.Payload["n"] = n + 1
					return nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := repo.Get(ctx, inst, "counter")
		require.NoError(t, err)
		assert.Equal(t, json.Number("8"), got.Payload["n"])
	})

	t.Run("list and delete", func(t *testing.T) {
		all, err := repo.List(ctx)
		require.NoError(t, err)
		var mine []string
		for _, r := range all {
			if r.InstanceID == inst {
				mine = append(mine, r.Field)
			}
		}
		assert.ElementsMatch(t, []string{"approval_sig", "counter"}, mine)

		require.NoError(t, repo.Delete(ctx, inst, "counter"))
		require.NoError(t, repo.Delete(ctx, inst, "counter"))
		_, err = repo.Get(ctx, inst, "counter")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("delete if checks the current record", func(t *testing.T) {
		require.NoError(t, repo.Put(ctx, newRec("cond")))
		pending := func(r *domain.SignableRecord) bool { return r.Status == domain.StatusPending }

		require.NoError(t, repo.Update(ctx, inst, "cond", func(r *domain.SignableRecord) error {
			r.Status = domain.StatusSigned
			return nil
		}))
		deleted, err := repo.DeleteIf(ctx, inst, "cond", pending)
		require.NoError(t, err)
		assert.False(t, deleted)
		_, err = repo.Get(ctx, inst, "cond")
		require.NoError(t, err)

		require.NoError(t, repo.Put(ctx, newRec("cond")))
		deleted, err = repo.DeleteIf(ctx, inst, "cond", pending)
		require.NoError(t, err)
		assert.True(t, deleted)
		_, err = repo.Get(ctx, inst, "cond")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		deleted, err = repo.DeleteIf(ctx, inst, "cond", pending)
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		rec := newRec("")
		assert.ErrorIs(t, repo.Put(ctx, rec), domain.ErrInvalidInput)
	})
}

func TestCodec_CorruptDocument(t *testing.T) {
	_, err := decodeRecord([]byte("{"))
	assert.ErrorIs(t, err, domain.ErrStorage)

	_, err = decodeRecord([]byte(`{"signable_data": [1]}`))
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestCodec_RejectsForeignPayloadValues(t *testing.T) {
	_, err := encodeRecord(&domain.SignableRecord{Payload: domain.Payload{"ch": make(chan int)}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
