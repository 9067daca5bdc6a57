package storage

import (
	"context"

	"github.com/munistream/signature/internal/domain"
)

// Repository persists SignableRecord documents keyed by (instance, field).
// Update provides a per-key critical section; fn sees the current record
// and its changes are written back only when it returns nil. Errors from fn
// are returned unchanged, backend failures wrap domain.ErrStorage.
type Repository interface {
	// Put creates or replaces the record for its key.
	Put(ctx context.Context, rec *domain.SignableRecord) error
	Get(ctx context.Context, instanceID, field string) (*domain.SignableRecord, error)
	Update(ctx context.Context, instanceID, field string, fn func(rec *domain.SignableRecord) error) error
	// Delete is idempotent.
	Delete(ctx context.Context, instanceID, field string) error
	// DeleteIf removes the record only if pred holds for it, checked inside
	// the same critical section as Update. A missing record reports false.
	DeleteIf(ctx context.Context, instanceID, field string, pred func(rec *domain.SignableRecord) bool) (bool, error)
	List(ctx context.Context) ([]*domain.SignableRecord, error)
	Close() error
}
