package service

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/observability/logger"
)

const cleanupParallelism = 8

// CleanupExpiredSignatures deletes pending records whose window closed more
// than the cleanup grace ago. Signed records are kept. It is never called
// implicitly; schedule it from outside.
func (s *SignableService) CleanupExpiredSignatures(ctx context.Context) (int, error) {
	log := s.logFor(ctx).With(logger.Op("cleanup"))
	recs, err := s.repo.List(ctx)
	if err != nil {
		log.Error("list records", logger.Err(err))
		return 0, err
	}

	cutoff := s.clock().Add(-s.grace)
	var removed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cleanupParallelism)
	for _, rec := range recs {
		if !stale(rec, cutoff) {
			continue
		}
		instanceID, field := rec.InstanceID, rec.Field
		g.Go(func() error {
			// the record may have been signed or reissued since listing
			deleted, err := s.repo.DeleteIf(gctx, instanceID, field, func(cur *domain.SignableRecord) bool {
				return stale(cur, cutoff)
			})
			if err != nil || !deleted {
				return err
			}
			removed.Add(1)
			return nil
		})
	}
	err = g.Wait()
	n := int(removed.Load())
	s.metrics.CleanupRemoved(n)
	if err != nil {
		log.Error("cleanup aborted", logger.Err(err), logger.Count(n))
		return n, err
	}
	log.Info("signature cleanup executed", logger.Count(n))
	return n, nil
}

func stale(rec *domain.SignableRecord, cutoff time.Time) bool {
	return rec.Status == domain.StatusPending && !rec.ExpiresAt.IsZero() && rec.ExpiresAt.Before(cutoff)
}
