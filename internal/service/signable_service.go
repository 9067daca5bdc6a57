package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/certificate"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/metrics"
	"github.com/munistream/signature/internal/observability/logger"
	"github.com/munistream/signature/internal/storage"
	"github.com/munistream/signature/internal/verifier"
)

const (
	DefaultTimeout      = 30 * time.Minute
	DefaultCleanupGrace = 24 * time.Hour
)

type Options struct {
	// Now defaults to time.Now; all stored times are UTC.
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics metrics.Recorder
	// DefaultTimeout applies when StoreSignableData gets no timeout.
	DefaultTimeout time.Duration
	// CleanupGrace is how long past expiry a pending record is kept.
	CleanupGrace time.Duration
	// CryptoWorkers bounds concurrent certificate parsing and signature
	// checks, default runtime.NumCPU.
	CryptoWorkers int
}

// SignableService runs the signature protocol for (instance, field) keys:
// issuing signable payloads, accepting envelopes and verifying them.
type SignableService struct {
	repo     storage.Repository
	certs    *certificate.Manager
	verifier *verifier.Verifier

	now            func() time.Time
	log            *zap.Logger
	metrics        metrics.Recorder
	defaultTimeout time.Duration
	grace          time.Duration
	crypto         *semaphore.Weighted
}

func New(repo storage.Repository, certs *certificate.Manager, v *verifier.Verifier, opts Options) *SignableService {
	s := &SignableService{
		repo:           repo,
		certs:          certs,
		verifier:       v,
		now:            opts.Now,
		log:            logger.Or(opts.Logger, "service"),
		metrics:        opts.Metrics,
		defaultTimeout: opts.DefaultTimeout,
		grace:          opts.CleanupGrace,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	if s.defaultTimeout <= 0 {
		s.defaultTimeout = DefaultTimeout
	}
	if s.grace < 0 {
		s.grace = 0
	} else if s.grace == 0 {
		s.grace = DefaultCleanupGrace
	}
	workers := opts.CryptoWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	s.crypto = semaphore.NewWeighted(int64(workers))
	return s
}

// logFor prefers the request-scoped logger and falls back to the one the
// service was built with.
func (s *SignableService) logFor(ctx context.Context) *zap.Logger {
	return logger.FromOr(ctx, s.log)
}

func (s *SignableService) clock() time.Time { return s.now().UTC() }

// withCrypto runs fn while holding one crypto worker slot.
func (s *SignableService) withCrypto(ctx context.Context, fn func()) error {
	if err := s.crypto.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.crypto.Release(1)
	fn()
	return nil
}

// StoreSignableData stages payload for (instanceID, field), replacing any
// earlier record for the key. A non-positive timeout selects the default.
func (s *SignableService) StoreSignableData(ctx context.Context, instanceID, field string, payload domain.Payload, timeout time.Duration) error {
	if instanceID == "" || field == "" {
		return fmt.Errorf("%w: instance id and field are required", domain.ErrInvalidInput)
	}
	if _, err := canonical.Marshal(payload); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	now := s.clock()
	rec := &domain.SignableRecord{
		InstanceID: instanceID,
		Field:      field,
		Payload:    payload.Clone(),
		CreatedAt:  now,
		ExpiresAt:  now.Add(timeout),
		Status:     domain.StatusPending,
	}
	if rec.Payload == nil {
		rec.Payload = domain.Payload{}
	}

	log := s.logFor(ctx).With(logger.InstanceID(instanceID), logger.Field(field))
	if err := s.repo.Put(ctx, rec); err != nil {
		s.metrics.SignableStored(false)
		log.Error("store signable data", logger.Err(err))
		return err
	}
	s.metrics.SignableStored(true)
	log.Info("signable data stored", zap.Time("expires_at", rec.ExpiresAt))
	return nil
}

// GetSignableData returns the pending payload. A record past its window
// yields ErrExpired, not ErrNotFound; the record itself is kept.
func (s *SignableService) GetSignableData(ctx context.Context, instanceID, field string) (domain.Payload, error) {
	rec, err := s.repo.Get(ctx, instanceID, field)
	if err != nil {
		return nil, err
	}
	if rec.Expired(s.clock()) {
		s.logFor(ctx).Warn("signable data expired", logger.InstanceID(instanceID), logger.Field(field))
		return nil, domain.ErrExpired
	}
	return rec.Payload, nil
}

// StoreSignature attaches env to the pending record after checking that it
// is structurally complete and carries a parseable certificate. It does not
// verify the signature. A record that is already signed is left untouched
// and ErrAlreadySigned is returned.
func (s *SignableService) StoreSignature(ctx context.Context, instanceID, field string, env *domain.SignatureEnvelope) error {
	log := s.logFor(ctx).With(logger.InstanceID(instanceID), logger.Field(field))
	if env == nil {
		return domain.ErrInvalidEnvelope
	}
	if missing := env.Missing(); len(missing) > 0 {
		s.metrics.SignatureStored("invalid")
		return fmt.Errorf("%w: missing %s", domain.ErrInvalidEnvelope, strings.Join(missing, ", "))
	}

	var (
		info    *domain.CertificateInfo
		infoErr error
	)
	if err := s.withCrypto(ctx, func() { info, infoErr = s.certs.ExtractCertificateInfo(env.Certificate) }); err != nil {
		return err
	}
	if infoErr != nil {
		s.metrics.SignatureStored("invalid")
		log.Warn("signature certificate unreadable", logger.Err(infoErr))
		return infoErr
	}

	err := s.repo.Update(ctx, instanceID, field, func(rec *domain.SignableRecord) error {
		if rec.Status == domain.StatusSigned {
			return domain.ErrAlreadySigned
		}
		now := s.clock()
		stored := *env
		stored.ReceivedAt = &now
		stored.CertificateInfo = info
		rec.Signature = &stored
		rec.Status = domain.StatusSigned
		rec.SignedAt = &now
		return nil
	})
	switch {
	case err == nil:
		s.metrics.SignatureStored("ok")
		log.Info("signature stored", logger.Algorithm(string(env.Algorithm)), logger.Subject(info.Subject))
		return nil
	case errors.Is(err, domain.ErrAlreadySigned):
		s.metrics.SignatureStored("duplicate")
		log.Warn("signature already stored")
	case errors.Is(err, domain.ErrNotFound):
		s.metrics.SignatureStored("not_found")
	default:
		s.metrics.SignatureStored("error")
		log.Error("store signature", logger.Err(err))
	}
	return err
}

// ValidateSignature checks env against the canonical form of payload with
// transient fields removed. It never fails; any problem yields false.
func (s *SignableService) ValidateSignature(ctx context.Context, payload domain.Payload, env *domain.SignatureEnvelope) bool {
	log := s.logFor(ctx)
	if env == nil {
		return false
	}
	data, err := canonical.SigningBytes(payload)
	if err != nil {
		log.Error("canonicalize payload", logger.Err(err))
		return false
	}
	alg := env.Algorithm
	if alg == "" {
		alg = domain.DefaultAlgorithm
	}

	var out verifier.Outcome
	start := time.Now()
	if err := s.withCrypto(ctx, func() { out = s.verifier.Verify(data, env.Signature, env.Certificate, alg) }); err != nil {
		log.Warn("signature validation abandoned", logger.Err(err))
		return false
	}
	s.metrics.Verification(string(alg), out.Valid, time.Since(start))
	return out.Valid
}

// GetSignatureStatus reports the protocol state of a key. A missing record
// is not an error: Exists is false and Status is unknown.
func (s *SignableService) GetSignatureStatus(ctx context.Context, instanceID, field string) (domain.SignatureStatus, error) {
	st := domain.SignatureStatus{Field: field, Status: domain.StatusUnknown}
	rec, err := s.repo.Get(ctx, instanceID, field)
	if errors.Is(err, domain.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	created, expires := rec.CreatedAt, rec.ExpiresAt
	st.Exists = true
	st.Status = rec.Status
	st.CreatedAt = &created
	st.ExpiresAt = &expires
	st.SignedAt = rec.SignedAt
	st.Expired = rec.Expired(s.clock())
	return st, nil
}
