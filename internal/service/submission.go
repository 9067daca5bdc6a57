package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/observability/logger"
)

// ValidateCertificate runs the signing-suitability check on a worker slot.
func (s *SignableService) ValidateCertificate(ctx context.Context, certPEM string) (domain.CertificateValidation, error) {
	var res domain.CertificateValidation
	if err := s.withCrypto(ctx, func() { res = s.certs.ValidateCertificateForSigning(certPEM) }); err != nil {
		return res, err
	}
	s.metrics.CertificateValidation(res.Valid)
	return res, nil
}

// ValidateCertificateFile accepts an uploaded certificate in PEM, DER or
// base64 DER form and validates it for signing.
func (s *SignableService) ValidateCertificateFile(ctx context.Context, content []byte) (domain.CertificateValidation, error) {
	certPEM, err := s.certs.ParseCertificateFromFileContent(content)
	if err != nil {
		return domain.CertificateValidation{}, err
	}
	return s.ValidateCertificate(ctx, certPEM)
}

// SubmitSignature is the client-facing submission flow: the certificate must
// be fit for signing, the envelope is stored, and the signature is then
// verified against the staged payload. Only the first two steps can fail
// the call; the verification outcome is reported in the result.
func (s *SignableService) SubmitSignature(ctx context.Context, instanceID, field string, env *domain.SignatureEnvelope) (*domain.SubmissionResult, error) {
	if env == nil {
		return nil, domain.ErrInvalidEnvelope
	}
	if missing := env.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrInvalidEnvelope, strings.Join(missing, ", "))
	}

	cv, err := s.ValidateCertificate(ctx, env.Certificate)
	if err != nil {
		return nil, err
	}
	if !cv.Valid {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidCertificate, strings.Join(cv.Errors, "; "))
	}

	if err := s.StoreSignature(ctx, instanceID, field, env); err != nil {
		return nil, err
	}

	res := &domain.SubmissionResult{Received: true}
	rec, err := s.repo.Get(ctx, instanceID, field)
	switch {
	case err != nil:
		s.logFor(ctx).Warn("submission verification skipped", logger.Err(err))
		res.Verification = &domain.Verification{Error: "could not retrieve original signable data"}
	case rec.Expired(s.clock()):
		res.Verification = &domain.Verification{Error: domain.ErrExpired.Error()}
	default:
		valid := s.ValidateSignature(ctx, rec.Payload, env)
		at := s.clock()
		res.Verification = &domain.Verification{Valid: valid, VerifiedAt: &at}
	}
	return res, nil
}

// VerifyRecord builds a full verification report for the envelope stored
// under (instanceID, field) against the staged payload.
func (s *SignableService) VerifyRecord(ctx context.Context, instanceID, field string) (*domain.VerificationReport, error) {
	rec, err := s.repo.Get(ctx, instanceID, field)
	if err != nil {
		return nil, err
	}
	if rec.Signature == nil {
		return nil, fmt.Errorf("%w: no signature stored for %s", domain.ErrNotFound, field)
	}
	data, err := canonical.SigningBytes(rec.Payload)
	if err != nil {
		return nil, err
	}

	var rep domain.VerificationReport
	start := time.Now()
	if err := s.withCrypto(ctx, func() { rep = s.verifier.CreateVerificationReport(data, rec.Signature) }); err != nil {
		return nil, err
	}
	s.metrics.Verification(string(rec.Signature.Algorithm), rep.OverallValid, time.Since(start))
	return &rep, nil
}
