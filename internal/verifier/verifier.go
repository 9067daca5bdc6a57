// Package verifier checks signatures over canonical payload bytes against the
// public key of an X.509 certificate and assembles verification reports.
//
// Nothing in this package returns an error: every decoding, parsing or
// crypto failure is logged and folded into a negative Outcome.
package verifier

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/munistream/signature/internal/certificate"
	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/observability/logger"
)

// Reason classifies a verification outcome.
type Reason string

const (
	ReasonValid                Reason = "valid"
	ReasonInvalidSignature     Reason = "invalid_signature"
	ReasonKeyMismatch          Reason = "key_mismatch"
	ReasonUnsupportedAlgorithm Reason = "unsupported_algorithm"
	ReasonMalformed            Reason = "malformed"
)

// Outcome is the result of one signature check. Cause is set for every
// negative reason except ReasonInvalidSignature.
type Outcome struct {
	Valid  bool
	Reason Reason
	Cause  error
}

func (o Outcome) String() string {
	if o.Cause != nil {
		return fmt.Sprintf("%s: %v", o.Reason, o.Cause)
	}
	return string(o.Reason)
}

type Options struct {
	Logger *zap.Logger
}

type Verifier struct {
	certs *certificate.Manager
	log   *zap.Logger
}

// New returns a verifier that loads certificates and reads the clock
// through certs.
func New(certs *certificate.Manager, opts Options) *Verifier {
	return &Verifier{certs: certs, log: logger.Or(opts.Logger, "verifier")}
}

// SupportedAlgorithms lists the accepted algorithm names.
func (v *Verifier) SupportedAlgorithms() []domain.Algorithm { return domain.Algorithms() }

// VerifySignature reports whether sigB64 is a valid signature of data by the
// key in certPEM under alg.
func (v *Verifier) VerifySignature(data []byte, sigB64, certPEM string, alg domain.Algorithm) bool {
	return v.Verify(data, sigB64, certPEM, alg).Valid
}

// Verify is VerifySignature with the reason for a negative result.
func (v *Verifier) Verify(data []byte, sigB64, certPEM string, alg domain.Algorithm) Outcome {
	out := v.verify(data, sigB64, certPEM, alg)
	log := v.log.With(logger.Algorithm(string(alg)))
	switch out.Reason {
	case ReasonValid:
		log.Debug("signature verified")
	case ReasonInvalidSignature:
		log.Warn("signature verification failed: invalid signature")
	default:
		log.Error("signature verification error", zap.String("reason", string(out.Reason)), logger.Err(out.Cause))
	}
	return out
}

func (v *Verifier) verify(data []byte, sigB64, certPEM string, alg domain.Algorithm) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = fail(ReasonMalformed, fmt.Errorf("panic: %v", r))
		}
	}()

	sig, err := decodeSignature(sigB64)
	if err != nil {
		return fail(ReasonMalformed, fmt.Errorf("%w: signature: %v", domain.ErrParse, err))
	}
	cert, err := v.certs.Parse(certPEM)
	if err != nil {
		return fail(ReasonMalformed, err)
	}
	scheme, ok := domain.SchemeFor(alg)
	if !ok {
		return fail(ReasonUnsupportedAlgorithm, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, alg))
	}

	h := scheme.Hash.New()
	h.Write(data)
	digest := h.Sum(nil)

	switch scheme.Family {
	case domain.FamilyRSA:
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return fail(ReasonKeyMismatch, fmt.Errorf("certificate does not contain an RSA public key (%T)", cert.PublicKey))
		}
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: scheme.Hash}
		if rsa.VerifyPSS(pub, scheme.Hash, digest, sig, opts) != nil {
			return Outcome{Reason: ReasonInvalidSignature}
		}
	case domain.FamilyECDSA:
		pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return fail(ReasonKeyMismatch, fmt.Errorf("certificate does not contain an EC public key (%T)", cert.PublicKey))
		}
		if !ecdsa.VerifyASN1(pub, digest, sig) {
			return Outcome{Reason: ReasonInvalidSignature}
		}
	default:
		return fail(ReasonUnsupportedAlgorithm, fmt.Errorf("%w: family %q", domain.ErrUnsupportedAlgorithm, scheme.Family))
	}
	return Outcome{Valid: true, Reason: ReasonValid}
}

func fail(r Reason, cause error) Outcome { return Outcome{Reason: r, Cause: cause} }

func decodeSignature(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if s == "" {
		return nil, errors.New("empty")
	}
	return base64.StdEncoding.DecodeString(s)
}

// VerifyCertificateChain checks that the leaf certificate is inside its
// validity window. caCerts is accepted for interface compatibility and not
// consulted; no trust chain is built.
func (v *Verifier) VerifyCertificateChain(certPEM string, caCerts []string) bool {
	ok, err := v.certs.WithinValidity(certPEM)
	if err != nil {
		v.log.Error("certificate chain verification error", logger.Err(err))
		return false
	}
	if !ok {
		v.log.Warn("certificate outside its validity window")
	}
	return ok
}

// ExtractSignatureInfo summarizes env for display. Certificate details are
// derived from the embedded certificate, falling back to the info attached
// when the envelope was stored.
func (v *Verifier) ExtractSignatureInfo(env *domain.SignatureEnvelope) domain.SignatureInfo {
	si := domain.SignatureInfo{
		Algorithm:     env.Algorithm,
		Timestamp:     env.ReceivedAt,
		SignerSubject: "unknown",
		SignerIssuer:  "unknown",
		Verified:      env.Verified,

		VerificationTimestamp: env.VerificationTimestamp,
	}
	if si.Algorithm == "" {
		si.Algorithm = "unknown"
	}

	info := env.CertificateInfo
	if cert, err := v.certs.Parse(env.Certificate); err == nil {
		info = certificate.Describe(cert)
	}
	if info == nil {
		return si
	}
	si.SignerSubject = info.Subject
	si.SignerIssuer = info.Issuer
	from, until := info.NotBefore, info.NotAfter
	si.CertificateValidFrom = &from
	si.CertificateValidUntil = &until
	si.CertificateSerial = info.SerialNumber
	return si
}

// CreateVerificationReport verifies env against data and reports the
// signature and certificate results together. It never panics; an internal
// failure yields OverallValid=false with Error set.
func (v *Verifier) CreateVerificationReport(data []byte, env *domain.SignatureEnvelope) (rep domain.VerificationReport) {
	rep.VerificationTimestamp = v.certs.Now()
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("create verification report", zap.Any("panic", r))
			rep = domain.VerificationReport{
				VerificationTimestamp: rep.VerificationTimestamp,
				Error:                 fmt.Sprint(r),
			}
		}
	}()

	if env == nil {
		rep.Error = domain.ErrInvalidEnvelope.Error()
		return rep
	}

	alg := env.Algorithm
	if alg == "" {
		alg = domain.DefaultAlgorithm
	}

	rep.SignatureInfo = v.ExtractSignatureInfo(env)
	out := v.Verify(data, env.Signature, env.Certificate, alg)
	rep.Results.SignatureValid = out.Valid
	rep.Results.CertificateValid = v.VerifyCertificateChain(env.Certificate, nil)
	rep.OverallValid = rep.Results.SignatureValid && rep.Results.CertificateValid

	if !out.Valid {
		rep.Errors = append(rep.Errors, "signature verification failed: "+out.String())
	}
	if !rep.Results.CertificateValid {
		rep.Errors = append(rep.Errors, "certificate is not within its validity period")
	}
	if cv := v.certs.ValidateCertificateForSigning(env.Certificate); cv.Info != nil {
		rep.Warnings = append(rep.Warnings, cv.Warnings...)
	}

	v.log.Info("verification report created", zap.Bool("overall_valid", rep.OverallValid))
	return rep
}
