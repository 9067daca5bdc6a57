package certificate

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/munistream/signature/internal/domain"
)

// ValidateCertificateForSigning checks the validity window, key usage and
// key size of certPEM. Unparseable input is reported in Errors; the call
// itself never fails. Valid is true exactly when Errors is empty.
func (m *Manager) ValidateCertificateForSigning(certPEM string) domain.CertificateValidation {
	res := domain.CertificateValidation{Errors: []string{}, Warnings: []string{}}

	cert, err := m.Parse(certPEM)
	if err != nil {
		m.log.Error("certificate validation failed", zap.Error(err))
		res.Errors = append(res.Errors, "Certificate validation error: "+err.Error())
		return res
	}

	now := m.Now()
	switch {
	case now.Before(cert.NotBefore):
		res.Errors = append(res.Errors, "Certificate is not yet valid")
	case now.After(cert.NotAfter):
		res.Errors = append(res.Errors, "Certificate has expired")
	default:
		days := int(cert.NotAfter.Sub(now) / (24 * time.Hour))
		if days < m.warningDays {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Certificate expires in %d days", days))
		}
	}

	info := Describe(cert)
	switch {
	case !info.KeyUsage.Present:
		res.Warnings = append(res.Warnings, "No key usage extension found")
	case !info.KeyUsage.DigitalSignature:
		res.Warnings = append(res.Warnings, "Certificate not marked for digital signature")
	}

	if bits := info.KeySize; bits > 0 && bits < m.minKeyBits {
		res.Warnings = append(res.Warnings, fmt.Sprintf("Public key size (%d) may be insufficient", bits))
	}

	res.Valid = len(res.Errors) == 0
	res.Info = info

	m.log.Info("certificate validated",
		zap.Bool("valid", res.Valid),
		zap.Int("errors", len(res.Errors)),
		zap.Int("warnings", len(res.Warnings)),
	)
	return res
}

// WithinValidity reports whether now falls inside the certificate window.
func (m *Manager) WithinValidity(certPEM string) (bool, error) {
	cert, err := m.Parse(certPEM)
	if err != nil {
		return false, err
	}
	now := m.Now()
	return !now.Before(cert.NotBefore) && !now.After(cert.NotAfter), nil
}
