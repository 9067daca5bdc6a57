package crypto

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/munistream/signature/internal/domain"
)

var createCertificate = x509.CreateCertificate

// CertOptions describes a self-signed certificate. A zero KeyUsage omits the
// key usage extension entirely.
type CertOptions struct {
	CommonName   string
	Organization string
	Country      string
	Email        string
	DNSNames     []string
	URIs         []string
	NotBefore    time.Time
	NotAfter     time.Time
	KeyUsage     x509.KeyUsage
}

// SigningCertOptions returns options for a one-year signing certificate.
func SigningCertOptions(cn string, now time.Time) CertOptions {
	return CertOptions{
		CommonName: cn,
		NotBefore:  now.Add(-time.Minute),
		NotAfter:   now.AddDate(1, 0, 0),
		KeyUsage:   x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
}

// IssueCertificate self-signs a certificate for the signer key and returns
// it PEM encoded.
func IssueCertificate(s domain.Signer, opts CertOptions) (string, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 127))
	if err != nil {
		return "", fmt.Errorf("certificate serial: %w", err)
	}
	name := pkix.Name{CommonName: opts.CommonName}
	if opts.Organization != "" {
		name.Organization = []string{opts.Organization}
	}
	if opts.Country != "" {
		name.Country = []string{opts.Country}
	}
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               name,
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		KeyUsage:              opts.KeyUsage,
		DNSNames:              opts.DNSNames,
		BasicConstraintsValid: true,
	}
	if opts.Email != "" {
		tmpl.EmailAddresses = []string{opts.Email}
	}
	for _, raw := range opts.URIs {
		u, err := url.Parse(raw)
		if err != nil {
			return "", fmt.Errorf("certificate uri %q: %w", raw, err)
		}
		tmpl.URIs = append(tmpl.URIs, u)
	}
	der, err := createCertificate(rand.Reader, tmpl, tmpl, s.Public(), s.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("create certificate: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})), nil
}
