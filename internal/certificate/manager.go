// Package certificate parses X.509 certificates, extracts display metadata
// and checks whether a certificate is fit for producing signatures.
package certificate

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // fingerprint only
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/munistream/signature/internal/domain"
	"github.com/munistream/signature/internal/observability/logger"
)

const pemCertificateMarker = "-----BEGIN CERTIFICATE-----"

type Options struct {
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *zap.Logger
	// ExpiryWarningDays defaults to 30.
	ExpiryWarningDays int
	// MinKeyBits defaults to 2048.
	MinKeyBits int
}

// Manager holds no per-certificate state; every call re-parses its input.
type Manager struct {
	now         func() time.Time
	log         *zap.Logger
	warningDays int
	minKeyBits  int
}

func New(opts Options) *Manager {
	m := &Manager{
		now:         opts.Now,
		log:         logger.Or(opts.Logger, "certificate"),
		warningDays: opts.ExpiryWarningDays,
		minKeyBits:  opts.MinKeyBits,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.warningDays <= 0 {
		m.warningDays = 30
	}
	if m.minKeyBits <= 0 {
		m.minKeyBits = 2048
	}
	return m
}

// Now is the clock used for validity checks.
func (m *Manager) Now() time.Time { return m.now().UTC() }

// Parse loads the first CERTIFICATE block of certPEM.
func (m *Manager) Parse(certPEM string) (*x509.Certificate, error) {
	rest := []byte(certPEM)
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, fmt.Errorf("%w: no PEM certificate block", domain.ErrParse)
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrParse, err)
		}
		return cert, nil
	}
}

// ExtractCertificateInfo parses certPEM and describes it.
func (m *Manager) ExtractCertificateInfo(certPEM string) (*domain.CertificateInfo, error) {
	cert, err := m.Parse(certPEM)
	if err != nil {
		m.log.Error("extract certificate info", logger.Err(err))
		return nil, err
	}
	info := Describe(cert)
	m.log.Debug("certificate info extracted", logger.Subject(info.Subject))
	return info, nil
}

// Describe builds the display metadata of an already parsed certificate.
func Describe(cert *x509.Certificate) *domain.CertificateInfo {
	sha256Sum := sha256.Sum256(cert.Raw)
	sha1Sum := sha1.Sum(cert.Raw) //nolint:gosec

	info := &domain.CertificateInfo{
		Version:                 cert.Version,
		SerialNumber:            cert.SerialNumber.String(),
		Subject:                 FormatName(cert.Subject.Names),
		Issuer:                  FormatName(cert.Issuer.Names),
		NotBefore:               cert.NotBefore.UTC(),
		NotAfter:                cert.NotAfter.UTC(),
		SignatureAlgorithm:      signatureAlgorithmName(cert.SignatureAlgorithm),
		PublicKeyAlgorithm:      cert.PublicKeyAlgorithm.String(),
		KeySize:                 KeySize(cert.PublicKey),
		SubjectAlternativeNames: alternativeNames(cert),
		KeyUsage:                keyUsage(cert),
		Fingerprints: domain.Fingerprints{
			SHA256: hex.EncodeToString(sha256Sum[:]),
			SHA1:   hex.EncodeToString(sha1Sum[:]),
		},
	}
	return info
}

// KeySize returns the modulus size of RSA keys, the curve size of ECDSA
// keys, and 0 for key types without a meaningful size.
func KeySize(pub any) int {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k.N.BitLen()
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	default:
		return 0
	}
}

func alternativeNames(cert *x509.Certificate) []string {
	sans := make([]string, 0, len(cert.DNSNames)+len(cert.EmailAddresses)+len(cert.URIs))
	for _, n := range cert.DNSNames {
		sans = append(sans, "DNS:"+n)
	}
	for _, e := range cert.EmailAddresses {
		sans = append(sans, "Email:"+e)
	}
	for _, u := range cert.URIs {
		sans = append(sans, "URI:"+u.String())
	}
	return sans
}

func keyUsage(cert *x509.Certificate) domain.KeyUsage {
	ku := domain.KeyUsage{Present: hasKeyUsageExtension(cert)}
	if !ku.Present {
		return ku
	}
	u := cert.KeyUsage
	ku.DigitalSignature = u&x509.KeyUsageDigitalSignature != 0
	ku.ContentCommitment = u&x509.KeyUsageContentCommitment != 0
	ku.KeyEncipherment = u&x509.KeyUsageKeyEncipherment != 0
	ku.DataEncipherment = u&x509.KeyUsageDataEncipherment != 0
	ku.KeyAgreement = u&x509.KeyUsageKeyAgreement != 0
	ku.KeyCertSign = u&x509.KeyUsageCertSign != 0
	ku.CRLSign = u&x509.KeyUsageCRLSign != 0
	return ku
}

var oidKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 15}

func hasKeyUsageExtension(cert *x509.Certificate) bool {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidKeyUsage) {
			return true
		}
	}
	return false
}

var signatureAlgorithmNames = map[x509.SignatureAlgorithm]string{
	x509.SHA1WithRSA:      "sha1WithRSAEncryption",
	x509.SHA256WithRSA:    "sha256WithRSAEncryption",
	x509.SHA384WithRSA:    "sha384WithRSAEncryption",
	x509.SHA512WithRSA:    "sha512WithRSAEncryption",
	x509.SHA256WithRSAPSS: "RSASSA-PSS",
	x509.SHA384WithRSAPSS: "RSASSA-PSS",
	x509.SHA512WithRSAPSS: "RSASSA-PSS",
	x509.ECDSAWithSHA1:    "ecdsa-with-SHA1",
	x509.ECDSAWithSHA256:  "ecdsa-with-SHA256",
	x509.ECDSAWithSHA384:  "ecdsa-with-SHA384",
	x509.ECDSAWithSHA512:  "ecdsa-with-SHA512",
	x509.PureEd25519:      "ed25519",
}

func signatureAlgorithmName(a x509.SignatureAlgorithm) string {
	if n, ok := signatureAlgorithmNames[a]; ok {
		return n
	}
	return a.String()
}

// ParseCertificateFromFileContent accepts an uploaded certificate as PEM
// text, raw DER, or base64 encoded DER, and returns it as PEM.
func (m *Manager) ParseCertificateFromFileContent(content []byte) (string, error) {
	if utf8.Valid(content) && bytes.Contains(content, []byte(pemCertificateMarker)) {
		return string(content), nil
	}
	if cert, err := x509.ParseCertificate(content); err == nil {
		return encodePEM(cert.Raw), nil
	}
	if der, err := decodeBase64(content); err == nil {
		if cert, err := x509.ParseCertificate(der); err == nil {
			return encodePEM(cert.Raw), nil
		}
	}
	m.log.Error("unable to parse certificate from file content", zap.Int("bytes", len(content)))
	return "", domain.ErrUnsupportedFormat
}

// ExtractPublicKeyPEM re-serializes the certificate key as a PKIX
// "PUBLIC KEY" block.
func (m *Manager) ExtractPublicKeyPEM(certPEM string) (string, error) {
	cert, err := m.Parse(certPEM)
	if err != nil {
		m.log.Error("extract public key", logger.Err(err))
		return "", err
	}
	der, err := x509.MarshalPKIXPublicKey(cert.PublicKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrParse, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

func encodePEM(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func decodeBase64(b []byte) ([]byte, error) {
	s := strings.Join(strings.Fields(string(b)), "")
	if out, err := base64.StdEncoding.DecodeString(s); err == nil {
		return out, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
