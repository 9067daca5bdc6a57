package domain

import "time"

// KeyUsage mirrors the X.509 key usage extension. Present is false when the
// certificate carries no such extension.
type KeyUsage struct {
	Present           bool `json:"-"`
	DigitalSignature  bool `json:"digital_signature"`
	ContentCommitment bool `json:"content_commitment"`
	KeyEncipherment   bool `json:"key_encipherment"`
	DataEncipherment  bool `json:"data_encipherment"`
	KeyAgreement      bool `json:"key_agreement"`
	KeyCertSign       bool `json:"key_cert_sign"`
	CRLSign           bool `json:"crl_sign"`
}

type Fingerprints struct {
	SHA256 string `json:"sha256"`
	SHA1   string `json:"sha1"`
}

// CertificateInfo is derived from a certificate on every use and never cached.
type CertificateInfo struct {
	Version                 int          `json:"version"`
	SerialNumber            string       `json:"serial_number"`
	Subject                 string       `json:"subject"`
	Issuer                  string       `json:"issuer"`
	NotBefore               time.Time    `json:"not_valid_before"`
	NotAfter                time.Time    `json:"not_valid_after"`
	SignatureAlgorithm      string       `json:"signature_algorithm"`
	PublicKeyAlgorithm      string       `json:"public_key_algorithm"`
	KeySize                 int          `json:"public_key_size,omitempty"`
	SubjectAlternativeNames []string     `json:"subject_alternative_names"`
	KeyUsage                KeyUsage     `json:"key_usage"`
	Fingerprints            Fingerprints `json:"fingerprints"`
}

// CertificateValidation is the structured outcome of a signing-suitability
// check. Valid is true exactly when Errors is empty.
type CertificateValidation struct {
	Valid    bool             `json:"valid"`
	Errors   []string         `json:"errors"`
	Warnings []string         `json:"warnings"`
	Info     *CertificateInfo `json:"info,omitempty"`
}
