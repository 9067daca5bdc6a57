package domain

import "time"

// SignatureInfo is the display summary of a stored envelope.
type SignatureInfo struct {
	Algorithm             Algorithm  `json:"algorithm"`
	Timestamp             *time.Time `json:"timestamp"`
	SignerSubject         string     `json:"signer_subject"`
	SignerIssuer          string     `json:"signer_issuer"`
	CertificateValidFrom  *time.Time `json:"certificate_valid_from"`
	CertificateValidUntil *time.Time `json:"certificate_valid_until"`
	CertificateSerial     string     `json:"certificate_serial,omitempty"`
	Verified              bool       `json:"verified"`
	VerificationTimestamp *time.Time `json:"verification_timestamp"`
}

type VerificationResults struct {
	SignatureValid   bool `json:"signature_valid"`
	CertificateValid bool `json:"certificate_valid"`
}

// VerificationReport is built fresh per request and never persisted.
type VerificationReport struct {
	VerificationTimestamp time.Time           `json:"verification_timestamp"`
	SignatureInfo         SignatureInfo       `json:"signature_info"`
	Results               VerificationResults `json:"verification_results"`
	OverallValid          bool                `json:"overall_valid"`
	Errors                []string            `json:"errors,omitempty"`
	Warnings              []string            `json:"warnings,omitempty"`
	Error                 string              `json:"error,omitempty"`
}

// Verification is the inline result returned with a submission.
type Verification struct {
	Valid      bool       `json:"valid"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
	Error      string     `json:"error,omitempty"`
}

type SubmissionResult struct {
	Received     bool          `json:"signature_received"`
	Verification *Verification `json:"verification_result,omitempty"`
}
