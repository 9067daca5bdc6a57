package domain

import "time"

// Payload is the structured data handed to the external signer.
// Values are limited to string, number, bool, nil, []any and map[string]any.
type Payload map[string]any

// Clone returns a shallow copy; nested values are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSigned  Status = "signed"
	// StatusUnknown is reported when no record exists for a key.
	StatusUnknown Status = "unknown"
)

// SignableRecord stages a payload awaiting a signature for one
// (instance, field) pair.
type SignableRecord struct {
	InstanceID string             `json:"instance_id"`
	Field      string             `json:"signature_field"`
	Payload    Payload            `json:"signable_data"`
	CreatedAt  time.Time          `json:"created_at"`
	ExpiresAt  time.Time          `json:"expires_at"`
	Status     Status             `json:"status"`
	SignedAt   *time.Time         `json:"signed_at,omitempty"`
	Signature  *SignatureEnvelope `json:"signature,omitempty"`
}

// Expired reports whether now is past the validity window.
func (r *SignableRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// SignatureEnvelope is what a client submits, enriched on storage with the
// parsed certificate and the time of receipt.
type SignatureEnvelope struct {
	Signature       string           `json:"signature"`
	Certificate     string           `json:"certificate"`
	Algorithm       Algorithm        `json:"algorithm"`
	ReceivedAt      *time.Time       `json:"received_at,omitempty"`
	CertificateInfo *CertificateInfo `json:"certificate_info,omitempty"`

	// Set by callers that have already run a verification for display.
	Verified              bool       `json:"verified,omitempty"`
	VerificationTimestamp *time.Time `json:"verification_timestamp,omitempty"`
}

// Missing lists the required fields that are empty.
func (e *SignatureEnvelope) Missing() []string {
	var out []string
	if e.Signature == "" {
		out = append(out, "signature")
	}
	if e.Certificate == "" {
		out = append(out, "certificate")
	}
	if e.Algorithm == "" {
		out = append(out, "algorithm")
	}
	return out
}

// SignatureStatus summarizes the protocol state of one key.
type SignatureStatus struct {
	Field     string     `json:"signature_field"`
	Exists    bool       `json:"exists"`
	Status    Status     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	SignedAt  *time.Time `json:"signed_at,omitempty"`
	Expired   bool       `json:"expired"`
}
