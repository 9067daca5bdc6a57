package crypto

import (
	"encoding/base64"
	"fmt"

	"github.com/munistream/signature/internal/canonical"
	"github.com/munistream/signature/internal/domain"
)

// SignPayload signs the canonical form of p and packs the result with the
// certificate into a submission envelope.
func SignPayload(s domain.Signer, p domain.Payload, certPEM string) (*domain.SignatureEnvelope, error) {
	data, err := canonical.SigningBytes(p)
	if err != nil {
		return nil, err
	}
	sig, err := s.Sign(data)
	if err != nil {
		return nil, fmt.Errorf("sign payload: %w", err)
	}
	return &domain.SignatureEnvelope{
		Signature:   base64.StdEncoding.EncodeToString(sig),
		Certificate: certPEM,
		Algorithm:   s.Algorithm(),
	}, nil
}
