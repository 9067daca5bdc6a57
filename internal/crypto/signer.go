// Package crypto holds the client side of the signature protocol: key
// generation and loading, certificate issuance, and producing envelopes over
// the canonical form of a payload. The service itself only verifies.
package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"

	"github.com/munistream/signature/internal/domain"
)

// DefaultRSABits is used by NewSigner for RSA algorithms.
const DefaultRSABits = 2048

// NewSigner generates a fresh key suitable for alg.
func NewSigner(alg domain.Algorithm) (domain.Signer, error) {
	switch alg.Family() {
	case domain.FamilyRSA:
		return NewRSASigner(DefaultRSABits, alg)
	case domain.FamilyECDSA:
		return NewECDSASigner(alg)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, alg)
	}
}

// FromKey wraps an existing private key. The key type must match the
// algorithm family.
func FromKey(key crypto.Signer, alg domain.Algorithm) (domain.Signer, error) {
	switch k := key.(type) {
	case *rsa.PrivateKey:
		scheme, err := schemeOf(alg, domain.FamilyRSA)
		if err != nil {
			return nil, err
		}
		return &RSASigner{priv: k, alg: alg, scheme: scheme}, nil
	case *ecdsa.PrivateKey:
		scheme, err := schemeOf(alg, domain.FamilyECDSA)
		if err != nil {
			return nil, err
		}
		return &ECDSASigner{priv: k, alg: alg, scheme: scheme}, nil
	default:
		return nil, fmt.Errorf("%w: key type %T", domain.ErrUnsupportedAlgorithm, key)
	}
}

func schemeOf(alg domain.Algorithm, want domain.Family) (domain.Scheme, error) {
	s, ok := domain.SchemeFor(alg)
	if !ok {
		return domain.Scheme{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedAlgorithm, alg)
	}
	if s.Family != want {
		return domain.Scheme{}, fmt.Errorf("%w: %s needs a %s key", domain.ErrUnsupportedAlgorithm, alg, s.Family)
	}
	return s, nil
}

func digest(h crypto.Hash, payload []byte) []byte {
	d := h.New()
	d.Write(payload)
	return d.Sum(nil)
}
