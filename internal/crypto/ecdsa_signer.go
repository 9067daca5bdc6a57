package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/munistream/signature/internal/domain"
)

var ecdsaGenerateKey = ecdsa.GenerateKey

// curveFor pairs each digest with the curve of matching strength.
func curveFor(h crypto.Hash) elliptic.Curve {
	if h == crypto.SHA384 {
		return elliptic.P384()
	}
	return elliptic.P256()
}

type ECDSASigner struct {
	priv   *ecdsa.PrivateKey
	alg    domain.Algorithm
	scheme domain.Scheme
}

func NewECDSASigner(alg domain.Algorithm) (*ECDSASigner, error) {
	scheme, err := schemeOf(alg, domain.FamilyECDSA)
	if err != nil {
		return nil, err
	}
	k, err := ecdsaGenerateKey(curveFor(scheme.Hash), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ecdsa key: %w", err)
	}
	return &ECDSASigner{priv: k, alg: alg, scheme: scheme}, nil
}

// Sign produces an ASN.1 DER encoded (r, s) pair.
func (s *ECDSASigner) Sign(payload []byte) ([]byte, error) {
	return ecdsa.SignASN1(rand.Reader, s.priv, digest(s.scheme.Hash, payload))
}

func (s *ECDSASigner) Verify(payload, signature []byte) bool {
	return ecdsa.VerifyASN1(&s.priv.PublicKey, digest(s.scheme.Hash, payload), signature)
}

func (s *ECDSASigner) Public() crypto.PublicKey    { return &s.priv.PublicKey }
func (s *ECDSASigner) PrivateKey() crypto.Signer   { return s.priv }
func (s *ECDSASigner) Algorithm() domain.Algorithm { return s.alg }

var _ domain.Signer = (*ECDSASigner)(nil)
