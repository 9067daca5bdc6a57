package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/munistream/signature/internal/domain"
)

var rsaGenerateKey = rsa.GenerateKey

// pssOptions signs with the largest salt the key allows; verifiers detect it.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto}

type RSASigner struct {
	priv   *rsa.PrivateKey
	alg    domain.Algorithm
	scheme domain.Scheme
}

// NewRSASigner generates a key of the given size for an RSA-PSS algorithm.
func NewRSASigner(bits int, alg domain.Algorithm) (*RSASigner, error) {
	scheme, err := schemeOf(alg, domain.FamilyRSA)
	if err != nil {
		return nil, err
	}
	k, err := rsaGenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &RSASigner{priv: k, alg: alg, scheme: scheme}, nil
}

func (s *RSASigner) Sign(payload []byte) ([]byte, error) {
	return rsa.SignPSS(rand.Reader, s.priv, s.scheme.Hash, digest(s.scheme.Hash, payload), pssOptions)
}

func (s *RSASigner) Verify(payload, signature []byte) bool {
	return rsa.VerifyPSS(&s.priv.PublicKey, s.scheme.Hash, digest(s.scheme.Hash, payload), signature, pssOptions) == nil
}

func (s *RSASigner) Public() crypto.PublicKey    { return &s.priv.PublicKey }
func (s *RSASigner) PrivateKey() crypto.Signer   { return s.priv }
func (s *RSASigner) Algorithm() domain.Algorithm { return s.alg }

var _ domain.Signer = (*RSASigner)(nil)
