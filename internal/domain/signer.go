package domain

import "crypto"

// Signer holds a private key and produces signatures for one algorithm.
// It lives on the client side of the protocol; the server only verifies.
type Signer interface {
	Sign(payload []byte) ([]byte, error)
	Verify(payload, signature []byte) bool
	Public() crypto.PublicKey
	PrivateKey() crypto.Signer
	Algorithm() Algorithm
}
