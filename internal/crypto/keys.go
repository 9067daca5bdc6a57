package crypto

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/pkcs12"
)

var errNoKey = errors.New("no private key found")

// LoadPrivateKeyPEM reads the first private key block of a PEM bundle in
// PKCS#1, SEC 1 or PKCS#8 form.
func LoadPrivateKeyPEM(data []byte) (crypto.Signer, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errNoKey
		}
		switch block.Type {
		case "RSA PRIVATE KEY":
			return x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			return x509.ParseECPrivateKey(block.Bytes)
		case "PRIVATE KEY":
			k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
			s, ok := k.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("pkcs8 key of type %T cannot sign", k)
			}
			return s, nil
		}
	}
}

// EncodePrivateKeyPEM writes key as a PKCS#8 "PRIVATE KEY" block.
func EncodePrivateKeyPEM(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// LoadPKCS12 opens a .p12/.pfx bundle holding one key and its certificate.
func LoadPKCS12(data []byte, password string) (crypto.Signer, string, error) {
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, "", fmt.Errorf("pkcs12: %w", err)
	}
	s, ok := key.(crypto.Signer)
	if !ok {
		return nil, "", fmt.Errorf("pkcs12 key of type %T cannot sign", key)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	return s, string(certPEM), nil
}
