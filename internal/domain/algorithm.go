package domain

import (
	"crypto"
	"sort"
	"strings"

	// register hash implementations used by the algorithm table
	_ "crypto/sha256"
	_ "crypto/sha512"
)

// Algorithm is the wire name of a signature algorithm.
type Algorithm string

const (
	AlgRSASHA256   Algorithm = "RSA-SHA256"
	AlgRSASHA512   Algorithm = "RSA-SHA512"
	AlgECDSASHA256 Algorithm = "ECDSA-SHA256"
	AlgECDSASHA384 Algorithm = "ECDSA-SHA384"
)

// DefaultAlgorithm applies when a submission omits the algorithm.
const DefaultAlgorithm = AlgRSASHA256

// Family is the key type an algorithm requires.
type Family string

const (
	FamilyRSA   Family = "RSA"
	FamilyECDSA Family = "ECDSA"
)

// Scheme pairs the key family with the digest used by an algorithm.
// RSA schemes use PSS padding with MGF1 over the same hash.
type Scheme struct {
	Family Family
	Hash   crypto.Hash
}

var schemes = map[Algorithm]Scheme{
	AlgRSASHA256:   {Family: FamilyRSA, Hash: crypto.SHA256},
	AlgRSASHA512:   {Family: FamilyRSA, Hash: crypto.SHA512},
	AlgECDSASHA256: {Family: FamilyECDSA, Hash: crypto.SHA256},
	AlgECDSASHA384: {Family: FamilyECDSA, Hash: crypto.SHA384},
}

// SchemeFor looks up the scheme of a supported algorithm.
func SchemeFor(a Algorithm) (Scheme, bool) {
	s, ok := schemes[a]
	return s, ok
}

// Supported reports whether a is in the closed algorithm set.
func (a Algorithm) Supported() bool {
	_, ok := schemes[a]
	return ok
}

// Family returns the key family implied by the name prefix, even for
// unsupported variants such as "RSA-MD5".
func (a Algorithm) Family() Family {
	switch {
	case strings.HasPrefix(string(a), "RSA"):
		return FamilyRSA
	case strings.HasPrefix(string(a), "ECDSA"):
		return FamilyECDSA
	default:
		return ""
	}
}

// Algorithms lists every supported algorithm in lexical order.
func Algorithms() []Algorithm {
	out := make([]Algorithm, 0, len(schemes))
	for a := range schemes {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
