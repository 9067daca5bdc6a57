package domain

import "errors"

var (
	ErrNotFound             = errors.New("signable data not found")
	ErrExpired              = errors.New("signable data expired")
	ErrAlreadySigned        = errors.New("signature already stored")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidEnvelope      = errors.New("invalid signature envelope")
	ErrInvalidCertificate   = errors.New("invalid certificate")
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrUnsupportedFormat    = errors.New("unsupported certificate format")
	ErrParse                = errors.New("malformed encoding")
	ErrStorage              = errors.New("storage unavailable")
)
