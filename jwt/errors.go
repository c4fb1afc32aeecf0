package jwt

import "errors"

var (
	// ErrTokenMissing no token in the request
	ErrTokenMissing = errors.New("jwt: token missing")

	// ErrTokenInvalid malformed token or failed validation
	ErrTokenInvalid = errors.New("jwt: token invalid")

	// ErrTokenExpired token is past exp
	ErrTokenExpired = errors.New("jwt: token expired")

	// ErrTokenNotYetValid token is before nbf
	ErrTokenNotYetValid = errors.New("jwt: token not yet valid")

	// ErrInvalidSignature signature does not match
	ErrInvalidSignature = errors.New("jwt: invalid signature")

	// ErrSecretEmpty no signing key configured
	ErrSecretEmpty = errors.New("jwt: secret is empty")

	// ErrAlgorithmNotSupported unknown signing algorithm
	ErrAlgorithmNotSupported = errors.New("jwt: algorithm not supported")
)
