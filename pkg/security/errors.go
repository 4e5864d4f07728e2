package security

import "errors"

// Security suite errors.
var (
	// ErrInvalidAlgorithm is returned for an algorithm code IPMI does not define.
	ErrInvalidAlgorithm = errors.New("security: invalid algorithm code")

	// ErrUnsupportedAlgorithm is returned for defined algorithms this package
	// does not implement (MD5-128 integrity, xRC4 confidentiality).
	ErrUnsupportedAlgorithm = errors.New("security: unsupported algorithm")

	// ErrNotInitialized is returned when a keyed operation runs before the
	// algorithm received its session integrity key.
	ErrNotInitialized = errors.New("security: algorithm not initialized")

	// ErrInvalidKey is returned when an empty or malformed key is supplied.
	ErrInvalidKey = errors.New("security: invalid key")

	// ErrDecryptFailed is returned when a ciphertext cannot be decrypted or
	// its confidentiality trailer is malformed.
	ErrDecryptFailed = errors.New("security: decryption failed")

	// ErrMalformedRecord is returned when cipher suite record data is truncated.
	ErrMalformedRecord = errors.New("security: malformed cipher suite record")
)
