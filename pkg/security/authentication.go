package security

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// Authentication is an RAKP authentication algorithm. It computes the Key
// Exchange Authentication Codes carried by RAKP messages 2 and 3, the session
// integrity key, and the Integrity Check Value of RAKP message 4.
//
// Implementations are stateless and safe for concurrent use.
type Authentication interface {
	// Code returns the IPMI algorithm number.
	Code() AuthenticationCode

	// Hash returns the hash constructor backing the HMAC, or nil for RAKP-none.
	Hash() func() hash.Hash

	// KeyLength returns the length of the session integrity key in bytes.
	KeyLength() int

	// ICVLength returns the length of the RAKP message 4 Integrity Check Value.
	ICVLength() int

	// KeyExchangeAuthCode computes HMAC(key, base).
	KeyExchangeAuthCode(base, key []byte) []byte

	// CheckKeyExchangeAuthCode reports whether code matches HMAC(key, base).
	CheckKeyExchangeAuthCode(base, code, key []byte) bool

	// IntegrityCheckValue computes HMAC(sik, base) truncated to ICVLength.
	IntegrityCheckValue(base, sik []byte) []byte

	// CheckIntegrityCheckValue reports whether icv matches IntegrityCheckValue(base, sik).
	CheckIntegrityCheckValue(base, icv, sik []byte) bool
}

// NewAuthentication returns the authentication algorithm for code.
func NewAuthentication(code AuthenticationCode) (Authentication, error) {
	switch code {
	case AuthRAKPNone:
		return rakpNone{}, nil
	case AuthRAKPHMACSHA1:
		return &rakpHMAC{code: code, hash: sha1.New, keyLen: sha1.Size, icvLen: 12}, nil
	case AuthRAKPHMACMD5:
		return &rakpHMAC{code: code, hash: md5.New, keyLen: md5.Size, icvLen: 16}, nil
	case AuthRAKPHMACSHA256:
		return &rakpHMAC{code: code, hash: sha256.New, keyLen: sha256.Size, icvLen: 16}, nil
	default:
		return nil, ErrInvalidAlgorithm
	}
}

// rakpNone performs no authentication; every check succeeds.
type rakpNone struct{}

func (rakpNone) Code() AuthenticationCode { return AuthRAKPNone }
func (rakpNone) Hash() func() hash.Hash { return nil }
func (rakpNone) KeyLength() int { return 0 }
func (rakpNone) ICVLength() int { return 0 }
func (rakpNone) KeyExchangeAuthCode(base, key []byte) []byte { return nil }
func (rakpNone) CheckKeyExchangeAuthCode(base, code, key []byte) bool { return true }
func (rakpNone) IntegrityCheckValue(base, sik []byte) []byte { return nil }
func (rakpNone) CheckIntegrityCheckValue(base, icv, sik []byte) bool { return true }

// rakpHMAC implements the RAKP-HMAC-* family.
type rakpHMAC struct {
	code   AuthenticationCode
	hash   func() hash.Hash
	keyLen int
	icvLen int
}

func (a *rakpHMAC) Code() AuthenticationCode { return a.code }
func (a *rakpHMAC) Hash() func() hash.Hash   { return a.hash }
func (a *rakpHMAC) KeyLength() int           { return a.keyLen }
func (a *rakpHMAC) ICVLength() int           { return a.icvLen }

func (a *rakpHMAC) KeyExchangeAuthCode(base, key []byte) []byte {
	return hmacSum(a.hash, key, base)
}

func (a *rakpHMAC) CheckKeyExchangeAuthCode(base, code, key []byte) bool {
	return HMACEqual(a.KeyExchangeAuthCode(base, key), code)
}

func (a *rakpHMAC) IntegrityCheckValue(base, sik []byte) []byte {
	return hmacSum(a.hash, sik, base)[:a.icvLen]
}

func (a *rakpHMAC) CheckIntegrityCheckValue(base, icv, sik []byte) bool {
	return HMACEqual(a.IntegrityCheckValue(base, sik), icv)
}
