package security

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
	"sync"
)

// Integrity is a per-message integrity algorithm. After Initialize it holds
// the derived key K1 of one session.
type Integrity interface {
	// Code returns the IPMI algorithm number.
	Code() IntegrityCode

	// AuthCodeLength returns the length of the AuthCode trailer in bytes.
	AuthCodeLength() int

	// Initialize derives K1 = HMAC(SIK, const1) and keys the algorithm with it.
	Initialize(sik []byte) error

	// GenerateAuthCode computes the AuthCode over base, the session message
	// from the authentication type byte up to and including the next header
	// byte of the integrity trailer.
	GenerateAuthCode(base []byte) ([]byte, error)

	// ValidateAuthCode reports whether code authenticates base.
	ValidateAuthCode(base, code []byte) (bool, error)
}

// NewIntegrity returns a fresh, uninitialized integrity algorithm for code.
func NewIntegrity(code IntegrityCode) (Integrity, error) {
	switch code {
	case IntegrityNone:
		return integrityNone{}, nil
	case IntegrityHMACSHA196:
		return &hmacIntegrity{code: code, hash: sha1.New, length: 12}, nil
	case IntegrityHMACMD5128:
		return &hmacIntegrity{code: code, hash: md5.New, length: 16}, nil
	case IntegrityHMACSHA256128:
		return &hmacIntegrity{code: code, hash: sha256.New, length: 16}, nil
	case IntegrityMD5128:
		return nil, ErrUnsupportedAlgorithm
	default:
		return nil, ErrInvalidAlgorithm
	}
}

type integrityNone struct{}

func (integrityNone) Code() IntegrityCode { return IntegrityNone }
func (integrityNone) AuthCodeLength() int { return 0 }
func (integrityNone) Initialize(sik []byte) error { return nil }
func (integrityNone) GenerateAuthCode(base []byte) ([]byte, error) { return nil, nil }
func (integrityNone) ValidateAuthCode(base, code []byte) (bool, error) {
	return len(code) == 0, nil
}

// hmacIntegrity implements HMAC-SHA1-96, HMAC-MD5-128 and HMAC-SHA256-128.
type hmacIntegrity struct {
	code   IntegrityCode
	hash   func() hash.Hash
	length int

	mu sync.RWMutex
	k1 []byte
}

func (i *hmacIntegrity) Code() IntegrityCode { return i.code }
func (i *hmacIntegrity) AuthCodeLength() int { return i.length }

func (i *hmacIntegrity) Initialize(sik []byte) error {
	if len(sik) == 0 {
		return ErrInvalidKey
	}
	k1 := hmacSum(i.hash, sik, const1[:])

	i.mu.Lock()
	i.k1 = k1
	i.mu.Unlock()
	return nil
}

func (i *hmacIntegrity) GenerateAuthCode(base []byte) ([]byte, error) {
	i.mu.RLock()
	k1 := i.k1
	i.mu.RUnlock()
	if k1 == nil {
		return nil, ErrNotInitialized
	}

	if len(base) >= 2 && base[len(base)-2] == 0 {
		base = injectIntegrityPad(base, i.length)
	}
	return hmacSum(i.hash, k1, base)[:i.length], nil
}

func (i *hmacIntegrity) ValidateAuthCode(base, code []byte) (bool, error) {
	expected, err := i.GenerateAuthCode(base)
	if err != nil {
		return false, err
	}
	return HMACEqual(expected, code), nil
}

// injectIntegrityPad rebuilds a MAC input whose trailer carries a zero pad
// length although the message is not 4-byte aligned. The last two bytes of
// base are the pad length and next header fields; 0xFF filler is inserted in
// front of them so that len(result)+authCodeLength is a multiple of four.
func injectIntegrityPad(base []byte, authCodeLength int) []byte {
	pad := 0
	if rem := (len(base) + authCodeLength) % 4; rem != 0 {
		pad = 4 - rem
	}
	if pad == 0 {
		return base
	}

	out := make([]byte, len(base)+pad)
	copy(out, base[:len(base)-2])
	for j := len(base) - 2; j < len(base)-2+pad; j++ {
		out[j] = 0xFF
	}
	out[len(out)-2] = byte(pad)
	out[len(out)-1] = base[len(base)-1]
	return out
}
