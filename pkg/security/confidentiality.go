package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"
	"sync"
)

// Confidentiality is a payload encryption algorithm. After Initialize it
// holds the cipher key of one session.
type Confidentiality interface {
	// Code returns the IPMI algorithm number.
	Code() ConfidentialityCode

	// Initialize derives the cipher key from the session integrity key using
	// the HMAC of the negotiated authentication algorithm.
	Initialize(sik []byte, auth Authentication) error

	// Encrypt returns the confidentiality payload for plaintext.
	Encrypt(plaintext []byte) ([]byte, error)

	// Decrypt reverses Encrypt.
	Decrypt(data []byte) ([]byte, error)

	// Overhead returns how many bytes Encrypt adds to a payload of the given
	// length, so that framers can size buffers before encrypting.
	Overhead(payloadLen int) int
}

// NewConfidentiality returns a fresh, uninitialized confidentiality algorithm
// for code.
func NewConfidentiality(code ConfidentialityCode) (Confidentiality, error) {
	switch code {
	case ConfidentialityNone:
		return confidentialityNone{}, nil
	case ConfidentialityAESCBC128:
		return newAESCBC128(rand.Reader), nil
	case ConfidentialityXRC4128, ConfidentialityXRC440:
		return nil, ErrUnsupportedAlgorithm
	default:
		return nil, ErrInvalidAlgorithm
	}
}

type confidentialityNone struct{}

func (confidentialityNone) Code() ConfidentialityCode { return ConfidentialityNone }
func (confidentialityNone) Initialize(sik []byte, auth Authentication) error { return nil }
func (confidentialityNone) Overhead(payloadLen int) int { return 0 }

func (confidentialityNone) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	return out, nil
}

func (confidentialityNone) Decrypt(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// AES-CBC-128 parameters (IPMI v2.0 Section 13.29).
const (
	aesKeySize   = 16
	aesBlockSize = aes.BlockSize
)

// aesCBC128 implements AES-CBC-128 with the IPMI confidentiality trailer:
// plaintext ‖ 0x01 0x02 … pad ‖ pad, encrypted under a fresh random IV that
// is prepended to the ciphertext.
type aesCBC128 struct {
	rand io.Reader

	mu    sync.RWMutex
	block cipher.Block
}

func newAESCBC128(r io.Reader) *aesCBC128 {
	return &aesCBC128{rand: r}
}

func (a *aesCBC128) Code() ConfidentialityCode { return ConfidentialityAESCBC128 }

func (a *aesCBC128) Initialize(sik []byte, auth Authentication) error {
	if len(sik) == 0 {
		return ErrInvalidKey
	}
	if auth == nil || auth.Hash() == nil {
		return ErrUnsupportedAlgorithm
	}

	k2 := hmacSum(auth.Hash(), sik, const2[:])
	block, err := aes.NewCipher(k2[:aesKeySize])
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.block = block
	a.mu.Unlock()
	return nil
}

// aesPadLength returns the number of pad bytes for a payload of length n,
// not counting the pad length byte itself.
func aesPadLength(n int) int {
	return (aesBlockSize - (n+1)%aesBlockSize) % aesBlockSize
}

func (a *aesCBC128) Overhead(payloadLen int) int {
	return aesBlockSize + aesPadLength(payloadLen) + 1
}

func (a *aesCBC128) Encrypt(plaintext []byte) ([]byte, error) {
	a.mu.RLock()
	block := a.block
	a.mu.RUnlock()
	if block == nil {
		return nil, ErrNotInitialized
	}

	pad := aesPadLength(len(plaintext))
	out := make([]byte, aesBlockSize+len(plaintext)+pad+1)

	iv := out[:aesBlockSize]
	if _, err := io.ReadFull(a.rand, iv); err != nil {
		return nil, err
	}

	body := out[aesBlockSize:]
	copy(body, plaintext)
	for i := 0; i < pad; i++ {
		body[len(plaintext)+i] = byte(i + 1)
	}
	body[len(body)-1] = byte(pad)

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, body)
	return out, nil
}

func (a *aesCBC128) Decrypt(data []byte) ([]byte, error) {
	a.mu.RLock()
	block := a.block
	a.mu.RUnlock()
	if block == nil {
		return nil, ErrNotInitialized
	}

	if len(data) < 2*aesBlockSize || len(data)%aesBlockSize != 0 {
		return nil, ErrDecryptFailed
	}

	iv := data[:aesBlockSize]
	plain := make([]byte, len(data)-aesBlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data[aesBlockSize:])

	pad := int(plain[len(plain)-1])
	if pad >= aesBlockSize || pad+1 > len(plain) {
		return nil, ErrDecryptFailed
	}
	return plain[:len(plain)-pad-1], nil
}
