// Package security implements the IPMI v2.0 RMCP+ security suite: the
// authentication, integrity and confidentiality algorithms negotiated for a
// session, and the cipher suites that bundle them.
//
// Algorithm instances are built eagerly from their numeric codes. Keyed
// instances (integrity and confidentiality after InitializeAlgorithms) carry
// per-session state and must not be shared between sessions; use
// CipherSuite.Clone to obtain fresh instances for a new session.
//
// References:
//   - IPMI v2.0 Section 13.28: Authentication, Integrity and Confidentiality Algorithm Numbers
//   - IPMI v2.0 Section 13.29: Confidentiality Algorithms (AES-CBC-128)
//   - IPMI v2.0 Section 13.31: RMCP+ Authenticated Key-Exchange Protocol (RAKP)
//   - IPMI v2.0 Section 22.15.2: Cipher Suite IDs
package security

import "fmt"

// AuthenticationCode identifies an RAKP authentication algorithm.
type AuthenticationCode uint8

const (
	// AuthRAKPNone performs no key exchange authentication.
	AuthRAKPNone AuthenticationCode = 0x00
	// AuthRAKPHMACSHA1 is RAKP-HMAC-SHA1.
	AuthRAKPHMACSHA1 AuthenticationCode = 0x01
	// AuthRAKPHMACMD5 is RAKP-HMAC-MD5.
	AuthRAKPHMACMD5 AuthenticationCode = 0x02
	// AuthRAKPHMACSHA256 is RAKP-HMAC-SHA256.
	AuthRAKPHMACSHA256 AuthenticationCode = 0x03
)

// String returns the IPMI name of the authentication algorithm.
func (c AuthenticationCode) String() string {
	switch c {
	case AuthRAKPNone:
		return "RAKP-none"
	case AuthRAKPHMACSHA1:
		return "RAKP-HMAC-SHA1"
	case AuthRAKPHMACMD5:
		return "RAKP-HMAC-MD5"
	case AuthRAKPHMACSHA256:
		return "RAKP-HMAC-SHA256"
	default:
		return fmt.Sprintf("AuthenticationCode(0x%02x)", uint8(c))
	}
}

// IsValid returns true if the code is defined by IPMI v2.0.
func (c AuthenticationCode) IsValid() bool {
	return c <= AuthRAKPHMACSHA256
}

// IntegrityCode identifies a per-message integrity algorithm.
type IntegrityCode uint8

const (
	// IntegrityNone disables message integrity.
	IntegrityNone IntegrityCode = 0x00
	// IntegrityHMACSHA196 is HMAC-SHA1 truncated to 96 bits.
	IntegrityHMACSHA196 IntegrityCode = 0x01
	// IntegrityHMACMD5128 is HMAC-MD5 (128 bits).
	IntegrityHMACMD5128 IntegrityCode = 0x02
	// IntegrityMD5128 is the keyed MD5-128 digest. Not supported.
	IntegrityMD5128 IntegrityCode = 0x03
	// IntegrityHMACSHA256128 is HMAC-SHA256 truncated to 128 bits.
	IntegrityHMACSHA256128 IntegrityCode = 0x04
)

// String returns the IPMI name of the integrity algorithm.
func (c IntegrityCode) String() string {
	switch c {
	case IntegrityNone:
		return "none"
	case IntegrityHMACSHA196:
		return "HMAC-SHA1-96"
	case IntegrityHMACMD5128:
		return "HMAC-MD5-128"
	case IntegrityMD5128:
		return "MD5-128"
	case IntegrityHMACSHA256128:
		return "HMAC-SHA256-128"
	default:
		return fmt.Sprintf("IntegrityCode(0x%02x)", uint8(c))
	}
}

// IsValid returns true if the code is defined by IPMI v2.0.
func (c IntegrityCode) IsValid() bool {
	return c <= IntegrityHMACSHA256128
}

// ConfidentialityCode identifies a payload encryption algorithm.
type ConfidentialityCode uint8

const (
	// ConfidentialityNone sends payloads in clear text.
	ConfidentialityNone ConfidentialityCode = 0x00
	// ConfidentialityAESCBC128 is AES-128 in CBC mode.
	ConfidentialityAESCBC128 ConfidentialityCode = 0x01
	// ConfidentialityXRC4128 is xRC4 with a 128-bit key. Not supported.
	ConfidentialityXRC4128 ConfidentialityCode = 0x02
	// ConfidentialityXRC440 is xRC4 with a 40-bit key. Not supported.
	ConfidentialityXRC440 ConfidentialityCode = 0x03
)

// String returns the IPMI name of the confidentiality algorithm.
func (c ConfidentialityCode) String() string {
	switch c {
	case ConfidentialityNone:
		return "none"
	case ConfidentialityAESCBC128:
		return "AES-CBC-128"
	case ConfidentialityXRC4128:
		return "xRC4-128"
	case ConfidentialityXRC440:
		return "xRC4-40"
	default:
		return fmt.Sprintf("ConfidentialityCode(0x%02x)", uint8(c))
	}
}

// IsValid returns true if the code is defined by IPMI v2.0.
func (c ConfidentialityCode) IsValid() bool {
	return c <= ConfidentialityXRC440
}
