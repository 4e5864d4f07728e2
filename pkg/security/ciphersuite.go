package security

import "fmt"

// DefaultCipherSuiteID is cipher suite 3: RAKP-HMAC-SHA1, HMAC-SHA1-96 and
// AES-CBC-128. Every IPMI v2.0 BMC is required to support it.
const DefaultCipherSuiteID = 3

// Cipher suite record tags used by Get Channel Cipher Suites.
const (
	recordStandard = 0xC0
	recordOEM      = 0xC1

	tagMask            = 0xC0
	tagIntegrity       = 0x40
	tagConfidentiality = 0x80
	algorithmMask      = 0x3F
)

// CipherSuiteInfo describes a cipher suite as advertised by a BMC. It only
// names the algorithms, so suites this package cannot run (for example xRC4)
// can still be listed.
type CipherSuiteInfo struct {
	// ID is the cipher suite ID.
	ID uint8
	// OEM is true for OEM cipher suite records.
	OEM bool
	// IANA is the OEM enterprise number of an OEM record.
	IANA uint32

	Authentication  AuthenticationCode
	Integrity       IntegrityCode
	Confidentiality ConfidentialityCode
}

// String returns a one-line description of the suite.
func (c CipherSuiteInfo) String() string {
	return fmt.Sprintf("%d: %s/%s/%s", c.ID, c.Authentication, c.Integrity, c.Confidentiality)
}

// Supported reports whether NewCipherSuite would accept the suite.
func (c CipherSuiteInfo) Supported() bool {
	_, err := NewCipherSuite(c)
	return err == nil
}

// CipherSuite binds the three algorithms negotiated for a session. The
// algorithm codes never change after construction; the keyed algorithm
// instances belong to exactly one session.
type CipherSuite struct {
	info CipherSuiteInfo

	auth            Authentication
	integrity       Integrity
	confidentiality Confidentiality
}

// NewCipherSuite builds the algorithm instances for info. It fails for
// undefined or unsupported algorithm codes.
func NewCipherSuite(info CipherSuiteInfo) (*CipherSuite, error) {
	auth, err := NewAuthentication(info.Authentication)
	if err != nil {
		return nil, fmt.Errorf("authentication %s: %w", info.Authentication, err)
	}
	integrity, err := NewIntegrity(info.Integrity)
	if err != nil {
		return nil, fmt.Errorf("integrity %s: %w", info.Integrity, err)
	}
	confidentiality, err := NewConfidentiality(info.Confidentiality)
	if err != nil {
		return nil, fmt.Errorf("confidentiality %s: %w", info.Confidentiality, err)
	}

	return &CipherSuite{
		info:            info,
		auth:            auth,
		integrity:       integrity,
		confidentiality: confidentiality,
	}, nil
}

// MustCipherSuite is like NewCipherSuite but panics on error. It is meant for
// package-level suites with known-good codes.
func MustCipherSuite(info CipherSuiteInfo) *CipherSuite {
	cs, err := NewCipherSuite(info)
	if err != nil {
		panic(err)
	}
	return cs
}

// DefaultCipherSuite returns a fresh instance of cipher suite 3.
func DefaultCipherSuite() *CipherSuite {
	return MustCipherSuite(CipherSuiteInfo{
		ID:              DefaultCipherSuiteID,
		Authentication:  AuthRAKPHMACSHA1,
		Integrity:       IntegrityHMACSHA196,
		Confidentiality: ConfidentialityAESCBC128,
	})
}

// EmptyCipherSuite returns suite 0 (no authentication, integrity or
// confidentiality), used for session-less messages.
func EmptyCipherSuite() *CipherSuite {
	return MustCipherSuite(CipherSuiteInfo{})
}

// Clone returns a suite with the same codes and fresh, unkeyed algorithm
// instances.
func (c *CipherSuite) Clone() *CipherSuite {
	return MustCipherSuite(c.info)
}

// InitializeAlgorithms keys the integrity and confidentiality algorithms
// with the session integrity key.
func (c *CipherSuite) InitializeAlgorithms(sik []byte) error {
	if err := c.integrity.Initialize(sik); err != nil {
		return fmt.Errorf("integrity: %w", err)
	}
	if err := c.confidentiality.Initialize(sik, c.auth); err != nil {
		return fmt.Errorf("confidentiality: %w", err)
	}
	return nil
}

// ID returns the cipher suite ID.
func (c *CipherSuite) ID() uint8 { return c.info.ID }

// Info returns the algorithm codes of the suite.
func (c *CipherSuite) Info() CipherSuiteInfo { return c.info }

// Authentication returns the authentication algorithm.
func (c *CipherSuite) Authentication() Authentication { return c.auth }

// Integrity returns the integrity algorithm.
func (c *CipherSuite) Integrity() Integrity { return c.integrity }

// Confidentiality returns the confidentiality algorithm.
func (c *CipherSuite) Confidentiality() Confidentiality { return c.confidentiality }

// String returns a one-line description of the suite.
func (c *CipherSuite) String() string { return c.info.String() }

// ParseCipherSuites parses the cipher suite record data returned by one or
// more Get Channel Cipher Suites responses (IPMI v2.0 Section 22.15.2).
//
// Each record starts with 0xC0 followed by the suite ID, or 0xC1 followed by
// the suite ID and a 3-byte OEM IANA. The authentication algorithm byte comes
// next, then integrity (0x40|code) and confidentiality (0x80|code) bytes up
// to the next record start. A suite without an integrity or confidentiality
// byte gets the "none" algorithm.
func ParseCipherSuites(data []byte) ([]CipherSuiteInfo, error) {
	var suites []CipherSuiteInfo

	offset := 0
	for offset < len(data) {
		var info CipherSuiteInfo

		switch data[offset] {
		case recordStandard:
			if offset+2 >= len(data) {
				return suites, ErrMalformedRecord
			}
			info.ID = data[offset+1]
			offset += 2
		case recordOEM:
			if offset+5 >= len(data) {
				return suites, ErrMalformedRecord
			}
			info.ID = data[offset+1]
			info.OEM = true
			info.IANA = uint32(data[offset+2]) | uint32(data[offset+3])<<8 | uint32(data[offset+4])<<16
			offset += 5
		default:
			return suites, fmt.Errorf("%w: unexpected start byte 0x%02x at %d", ErrMalformedRecord, data[offset], offset)
		}

		info.Authentication = AuthenticationCode(data[offset] & algorithmMask)
		offset++

		for offset < len(data) && data[offset] != recordStandard && data[offset] != recordOEM {
			b := data[offset]
			switch b & tagMask {
			case tagIntegrity:
				info.Integrity = IntegrityCode(b & algorithmMask)
			case tagConfidentiality:
				info.Confidentiality = ConfidentialityCode(b & algorithmMask)
			}
			offset++
		}

		suites = append(suites, info)
	}

	return suites, nil
}

// EncodeCipherSuites serializes suites into Get Channel Cipher Suites
// record data, the inverse of ParseCipherSuites. "None" integrity and
// confidentiality algorithms are written explicitly.
func EncodeCipherSuites(suites []CipherSuiteInfo) []byte {
	var b []byte
	for _, s := range suites {
		if s.OEM {
			b = append(b, recordOEM, s.ID, uint8(s.IANA), uint8(s.IANA>>8), uint8(s.IANA>>16))
		} else {
			b = append(b, recordStandard, s.ID)
		}
		b = append(b,
			uint8(s.Authentication)&algorithmMask,
			tagIntegrity|uint8(s.Integrity)&algorithmMask,
			tagConfidentiality|uint8(s.Confidentiality)&algorithmMask,
		)
	}
	return b
}

// StandardCipherSuites lists the cipher suite IDs 0 through 17 defined by
// IPMI v2.0 Table 22-20 and SHA-256 errata.
var StandardCipherSuites = []CipherSuiteInfo{
	{ID: 0, Authentication: AuthRAKPNone, Integrity: IntegrityNone, Confidentiality: ConfidentialityNone},
	{ID: 1, Authentication: AuthRAKPHMACSHA1, Integrity: IntegrityNone, Confidentiality: ConfidentialityNone},
	{ID: 2, Authentication: AuthRAKPHMACSHA1, Integrity: IntegrityHMACSHA196, Confidentiality: ConfidentialityNone},
	{ID: 3, Authentication: AuthRAKPHMACSHA1, Integrity: IntegrityHMACSHA196, Confidentiality: ConfidentialityAESCBC128},
	{ID: 4, Authentication: AuthRAKPHMACSHA1, Integrity: IntegrityHMACSHA196, Confidentiality: ConfidentialityXRC4128},
	{ID: 5, Authentication: AuthRAKPHMACSHA1, Integrity: IntegrityHMACSHA196, Confidentiality: ConfidentialityXRC440},
	{ID: 6, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityNone, Confidentiality: ConfidentialityNone},
	{ID: 7, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityHMACMD5128, Confidentiality: ConfidentialityNone},
	{ID: 8, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityHMACMD5128, Confidentiality: ConfidentialityAESCBC128},
	{ID: 9, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityHMACMD5128, Confidentiality: ConfidentialityXRC4128},
	{ID: 10, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityHMACMD5128, Confidentiality: ConfidentialityXRC440},
	{ID: 11, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityMD5128, Confidentiality: ConfidentialityNone},
	{ID: 12, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityMD5128, Confidentiality: ConfidentialityAESCBC128},
	{ID: 13, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityMD5128, Confidentiality: ConfidentialityXRC4128},
	{ID: 14, Authentication: AuthRAKPHMACMD5, Integrity: IntegrityMD5128, Confidentiality: ConfidentialityXRC440},
	{ID: 15, Authentication: AuthRAKPHMACSHA256, Integrity: IntegrityNone, Confidentiality: ConfidentialityNone},
	{ID: 16, Authentication: AuthRAKPHMACSHA256, Integrity: IntegrityHMACSHA256128, Confidentiality: ConfidentialityNone},
	{ID: 17, Authentication: AuthRAKPHMACSHA256, Integrity: IntegrityHMACSHA256128, Confidentiality: ConfidentialityAESCBC128},
}

// LookupCipherSuite returns the standard suite with the given ID.
func LookupCipherSuite(id uint8) (CipherSuiteInfo, bool) {
	if int(id) < len(StandardCipherSuites) {
		return StandardCipherSuites[id], true
	}
	return CipherSuiteInfo{}, false
}
