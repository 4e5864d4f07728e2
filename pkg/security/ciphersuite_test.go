package security

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"errors"
	"testing"
)

func TestNewAuthentication(t *testing.T) {
	tests := []struct {
		code   AuthenticationCode
		keyLen int
		icvLen int
	}{
		{AuthRAKPNone, 0, 0},
		{AuthRAKPHMACSHA1, 20, 12},
		{AuthRAKPHMACMD5, 16, 16},
		{AuthRAKPHMACSHA256, 32, 16},
	}
	for _, tc := range tests {
		a, err := NewAuthentication(tc.code)
		if err != nil {
			t.Fatalf("NewAuthentication(%s) error = %v", tc.code, err)
		}
		if a.Code() != tc.code {
			t.Errorf("Code() = %s, want %s", a.Code(), tc.code)
		}
		if a.KeyLength() != tc.keyLen {
			t.Errorf("%s KeyLength() = %d, want %d", tc.code, a.KeyLength(), tc.keyLen)
		}
		if a.ICVLength() != tc.icvLen {
			t.Errorf("%s ICVLength() = %d, want %d", tc.code, a.ICVLength(), tc.icvLen)
		}
	}

	if _, err := NewAuthentication(0x04); !errors.Is(err, ErrInvalidAlgorithm) {
		t.Errorf("NewAuthentication(0x04) error = %v, want %v", err, ErrInvalidAlgorithm)
	}
}

func TestRAKPHMACSHA1(t *testing.T) {
	a, _ := NewAuthentication(AuthRAKPHMACSHA1)
	password := []byte("calvin")
	base := []byte("key exchange base")

	mac := hmac.New(sha1.New, password)
	mac.Write(base)
	want := mac.Sum(nil)

	got := a.KeyExchangeAuthCode(base, password)
	if !bytes.Equal(got, want) {
		t.Errorf("KeyExchangeAuthCode() = %x, want %x", got, want)
	}
	if !a.CheckKeyExchangeAuthCode(base, want, password) {
		t.Error("CheckKeyExchangeAuthCode() = false, want true")
	}
	if a.CheckKeyExchangeAuthCode(base, want, []byte("wrong")) {
		t.Error("CheckKeyExchangeAuthCode() accepted a wrong password")
	}

	icv := a.IntegrityCheckValue(base, testSIK)
	if len(icv) != 12 {
		t.Fatalf("IntegrityCheckValue() length = %d, want 12", len(icv))
	}
	if !a.CheckIntegrityCheckValue(base, icv, testSIK) {
		t.Error("CheckIntegrityCheckValue() = false, want true")
	}
}

func TestRAKPNoneAlwaysSucceeds(t *testing.T) {
	a, _ := NewAuthentication(AuthRAKPNone)
	if !a.CheckKeyExchangeAuthCode([]byte("x"), []byte("garbage"), nil) {
		t.Error("CheckKeyExchangeAuthCode() = false, want true")
	}
	if !a.CheckIntegrityCheckValue([]byte("x"), nil, nil) {
		t.Error("CheckIntegrityCheckValue() = false, want true")
	}
}

func TestNewCipherSuite(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		cs := DefaultCipherSuite()
		if cs.ID() != 3 {
			t.Errorf("ID() = %d, want 3", cs.ID())
		}
		if cs.Authentication().Code() != AuthRAKPHMACSHA1 ||
			cs.Integrity().Code() != IntegrityHMACSHA196 ||
			cs.Confidentiality().Code() != ConfidentialityAESCBC128 {
			t.Errorf("DefaultCipherSuite() = %s", cs)
		}
	})

	t.Run("unsupported rejected at construction", func(t *testing.T) {
		info, _ := LookupCipherSuite(4)
		if _, err := NewCipherSuite(info); !errors.Is(err, ErrUnsupportedAlgorithm) {
			t.Errorf("NewCipherSuite(4) error = %v, want %v", err, ErrUnsupportedAlgorithm)
		}
		if info.Supported() {
			t.Error("Supported() = true for xRC4 suite")
		}
	})

	t.Run("clone has independent keys", func(t *testing.T) {
		cs := DefaultCipherSuite()
		if err := cs.InitializeAlgorithms(testSIK); err != nil {
			t.Fatalf("InitializeAlgorithms() error = %v", err)
		}
		clone := cs.Clone()
		if clone.Info() != cs.Info() {
			t.Errorf("Clone().Info() = %v, want %v", clone.Info(), cs.Info())
		}
		if _, err := clone.Integrity().GenerateAuthCode([]byte{0, 0, 0, 7}); !errors.Is(err, ErrNotInitialized) {
			t.Errorf("clone GenerateAuthCode() error = %v, want %v", err, ErrNotInitialized)
		}
	})
}

func TestParseCipherSuites(t *testing.T) {
	// Records as returned by a BMC supporting suites 0, 1, 2, 3 and 17,
	// plus an OEM suite 0x80 with IANA 0x0002A2.
	data := []byte{
		0xC0, 0x00, 0x00, 0x40, 0x80,
		0xC0, 0x01, 0x01, 0x40, 0x80,
		0xC0, 0x02, 0x01, 0x41, 0x80,
		0xC0, 0x03, 0x01, 0x41, 0x81,
		0xC0, 0x11, 0x03, 0x44, 0x81,
		0xC1, 0x80, 0xA2, 0x02, 0x00, 0x01, 0x41, 0x81,
	}

	suites, err := ParseCipherSuites(data)
	if err != nil {
		t.Fatalf("ParseCipherSuites() error = %v", err)
	}
	if len(suites) != 6 {
		t.Fatalf("ParseCipherSuites() returned %d suites, want 6", len(suites))
	}

	for i, id := range []uint8{0, 1, 2, 3, 17} {
		want, _ := LookupCipherSuite(id)
		if suites[i] != want {
			t.Errorf("suite[%d] = %v, want %v", i, suites[i], want)
		}
	}

	oem := suites[5]
	if !oem.OEM || oem.ID != 0x80 || oem.IANA != 0x0002A2 {
		t.Errorf("OEM suite = %+v", oem)
	}
	if oem.Authentication != AuthRAKPHMACSHA1 || oem.Integrity != IntegrityHMACSHA196 ||
		oem.Confidentiality != ConfidentialityAESCBC128 {
		t.Errorf("OEM suite algorithms = %v", oem)
	}

	if got := EncodeCipherSuites(suites); !bytes.Equal(got, data) {
		t.Errorf("EncodeCipherSuites() = %x, want %x", got, data)
	}
}

func TestParseCipherSuitesMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated standard", []byte{0xC0, 0x03}},
		{"truncated OEM", []byte{0xC1, 0x80, 0xA2, 0x02}},
		{"bad start byte", []byte{0x01, 0x03, 0x01}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseCipherSuites(tc.data); !errors.Is(err, ErrMalformedRecord) {
				t.Errorf("ParseCipherSuites() error = %v, want %v", err, ErrMalformedRecord)
			}
		})
	}
}
