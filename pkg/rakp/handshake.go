package rakp

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/security"
)

// Config holds the console parameters of one RAKP exchange.
type Config struct {
	// Authentication is the negotiated RAKP algorithm.
	Authentication security.Authentication

	ConsoleSessionID uint32
	ManagedSessionID uint32

	Privilege      commands.PrivilegeLevel
	NameOnlyLookup bool
	Username       string
	Password       []byte
	// KG is the BMC key. Empty selects Password.
	KG []byte

	// Rand supplies the console random number. Defaults to crypto/rand.
	Rand io.Reader
}

// Handshake is the console side of a RAKP exchange, created once the Open
// Session Response has named the managed system session ID.
//
// The expected sequence is RAKP1, VerifyRAKP2, RAKP3, VerifyRAKP4. A
// Handshake is not safe for concurrent use.
type Handshake struct {
	KeyExchange

	auth     security.Authentication
	password []byte
	kg       []byte
	sik      []byte
}

// NewHandshake validates config and draws the console random number.
func NewHandshake(config Config) (*Handshake, error) {
	if config.Authentication == nil {
		return nil, security.ErrInvalidAlgorithm
	}
	if len(config.Username) > MaxUsernameLength {
		return nil, ErrUsernameTooLong
	}
	if len(config.Password) > MaxPasswordLength || len(config.KG) > MaxPasswordLength {
		return nil, ErrPasswordTooLong
	}

	r := config.Rand
	if r == nil {
		r = rand.Reader
	}

	rakp1 := RAKP1{Privilege: config.Privilege, NameOnlyLookup: config.NameOnlyLookup}
	h := &Handshake{
		KeyExchange: KeyExchange{
			ConsoleSessionID: config.ConsoleSessionID,
			ManagedSessionID: config.ManagedSessionID,
			Role:             rakp1.Role(),
			Username:         config.Username,
		},
		auth:     config.Authentication,
		password: append([]byte(nil), config.Password...),
		kg:       append([]byte(nil), config.KG...),
	}
	if _, err := io.ReadFull(r, h.ConsoleRandom[:]); err != nil {
		return nil, fmt.Errorf("rakp: console random: %w", err)
	}
	return h, nil
}

// RAKP1 returns RAKP message 1 for tag.
func (h *Handshake) RAKP1(tag uint8) *RAKP1 {
	return &RAKP1{
		Tag:              tag,
		ManagedSessionID: h.ManagedSessionID,
		ConsoleRandom:    h.ConsoleRandom,
		Privilege:        commands.PrivilegeLevel(h.Role & 0x0F),
		NameOnlyLookup:   h.Role&nameOnlyLookup != 0,
		Username:         h.Username,
	}
}

// VerifyRAKP2 checks RAKP message 2 and, on success, records the BMC random
// and GUID and derives the session integrity key.
func (h *Handshake) VerifyRAKP2(m *RAKP2) error {
	if err := m.Err(); err != nil {
		return err
	}
	if m.ConsoleSessionID != h.ConsoleSessionID {
		return ErrSessionIDMismatch
	}

	k := h.KeyExchange
	k.ManagedRandom = m.ManagedRandom
	k.ManagedGUID = m.ManagedGUID
	if !h.auth.CheckKeyExchangeAuthCode(k.RAKP2Base(), m.AuthCode, h.password) {
		return ErrInvalidAuthCode
	}

	h.KeyExchange = k
	h.sik = DeriveSIK(h.auth, &h.KeyExchange, h.kg, h.password)
	return nil
}

// RAKP3 returns RAKP message 3 for tag. Call after VerifyRAKP2.
func (h *Handshake) RAKP3(tag uint8) *RAKP3 {
	return &RAKP3{
		Tag:              tag,
		Status:           StatusNoErrors,
		ManagedSessionID: h.ManagedSessionID,
		AuthCode:         RAKP3AuthCode(h.auth, &h.KeyExchange, h.password),
	}
}

// SIK returns the session integrity key, nil before VerifyRAKP2 or for
// RAKP-none.
func (h *Handshake) SIK() []byte {
	return h.sik
}

// VerifyRAKP4 checks the status, console session ID and integrity check
// value of RAKP message 4.
func (h *Handshake) VerifyRAKP4(m *RAKP4) error {
	if err := m.Err(); err != nil {
		return err
	}
	if m.ConsoleSessionID != h.ConsoleSessionID {
		return ErrSessionIDMismatch
	}
	if !h.auth.CheckIntegrityCheckValue(h.ICVBase(), m.ICV, h.sik) {
		return ErrInvalidICV
	}
	return nil
}
