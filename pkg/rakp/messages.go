// Package rakp implements the RMCP+ session establishment messages (Open
// Session Request/Response and RAKP messages 1 through 4, IPMI v2.0 Section
// 13.17 to 13.23) and the key exchange computations behind them.
//
// Messages are plain values with Encode and Decode functions for both
// directions, so the same code serves the console and the BMC simulator.
package rakp

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/backkem/ipmi/pkg/commands"
	"github.com/backkem/ipmi/pkg/security"
)

// Fixed message sizes.
const (
	openSessionRequestSize  = 32
	openSessionResponseSize = 36
	statusOnlySize          = 8
	rakp1FixedSize          = 28
	rakp2FixedSize          = 40
	rakp3FixedSize          = 8
	rakp4FixedSize          = 8
)

// Algorithm payload types within Open Session messages.
const (
	payloadAuthentication  = 0x00
	payloadIntegrity       = 0x01
	payloadConfidentiality = 0x02

	algorithmPayloadLength = 0x08
)

// nameOnlyLookup is the role bit selecting username-only user lookup.
const nameOnlyLookup = 0x10

// OpenSessionRequest proposes a cipher suite and privilege for a new
// session.
type OpenSessionRequest struct {
	Tag uint8
	// Privilege is the requested maximum privilege; 0 lets the BMC choose
	// the highest level matching the proposed algorithms.
	Privilege        commands.PrivilegeLevel
	ConsoleSessionID uint32
	Suite            security.CipherSuiteInfo
}

// Encode serializes the request payload.
func (r *OpenSessionRequest) Encode() []byte {
	b := make([]byte, openSessionRequestSize)
	b[0] = r.Tag
	b[1] = uint8(r.Privilege) & 0x0F
	binary.LittleEndian.PutUint32(b[4:], r.ConsoleSessionID)
	putAlgorithm(b[8:], payloadAuthentication, uint8(r.Suite.Authentication))
	putAlgorithm(b[16:], payloadIntegrity, uint8(r.Suite.Integrity))
	putAlgorithm(b[24:], payloadConfidentiality, uint8(r.Suite.Confidentiality))
	return b
}

// DecodeOpenSessionRequest parses an Open Session Request payload.
func DecodeOpenSessionRequest(data []byte) (*OpenSessionRequest, error) {
	if len(data) < openSessionRequestSize {
		return nil, ErrMessageTooShort
	}
	return &OpenSessionRequest{
		Tag:              data[0],
		Privilege:        commands.PrivilegeLevel(data[1] & 0x0F),
		ConsoleSessionID: binary.LittleEndian.Uint32(data[4:]),
		Suite:            algorithmsOf(data[8:]),
	}, nil
}

// OpenSessionResponse is the BMC's answer to an Open Session Request.
type OpenSessionResponse struct {
	Tag              uint8
	Status           StatusCode
	Privilege        commands.PrivilegeLevel
	ConsoleSessionID uint32
	ManagedSessionID uint32
	// Suite holds the selected algorithms; ID is not set.
	Suite security.CipherSuiteInfo
}

// Err returns a *StatusError when the BMC rejected the request.
func (r *OpenSessionResponse) Err() error {
	return statusErr("open session", r.Status)
}

// Encode serializes the response payload. A rejection carries only the
// first eight bytes.
func (r *OpenSessionResponse) Encode() []byte {
	size := openSessionResponseSize
	if r.Status != StatusNoErrors {
		size = statusOnlySize
	}
	b := make([]byte, size)
	b[0] = r.Tag
	b[1] = uint8(r.Status)
	b[2] = uint8(r.Privilege) & 0x0F
	binary.LittleEndian.PutUint32(b[4:], r.ConsoleSessionID)
	if r.Status != StatusNoErrors {
		return b
	}
	binary.LittleEndian.PutUint32(b[8:], r.ManagedSessionID)
	putAlgorithm(b[12:], payloadAuthentication, uint8(r.Suite.Authentication))
	putAlgorithm(b[20:], payloadIntegrity, uint8(r.Suite.Integrity))
	putAlgorithm(b[28:], payloadConfidentiality, uint8(r.Suite.Confidentiality))
	return b
}

// DecodeOpenSessionResponse parses an Open Session Response payload. A
// rejected response may be truncated after the console session ID.
func DecodeOpenSessionResponse(data []byte) (*OpenSessionResponse, error) {
	if len(data) < statusOnlySize {
		return nil, ErrMessageTooShort
	}
	r := &OpenSessionResponse{
		Tag:              data[0],
		Status:           StatusCode(data[1]),
		Privilege:        commands.PrivilegeLevel(data[2] & 0x0F),
		ConsoleSessionID: binary.LittleEndian.Uint32(data[4:]),
	}
	if r.Status != StatusNoErrors {
		return r, nil
	}
	if len(data) < openSessionResponseSize {
		return nil, ErrMessageTooShort
	}
	r.ManagedSessionID = binary.LittleEndian.Uint32(data[8:])
	r.Suite = algorithmsOf(data[12:])
	return r, nil
}

// Matches reports whether the BMC selected the proposed algorithms.
func (r *OpenSessionResponse) Matches(suite security.CipherSuiteInfo) bool {
	return r.Suite.Authentication == suite.Authentication &&
		r.Suite.Integrity == suite.Integrity &&
		r.Suite.Confidentiality == suite.Confidentiality
}

func putAlgorithm(b []byte, payloadType, algorithm uint8) {
	b[0] = payloadType
	b[3] = algorithmPayloadLength
	b[4] = algorithm & 0x3F
}

// algorithmsOf reads the three algorithm payload records starting at b.
func algorithmsOf(b []byte) security.CipherSuiteInfo {
	return security.CipherSuiteInfo{
		Authentication:  security.AuthenticationCode(b[4] & 0x3F),
		Integrity:       security.IntegrityCode(b[12] & 0x3F),
		Confidentiality: security.ConfidentialityCode(b[20] & 0x3F),
	}
}

// RAKP1 starts the key exchange.
type RAKP1 struct {
	Tag              uint8
	ManagedSessionID uint32
	ConsoleRandom    [RandomLength]byte
	Privilege        commands.PrivilegeLevel
	// NameOnlyLookup makes the BMC look the user up by name alone instead of
	// by name and privilege.
	NameOnlyLookup bool
	Username       string
}

// Role returns the requested maximum privilege byte as sent on the wire. It
// is part of every key exchange code.
func (r *RAKP1) Role() uint8 {
	role := uint8(r.Privilege) & 0x0F
	if r.NameOnlyLookup {
		role |= nameOnlyLookup
	}
	return role
}

// Encode serializes RAKP message 1.
func (r *RAKP1) Encode() ([]byte, error) {
	if len(r.Username) > MaxUsernameLength {
		return nil, ErrUsernameTooLong
	}
	b := make([]byte, rakp1FixedSize+len(r.Username))
	b[0] = r.Tag
	binary.LittleEndian.PutUint32(b[4:], r.ManagedSessionID)
	copy(b[8:24], r.ConsoleRandom[:])
	b[24] = r.Role()
	b[27] = uint8(len(r.Username))
	copy(b[28:], r.Username)
	return b, nil
}

// DecodeRAKP1 parses RAKP message 1.
func DecodeRAKP1(data []byte) (*RAKP1, error) {
	if len(data) < rakp1FixedSize {
		return nil, ErrMessageTooShort
	}
	ulen := int(data[27])
	if ulen > MaxUsernameLength {
		return nil, ErrUsernameTooLong
	}
	if len(data) < rakp1FixedSize+ulen {
		return nil, ErrMessageTooShort
	}
	r := &RAKP1{
		Tag:              data[0],
		ManagedSessionID: binary.LittleEndian.Uint32(data[4:]),
		Privilege:        commands.PrivilegeLevel(data[24] & 0x0F),
		NameOnlyLookup:   data[24]&nameOnlyLookup != 0,
		Username:         string(data[28 : 28+ulen]),
	}
	copy(r.ConsoleRandom[:], data[8:24])
	return r, nil
}

// RAKP2 is the BMC's answer to RAKP message 1.
type RAKP2 struct {
	Tag              uint8
	Status           StatusCode
	ConsoleSessionID uint32
	ManagedRandom    [RandomLength]byte
	// ManagedGUID holds the BMC GUID bytes in wire order.
	ManagedGUID uuid.UUID
	// AuthCode is the key exchange authentication code; empty for RAKP-none.
	AuthCode []byte
}

// Err returns a *StatusError when the BMC rejected RAKP message 1.
func (r *RAKP2) Err() error {
	return statusErr("RAKP message 1", r.Status)
}

// Encode serializes RAKP message 2.
func (r *RAKP2) Encode() []byte {
	if r.Status != StatusNoErrors {
		return statusOnly(r.Tag, r.Status, r.ConsoleSessionID)
	}
	b := make([]byte, rakp2FixedSize+len(r.AuthCode))
	b[0] = r.Tag
	binary.LittleEndian.PutUint32(b[4:], r.ConsoleSessionID)
	copy(b[8:24], r.ManagedRandom[:])
	copy(b[24:40], r.ManagedGUID[:])
	copy(b[40:], r.AuthCode)
	return b
}

// DecodeRAKP2 parses RAKP message 2.
func DecodeRAKP2(data []byte) (*RAKP2, error) {
	if len(data) < statusOnlySize {
		return nil, ErrMessageTooShort
	}
	r := &RAKP2{
		Tag:              data[0],
		Status:           StatusCode(data[1]),
		ConsoleSessionID: binary.LittleEndian.Uint32(data[4:]),
	}
	if r.Status != StatusNoErrors {
		return r, nil
	}
	if len(data) < rakp2FixedSize {
		return nil, ErrMessageTooShort
	}
	copy(r.ManagedRandom[:], data[8:24])
	copy(r.ManagedGUID[:], data[24:40])
	r.AuthCode = append([]byte(nil), data[40:]...)
	return r, nil
}

// RAKP3 proves the console knows the password.
type RAKP3 struct {
	Tag              uint8
	Status           StatusCode
	ManagedSessionID uint32
	AuthCode         []byte
}

// Encode serializes RAKP message 3.
func (r *RAKP3) Encode() []byte {
	b := make([]byte, rakp3FixedSize+len(r.AuthCode))
	b[0] = r.Tag
	b[1] = uint8(r.Status)
	binary.LittleEndian.PutUint32(b[4:], r.ManagedSessionID)
	copy(b[8:], r.AuthCode)
	return b
}

// DecodeRAKP3 parses RAKP message 3.
func DecodeRAKP3(data []byte) (*RAKP3, error) {
	if len(data) < rakp3FixedSize {
		return nil, ErrMessageTooShort
	}
	return &RAKP3{
		Tag:              data[0],
		Status:           StatusCode(data[1]),
		ManagedSessionID: binary.LittleEndian.Uint32(data[4:]),
		AuthCode:         append([]byte(nil), data[8:]...),
	}, nil
}

// RAKP4 completes the key exchange.
type RAKP4 struct {
	Tag              uint8
	Status           StatusCode
	ConsoleSessionID uint32
	// ICV is the integrity check value; empty for RAKP-none.
	ICV []byte
}

// Err returns a *StatusError when the BMC rejected RAKP message 3.
func (r *RAKP4) Err() error {
	return statusErr("RAKP message 3", r.Status)
}

// Encode serializes RAKP message 4.
func (r *RAKP4) Encode() []byte {
	b := make([]byte, rakp4FixedSize+len(r.ICV))
	b[0] = r.Tag
	b[1] = uint8(r.Status)
	binary.LittleEndian.PutUint32(b[4:], r.ConsoleSessionID)
	copy(b[8:], r.ICV)
	return b
}

// DecodeRAKP4 parses RAKP message 4.
func DecodeRAKP4(data []byte) (*RAKP4, error) {
	if len(data) < rakp4FixedSize {
		return nil, ErrMessageTooShort
	}
	return &RAKP4{
		Tag:              data[0],
		Status:           StatusCode(data[1]),
		ConsoleSessionID: binary.LittleEndian.Uint32(data[4:]),
		ICV:              append([]byte(nil), data[8:]...),
	}, nil
}

func statusOnly(tag uint8, status StatusCode, sessionID uint32) []byte {
	b := make([]byte, statusOnlySize)
	b[0] = tag
	b[1] = uint8(status)
	binary.LittleEndian.PutUint32(b[4:], sessionID)
	return b
}
