package rakp

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/backkem/ipmi/pkg/security"
)

// KeyExchange holds the values both sides learn during the RAKP exchange.
// Every key exchange code and the session integrity key is an HMAC over a
// concatenation of these values.
type KeyExchange struct {
	ConsoleSessionID uint32
	ManagedSessionID uint32
	ConsoleRandom    [RandomLength]byte
	ManagedRandom    [RandomLength]byte
	ManagedGUID      uuid.UUID
	// Role is the RAKP message 1 role byte, see RAKP1.Role.
	Role     uint8
	Username string
}

// RAKP2Base returns the input of the RAKP message 2 key exchange
// authentication code.
//
//	ConsoleSessionID || ManagedSessionID || ConsoleRandom || ManagedRandom ||
//	ManagedGUID || Role || len(Username) || Username
func (k *KeyExchange) RAKP2Base() []byte {
	b := make([]byte, 0, 4+4+RandomLength+RandomLength+GUIDLength+2+len(k.Username))
	b = binary.LittleEndian.AppendUint32(b, k.ConsoleSessionID)
	b = binary.LittleEndian.AppendUint32(b, k.ManagedSessionID)
	b = append(b, k.ConsoleRandom[:]...)
	b = append(b, k.ManagedRandom[:]...)
	b = append(b, k.ManagedGUID[:]...)
	return k.appendUser(b)
}

// RAKP3Base returns the input of the RAKP message 3 key exchange
// authentication code.
//
//	ManagedRandom || ConsoleSessionID || Role || len(Username) || Username
func (k *KeyExchange) RAKP3Base() []byte {
	b := make([]byte, 0, RandomLength+4+2+len(k.Username))
	b = append(b, k.ManagedRandom[:]...)
	b = binary.LittleEndian.AppendUint32(b, k.ConsoleSessionID)
	return k.appendUser(b)
}

// SIKBase returns the input of the session integrity key.
//
//	ConsoleRandom || ManagedRandom || Role || len(Username) || Username
func (k *KeyExchange) SIKBase() []byte {
	b := make([]byte, 0, RandomLength+RandomLength+2+len(k.Username))
	b = append(b, k.ConsoleRandom[:]...)
	b = append(b, k.ManagedRandom[:]...)
	return k.appendUser(b)
}

// ICVBase returns the input of the RAKP message 4 integrity check value.
//
//	ConsoleRandom || ManagedSessionID || ManagedGUID
func (k *KeyExchange) ICVBase() []byte {
	b := make([]byte, 0, RandomLength+4+GUIDLength)
	b = append(b, k.ConsoleRandom[:]...)
	b = binary.LittleEndian.AppendUint32(b, k.ManagedSessionID)
	return append(b, k.ManagedGUID[:]...)
}

func (k *KeyExchange) appendUser(b []byte) []byte {
	b = append(b, k.Role, uint8(len(k.Username)))
	return append(b, k.Username...)
}

// RAKP2AuthCode computes HMAC(password, RAKP2Base).
func RAKP2AuthCode(auth security.Authentication, k *KeyExchange, password []byte) []byte {
	return auth.KeyExchangeAuthCode(k.RAKP2Base(), password)
}

// RAKP3AuthCode computes HMAC(password, RAKP3Base).
func RAKP3AuthCode(auth security.Authentication, k *KeyExchange, password []byte) []byte {
	return auth.KeyExchangeAuthCode(k.RAKP3Base(), password)
}

// DeriveSIK computes the session integrity key HMAC(KG, SIKBase). An empty
// kg selects the user password, as BMCs do when no BMC key is configured.
//
// Returns nil for RAKP-none.
func DeriveSIK(auth security.Authentication, k *KeyExchange, kg, password []byte) []byte {
	key := kg
	if len(key) == 0 {
		key = password
	}
	return auth.KeyExchangeAuthCode(k.SIKBase(), key)
}

// RAKP4ICV computes HMAC(SIK, ICVBase) truncated to the algorithm's
// integrity check value length.
func RAKP4ICV(auth security.Authentication, k *KeyExchange, sik []byte) []byte {
	return auth.IntegrityCheckValue(k.ICVBase(), sik)
}
