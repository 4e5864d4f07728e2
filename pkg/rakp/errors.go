package rakp

import "errors"

var (
	// ErrMessageTooShort is returned when a RAKP payload is shorter than its
	// fixed part.
	ErrMessageTooShort = errors.New("rakp: message too short")

	// ErrUsernameTooLong is returned for usernames over MaxUsernameLength.
	ErrUsernameTooLong = errors.New("rakp: username too long")

	// ErrPasswordTooLong is returned for passwords or KG keys over
	// MaxPasswordLength.
	ErrPasswordTooLong = errors.New("rakp: password too long")

	// ErrSessionIDMismatch is returned when a response names another
	// console session.
	ErrSessionIDMismatch = errors.New("rakp: console session ID mismatch")

	// ErrInvalidAuthCode is returned when the RAKP message 2 key exchange
	// authentication code does not match the password.
	ErrInvalidAuthCode = errors.New("rakp: invalid key exchange authentication code")

	// ErrInvalidICV is returned when the RAKP message 4 integrity check value
	// does not match the session integrity key.
	ErrInvalidICV = errors.New("rakp: invalid integrity check value")

	// ErrAlgorithmMismatch is returned when the BMC answers an Open Session
	// request with algorithms other than the proposed ones.
	ErrAlgorithmMismatch = errors.New("rakp: BMC selected different algorithms")
)

const (
	// MaxUsernameLength is the longest username RAKP message 1 can carry.
	MaxUsernameLength = 16

	// MaxPasswordLength is the longest password or KG key.
	MaxPasswordLength = 20

	// RandomLength is the length of the console and BMC random numbers.
	RandomLength = 16

	// GUIDLength is the length of the BMC GUID.
	GUIDLength = 16
)
