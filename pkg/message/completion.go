package message

import "fmt"

// CompletionCode is the first data byte of every IPMI response
// (IPMI v2.0 Table 5-2).
type CompletionCode uint8

// Generic completion codes.
const (
	CompletionOK                       CompletionCode = 0x00
	CompletionNodeBusy                 CompletionCode = 0xC0
	CompletionInvalidCommand           CompletionCode = 0xC1
	CompletionInvalidForLUN            CompletionCode = 0xC2
	CompletionTimeout                  CompletionCode = 0xC3
	CompletionOutOfSpace               CompletionCode = 0xC4
	CompletionReservationInvalid       CompletionCode = 0xC5
	CompletionRequestTruncated         CompletionCode = 0xC6
	CompletionRequestLengthInvalid     CompletionCode = 0xC7
	CompletionRequestLengthExceeded    CompletionCode = 0xC8
	CompletionParameterOutOfRange      CompletionCode = 0xC9
	CompletionCannotReturnBytes        CompletionCode = 0xCA
	CompletionNotPresent               CompletionCode = 0xCB
	CompletionInvalidDataField         CompletionCode = 0xCC
	CompletionIllegalForRecordType     CompletionCode = 0xCD
	CompletionResponseUnavailable      CompletionCode = 0xCE
	CompletionDuplicatedRequest        CompletionCode = 0xCF
	CompletionSDRInUpdateMode          CompletionCode = 0xD0
	CompletionFirmwareUpdateMode       CompletionCode = 0xD1
	CompletionInitializationInProgress CompletionCode = 0xD2
	CompletionDestinationUnavailable   CompletionCode = 0xD3
	CompletionInsufficientPrivilege    CompletionCode = 0xD4
	CompletionNotSupportedInState      CompletionCode = 0xD5
	CompletionSubfunctionDisabled      CompletionCode = 0xD6
	CompletionUnspecified              CompletionCode = 0xFF
)

var completionNames = map[CompletionCode]string{
	CompletionOK:                       "command completed normally",
	CompletionNodeBusy:                 "node busy",
	CompletionInvalidCommand:           "invalid command",
	CompletionInvalidForLUN:            "command invalid for given LUN",
	CompletionTimeout:                  "timeout while processing command",
	CompletionOutOfSpace:               "out of space",
	CompletionReservationInvalid:       "reservation canceled or invalid reservation ID",
	CompletionRequestTruncated:         "request data truncated",
	CompletionRequestLengthInvalid:     "request data length invalid",
	CompletionRequestLengthExceeded:    "request data field length limit exceeded",
	CompletionParameterOutOfRange:      "parameter out of range",
	CompletionCannotReturnBytes:        "cannot return number of requested data bytes",
	CompletionNotPresent:               "requested sensor, data, or record not present",
	CompletionInvalidDataField:         "invalid data field in request",
	CompletionIllegalForRecordType:     "command illegal for specified sensor or record type",
	CompletionResponseUnavailable:      "command response could not be provided",
	CompletionDuplicatedRequest:        "cannot execute duplicated request",
	CompletionSDRInUpdateMode:          "SDR repository in update mode",
	CompletionFirmwareUpdateMode:       "device in firmware update mode",
	CompletionInitializationInProgress: "BMC initialization in progress",
	CompletionDestinationUnavailable:   "destination unavailable",
	CompletionInsufficientPrivilege:    "insufficient privilege level",
	CompletionNotSupportedInState:      "command not supported in present state",
	CompletionSubfunctionDisabled:      "parameter is illegal because sub-function is unavailable",
	CompletionUnspecified:              "unspecified error",
}

// String returns the description from the IPMI completion code table.
func (c CompletionCode) String() string {
	if name, ok := completionNames[c]; ok {
		return name
	}
	switch {
	case c >= 0x01 && c <= 0x7E:
		return fmt.Sprintf("OEM completion code 0x%02x", uint8(c))
	case c >= 0x80 && c <= 0xBE:
		return fmt.Sprintf("command-specific completion code 0x%02x", uint8(c))
	default:
		return fmt.Sprintf("completion code 0x%02x", uint8(c))
	}
}

// Retryable reports whether a request rejected with c may succeed when
// sent again later.
func (c CompletionCode) Retryable() bool {
	switch c {
	case CompletionNodeBusy, CompletionTimeout, CompletionSDRInUpdateMode,
		CompletionFirmwareUpdateMode, CompletionInitializationInProgress:
		return true
	}
	return false
}

// CompletionError is returned when the BMC answers a request with a
// completion code other than CompletionOK.
type CompletionError struct {
	Code    CompletionCode
	NetFn   NetworkFunction
	Command uint8
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("ipmi: %s command 0x%02x failed: %s (0x%02x)",
		e.NetFn, e.Command, e.Code, uint8(e.Code))
}

// Retryable reports whether the rejected request may be retried.
func (e *CompletionError) Retryable() bool {
	return e.Code.Retryable()
}
