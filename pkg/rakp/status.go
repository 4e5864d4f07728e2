package rakp

import "fmt"

// StatusCode is the RMCP+ status code carried by Open Session and RAKP
// responses (IPMI v2.0 Table 13-15).
type StatusCode uint8

const (
	StatusNoErrors                        StatusCode = 0x00
	StatusInsufficientResources           StatusCode = 0x01
	StatusInvalidSessionID                StatusCode = 0x02
	StatusInvalidPayloadType              StatusCode = 0x03
	StatusInvalidAuthenticationAlgorithm  StatusCode = 0x04
	StatusInvalidIntegrityAlgorithm       StatusCode = 0x05
	StatusNoMatchingAuthenticationPayload StatusCode = 0x06
	StatusNoMatchingIntegrityPayload      StatusCode = 0x07
	StatusInactiveSessionID               StatusCode = 0x08
	StatusInvalidRole                     StatusCode = 0x09
	StatusUnauthorizedRole                StatusCode = 0x0A
	StatusInsufficientResourcesForRole    StatusCode = 0x0B
	StatusInvalidNameLength               StatusCode = 0x0C
	StatusUnauthorizedName                StatusCode = 0x0D
	StatusUnauthorizedGUID                StatusCode = 0x0E
	StatusInvalidIntegrityCheckValue      StatusCode = 0x0F
	StatusInvalidConfidentialityAlgorithm StatusCode = 0x10
	StatusNoCipherSuiteMatch              StatusCode = 0x11
	StatusIllegalParameter                StatusCode = 0x12
)

var statusNames = map[StatusCode]string{
	StatusNoErrors:                        "no errors",
	StatusInsufficientResources:           "insufficient resources to create a session",
	StatusInvalidSessionID:                "invalid session ID",
	StatusInvalidPayloadType:              "invalid payload type",
	StatusInvalidAuthenticationAlgorithm:  "invalid authentication algorithm",
	StatusInvalidIntegrityAlgorithm:       "invalid integrity algorithm",
	StatusNoMatchingAuthenticationPayload: "no matching authentication payload",
	StatusNoMatchingIntegrityPayload:      "no matching integrity payload",
	StatusInactiveSessionID:               "inactive session ID",
	StatusInvalidRole:                     "invalid role",
	StatusUnauthorizedRole:                "unauthorized role or privilege level requested",
	StatusInsufficientResourcesForRole:    "insufficient resources to create a session at the requested role",
	StatusInvalidNameLength:               "invalid name length",
	StatusUnauthorizedName:                "unauthorized name",
	StatusUnauthorizedGUID:                "unauthorized GUID",
	StatusInvalidIntegrityCheckValue:      "invalid integrity check value",
	StatusInvalidConfidentialityAlgorithm: "invalid confidentiality algorithm",
	StatusNoCipherSuiteMatch:              "no cipher suite match with proposed security algorithms",
	StatusIllegalParameter:                "illegal or unrecognized parameter",
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status 0x%02x", uint8(s))
}

// StatusError is a non-zero RMCP+ status code returned by the BMC.
type StatusError struct {
	// Message names the response that carried the status.
	Message string
	Code    StatusCode
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("rakp: %s rejected: %s (0x%02x)", e.Message, e.Code, uint8(e.Code))
}

// statusErr returns a *StatusError for a non-zero status, nil otherwise.
func statusErr(msg string, code StatusCode) error {
	if code == StatusNoErrors {
		return nil
	}
	return &StatusError{Message: msg, Code: code}
}
