package message

import (
	"bytes"
	"errors"
	"testing"
)

func TestRMCPRoundtrip(t *testing.T) {
	raw := EncodeRMCP(RMCPClassASF, []byte{0x00, 0x00, 0x11, 0xBE})
	want := []byte{0x06, 0x00, 0xFF, 0x06, 0x00, 0x00, 0x11, 0xBE}
	if !bytes.Equal(raw, want) {
		t.Errorf("EncodeRMCP() = %x, want %x", raw, want)
	}

	h, data, err := DecodeRMCP(raw)
	if err != nil {
		t.Fatalf("DecodeRMCP() error = %v", err)
	}
	if h.Class != RMCPClassASF || h.Sequence != RMCPSequenceNoAck {
		t.Errorf("DecodeRMCP() header = %+v", h)
	}
	if !bytes.Equal(data, want[4:]) {
		t.Errorf("DecodeRMCP() data = %x, want %x", data, want[4:])
	}
}

func TestDecodeRMCPErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"short", []byte{0x06, 0x00}, ErrMessageTooShort},
		{"version", []byte{0x07, 0x00, 0xFF, 0x07}, ErrInvalidRMCP},
		{"ack", []byte{0x06, 0x00, 0xFF, 0x86}, ErrInvalidRMCP},
		{"class", []byte{0x06, 0x00, 0xFF, 0x01}, ErrInvalidRMCP},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := DecodeRMCP(tc.raw); !errors.Is(err, tc.want) {
				t.Errorf("DecodeRMCP() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCompletionCodeRetryable(t *testing.T) {
	retryable := map[CompletionCode]bool{
		CompletionNodeBusy:                 true,
		CompletionTimeout:                  true,
		CompletionSDRInUpdateMode:          true,
		CompletionFirmwareUpdateMode:       true,
		CompletionInitializationInProgress: true,
	}
	for c := 0; c < 256; c++ {
		code := CompletionCode(c)
		if got := code.Retryable(); got != retryable[code] {
			t.Errorf("%s.Retryable() = %v, want %v", code, got, retryable[code])
		}
	}
}

func TestNetworkFunction(t *testing.T) {
	if NetFnAppRequest.Response() != NetFnAppResponse {
		t.Errorf("Response() = %v, want %v", NetFnAppRequest.Response(), NetFnAppResponse)
	}
	if !NetFnChassisResponse.IsResponse() || NetFnChassisRequest.IsResponse() {
		t.Error("IsResponse() mismatch")
	}
	if got := NetFnAppResponse.String(); got != "App Response" {
		t.Errorf("String() = %q, want %q", got, "App Response")
	}
}

func TestPresencePingPong(t *testing.T) {
	ping := EncodePresencePing(0x2A)
	want := []byte{0x06, 0x00, 0xFF, 0x06, 0x00, 0x00, 0x11, 0xBE, 0x80, 0x2A, 0x00, 0x00}
	if !bytes.Equal(ping, want) {
		t.Errorf("EncodePresencePing() = %x, want %x", ping, want)
	}
	tag, ok := IsPresencePing(ping)
	if !ok || tag != 0x2A {
		t.Errorf("IsPresencePing() = %d, %v", tag, ok)
	}

	pong := &PresencePong{Tag: tag, OEMIANA: ASFIANA, IPMI: true}
	raw := pong.Encode()
	if len(raw) != RMCPHeaderSize+24 {
		t.Fatalf("Encode() length = %d, want 28", len(raw))
	}
	if _, ok := IsPresencePing(raw); ok {
		t.Error("IsPresencePing() accepted a pong")
	}
	got, err := DecodePresencePong(raw)
	if err != nil {
		t.Fatalf("DecodePresencePong() error = %v", err)
	}
	if *got != *pong {
		t.Errorf("DecodePresencePong() = %+v, want %+v", got, pong)
	}

	if _, err := DecodePresencePong(ping); !errors.Is(err, ErrNotPresencePong) {
		t.Errorf("DecodePresencePong(ping) error = %v, want %v", err, ErrNotPresencePong)
	}
}
