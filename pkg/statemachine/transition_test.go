package statemachine

import (
	"errors"
	"testing"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from  State
		event Event
		want  State
	}{
		{Uninitialized, GetChannelCipherSuitesPending{}, CiphersWaiting},
		{CiphersWaiting, GetChannelCipherSuitesPending{Index: 1}, CiphersWaiting},
		{CiphersWaiting, DefaultAck{}, Ciphers},
		{CiphersWaiting, Timeout{}, Uninitialized},
		{Ciphers, Default{}, AuthcapWaiting},
		{AuthcapWaiting, AuthCapabilitiesReceived{}, Authcap},
		{AuthcapWaiting, Timeout{}, Ciphers},
		{Authcap, Authorize{}, OpenSessionWaiting},
		{OpenSessionWaiting, DefaultAck{}, OpenSessionComplete},
		{OpenSessionWaiting, Timeout{}, Authcap},
		{OpenSessionComplete, OpenSessionAck{}, Rakp1Waiting},
		{Rakp1Waiting, DefaultAck{}, Rakp1Complete},
		{Rakp1Waiting, Timeout{}, Authcap},
		{Rakp1Complete, Rakp2Ack{}, Rakp3Waiting},
		{Rakp3Waiting, DefaultAck{}, Rakp3Complete},
		{Rakp3Waiting, Timeout{}, Authcap},
		{Rakp3Complete, StartSession{}, SessionValid},
		{SessionValid, SendMessage{}, SessionValid},
		{SessionValid, SessionUpkeep{}, SessionValid},
		{SessionValid, Timeout{}, Authcap},
		{SessionValid, CloseSession{}, Authcap},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if err != nil {
				t.Fatalf("Transition() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Transition() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransitionInvalid(t *testing.T) {
	tests := []struct {
		from  State
		event Event
	}{
		{Uninitialized, Default{}},
		{Uninitialized, SendMessage{}},
		{Uninitialized, Timeout{}},
		{Ciphers, Authorize{}},
		{Ciphers, Timeout{}},
		{Authcap, SendMessage{}},
		{Authcap, CloseSession{}},
		{OpenSessionWaiting, OpenSessionAck{}},
		{Rakp1Complete, DefaultAck{}},
		{Rakp3Complete, Timeout{}},
		{SessionValid, Authorize{}},
		{SessionValid, DefaultAck{}},
		{State(42), Timeout{}},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("Transition() error = %v, want %v", err, ErrInvalidTransition)
			}
			if got != tt.from {
				t.Errorf("Transition() = %s, want unchanged %s", got, tt.from)
			}
		})
	}
}

func TestStateWaiting(t *testing.T) {
	waiting := map[State]bool{
		CiphersWaiting:     true,
		AuthcapWaiting:     true,
		OpenSessionWaiting: true,
		Rakp1Waiting:       true,
		Rakp3Waiting:       true,
	}
	for s := Uninitialized; s <= SessionValid; s++ {
		if s.Waiting() != waiting[s] {
			t.Errorf("%s.Waiting() = %v, want %v", s, s.Waiting(), waiting[s])
		}
	}
	if State(42).IsValid() {
		t.Error("State(42).IsValid() = true")
	}
}
