package statemachine

import "github.com/backkem/ipmi/pkg/message"

// Action is delivered to the Observer when the state machine has something
// for its owner.
type Action interface {
	isAction()
}

// ResponseAction carries the response awaited in a waiting state. Response
// is the decoded value:
//
//	CiphersWaiting      *commands.ChannelCipherSuites
//	AuthcapWaiting      *commands.ChannelAuthCapabilities
//	OpenSessionWaiting  *rakp.OpenSessionResponse
//	Rakp1Waiting        *rakp.RAKP2
//	Rakp3Waiting        *rakp.RAKP4
//
// Err is set when the BMC rejected the request or the response failed
// verification; Response may still be set in that case.
type ResponseAction struct {
	Response any
	Err      error
}

// MessageAction carries an IPMI message received inside the session.
type MessageAction struct {
	Message *message.Message
}

// SIKAction carries the session integrity key derived during the RAKP
// exchange. It is delivered from Fire(Rakp2Ack) before Fire returns.
type SIKAction struct {
	SIK []byte
}

func (ResponseAction) isAction() {}
func (MessageAction) isAction()  {}
func (SIKAction) isAction()      {}

// Observer receives actions. It is called without internal locks held, from
// the goroutine calling Fire or HandlePacket.
type Observer func(Action)
