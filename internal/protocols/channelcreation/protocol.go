// Package channelcreation establishes and confirms an oblivious channel
// between the current device and one remote device.
//
// The initiator sends a signed ephemeral key over the asymmetric channel,
// the responder answers with its own, and both derive the channel seed from
// the exchange. Two acknowledgements sent over the new channel then confirm
// it on both sides.
package channelcreation

import (
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
)

// ID names the protocol.
const ID domain.ProtocolID = "channel-creation-with-device"

// Initiate starts the protocol locally towards RemoteDevice of RemoteIdentity.
type Initiate struct {
	_              struct{} `cbor:",toarray"`
	RemoteIdentity domain.Identity
	RemoteDevice   domain.DeviceID
}

// Ping carries the initiator's ephemeral key.
type Ping struct {
	_            struct{} `cbor:",toarray"`
	FromIdentity domain.Identity
	FromDevice   domain.DeviceID
	ToDevice     domain.DeviceID
	EphemeralKey domain.X25519Public
	Signature    []byte
}

// Pong carries the responder's ephemeral key.
type Pong struct {
	_            struct{} `cbor:",toarray"`
	FromIdentity domain.Identity
	FromDevice   domain.DeviceID
	ToDevice     domain.DeviceID
	EphemeralKey domain.X25519Public
	Signature    []byte
}

// Ack1 is the first message sent over the new channel, by the initiator.
type Ack1 struct {
	_ struct{} `cbor:",toarray"`
}

// Ack2 answers Ack1 and confirms the channel on the initiator side.
type Ack2 struct {
	_ struct{} `cbor:",toarray"`
}

func (Initiate) MessageType() domain.MessageTypeID { return "initiate" }
func (Ping) MessageType() domain.MessageTypeID     { return "ping" }
func (Pong) MessageType() domain.MessageTypeID     { return "pong" }
func (Ack1) MessageType() domain.MessageTypeID     { return "ack-1" }
func (Ack2) MessageType() domain.MessageTypeID     { return "ack-2" }

// WaitingForPong holds the initiator's ephemeral key pair.
type WaitingForPong struct {
	RemoteIdentity   domain.Identity
	RemoteDevice     domain.DeviceID
	EphemeralPrivate domain.X25519Private
	EphemeralPublic  domain.X25519Public
}

// WaitingForAck1 is the responder once its side of the channel exists.
type WaitingForAck1 struct {
	RemoteIdentity domain.Identity
	RemoteDevice   domain.DeviceID
}

// WaitingForAck2 is the initiator once its side of the channel exists.
type WaitingForAck2 struct {
	RemoteIdentity domain.Identity
	RemoteDevice   domain.DeviceID
}

func (WaitingForPong) StateID() definition.StateID { return "waiting-for-pong" }
func (WaitingForAck1) StateID() definition.StateID { return "waiting-for-ack-1" }
func (WaitingForAck2) StateID() definition.StateID { return "waiting-for-ack-2" }

// Protocol returns the definition.
func Protocol() *definition.Protocol {
	return &definition.Protocol{
		ID:       ID,
		States:   []definition.State{WaitingForPong{}, WaitingForAck1{}, WaitingForAck2{}},
		Messages: []definition.Message{Initiate{}, Ping{}, Pong{}, Ack1{}, Ack2{}},
		Steps: []definition.Step{
			{ID: "send-ping", From: definition.InitialStateID, On: "initiate", Requires: definition.RequireLocal, Run: sendPing},
			{ID: "respond-to-ping", From: definition.InitialStateID, On: "ping", Requires: definition.RequireAsymmetric, Run: respondToPing},
			{ID: "process-pong", From: "waiting-for-pong", On: "pong", Requires: definition.RequireAsymmetric, Run: processPong},
			{ID: "process-ack-1", From: "waiting-for-ack-1", On: "ack-1", Requires: definition.RequireAnyOblivious, Run: processAck1},
			{ID: "process-ack-2", From: "waiting-for-ack-2", On: "ack-2", Requires: definition.RequireAnyOblivious, Run: processAck2},
		},
	}
}
