package types

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// ReceptionKind tells how a message reached this device.
type ReceptionKind uint8

const (
	ReceivedLocally ReceptionKind = iota
	ReceivedOverObliviousChannel
	ReceivedOverAsymmetricChannel
	ReceivedAsServerResponse
)

func (k ReceptionKind) String() string {
	switch k {
	case ReceivedLocally:
		return "local"
	case ReceivedOverObliviousChannel:
		return "oblivious"
	case ReceivedOverAsymmetricChannel:
		return "asymmetric"
	case ReceivedAsServerResponse:
		return "server-response"
	default:
		return fmt.Sprintf("reception(%d)", uint8(k))
	}
}

// ReceptionChannel describes how a message was actually delivered. The
// remote fields are only meaningful for oblivious receptions.
type ReceptionChannel struct {
	Kind           ReceptionKind `json:"kind"`
	Owned          Identity      `json:"owned"`
	LocalDevice    DeviceID      `json:"local_device,omitempty"`
	RemoteIdentity Identity      `json:"remote_identity,omitempty"`
	RemoteDevice   DeviceID      `json:"remote_device,omitempty"`
	Confirmed      bool          `json:"confirmed,omitempty"`
	Broadcast      bool          `json:"broadcast,omitempty"`
}

// LocalReception describes a message produced on this device.
func LocalReception(owned Identity) ReceptionChannel {
	return ReceptionChannel{Kind: ReceivedLocally, Owned: owned}
}

// AsymmetricReception describes a message that arrived encrypted to the owned identity key.
func AsymmetricReception(owned Identity, local DeviceID) ReceptionChannel {
	return ReceptionChannel{Kind: ReceivedOverAsymmetricChannel, Owned: owned, LocalDevice: local}
}

// ServerResponseReception describes the answer to a server query.
func ServerResponseReception(owned Identity) ReceptionChannel {
	return ReceptionChannel{Kind: ReceivedAsServerResponse, Owned: owned}
}

// ObliviousReception describes a message received over an oblivious channel.
func ObliviousReception(key ChannelKey, confirmed, broadcast bool) ReceptionChannel {
	return ReceptionChannel{
		Kind:           ReceivedOverObliviousChannel,
		Owned:          key.Owned,
		LocalDevice:    key.LocalDevice,
		RemoteIdentity: key.RemoteIdentity,
		RemoteDevice:   key.RemoteDevice,
		Confirmed:      confirmed,
		Broadcast:      broadcast,
	}
}

// FromOwnedDevice reports whether r is an oblivious reception from another
// device of the owned identity.
func (r ReceptionChannel) FromOwnedDevice() bool {
	return r.Kind == ReceivedOverObliviousChannel && r.RemoteIdentity == r.Owned
}

func (r ReceptionChannel) String() string {
	if r.Kind != ReceivedOverObliviousChannel {
		return r.Kind.String()
	}
	status := "unconfirmed"
	if r.Confirmed {
		status = "confirmed"
	}
	return fmt.Sprintf("oblivious(%s/%s, %s)", r.RemoteIdentity.Server, r.RemoteDevice, status)
}

// ProtocolMessage is the wire form of a protocol message. Inputs carries the
// ordered, typed fields of the message as a cbor array.
type ProtocolMessage struct {
	Protocol ProtocolID      `cbor:"1,keyasint"`
	Type     MessageTypeID   `cbor:"2,keyasint"`
	Instance InstanceID      `cbor:"3,keyasint"`
	Inputs   cbor.RawMessage `cbor:"4,keyasint"`
}

// LogicalKind distinguishes the payload of a logical message.
type LogicalKind uint8

const (
	LogicalProtocol LogicalKind = iota + 1
	LogicalApplication
)

// LogicalMessage is the plaintext carried inside an envelope payload.
type LogicalMessage struct {
	Kind        LogicalKind      `cbor:"1,keyasint"`
	Protocol    *ProtocolMessage `cbor:"2,keyasint,omitempty"`
	Application []byte           `cbor:"3,keyasint,omitempty"`
}

// ChannelVariant is the kind of channel a header key is wrapped for.
type ChannelVariant uint8

const (
	VariantOblivious ChannelVariant = iota + 1
	VariantAsymmetric
)

func (v ChannelVariant) String() string {
	switch v {
	case VariantOblivious:
		return "oblivious"
	case VariantAsymmetric:
		return "asymmetric"
	default:
		return fmt.Sprintf("variant(%d)", uint8(v))
	}
}

// EnvelopeHeader carries the message key of an envelope wrapped for one
// recipient device.
type EnvelopeHeader struct {
	ToIdentity   Identity       `cbor:"1,keyasint"`
	ToDevice     DeviceID       `cbor:"2,keyasint"`
	FromIdentity Identity       `cbor:"3,keyasint"`
	FromDevice   DeviceID       `cbor:"4,keyasint"`
	Variant      ChannelVariant `cbor:"5,keyasint"`
	Index        uint64         `cbor:"6,keyasint"`
	Broadcast    bool           `cbor:"7,keyasint"`
	WrappedKey   []byte         `cbor:"8,keyasint,omitempty"`
}

// Recipient returns the device the header is addressed to.
func (h EnvelopeHeader) Recipient() Recipient {
	return Recipient{Identity: h.ToIdentity, Device: h.ToDevice}
}

// Envelope is a single encrypted payload posted to one server, with one
// header per recipient device.
type Envelope struct {
	ID        string           `cbor:"1,keyasint"`
	Server    string           `cbor:"2,keyasint"`
	Headers   []EnvelopeHeader `cbor:"3,keyasint"`
	Payload   []byte           `cbor:"4,keyasint"`
	CreatedAt time.Time        `cbor:"5,keyasint"`
}

// Inbound is an envelope as fetched by one recipient: Header indexes the
// header addressed to it.
type Inbound struct {
	Envelope Envelope `cbor:"1,keyasint"`
	Header   int      `cbor:"2,keyasint"`
}

// PerRecipientMessageIDs maps every addressed device to the identifier the
// relay assigned to its copy.
type PerRecipientMessageIDs map[Recipient]NetworkMessageID

// ServerQuery is a request a protocol step sends to its home server.
type ServerQuery struct {
	ID       string     `cbor:"1,keyasint"`
	Server   string     `cbor:"2,keyasint"`
	Owned    Identity   `cbor:"3,keyasint"`
	Protocol ProtocolID `cbor:"4,keyasint"`
	Instance InstanceID `cbor:"5,keyasint"`
	Kind     string     `cbor:"6,keyasint"`
	Payload  []byte     `cbor:"7,keyasint,omitempty"`
}

// Dialog is a request for user input raised by a protocol step.
type Dialog struct {
	ID        DialogID        `cbor:"1,keyasint"`
	Owned     Identity        `cbor:"2,keyasint"`
	Protocol  ProtocolID      `cbor:"3,keyasint"`
	Instance  InstanceID      `cbor:"4,keyasint"`
	Kind      string          `cbor:"5,keyasint"`
	Payload   cbor.RawMessage `cbor:"6,keyasint,omitempty"`
	CreatedAt time.Time       `cbor:"7,keyasint"`
}

// ProtocolInstance is the persisted state of a running protocol.
type ProtocolInstance struct {
	Owned     Identity        `cbor:"1,keyasint"`
	Instance  InstanceID      `cbor:"2,keyasint"`
	Protocol  ProtocolID      `cbor:"3,keyasint"`
	StateID   string          `cbor:"4,keyasint"`
	State     cbor.RawMessage `cbor:"5,keyasint"`
	CreatedAt time.Time       `cbor:"6,keyasint"`
	UpdatedAt time.Time       `cbor:"7,keyasint"`
}
