package types

import "github.com/google/uuid"

// DeviceID is an opaque identifier for one device of an identity.
type DeviceID string

// String returns the string form of the device identifier.
func (d DeviceID) String() string { return string(d) }

// NewDeviceID returns a random device identifier.
func NewDeviceID() DeviceID { return DeviceID(uuid.NewString()) }

// InstanceID identifies one protocol execution, shared by every participant.
type InstanceID string

// String returns the string form of the instance identifier.
func (id InstanceID) String() string { return string(id) }

// NewInstanceID returns a random instance identifier.
func NewInstanceID() InstanceID { return InstanceID(uuid.NewString()) }

// FlowID correlates log lines and side effects of a single user action.
type FlowID string

// String returns the string form of the flow identifier.
func (f FlowID) String() string { return string(f) }

// NewFlowID returns a random flow identifier.
func NewFlowID() FlowID { return FlowID(uuid.NewString()) }

// DialogID identifies a pending user dialog.
type DialogID string

// String returns the string form of the dialog identifier.
func (id DialogID) String() string { return string(id) }

// NetworkMessageID is the identifier a relay assigns to a posted message.
type NetworkMessageID string

// String returns the string form of the network message identifier.
func (id NetworkMessageID) String() string { return string(id) }

// ProtocolID names a protocol definition.
type ProtocolID string

// String returns the string form of the protocol identifier.
func (p ProtocolID) String() string { return string(p) }

// MessageTypeID names a message type within a protocol.
type MessageTypeID string

// String returns the string form of the message type.
func (t MessageTypeID) String() string { return string(t) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
