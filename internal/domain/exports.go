package domain

import (
	interfaces "obvcore/internal/domain/interfaces"
	types "obvcore/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	DeviceID               = types.DeviceID
	InstanceID             = types.InstanceID
	FlowID                 = types.FlowID
	DialogID               = types.DialogID
	NetworkMessageID       = types.NetworkMessageID
	ProtocolID             = types.ProtocolID
	MessageTypeID          = types.MessageTypeID
	Fingerprint            = types.Fingerprint
	Identity               = types.Identity
	OwnedIdentityKeys      = types.OwnedIdentityKeys
	Recipient              = types.Recipient
	ChannelKey             = types.ChannelKey
	ChannelStatus          = types.ChannelStatus
	ObliviousChannel       = types.ObliviousChannel
	Direction              = types.Direction
	Provision              = types.Provision
	ReceptionKind          = types.ReceptionKind
	ReceptionChannel       = types.ReceptionChannel
	ProtocolMessage        = types.ProtocolMessage
	LogicalKind            = types.LogicalKind
	LogicalMessage         = types.LogicalMessage
	ChannelVariant         = types.ChannelVariant
	EnvelopeHeader         = types.EnvelopeHeader
	Envelope               = types.Envelope
	Inbound                = types.Inbound
	PerRecipientMessageIDs = types.PerRecipientMessageIDs
	ServerQuery            = types.ServerQuery
	Dialog                 = types.Dialog
	ProtocolInstance       = types.ProtocolInstance
	X25519Public           = types.X25519Public
	X25519Private          = types.X25519Private
	Ed25519Public          = types.Ed25519Public
	Ed25519Private         = types.Ed25519Private
	SymmetricKey           = types.SymmetricKey
	Seed                   = types.Seed
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KV                = interfaces.KV
	Tx                = interfaces.Tx
	Store             = interfaces.Store
	KeyFileStore      = interfaces.KeyFileStore
	NetworkPoster     = interfaces.NetworkPoster
	NetworkFetcher    = interfaces.NetworkFetcher
	Network           = interfaces.Network
	DialogPresenter   = interfaces.DialogPresenter
	ApplicationSink   = interfaces.ApplicationSink
	IdentityDirectory = interfaces.IdentityDirectory
)

// Constants re-exported from the types subpackage.
const (
	ChannelUnconfirmed = types.ChannelUnconfirmed
	ChannelConfirmed   = types.ChannelConfirmed

	DirectionSend    = types.DirectionSend
	DirectionReceive = types.DirectionReceive

	ReceivedLocally               = types.ReceivedLocally
	ReceivedOverObliviousChannel  = types.ReceivedOverObliviousChannel
	ReceivedOverAsymmetricChannel = types.ReceivedOverAsymmetricChannel
	ReceivedAsServerResponse      = types.ReceivedAsServerResponse

	LogicalProtocol    = types.LogicalProtocol
	LogicalApplication = types.LogicalApplication

	VariantOblivious  = types.VariantOblivious
	VariantAsymmetric = types.VariantAsymmetric
)

// Constructors re-exported from the types subpackage.
var (
	NewDeviceID   = types.NewDeviceID
	NewInstanceID = types.NewInstanceID
	NewFlowID     = types.NewFlowID
	ParseIdentity = types.ParseIdentity

	LocalReception          = types.LocalReception
	AsymmetricReception     = types.AsymmetricReception
	ServerResponseReception = types.ServerResponseReception
	ObliviousReception      = types.ObliviousReception

	ErrInvalidIdentity = types.ErrInvalidIdentity
)
