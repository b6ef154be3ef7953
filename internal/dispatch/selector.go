package dispatch

import "obvcore/internal/domain"

// Selector chooses the channels a message is sent over. The set of selectors
// is closed: every implementation lives in this file.
type Selector interface {
	selector()
	String() string
}

// PointToPoint targets one remote device over its oblivious channel. The
// channel must be confirmed unless AllowUnconfirmed is set, which only the
// channel confirmation handshake needs.
type PointToPoint struct {
	Identity         domain.Identity
	Device           domain.DeviceID
	AllowUnconfirmed bool
}

// AllConfirmedChannelsWithContact targets every device of Contact the local
// device has a confirmed channel with.
type AllConfirmedChannelsWithContact struct {
	Contact domain.Identity
}

// AllConfirmedChannelsWithOwnOtherDevices targets every other device of the
// owned identity the local device has a confirmed channel with.
type AllConfirmedChannelsWithOwnOtherDevices struct{}

// Broadcast targets every confirmed channel with any of Identities. The
// receiver sees the message flagged as a broadcast.
type Broadcast struct {
	Identities []domain.Identity
}

// Asymmetric encrypts to the identity key of Identity, for the listed
// devices or, when Devices is empty, for every known device of Identity.
type Asymmetric struct {
	Identity domain.Identity
	Devices  []domain.DeviceID
}

// Local delivers the message back to this device without encryption.
type Local struct{}

// ServerQuery asks the owned identity's server a question; the answer comes
// back as a server response reception.
type ServerQuery struct {
	Kind    string
	Payload []byte
}

func (PointToPoint) selector()                            {}
func (AllConfirmedChannelsWithContact) selector()         {}
func (AllConfirmedChannelsWithOwnOtherDevices) selector() {}
func (Broadcast) selector()                               {}
func (Asymmetric) selector()                              {}
func (Local) selector()                                   {}
func (ServerQuery) selector()                             {}

func (s PointToPoint) String() string {
	return "point-to-point(" + s.Identity.Server + "/" + s.Device.String() + ")"
}
func (s AllConfirmedChannelsWithContact) String() string {
	return "all-confirmed-with-contact(" + s.Contact.Server + ")"
}
func (AllConfirmedChannelsWithOwnOtherDevices) String() string {
	return "all-confirmed-with-own-other-devices"
}
func (Broadcast) String() string    { return "broadcast" }
func (s Asymmetric) String() string { return "asymmetric(" + s.Identity.Server + ")" }
func (Local) String() string        { return "local" }
func (s ServerQuery) String() string {
	return "server-query(" + s.Kind + ")"
}
