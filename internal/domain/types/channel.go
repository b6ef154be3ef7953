package types

import "time"

// ChannelKey identifies an oblivious channel from the point of view of one
// owned identity on one of its devices.
type ChannelKey struct {
	Owned          Identity `json:"owned"`
	LocalDevice    DeviceID `json:"local_device"`
	RemoteIdentity Identity `json:"remote_identity"`
	RemoteDevice   DeviceID `json:"remote_device"`
}

// Remote returns the addressed remote device.
func (k ChannelKey) Remote() Recipient {
	return Recipient{Identity: k.RemoteIdentity, Device: k.RemoteDevice}
}

// ChannelStatus tracks whether both sides have proven possession of the seed.
type ChannelStatus uint8

const (
	ChannelUnconfirmed ChannelStatus = iota
	ChannelConfirmed
)

func (s ChannelStatus) String() string {
	if s == ChannelConfirmed {
		return "confirmed"
	}
	return "unconfirmed"
}

// ObliviousChannel is a pairwise symmetric channel between two devices.
type ObliviousChannel struct {
	Key             ChannelKey    `json:"key"`
	Status          ChannelStatus `json:"status"`
	SeedFingerprint Fingerprint   `json:"seed_fingerprint"`
	CreatedAt       time.Time     `json:"created_at"`
	ConfirmedAt     time.Time     `json:"confirmed_at,omitempty"`
}

// Confirmed reports whether the channel completed its confirmation round trip.
func (c ObliviousChannel) Confirmed() bool { return c.Status == ChannelConfirmed }

// Direction distinguishes the send and receive chains of a channel.
type Direction uint8

const (
	DirectionSend Direction = iota
	DirectionReceive
)

func (d Direction) String() string {
	if d == DirectionReceive {
		return "receive"
	}
	return "send"
}

// Provision is one single-use message key. Once consumed its key is wiped and
// the record only remains as a tombstone until garbage collected.
type Provision struct {
	Channel    ChannelKey   `json:"channel"`
	Direction  Direction    `json:"direction"`
	Index      uint64       `json:"index"`
	Key        SymmetricKey `json:"key"`
	Consumed   bool         `json:"consumed"`
	CreatedAt  time.Time    `json:"created_at"`
	ConsumedAt time.Time    `json:"consumed_at,omitempty"`
}
