package dispatch

import "errors"

var (
	// ErrNoDestinationResolvable is returned when a selector resolves to no
	// device at all.
	ErrNoDestinationResolvable = errors.New("no destination resolvable")
	// ErrNoMessageSent is returned when every resolved target failed.
	ErrNoMessageSent = errors.New("no message sent")
	// ErrNotAddressedToUs is returned for an inbound header this device
	// cannot open.
	ErrNotAddressedToUs = errors.New("envelope header not addressed to this device")
	// ErrMalformedEnvelope is returned when an inbound envelope is structurally invalid.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)
