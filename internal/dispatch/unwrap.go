package dispatch

import (
	"errors"
	"fmt"
	"time"

	"obvcore/internal/channel"
	"obvcore/internal/codec"
	"obvcore/internal/crypto"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/ratchet"
)

// Received is an opened envelope.
type Received struct {
	Message   domain.LogicalMessage
	Reception domain.ReceptionChannel
}

// Unwrap opens the header of in addressed to this device and decrypts the
// payload. Oblivious headers consume their receive key inside tx, so a
// caller that fails later must abort tx.
//
// channel.ErrChannelNotFound means the channel may not exist yet and the
// envelope is worth keeping; channel.ErrUnknownOrReplayedKey and
// crypto.ErrDecryptionFailed mean it must be dropped.
func (d *Dispatcher) Unwrap(tx domain.Tx, in domain.Inbound, now time.Time) (Received, error) {
	env := in.Envelope
	if in.Header < 0 || in.Header >= len(env.Headers) {
		return Received{}, fmt.Errorf("%w: header %d of %d", ErrMalformedEnvelope, in.Header, len(env.Headers))
	}
	h := env.Headers[in.Header]

	current, err := d.directory.CurrentDevice(tx, h.ToIdentity)
	if err != nil {
		return Received{}, fmt.Errorf("%w: %w", ErrNotAddressedToUs, err)
	}
	if current != h.ToDevice {
		return Received{}, fmt.Errorf("%w: device %s", ErrNotAddressedToUs, h.ToDevice)
	}

	var (
		raw       []byte
		reception domain.ReceptionChannel
		ad        = headerAD(env.ID, h)
	)
	switch h.Variant {
	case domain.VariantOblivious:
		key := domain.ChannelKey{
			Owned:          h.ToIdentity,
			LocalDevice:    h.ToDevice,
			RemoteIdentity: h.FromIdentity,
			RemoteDevice:   h.FromDevice,
		}
		ch, ok, err := d.registry.Get(tx, key)
		if err != nil {
			return Received{}, err
		}
		if !ok {
			return Received{}, channel.ErrChannelNotFound
		}
		rk, err := d.registry.DeriveNextReceiveKey(tx, key, h.Index, now)
		if err != nil {
			return Received{}, err
		}
		raw, err = ratchet.Open(rk, h.Index, ad, h.WrappedKey)
		crypto.Wipe(rk[:])
		if err != nil {
			return Received{}, crypto.ErrDecryptionFailed
		}
		reception = domain.ObliviousReception(key, ch.Confirmed(), h.Broadcast)

	case domain.VariantAsymmetric:
		raw, err = d.directory.DecryptWithOwnedIdentityKey(tx, h.ToIdentity, h.WrappedKey, ad)
		if err != nil {
			if errors.Is(err, crypto.ErrDecryptionFailed) {
				return Received{}, err
			}
			return Received{}, fmt.Errorf("open asymmetric header: %w", err)
		}
		reception = domain.AsymmetricReception(h.ToIdentity, h.ToDevice)

	default:
		return Received{}, fmt.Errorf("%w: variant %s", ErrMalformedEnvelope, h.Variant)
	}
	defer crypto.Wipe(raw)

	var mk domain.SymmetricKey
	if len(raw) != len(mk) {
		return Received{}, fmt.Errorf("%w: message key length %d", ErrMalformedEnvelope, len(raw))
	}
	copy(mk[:], raw)
	defer crypto.Wipe(mk[:])

	pt, err := crypto.OpenPayload(mk, payloadAD(env.ID), env.Payload)
	if err != nil {
		return Received{}, err
	}
	var msg domain.LogicalMessage
	if err := codec.Unmarshal(pt, &msg); err != nil {
		return Received{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}
	return Received{Message: msg, Reception: reception}, nil
}
