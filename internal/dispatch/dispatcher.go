package dispatch

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"obvcore/internal/channel"
	"obvcore/internal/codec"
	"obvcore/internal/crypto"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/ratchet"
)

// Dispatcher resolves selectors to channels and wraps logical messages into
// envelopes, and opens inbound envelopes addressed to this device.
type Dispatcher struct {
	registry  *channel.Registry
	directory domain.IdentityDirectory
	log       *logrus.Entry
}

// New returns a Dispatcher over registry and directory.
func New(registry *channel.Registry, directory domain.IdentityDirectory, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Dispatcher{
		registry:  registry,
		directory: directory,
		log:       logger.WithField("component", "dispatch"),
	}
}

// Prepared is the outcome of wrapping one message: envelopes ready to post,
// messages to deliver locally and server queries. Failures holds the
// per-target errors of targets that were skipped.
type Prepared struct {
	Envelopes []domain.Envelope
	Local     []domain.LogicalMessage
	Queries   []domain.ServerQuery
	Failures  error
}

// Merge appends o to p.
func (p *Prepared) Merge(o *Prepared) {
	if o == nil {
		return
	}
	p.Envelopes = append(p.Envelopes, o.Envelopes...)
	p.Local = append(p.Local, o.Local...)
	p.Queries = append(p.Queries, o.Queries...)
	p.Failures = multierr.Append(p.Failures, o.Failures)
}

// Empty reports whether p has nothing to send.
func (p *Prepared) Empty() bool {
	return p == nil || len(p.Envelopes)+len(p.Local)+len(p.Queries) == 0
}

// Recipients lists the devices addressed by the envelopes of p.
func (p *Prepared) Recipients() []domain.Recipient {
	var out []domain.Recipient
	for _, env := range p.Envelopes {
		for _, h := range env.Headers {
			out = append(out, h.Recipient())
		}
	}
	return out
}

type target struct {
	recipient domain.Recipient
	variant   domain.ChannelVariant
	broadcast bool
}

// Wrap encrypts msg for every target sel resolves to. It consumes one send
// key per oblivious target inside tx, so the caller must commit tx for the
// envelopes to be usable.
func (d *Dispatcher) Wrap(tx domain.Tx, owned domain.Identity, local domain.DeviceID, msg domain.LogicalMessage, sel Selector, now time.Time) (*Prepared, error) {
	switch s := sel.(type) {
	case Local:
		return &Prepared{Local: []domain.LogicalMessage{msg}}, nil
	case ServerQuery:
		return d.query(owned, msg, s)
	}

	targets, err := d.resolve(tx, owned, local, sel)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDestinationResolvable, sel)
	}

	plaintext, err := codec.Marshal(msg)
	if err != nil {
		return nil, err
	}

	out := &Prepared{}
	servers, groups := groupByServer(targets)
	for _, server := range servers {
		env, failures, err := d.seal(tx, owned, local, server, groups[server], plaintext, now)
		if err != nil {
			return nil, err
		}
		out.Failures = multierr.Append(out.Failures, failures)
		if len(env.Headers) > 0 {
			out.Envelopes = append(out.Envelopes, env)
		}
	}
	if len(out.Envelopes) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoMessageSent, out.Failures)
	}
	if out.Failures != nil {
		d.log.WithError(out.Failures).WithField("selector", sel.String()).Warn("some targets were skipped")
	}
	return out, nil
}

// seal builds the envelope for one server. Per-target errors are returned as
// failures; err is only set when the envelope itself cannot be built.
func (d *Dispatcher) seal(tx domain.Tx, owned domain.Identity, local domain.DeviceID, server string, targets []target, plaintext []byte, now time.Time) (env domain.Envelope, failures, err error) {
	mk, err := crypto.NewSymmetricKey()
	if err != nil {
		return env, nil, err
	}
	defer crypto.Wipe(mk[:])

	env = domain.Envelope{ID: uuid.NewString(), Server: server, CreatedAt: now}
	for _, t := range targets {
		h := domain.EnvelopeHeader{
			ToIdentity:   t.recipient.Identity,
			ToDevice:     t.recipient.Device,
			FromIdentity: owned,
			FromDevice:   local,
			Variant:      t.variant,
			Broadcast:    t.broadcast,
		}
		if werr := d.wrapKey(tx, env.ID, &h, mk, now); werr != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s/%s: %w", t.recipient.Identity.Server, t.recipient.Device, werr))
			continue
		}
		env.Headers = append(env.Headers, h)
	}
	if len(env.Headers) == 0 {
		return env, failures, nil
	}
	env.Payload, err = crypto.SealPayload(mk, payloadAD(env.ID), plaintext)
	return env, failures, err
}

func (d *Dispatcher) wrapKey(tx domain.Tx, envelopeID string, h *domain.EnvelopeHeader, mk domain.SymmetricKey, now time.Time) error {
	switch h.Variant {
	case domain.VariantOblivious:
		key := domain.ChannelKey{
			Owned:          h.FromIdentity,
			LocalDevice:    h.FromDevice,
			RemoteIdentity: h.ToIdentity,
			RemoteDevice:   h.ToDevice,
		}
		// The chain only advances once the key has wrapped mk.
		sk, err := d.registry.PeekNextSendKey(tx, key)
		if err != nil {
			return err
		}
		defer crypto.Wipe(sk.Key[:])
		h.Index = sk.Index
		wrapped, err := ratchet.Seal(sk.Key, sk.Index, headerAD(envelopeID, *h), mk[:])
		if err != nil {
			return err
		}
		used, err := d.registry.DeriveNextSendKey(tx, key, now)
		if err != nil {
			return err
		}
		crypto.Wipe(used.Key[:])
		if used.Index != sk.Index {
			return fmt.Errorf("send chain moved from %d to %d while wrapping", sk.Index, used.Index)
		}
		if err := d.registry.MarkConsumed(tx, key, domain.DirectionSend, used.Index, now); err != nil {
			return err
		}
		h.WrappedKey = wrapped
		return nil
	case domain.VariantAsymmetric:
		wrapped, err := crypto.SealTo(h.ToIdentity.EncryptionKey, mk[:], headerAD(envelopeID, *h))
		if err != nil {
			return err
		}
		h.WrappedKey = wrapped
		return nil
	default:
		return fmt.Errorf("unsupported channel variant %s", h.Variant)
	}
}

func (d *Dispatcher) query(owned domain.Identity, msg domain.LogicalMessage, s ServerQuery) (*Prepared, error) {
	if msg.Protocol == nil {
		return nil, fmt.Errorf("%w: server queries carry protocol messages only", ErrNoDestinationResolvable)
	}
	return &Prepared{Queries: []domain.ServerQuery{{
		ID:       uuid.NewString(),
		Server:   owned.Server,
		Owned:    owned,
		Protocol: msg.Protocol.Protocol,
		Instance: msg.Protocol.Instance,
		Kind:     s.Kind,
		Payload:  s.Payload,
	}}}, nil
}

// groupByServer buckets targets by home server, keeping first-seen order.
func groupByServer(targets []target) ([]string, map[string][]target) {
	var order []string
	groups := make(map[string][]target)
	for _, t := range targets {
		s := t.recipient.Identity.Server
		if _, ok := groups[s]; !ok {
			order = append(order, s)
		}
		groups[s] = append(groups[s], t)
	}
	return order, groups
}

// headerAD binds a wrapped key to its envelope and every other header field.
func headerAD(envelopeID string, h domain.EnvelopeHeader) []byte {
	h.WrappedKey = nil
	return append([]byte("obv|header|"+envelopeID+"|"), codec.MustMarshal(h)...)
}

func payloadAD(envelopeID string) []byte {
	return []byte("obv|payload|" + envelopeID)
}
