package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"obvcore/internal/channel"
	"obvcore/internal/codec"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/store"
)

const (
	// DefaultWorkers bounds concurrent envelope processing in DeliverBatch.
	DefaultWorkers = 4
	// DefaultParkedTTL is how long an envelope waits for its channel.
	DefaultParkedTTL = 7 * 24 * time.Hour
	// DefaultCompletedTTL is how long a finished instance keeps rejecting
	// late messages. It should outlive envelopes held by the relay.
	DefaultCompletedTTL = 30 * 24 * time.Hour
)

var (
	ErrInvalidConfig    = errors.New("invalid engine configuration")
	ErrMalformedMessage = errors.New("malformed protocol message")
	ErrUnknownDialog    = errors.New("unknown dialog")
)

// Config wires the collaborators of an Engine. Every required field is
// checked by New.
type Config struct {
	Store        domain.Store             `validate:"required"`
	Directory    domain.IdentityDirectory `validate:"required"`
	Registry     *channel.Registry        `validate:"required"`
	Dispatcher   *dispatch.Dispatcher     `validate:"required"`
	Protocols    *definition.Registry     `validate:"required"`
	Network      domain.NetworkPoster     `validate:"required"`
	Dialogs      domain.DialogPresenter   `validate:"required"`
	Application  domain.ApplicationSink
	Logger       *logrus.Logger `validate:"required"`
	Workers      int            `validate:"gte=1"`
	ParkedTTL    time.Duration  `validate:"gte=0"`
	CompletedTTL time.Duration  `validate:"gte=0"`
	Clock        func() time.Time
}

// Engine executes protocol steps.
type Engine struct {
	store     domain.Store
	dir       domain.IdentityDirectory
	reg       *channel.Registry
	disp      *dispatch.Dispatcher
	protocols *definition.Registry
	network   domain.NetworkPoster
	dialogs   domain.DialogPresenter
	app       domain.ApplicationSink
	log       *logrus.Entry
	workers   int
	parkedTTL time.Duration
	doneTTL   time.Duration
	now       func() time.Time
	locks     *keyedMutex
}

// New validates cfg and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.ParkedTTL == 0 {
		cfg.ParkedTTL = DefaultParkedTTL
	}
	if cfg.CompletedTTL == 0 {
		cfg.CompletedTTL = DefaultCompletedTTL
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &Engine{
		store:     cfg.Store,
		dir:       cfg.Directory,
		reg:       cfg.Registry,
		disp:      cfg.Dispatcher,
		protocols: cfg.Protocols,
		network:   cfg.Network,
		dialogs:   cfg.Dialogs,
		app:       cfg.Application,
		log:       cfg.Logger.WithField("component", "engine"),
		workers:   cfg.Workers,
		parkedTTL: cfg.ParkedTTL,
		doneTTL:   cfg.CompletedTTL,
		now:       cfg.Clock,
		locks:     newKeyedMutex(),
	}, nil
}

// StartProtocol creates a new instance of protocol and delivers initial to
// it locally. The returned instance id is shared with every participant.
func (e *Engine) StartProtocol(ctx context.Context, protocol domain.ProtocolID, initial definition.Message, owned domain.Identity, flow domain.FlowID) (domain.InstanceID, error) {
	p, ok := e.protocols.Protocol(protocol)
	if !ok {
		return "", fmt.Errorf("%w: %s", definition.ErrUnknownProtocol, protocol)
	}
	instance := domain.NewInstanceID()
	pm, err := p.NewMessage(instance, initial)
	if err != nil {
		return "", err
	}
	return instance, e.deliverProtocol(ctx, pm, domain.LocalReception(owned), flow)
}

// DeliverDecryptedProtocolMessage feeds an already decrypted protocol message
// to its instance. Only a malformed encoding is reported; a message that no
// step accepts is discarded, and step failures are logged and retried by
// Resume.
func (e *Engine) DeliverDecryptedProtocolMessage(ctx context.Context, raw []byte, rc domain.ReceptionChannel, flow domain.FlowID) error {
	var pm domain.ProtocolMessage
	if err := codec.Unmarshal(raw, &pm); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if pm.Protocol == "" || pm.Type == "" || pm.Instance == "" {
		return fmt.Errorf("%w: missing protocol, type or instance", ErrMalformedMessage)
	}
	return e.deliverProtocol(ctx, pm, rc, flow)
}

func (e *Engine) deliverProtocol(ctx context.Context, pm domain.ProtocolMessage, rc domain.ReceptionChannel, flow domain.FlowID) error {
	item := newInboxItem(rc.Owned, domain.LogicalMessage{Kind: domain.LogicalProtocol, Protocol: &pm}, rc, flow, e.now())
	if err := e.store.Update(ctx, func(tx domain.Tx) error {
		return store.Save(tx, inboxKey(item.ID), item)
	}); err != nil {
		return err
	}
	if err := e.processInbox(ctx, item); err != nil {
		e.entry(item).WithError(err).Error("protocol message processing failed, kept for retry")
	}
	return nil
}

// PostMessage wraps msg for the devices sel resolves to and posts it. The
// envelopes are queued before posting, so a failed post is retried by
// FlushOutbox.
func (e *Engine) PostMessage(ctx context.Context, owned domain.Identity, msg domain.LogicalMessage, sel dispatch.Selector, flow domain.FlowID) (domain.PerRecipientMessageIDs, error) {
	var (
		prepared *dispatch.Prepared
		locals   []inboxItem
	)
	err := e.store.Update(ctx, func(tx domain.Tx) error {
		local, err := e.dir.CurrentDevice(tx, owned)
		if err != nil {
			return err
		}
		prepared, err = e.disp.Wrap(tx, owned, local, msg, sel, e.now())
		if err != nil {
			return err
		}
		locals, err = e.queueLocal(tx, owned, prepared.Local, flow)
		if err != nil {
			return err
		}
		return dispatch.Enqueue(tx, prepared)
	})
	if err != nil {
		return nil, err
	}
	for _, item := range locals {
		if err := e.processInbox(ctx, item); err != nil {
			e.entry(item).WithError(err).Error("local delivery failed, kept for retry")
		}
	}
	sent, err := e.flush(ctx, prepared)
	if err != nil {
		e.log.WithError(err).WithField("flow", flow).Warn("post incomplete; envelopes stay queued")
	}
	return sent.IDs, err
}

// FlushOutbox posts every queued envelope and query.
func (e *Engine) FlushOutbox(ctx context.Context) error {
	var pending *dispatch.Prepared
	if err := e.store.View(ctx, func(tx domain.Tx) error {
		var err error
		pending, err = dispatch.Pending(tx)
		return err
	}); err != nil {
		return err
	}
	if pending.Empty() {
		return nil
	}
	_, err := e.flush(ctx, pending)
	return err
}

func (e *Engine) flush(ctx context.Context, p *dispatch.Prepared) (dispatch.Sent, error) {
	if len(p.Envelopes)+len(p.Queries) == 0 {
		return dispatch.Sent{IDs: domain.PerRecipientMessageIDs{}}, nil
	}
	sent, postErr := dispatch.Post(ctx, e.network, p)
	if len(sent.Envelopes)+len(sent.Queries) > 0 {
		if err := e.store.Update(context.WithoutCancel(ctx), func(tx domain.Tx) error {
			return dispatch.Dequeue(tx, sent.Envelopes, sent.Queries)
		}); err != nil {
			return sent, err
		}
	}
	return sent, postErr
}

// RespondToDialog delivers the user's response to the instance that raised
// the dialog, as a local message.
func (e *Engine) RespondToDialog(ctx context.Context, owned domain.Identity, id domain.DialogID, response definition.Message, flow domain.FlowID) error {
	var item inboxItem
	err := e.store.Update(ctx, func(tx domain.Tx) error {
		d, ok, err := store.Load[domain.Dialog](tx, dialogKey(owned, id))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownDialog, id)
		}
		pm, err := definition.EncodeMessage(d.Protocol, d.Instance, response)
		if err != nil {
			return err
		}
		item = newInboxItem(owned, domain.LogicalMessage{Kind: domain.LogicalProtocol, Protocol: &pm}, domain.LocalReception(owned), flow, e.now())
		if err := tx.Delete(dialogKey(owned, id)); err != nil {
			return err
		}
		return store.Save(tx, inboxKey(item.ID), item)
	})
	if err != nil {
		return err
	}
	return e.processInbox(ctx, item)
}

// Dialogs lists the dialogs awaiting a response for owned.
func (e *Engine) Dialogs(ctx context.Context, owned domain.Identity) ([]domain.Dialog, error) {
	var out []domain.Dialog
	err := e.store.View(ctx, func(tx domain.Tx) error {
		var err error
		out, err = store.LoadAll[domain.Dialog](tx, store.Prefix(dialogNS, owned.Key()))
		return err
	})
	return out, err
}

// AbortProtocol deletes an instance and its dialogs. Messages still in
// flight for it are dropped afterwards.
func (e *Engine) AbortProtocol(ctx context.Context, owned domain.Identity, instance domain.InstanceID) error {
	unlock := e.locks.Lock(lockKey(owned, instance))
	defer unlock()
	return e.store.Update(ctx, func(tx domain.Tx) error {
		inst, found, err := loadInstance(tx, owned, instance)
		if err != nil || !found {
			return err
		}
		if err := deleteDialogsOf(tx, owned, instance); err != nil {
			return err
		}
		if err := tx.Delete(instanceKey(owned, instance)); err != nil {
			return err
		}
		return markCompleted(tx, owned, instance, inst.Protocol, e.now())
	})
}

// Instances lists the running instances of owned.
func (e *Engine) Instances(ctx context.Context, owned domain.Identity) ([]domain.ProtocolInstance, error) {
	var out []domain.ProtocolInstance
	err := e.store.View(ctx, func(tx domain.Tx) error {
		var err error
		out, err = store.LoadAll[domain.ProtocolInstance](tx, store.Prefix(instanceNS, owned.Key()))
		return err
	})
	return out, err
}

// CollectGarbage removes expired key tombstones, envelopes parked for longer
// than the parked TTL and completion marks older than the completed TTL.
func (e *Engine) CollectGarbage(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := e.store.Update(ctx, func(tx domain.Tx) error {
		var err error
		if n, err = e.reg.DeleteExpired(tx, now); err != nil {
			return err
		}
		parked, err := tx.Scan(store.Prefix(pendingNS))
		if err != nil {
			return err
		}
		for _, kv := range parked {
			var p parkedEnvelope
			if err := codec.Unmarshal(kv.Value, &p); err != nil {
				return err
			}
			if now.Sub(p.ParkedAt) < e.parkedTTL {
				continue
			}
			if err := tx.Delete(kv.Key); err != nil {
				return err
			}
			n++
		}
		done, err := tx.Scan(store.Prefix(doneNS))
		if err != nil {
			return err
		}
		for _, kv := range done {
			var c completedInstance
			if err := codec.Unmarshal(kv.Value, &c); err != nil {
				return err
			}
			if now.Sub(c.At) < e.doneTTL {
				continue
			}
			if err := tx.Delete(kv.Key); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// DeleteOwnedIdentity removes owned together with its channels, key
// material, instances, dialogs, inbox and contacts in one transaction.
func (e *Engine) DeleteOwnedIdentity(ctx context.Context, owned domain.Identity) error {
	return e.store.Update(ctx, func(tx domain.Tx) error {
		if _, err := e.reg.DeleteAllOf(tx, owned); err != nil {
			return err
		}
		for _, prefix := range [][]byte{
			store.Prefix(instanceNS, owned.Key()),
			store.Prefix(dialogNS, owned.Key()),
			store.Prefix(doneNS, owned.Key()),
		} {
			if _, err := store.DeletePrefix(tx, prefix); err != nil {
				return err
			}
		}
		inbox, err := tx.Scan(store.Prefix(inboxNS))
		if err != nil {
			return err
		}
		for _, kv := range inbox {
			var item inboxItem
			if err := codec.Unmarshal(kv.Value, &item); err != nil {
				return err
			}
			if item.Owned != owned {
				continue
			}
			if err := tx.Delete(kv.Key); err != nil {
				return err
			}
		}
		return e.dir.DeleteOwnedIdentity(tx, owned)
	})
}

func (e *Engine) entry(item inboxItem) *logrus.Entry {
	f := logrus.Fields{
		"flow":      item.Flow,
		"owned":     item.Owned.Server,
		"reception": item.Reception.String(),
	}
	if pm := item.Message.Protocol; pm != nil {
		f["protocol"] = pm.Protocol
		f["instance"] = pm.Instance
		f["type"] = pm.Type
	}
	return e.log.WithFields(f)
}
