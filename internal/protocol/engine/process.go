package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"obvcore/internal/channel"
	"obvcore/internal/crypto"
	"obvcore/internal/directory"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/store"
)

// effects are the side effects of a committed step that run outside the
// transaction.
type effects struct {
	out             *dispatch.Prepared
	locals          []inboxItem
	dialogs         []domain.Dialog
	channelsCreated bool
}

// processInbox runs the message held by item. The instance lock is held for
// the transaction only; posting, dialogs and local deliveries happen after
// it is released.
func (e *Engine) processInbox(ctx context.Context, item inboxItem) error {
	switch item.Message.Kind {
	case domain.LogicalApplication:
		return e.deliverApplication(ctx, item)
	case domain.LogicalProtocol:
		if item.Message.Protocol == nil {
			return e.discard(ctx, item, "protocol message without body")
		}
	default:
		return e.discard(ctx, item, fmt.Sprintf("unknown logical message kind %d", item.Message.Kind))
	}

	pm := item.Message.Protocol
	unlock := e.locks.Lock(lockKey(item.Owned, pm.Instance))
	var fx *effects
	err := e.store.Update(ctx, func(tx domain.Tx) error {
		var err error
		fx, err = e.runStep(ctx, tx, item)
		return err
	})
	unlock()
	if err != nil {
		return err
	}
	if fx != nil {
		e.afterCommit(ctx, item, fx)
	}
	return nil
}

func (e *Engine) deliverApplication(ctx context.Context, item inboxItem) error {
	if e.app == nil {
		return e.discard(ctx, item, "no application sink")
	}
	if err := e.app.Deliver(ctx, item.Owned, item.Reception, item.Message.Application); err != nil {
		return fmt.Errorf("deliver application message: %w", err)
	}
	return e.store.Update(ctx, func(tx domain.Tx) error {
		return tx.Delete(inboxKey(item.ID))
	})
}

func (e *Engine) discard(ctx context.Context, item inboxItem, reason string) error {
	e.entry(item).WithField("reason", reason).Warn("discarding message")
	return e.store.Update(ctx, func(tx domain.Tx) error {
		return tx.Delete(inboxKey(item.ID))
	})
}

// runStep executes at most one step for item inside tx. A nil result with a
// nil error means the item was already processed.
func (e *Engine) runStep(ctx context.Context, tx domain.Tx, item inboxItem) (*effects, error) {
	if _, ok, err := tx.Get(inboxKey(item.ID)); err != nil || !ok {
		return nil, err
	}
	log := e.entry(item)
	dropped := func(reason string) (*effects, error) {
		log.WithField("reason", reason).Debug("message dropped")
		return &effects{}, tx.Delete(inboxKey(item.ID))
	}

	pm := *item.Message.Protocol
	p, ok := e.protocols.Protocol(pm.Protocol)
	if !ok {
		return dropped("unknown protocol")
	}
	msg, err := p.DecodeMessage(pm)
	if err != nil {
		log.WithError(err).Warn("undecodable protocol message")
		return &effects{}, tx.Delete(inboxKey(item.ID))
	}

	now := e.now()
	inst, found, err := loadInstance(tx, item.Owned, pm.Instance)
	if err != nil {
		return nil, err
	}
	var state definition.State = definition.Initial{}
	if found {
		if inst.Protocol != pm.Protocol {
			return dropped("instance belongs to " + inst.Protocol.String())
		}
		if state, err = p.DecodeState(definition.StateID(inst.StateID), inst.State); err != nil {
			return nil, err
		}
	} else {
		if _, done, err := tx.Get(completedKey(item.Owned, pm.Instance)); err != nil {
			return nil, err
		} else if done {
			return dropped("instance already completed")
		}
		inst = domain.ProtocolInstance{
			Owned:     item.Owned,
			Instance:  pm.Instance,
			Protocol:  pm.Protocol,
			CreatedAt: now,
		}
	}

	local, err := e.dir.CurrentDevice(tx, item.Owned)
	if errors.Is(err, directory.ErrUnknownOwnedIdentity) {
		return dropped("unknown owned identity")
	}
	if err != nil {
		return nil, err
	}

	step, ok := p.Match(state.StateID(), pm.Type, item.Reception)
	if !ok {
		return dropped(fmt.Sprintf("no step from %s", state.StateID()))
	}

	sc := &stepContext{
		ctx:   ctx,
		e:     e,
		tx:    tx,
		item:  item,
		proto: p,
		local: local,
		now:   now,
		log:   log.WithField("step", step.ID),
		out:   &dispatch.Prepared{},
	}
	next, err := step.Run(sc, state, msg)
	if err != nil {
		return nil, fmt.Errorf("step %s/%s: %w", p.ID, step.ID, err)
	}
	if next == nil || !p.Declares(next.StateID()) {
		return nil, fmt.Errorf("step %s/%s: %w: %v", p.ID, step.ID, definition.ErrUnknownState, next)
	}

	if definition.IsTerminal(next) {
		if err := deleteDialogsOf(tx, item.Owned, pm.Instance); err != nil {
			return nil, err
		}
		sc.dialogs = nil
		if err := tx.Delete(instanceKey(item.Owned, pm.Instance)); err != nil {
			return nil, err
		}
		if err := markCompleted(tx, item.Owned, pm.Instance, pm.Protocol, now); err != nil {
			return nil, err
		}
	} else {
		id, raw, err := definition.EncodeState(next)
		if err != nil {
			return nil, err
		}
		inst.StateID, inst.State, inst.UpdatedAt = string(id), raw, now
		if err := store.Save(tx, instanceKey(item.Owned, pm.Instance), inst); err != nil {
			return nil, err
		}
	}

	locals, err := e.queueLocal(tx, item.Owned, sc.out.Local, item.Flow)
	if err != nil {
		return nil, err
	}
	if err := dispatch.Enqueue(tx, sc.out); err != nil {
		return nil, err
	}
	if err := tx.Delete(inboxKey(item.ID)); err != nil {
		return nil, err
	}
	sc.log.WithFields(logrus.Fields{
		"from": state.StateID(),
		"to":   next.StateID(),
	}).Info("step executed")

	return &effects{
		out:             sc.out,
		locals:          locals,
		dialogs:         sc.dialogs,
		channelsCreated: sc.channelsCreated,
	}, nil
}

// queueLocal stores messages addressed back to this device as inbox items.
func (e *Engine) queueLocal(tx domain.Tx, owned domain.Identity, msgs []domain.LogicalMessage, flow domain.FlowID) ([]inboxItem, error) {
	items := make([]inboxItem, 0, len(msgs))
	for _, msg := range msgs {
		item := newInboxItem(owned, msg, domain.LocalReception(owned), flow, e.now())
		if err := store.Save(tx, inboxKey(item.ID), item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *Engine) afterCommit(ctx context.Context, item inboxItem, fx *effects) {
	log := e.entry(item)
	if fx.out != nil {
		if _, err := e.flush(ctx, fx.out); err != nil {
			log.WithError(err).Warn("post incomplete; envelopes stay queued")
		}
	}
	for _, d := range fx.dialogs {
		if err := e.dialogs.Present(ctx, d); err != nil {
			log.WithError(err).WithField("dialog", d.ID).Warn("dialog presentation failed")
		}
	}
	for _, local := range fx.locals {
		if err := e.processInbox(ctx, local); err != nil {
			e.entry(local).WithError(err).Error("local delivery failed, kept for retry")
		}
	}
	if fx.channelsCreated {
		if err := e.RetryPending(ctx); err != nil {
			log.WithError(err).Warn("retrying parked envelopes failed")
		}
	}
}

type outcome uint8

const (
	received outcome = iota
	parked
	discarded
	skipped
)

// ReceiveEnvelope opens one inbound envelope and runs the message it
// carries. Envelopes for a channel that does not exist yet are parked until
// one is created. Replays, forgeries and misaddressed envelopes are dropped
// without error.
func (e *Engine) ReceiveEnvelope(ctx context.Context, in domain.Inbound, flow domain.FlowID) error {
	_, err := e.receive(ctx, in, flow, false)
	return err
}

func (e *Engine) receive(ctx context.Context, in domain.Inbound, flow domain.FlowID, fromPending bool) (outcome, error) {
	var (
		item inboxItem
		out  = received
		now  = e.now()
	)
	err := e.store.Update(ctx, func(tx domain.Tx) error {
		pk := pendingKey(in)
		_, isParked, err := tx.Get(pk)
		if err != nil {
			return err
		}
		if fromPending && !isParked {
			out = skipped
			return nil
		}
		rec, err := e.disp.Unwrap(tx, in, now)
		if errors.Is(err, channel.ErrChannelNotFound) {
			out = parked
			if isParked {
				return nil
			}
			return store.Save(tx, pk, parkedEnvelope{Inbound: in, Flow: flow, ParkedAt: now})
		}
		if err != nil {
			return err
		}
		if isParked {
			if err := tx.Delete(pk); err != nil {
				return err
			}
		}
		item = newInboxItem(rec.Reception.Owned, rec.Message, rec.Reception, flow, now)
		return store.Save(tx, inboxKey(item.ID), item)
	})

	log := e.log.WithFields(logrus.Fields{"flow": flow, "envelope": in.Envelope.ID, "header": in.Header})
	switch {
	case isDroppable(err):
		log.WithError(err).Debug("envelope dropped")
		if fromPending {
			err = e.store.Update(ctx, func(tx domain.Tx) error { return tx.Delete(pendingKey(in)) })
		} else {
			err = nil
		}
		return discarded, err
	case err != nil:
		return out, err
	case out == parked:
		log.Debug("envelope parked until its channel exists")
		return out, nil
	case out == skipped:
		return out, nil
	}

	if err := e.processInbox(ctx, item); err != nil {
		e.entry(item).WithError(err).Error("message processing failed, kept for retry")
	}
	return out, nil
}

func isDroppable(err error) bool {
	return errors.Is(err, channel.ErrUnknownOrReplayedKey) ||
		errors.Is(err, crypto.ErrDecryptionFailed) ||
		errors.Is(err, dispatch.ErrNotAddressedToUs) ||
		errors.Is(err, dispatch.ErrMalformedEnvelope)
}

// RetryPending retries every parked envelope, lowest key index first.
func (e *Engine) RetryPending(ctx context.Context) error {
	var all []parkedEnvelope
	if err := e.store.View(ctx, func(tx domain.Tx) error {
		var err error
		all, err = store.LoadAll[parkedEnvelope](tx, store.Prefix(pendingNS))
		return err
	}); err != nil {
		return err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return headerIndex(all[i].Inbound) < headerIndex(all[j].Inbound)
	})
	var errs error
	for _, p := range all {
		if _, err := e.receive(ctx, p.Inbound, p.Flow, true); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func headerIndex(in domain.Inbound) uint64 {
	if in.Header < 0 || in.Header >= len(in.Envelope.Headers) {
		return 0
	}
	return in.Envelope.Headers[in.Header].Index
}

// Resume finishes work interrupted by a restart: queued envelopes are
// posted, stored inbox items are processed in arrival order and parked
// envelopes are retried.
func (e *Engine) Resume(ctx context.Context) error {
	errs := e.FlushOutbox(ctx)
	var items []inboxItem
	if err := e.store.View(ctx, func(tx domain.Tx) error {
		var err error
		items, err = store.LoadAll[inboxItem](tx, store.Prefix(inboxNS))
		return err
	}); err != nil {
		return multierr.Append(errs, err)
	}
	for _, item := range items {
		if err := e.processInbox(ctx, item); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return multierr.Append(errs, e.RetryPending(ctx))
}
