package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"obvcore/internal/codec"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/store"
)

// stepContext binds a running step to its transaction. It is only valid
// while the step runs.
type stepContext struct {
	ctx   context.Context
	e     *Engine
	tx    domain.Tx
	item  inboxItem
	proto *definition.Protocol
	local domain.DeviceID
	now   time.Time
	log   *logrus.Entry

	out             *dispatch.Prepared
	dialogs         []domain.Dialog
	channelsCreated bool
}

var _ definition.StepContext = (*stepContext)(nil)

func (sc *stepContext) Context() context.Context           { return sc.ctx }
func (sc *stepContext) Now() time.Time                     { return sc.now }
func (sc *stepContext) Log() *logrus.Entry                 { return sc.log }
func (sc *stepContext) Owned() domain.Identity             { return sc.item.Owned }
func (sc *stepContext) CurrentDevice() domain.DeviceID     { return sc.local }
func (sc *stepContext) Protocol() domain.ProtocolID        { return sc.proto.ID }
func (sc *stepContext) Instance() domain.InstanceID        { return sc.item.Message.Protocol.Instance }
func (sc *stepContext) Flow() domain.FlowID                { return sc.item.Flow }
func (sc *stepContext) Reception() domain.ReceptionChannel { return sc.item.Reception }

func (sc *stepContext) OwnedKeys() (domain.OwnedIdentityKeys, error) {
	return sc.e.dir.OwnedKeys(sc.tx, sc.item.Owned)
}

func (sc *stepContext) Channels() definition.ChannelOps    { return channelOps{sc} }
func (sc *stepContext) Directory() definition.DirectoryOps { return directoryOps{sc} }

func (sc *stepContext) Post(sel dispatch.Selector, msg definition.Message) error {
	return sc.PostTo(sc.proto.ID, sc.Instance(), sel, msg)
}

func (sc *stepContext) PostTo(protocol domain.ProtocolID, instance domain.InstanceID, sel dispatch.Selector, msg definition.Message) error {
	pm, err := definition.EncodeMessage(protocol, instance, msg)
	if err != nil {
		return err
	}
	lm := domain.LogicalMessage{Kind: domain.LogicalProtocol, Protocol: &pm}
	prepared, err := sc.e.disp.Wrap(sc.tx, sc.item.Owned, sc.local, lm, sel, sc.now)
	if err != nil {
		return err
	}
	sc.out.Merge(prepared)
	sc.log.WithFields(logrus.Fields{
		"message":  msg.MessageType(),
		"selector": sel.String(),
	}).Debug("message posted")
	return nil
}

func (sc *stepContext) PresentDialog(kind string, payload any) (domain.DialogID, error) {
	raw, err := codec.Marshal(payload)
	if err != nil {
		return "", err
	}
	d := domain.Dialog{
		ID:        domain.DialogID(uuid.NewString()),
		Owned:     sc.item.Owned,
		Protocol:  sc.proto.ID,
		Instance:  sc.Instance(),
		Kind:      kind,
		Payload:   raw,
		CreatedAt: sc.now,
	}
	if err := store.Save(sc.tx, dialogKey(d.Owned, d.ID), d); err != nil {
		return "", err
	}
	sc.dialogs = append(sc.dialogs, d)
	return d.ID, nil
}

type channelOps struct{ sc *stepContext }

func (c channelOps) key(remote domain.Identity, device domain.DeviceID) domain.ChannelKey {
	return domain.ChannelKey{
		Owned:          c.sc.item.Owned,
		LocalDevice:    c.sc.local,
		RemoteIdentity: remote,
		RemoteDevice:   device,
	}
}

func (c channelOps) Create(remote domain.Identity, device domain.DeviceID, seed domain.Seed) error {
	if err := c.sc.e.reg.Create(c.sc.tx, c.key(remote, device), seed, c.sc.now); err != nil {
		return err
	}
	c.sc.channelsCreated = true
	return nil
}

func (c channelOps) Confirm(remote domain.Identity, device domain.DeviceID) error {
	return c.sc.e.reg.Confirm(c.sc.tx, c.key(remote, device), c.sc.now)
}

func (c channelOps) Delete(remote domain.Identity, device domain.DeviceID) error {
	return c.sc.e.reg.Delete(c.sc.tx, c.key(remote, device))
}

func (c channelOps) Exists(remote domain.Identity, device domain.DeviceID) (bool, error) {
	return c.sc.e.reg.Exists(c.sc.tx, c.key(remote, device))
}

func (c channelOps) ExistsConfirmed(remote domain.Identity, device domain.DeviceID) (bool, error) {
	return c.sc.e.reg.ExistsConfirmed(c.sc.tx, c.key(remote, device))
}

func (c channelOps) DevicesWith(remote domain.Identity, confirmedOnly bool) ([]domain.DeviceID, error) {
	chs, err := c.sc.e.reg.ChannelsWith(c.sc.tx, c.sc.item.Owned, c.sc.local, remote)
	if err != nil {
		return nil, err
	}
	var out []domain.DeviceID
	for _, ch := range chs {
		if confirmedOnly && !ch.Confirmed() {
			continue
		}
		out = append(out, ch.Key.RemoteDevice)
	}
	return out, nil
}

func (c channelOps) DeleteAllWith(remote domain.Identity) (int, error) {
	return c.sc.e.reg.DeleteAllWith(c.sc.tx, c.sc.item.Owned, remote)
}

type directoryOps struct{ sc *stepContext }

func (d directoryOps) IsKnownContact(contact domain.Identity) (bool, error) {
	return d.sc.e.dir.IsKnownContact(d.sc.tx, d.sc.item.Owned, contact)
}

func (d directoryOps) AddContact(contact domain.Identity, devices []domain.DeviceID) error {
	return d.sc.e.dir.AddContact(d.sc.tx, d.sc.item.Owned, contact, devices)
}

func (d directoryOps) AddContactDevice(contact domain.Identity, device domain.DeviceID) error {
	return d.sc.e.dir.AddContactDevice(d.sc.tx, d.sc.item.Owned, contact, device)
}

func (d directoryOps) DeleteContact(contact domain.Identity) error {
	return d.sc.e.dir.DeleteContact(d.sc.tx, d.sc.item.Owned, contact)
}

func (d directoryOps) CurrentDeviceIDs(identity domain.Identity) ([]domain.DeviceID, error) {
	return d.sc.e.dir.CurrentDeviceIDs(d.sc.tx, d.sc.item.Owned, identity)
}

func (d directoryOps) AddOwnedDevice(device domain.DeviceID) error {
	return d.sc.e.dir.AddOwnedDevice(d.sc.tx, d.sc.item.Owned, device)
}
