package channelcreation

import (
	"errors"

	"obvcore/internal/channel"
	"obvcore/internal/crypto"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/protocol/ratchet"
	"obvcore/internal/protocols/transcript"
)

const (
	pingLabel = "channel-creation/ping"
	pongLabel = "channel-creation/pong"
)

func sendPing(sc definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
	msg := m.(Initiate)
	log := sc.Log().WithField("remote_device", msg.RemoteDevice)
	if msg.RemoteIdentity == sc.Owned() && msg.RemoteDevice == sc.CurrentDevice() {
		log.Warn("refusing to create a channel with the current device")
		return definition.Cancelled{}, nil
	}
	if msg.RemoteIdentity != sc.Owned() {
		known, err := sc.Directory().IsKnownContact(msg.RemoteIdentity)
		if err != nil {
			return nil, err
		}
		if !known {
			log.Warn("refusing to create a channel with an unknown identity")
			return definition.Cancelled{}, nil
		}
	}
	if confirmed, err := sc.Channels().ExistsConfirmed(msg.RemoteIdentity, msg.RemoteDevice); err != nil || confirmed {
		return definition.Final{}, err
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	keys, err := sc.OwnedKeys()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeOwnedKeys(&keys)

	ping := Ping{
		FromIdentity: sc.Owned(),
		FromDevice:   sc.CurrentDevice(),
		ToDevice:     msg.RemoteDevice,
		EphemeralKey: pub,
	}
	ping.Signature = transcript.Sign(keys, pingLabel, sc.Instance(), ping.FromIdentity, ping.FromDevice, msg.RemoteIdentity, ping.ToDevice, pub)

	sel := dispatch.Asymmetric{Identity: msg.RemoteIdentity, Devices: []domain.DeviceID{msg.RemoteDevice}}
	if err := sc.Post(sel, ping); err != nil {
		return nil, err
	}
	return WaitingForPong{
		RemoteIdentity:   msg.RemoteIdentity,
		RemoteDevice:     msg.RemoteDevice,
		EphemeralPrivate: priv,
		EphemeralPublic:  pub,
	}, nil
}

func respondToPing(sc definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
	ping := m.(Ping)
	log := sc.Log().WithField("remote_device", ping.FromDevice)
	if ping.ToDevice != sc.CurrentDevice() {
		log.Debug("ping addressed to another device")
		return definition.Cancelled{}, nil
	}
	if !transcript.Verify(ping.FromIdentity, ping.Signature, pingLabel, sc.Instance(), ping.FromIdentity, ping.FromDevice, sc.Owned(), ping.ToDevice, ping.EphemeralKey) {
		log.Warn("ping signature rejected")
		return definition.Cancelled{}, nil
	}
	if ping.FromIdentity == sc.Owned() {
		if ping.FromDevice == sc.CurrentDevice() {
			return definition.Cancelled{}, nil
		}
		if err := sc.Directory().AddOwnedDevice(ping.FromDevice); err != nil {
			return nil, err
		}
	} else {
		known, err := sc.Directory().IsKnownContact(ping.FromIdentity)
		if err != nil {
			return nil, err
		}
		if !known {
			log.Warn("ping from an unknown identity")
			return definition.Cancelled{}, nil
		}
		if err := sc.Directory().AddContactDevice(ping.FromIdentity, ping.FromDevice); err != nil {
			return nil, err
		}
	}

	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return nil, err
	}
	dh, err := crypto.DH(priv, ping.EphemeralKey)
	if err != nil {
		log.WithError(err).Warn("invalid ephemeral key")
		return definition.Cancelled{}, nil
	}
	seed := ratchet.SeedFromExchange(dh, ping.EphemeralKey, pub)
	defer crypto.Wipe(seed[:])
	if err := recreate(sc, ping.FromIdentity, ping.FromDevice, seed); err != nil {
		return nil, err
	}

	keys, err := sc.OwnedKeys()
	if err != nil {
		return nil, err
	}
	defer crypto.WipeOwnedKeys(&keys)
	pong := Pong{
		FromIdentity: sc.Owned(),
		FromDevice:   sc.CurrentDevice(),
		ToDevice:     ping.FromDevice,
		EphemeralKey: pub,
	}
	pong.Signature = transcript.Sign(keys, pongLabel, sc.Instance(), pong.FromIdentity, pong.FromDevice, ping.FromIdentity, pong.ToDevice, ping.EphemeralKey, pub)

	sel := dispatch.Asymmetric{Identity: ping.FromIdentity, Devices: []domain.DeviceID{ping.FromDevice}}
	if err := sc.Post(sel, pong); err != nil {
		return nil, err
	}
	return WaitingForAck1{RemoteIdentity: ping.FromIdentity, RemoteDevice: ping.FromDevice}, nil
}

func processPong(sc definition.StepContext, s definition.State, m definition.Message) (definition.State, error) {
	st, pong := s.(WaitingForPong), m.(Pong)
	defer crypto.Wipe(st.EphemeralPrivate[:])
	log := sc.Log().WithField("remote_device", st.RemoteDevice)
	if pong.FromIdentity != st.RemoteIdentity || pong.FromDevice != st.RemoteDevice || pong.ToDevice != sc.CurrentDevice() {
		log.Warn("pong from an unexpected device")
		return definition.Cancelled{}, nil
	}
	if !transcript.Verify(pong.FromIdentity, pong.Signature, pongLabel, sc.Instance(), pong.FromIdentity, pong.FromDevice, sc.Owned(), pong.ToDevice, st.EphemeralPublic, pong.EphemeralKey) {
		log.Warn("pong signature rejected")
		return definition.Cancelled{}, nil
	}

	dh, err := crypto.DH(st.EphemeralPrivate, pong.EphemeralKey)
	if err != nil {
		log.WithError(err).Warn("invalid ephemeral key")
		return definition.Cancelled{}, nil
	}
	seed := ratchet.SeedFromExchange(dh, st.EphemeralPublic, pong.EphemeralKey)
	defer crypto.Wipe(seed[:])
	if err := recreate(sc, st.RemoteIdentity, st.RemoteDevice, seed); err != nil {
		return nil, err
	}

	sel := dispatch.PointToPoint{Identity: st.RemoteIdentity, Device: st.RemoteDevice, AllowUnconfirmed: true}
	if err := sc.Post(sel, Ack1{}); err != nil {
		return nil, err
	}
	return WaitingForAck2{RemoteIdentity: st.RemoteIdentity, RemoteDevice: st.RemoteDevice}, nil
}

func processAck1(sc definition.StepContext, s definition.State, _ definition.Message) (definition.State, error) {
	st := s.(WaitingForAck1)
	if !fromRemote(sc.Reception(), st.RemoteIdentity, st.RemoteDevice) {
		sc.Log().Warn("ack-1 over an unexpected channel")
		return st, nil
	}
	if err := sc.Channels().Confirm(st.RemoteIdentity, st.RemoteDevice); err != nil {
		return nil, err
	}
	sel := dispatch.PointToPoint{Identity: st.RemoteIdentity, Device: st.RemoteDevice}
	if err := sc.Post(sel, Ack2{}); err != nil {
		return nil, err
	}
	sc.Log().WithField("remote_device", st.RemoteDevice).Info("channel confirmed")
	return definition.Final{}, nil
}

func processAck2(sc definition.StepContext, s definition.State, _ definition.Message) (definition.State, error) {
	st := s.(WaitingForAck2)
	if !fromRemote(sc.Reception(), st.RemoteIdentity, st.RemoteDevice) {
		sc.Log().Warn("ack-2 over an unexpected channel")
		return st, nil
	}
	if err := sc.Channels().Confirm(st.RemoteIdentity, st.RemoteDevice); err != nil {
		return nil, err
	}
	sc.Log().WithField("remote_device", st.RemoteDevice).Info("channel confirmed")
	return definition.Final{}, nil
}

// recreate replaces any existing channel with remote so that a repeated
// handshake re-keys it.
func recreate(sc definition.StepContext, remote domain.Identity, device domain.DeviceID, seed domain.Seed) error {
	err := sc.Channels().Create(remote, device, seed)
	if !errors.Is(err, channel.ErrChannelAlreadyExists) {
		return err
	}
	if err := sc.Channels().Delete(remote, device); err != nil {
		return err
	}
	return sc.Channels().Create(remote, device, seed)
}

func fromRemote(rc domain.ReceptionChannel, remote domain.Identity, device domain.DeviceID) bool {
	return rc.RemoteIdentity == remote && rc.RemoteDevice == device
}
