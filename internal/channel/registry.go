package channel

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"obvcore/internal/domain"
	"obvcore/internal/protocol/ratchet"
	"obvcore/internal/store"
)

const (
	// DefaultWindow is how many receive keys are provisioned ahead of the
	// last consumed one.
	DefaultWindow = 100
	// DefaultRetention is how long consumed tombstones are kept.
	DefaultRetention = 24 * time.Hour
)

var (
	ErrChannelAlreadyExists = errors.New("oblivious channel already exists")
	ErrChannelNotFound      = errors.New("oblivious channel not found")
)

// Config tunes a Registry.
type Config struct {
	Window    uint64
	Retention time.Duration
	Logger    *logrus.Logger
}

// Registry owns oblivious channels and their provisions.
type Registry struct {
	window    uint64
	retention time.Duration
	log       *logrus.Entry
}

// Remote is a device the owned identity has a channel with.
type Remote struct {
	Identity    domain.Identity
	Device      domain.DeviceID
	LocalDevice domain.DeviceID
	Confirmed   bool
}

// New returns a Registry; zero config values take the defaults.
func New(cfg Config) *Registry {
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Retention == 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Registry{
		window:    cfg.Window,
		retention: cfg.Retention,
		log:       cfg.Logger.WithField("component", "channel"),
	}
}

// Create registers a new unconfirmed channel and provisions its receive window.
func (r *Registry) Create(tx domain.Tx, key domain.ChannelKey, seed domain.Seed, now time.Time) error {
	exists, err := r.Exists(tx, key)
	if err != nil {
		return err
	}
	if exists {
		return ErrChannelAlreadyExists
	}

	send, recv, err := ratchet.DeriveChains(seed,
		ratchet.Endpoint{Identity: key.Owned, Device: key.LocalDevice},
		ratchet.Endpoint{Identity: key.RemoteIdentity, Device: key.RemoteDevice},
	)
	if err != nil {
		return err
	}

	ch := domain.ObliviousChannel{
		Key:             key,
		Status:          domain.ChannelUnconfirmed,
		SeedFingerprint: ratchet.Fingerprint(seed),
		CreatedAt:       now,
	}
	if err := store.Save(tx, channelKey(key), ch); err != nil {
		return err
	}
	if err := saveChain(tx, key, domain.DirectionSend, chainState{Head: send, LastConsumed: none}); err != nil {
		return err
	}
	st := chainState{Head: recv, LastConsumed: none}
	if err := r.topUp(tx, key, &st, now); err != nil {
		return err
	}
	if err := saveChain(tx, key, domain.DirectionReceive, st); err != nil {
		return err
	}

	r.log.WithFields(logrus.Fields{
		"channel": describe(key),
		"seed":    ch.SeedFingerprint,
	}).Debug("oblivious channel created")
	return nil
}

// Get returns the channel stored under key.
func (r *Registry) Get(tx domain.Tx, key domain.ChannelKey) (domain.ObliviousChannel, bool, error) {
	return store.Load[domain.ObliviousChannel](tx, channelKey(key))
}

// Exists reports whether a channel, confirmed or not, is stored under key.
func (r *Registry) Exists(tx domain.Tx, key domain.ChannelKey) (bool, error) {
	_, ok, err := tx.Get(channelKey(key))
	return ok, err
}

// ExistsConfirmed reports whether a confirmed channel is stored under key.
func (r *Registry) ExistsConfirmed(tx domain.Tx, key domain.ChannelKey) (bool, error) {
	ch, ok, err := r.Get(tx, key)
	if err != nil || !ok {
		return false, err
	}
	return ch.Confirmed(), nil
}

// Confirm marks the channel as confirmed. Confirming twice is a no-op.
func (r *Registry) Confirm(tx domain.Tx, key domain.ChannelKey, now time.Time) error {
	ch, ok, err := r.Get(tx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrChannelNotFound
	}
	if ch.Confirmed() {
		return nil
	}
	ch.Status = domain.ChannelConfirmed
	ch.ConfirmedAt = now
	if err := store.Save(tx, channelKey(key), ch); err != nil {
		return err
	}
	r.log.WithField("channel", describe(key)).Debug("oblivious channel confirmed")
	return nil
}

// Delete removes the channel together with its chains and every provision.
// Deleting a missing channel is a no-op.
func (r *Registry) Delete(tx domain.Tx, key domain.ChannelKey) error {
	if err := tx.Delete(channelKey(key)); err != nil {
		return err
	}
	for _, dir := range []domain.Direction{domain.DirectionSend, domain.DirectionReceive} {
		if err := tx.Delete(chainKey(key, dir)); err != nil {
			return err
		}
	}
	n, err := store.DeletePrefix(tx, provisionPrefix(key))
	if err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"channel":    describe(key),
		"provisions": n,
	}).Debug("oblivious channel deleted")
	return nil
}

// ChannelsWith lists the channels between the local device and every device
// of remote.
func (r *Registry) ChannelsWith(tx domain.Tx, owned domain.Identity, local domain.DeviceID, remote domain.Identity) ([]domain.ObliviousChannel, error) {
	return store.LoadAll[domain.ObliviousChannel](tx,
		store.Prefix(channelNS, owned.Key(), local.String(), remote.Key()))
}

// AnyObliviousChannelExists reports whether local has a channel with any
// device of remote, confirmed or not.
func (r *Registry) AnyObliviousChannelExists(tx domain.Tx, owned domain.Identity, local domain.DeviceID, remote domain.Identity) (bool, error) {
	kvs, err := tx.Scan(store.Prefix(channelNS, owned.Key(), local.String(), remote.Key()))
	return len(kvs) > 0, err
}

// AllRemoteDevicesWithChannel lists every remote device any local device of
// owned has a channel with, sorted for stable output.
func (r *Registry) AllRemoteDevicesWithChannel(tx domain.Tx, owned domain.Identity) ([]Remote, error) {
	chs, err := store.LoadAll[domain.ObliviousChannel](tx, store.Prefix(channelNS, owned.Key()))
	if err != nil {
		return nil, err
	}
	out := make([]Remote, 0, len(chs))
	for _, ch := range chs {
		out = append(out, Remote{
			Identity:    ch.Key.RemoteIdentity,
			Device:      ch.Key.RemoteDevice,
			LocalDevice: ch.Key.LocalDevice,
			Confirmed:   ch.Confirmed(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Identity != out[j].Identity {
			return out[i].Identity.Key() < out[j].Identity.Key()
		}
		if out[i].Device != out[j].Device {
			return out[i].Device < out[j].Device
		}
		return out[i].LocalDevice < out[j].LocalDevice
	})
	return out, nil
}

// DeleteAllWith deletes every channel between any local device of owned and
// any device of remote, and returns how many were removed.
func (r *Registry) DeleteAllWith(tx domain.Tx, owned, remote domain.Identity) (int, error) {
	chs, err := store.LoadAll[domain.ObliviousChannel](tx, store.Prefix(channelNS, owned.Key()))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ch := range chs {
		if ch.Key.RemoteIdentity != remote {
			continue
		}
		if err := r.Delete(tx, ch.Key); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// DeleteAllOf deletes every channel of owned.
func (r *Registry) DeleteAllOf(tx domain.Tx, owned domain.Identity) (int, error) {
	chs, err := store.LoadAll[domain.ObliviousChannel](tx, store.Prefix(channelNS, owned.Key()))
	if err != nil {
		return 0, err
	}
	for _, ch := range chs {
		if err := r.Delete(tx, ch.Key); err != nil {
			return 0, err
		}
	}
	return len(chs), nil
}

func describe(key domain.ChannelKey) string {
	return fmt.Sprintf("%s/%s>%s/%s", key.Owned.Server, key.LocalDevice, key.RemoteIdentity.Server, key.RemoteDevice)
}
