package protocols_test

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"obvcore/internal/app"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/protocols"
	"obvcore/internal/protocols/channelcreation"
	"obvcore/internal/relay"
)

type recorder struct {
	mu      sync.Mutex
	dialogs []domain.Dialog
}

func (r *recorder) Present(_ context.Context, d domain.Dialog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dialogs = append(r.dialogs, d)
	return nil
}

// device is one device of an owned identity, with its own database, sharing
// the relay with every other device of the test.
type device struct {
	w       *app.Wire
	id      domain.Identity
	dev     domain.DeviceID
	dialogs *recorder
}

func newWire(t *testing.T, net *relay.Memory, server string, rec *recorder) *app.Wire {
	t.Helper()
	cfg := app.DefaultConfig(t.TempDir())
	cfg.InMemory = true
	cfg.Server = server
	cfg.ProvisionWindow = 16
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	w, err := app.NewWire(cfg, app.WithNetwork(net), app.WithLogger(logger), app.WithDialogs(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func newDevice(t *testing.T, net *relay.Memory, server string) *device {
	t.Helper()
	rec := &recorder{}
	w := newWire(t, net, server, rec)
	keys, dev, err := w.CreateIdentity(context.Background(), "")
	require.NoError(t, err)
	return &device{w: w, id: keys.Identity, dev: dev, dialogs: rec}
}

// newOtherDevice adds a device to the identity of of. Both devices know
// each other.
func newOtherDevice(t *testing.T, net *relay.Memory, of *device) *device {
	t.Helper()
	ctx := context.Background()
	var keys domain.OwnedIdentityKeys
	require.NoError(t, of.w.DB.View(ctx, func(tx domain.Tx) error {
		var err error
		keys, err = of.w.Directory.OwnedKeys(tx, of.id)
		return err
	}))
	rec := &recorder{}
	w := newWire(t, net, of.id.Server, rec)
	d := &device{w: w, id: of.id, dev: domain.NewDeviceID(), dialogs: rec}
	require.NoError(t, w.DB.Update(ctx, func(tx domain.Tx) error {
		if err := w.Directory.AddOwnedIdentity(tx, keys, d.dev); err != nil {
			return err
		}
		return w.Directory.AddOwnedDevice(tx, d.id, of.dev)
	}))
	require.NoError(t, of.w.DB.Update(ctx, func(tx domain.Tx) error {
		return of.w.Directory.AddOwnedDevice(tx, of.id, d.dev)
	}))
	return d
}

// pump syncs every device until the relay is drained.
func pump(t *testing.T, devices ...*device) {
	t.Helper()
	for round := 0; round < 32; round++ {
		total := 0
		for _, d := range devices {
			n, err := d.w.Sync(context.Background(), d.id, 0)
			require.NoError(t, err)
			total += n
		}
		if total == 0 {
			return
		}
	}
	t.Fatal("relay did not drain")
}

// befriend records b as a contact on a with b's device.
func befriend(t *testing.T, a, b *device) {
	t.Helper()
	require.NoError(t, a.w.DB.Update(context.Background(), func(tx domain.Tx) error {
		return a.w.Directory.AddContact(tx, a.id, b.id, []domain.DeviceID{b.dev})
	}))
}

func startChannel(t *testing.T, a, b *device) {
	t.Helper()
	_, err := a.w.Engine.StartProtocol(context.Background(), channelcreation.ID,
		channelcreation.Initiate{RemoteIdentity: b.id, RemoteDevice: b.dev}, a.id, domain.NewFlowID())
	require.NoError(t, err)
}

func channelKey(a, b *device) domain.ChannelKey {
	return domain.ChannelKey{Owned: a.id, LocalDevice: a.dev, RemoteIdentity: b.id, RemoteDevice: b.dev}
}

func channelState(t *testing.T, a, b *device) (exists, confirmed bool) {
	t.Helper()
	require.NoError(t, a.w.DB.View(context.Background(), func(tx domain.Tx) error {
		ch, ok, err := a.w.Channels.Get(tx, channelKey(a, b))
		exists, confirmed = ok, ch.Confirmed()
		return err
	}))
	return exists, confirmed
}

func hasContact(t *testing.T, a *device, contact domain.Identity) bool {
	t.Helper()
	var known bool
	require.NoError(t, a.w.DB.View(context.Background(), func(tx domain.Tx) error {
		var err error
		known, err = a.w.Directory.IsKnownContact(tx, a.id, contact)
		return err
	}))
	return known
}

func instances(t *testing.T, d *device) []domain.ProtocolInstance {
	t.Helper()
	insts, err := d.w.Engine.Instances(context.Background(), d.id)
	require.NoError(t, err)
	return insts
}

// connect makes a and b contacts (unless they share an identity) and runs
// channel creation between them.
func connect(t *testing.T, a, b *device, all ...*device) {
	t.Helper()
	if a.id != b.id {
		befriend(t, a, b)
		befriend(t, b, a)
	}
	startChannel(t, a, b)
	pump(t, all...)
	_, confirmed := channelState(t, a, b)
	require.True(t, confirmed, "channel not confirmed on initiator")
	_, confirmed = channelState(t, b, a)
	require.True(t, confirmed, "channel not confirmed on responder")
}

func TestNewRegistry(t *testing.T) {
	reg, err := protocols.NewRegistry()
	require.NoError(t, err)
	ids := make([]domain.ProtocolID, 0, 3)
	for _, p := range reg.Protocols() {
		ids = append(ids, p.ID)
		for _, s := range p.StepTable() {
			require.True(t, s.Requires.Valid(), "%s/%s", p.ID, s.ID)
			require.True(t, p.Declares(s.From) || s.From == definition.InitialStateID)
		}
	}
	require.Equal(t, []domain.ProtocolID{"channel-creation-with-device", "contact-management", "invitation"}, ids)
}
