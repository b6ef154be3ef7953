package protocols_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obvcore/internal/codec"
	"obvcore/internal/crypto"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/protocols/channelcreation"
	"obvcore/internal/protocols/contactmgmt"
	"obvcore/internal/protocols/invitation"
	"obvcore/internal/relay"
)

func TestChannelCreation_ConfirmsBothSides(t *testing.T) {
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")

	connect(t, alice, bob, alice, bob)

	assert.Empty(t, instances(t, alice))
	assert.Empty(t, instances(t, bob))
}

func TestChannelCreation_BetweenOwnDevices(t *testing.T) {
	net := relay.NewMemory()
	a1 := newDevice(t, net, "a.example")
	a2 := newOtherDevice(t, net, a1)

	connect(t, a1, a2, a1, a2)
}

func TestChannelCreation_RefusedByStranger(t *testing.T) {
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")
	befriend(t, alice, bob)

	startChannel(t, alice, bob)
	pump(t, alice, bob)

	exists, _ := channelState(t, bob, alice)
	assert.False(t, exists)
	insts := instances(t, alice)
	require.Len(t, insts, 1)
	assert.Equal(t, "waiting-for-pong", insts[0].StateID)
	assert.Empty(t, instances(t, bob))
}

func TestChannelCreation_RepeatedHandshakeRekeys(t *testing.T) {
	ctx := context.Background()
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")
	connect(t, alice, bob, alice, bob)

	// A confirmed channel short-circuits the initiator.
	startChannel(t, alice, bob)
	pump(t, alice, bob)
	assert.Empty(t, instances(t, alice))

	// The responder side may ask again after losing its channel.
	require.NoError(t, bob.w.DB.Update(ctx, func(tx domain.Tx) error {
		return bob.w.Channels.Delete(tx, channelKey(bob, alice))
	}))
	connect(t, bob, alice, alice, bob)

	_, err := alice.w.Engine.PostMessage(ctx, alice.id,
		domain.LogicalMessage{Kind: domain.LogicalApplication, Application: []byte("still there")},
		dispatch.PointToPoint{Identity: bob.id, Device: bob.dev}, domain.NewFlowID())
	require.NoError(t, err)
	pump(t, alice, bob)
}

func seedFingerprint(t *testing.T, a, b *device) domain.Fingerprint {
	t.Helper()
	var fp domain.Fingerprint
	require.NoError(t, a.w.DB.View(context.Background(), func(tx domain.Tx) error {
		ch, ok, err := a.w.Channels.Get(tx, channelKey(a, b))
		require.True(t, ok)
		fp = ch.SeedFingerprint
		return err
	}))
	return fp
}

func TestChannelCreation_ReplayedPingKeepsConfirmedChannel(t *testing.T) {
	ctx := context.Background()
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")
	befriend(t, alice, bob)
	befriend(t, bob, alice)

	startChannel(t, alice, bob)
	ping, err := net.Fetch(ctx, domain.Recipient{Identity: bob.id, Device: bob.dev}, 0)
	require.NoError(t, err)
	require.Len(t, ping, 1)
	pump(t, alice, bob)
	_, confirmed := channelState(t, bob, alice)
	require.True(t, confirmed)
	before := seedFingerprint(t, bob, alice)

	require.NoError(t, bob.w.Engine.ReceiveEnvelope(ctx, ping[0], domain.NewFlowID()))
	pump(t, alice, bob)

	exists, confirmed := channelState(t, bob, alice)
	assert.True(t, exists)
	assert.True(t, confirmed, "a replayed ping must not reset a confirmed channel")
	assert.Equal(t, before, seedFingerprint(t, bob, alice))
	assert.Empty(t, instances(t, bob))
	assert.Empty(t, instances(t, alice))

	_, err = alice.w.Engine.PostMessage(ctx, alice.id,
		domain.LogicalMessage{Kind: domain.LogicalApplication, Application: []byte("still keyed")},
		dispatch.PointToPoint{Identity: bob.id, Device: bob.dev}, domain.NewFlowID())
	require.NoError(t, err)
	pump(t, alice, bob)
}

func TestInvitation_Accepted(t *testing.T) {
	ctx := context.Background()
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")

	_, err := alice.w.Engine.StartProtocol(ctx, invitation.ID,
		invitation.Invite{Contact: bob.id, Device: bob.dev, Note: "it's alice"}, alice.id, domain.NewFlowID())
	require.NoError(t, err)
	pump(t, alice, bob)

	require.Len(t, bob.dialogs.dialogs, 1)
	d := bob.dialogs.dialogs[0]
	assert.Equal(t, invitation.DialogKind, d.Kind)
	var prompt invitation.Prompt
	require.NoError(t, codec.Unmarshal(d.Payload, &prompt))
	assert.Equal(t, alice.id, prompt.From)
	assert.Equal(t, crypto.FingerprintIdentity(alice.id), prompt.Fingerprint)
	assert.Equal(t, "it's alice", prompt.Note)
	assert.False(t, hasContact(t, bob, alice.id))

	require.NoError(t, bob.w.Engine.RespondToDialog(ctx, bob.id, d.ID, invitation.Response{Accept: true}, domain.NewFlowID()))
	pump(t, alice, bob)

	assert.True(t, hasContact(t, alice, bob.id))
	assert.True(t, hasContact(t, bob, alice.id))
	_, confirmed := channelState(t, alice, bob)
	assert.True(t, confirmed)
	_, confirmed = channelState(t, bob, alice)
	assert.True(t, confirmed)
	assert.Empty(t, instances(t, alice))
	assert.Empty(t, instances(t, bob))
}

func TestInvitation_Declined(t *testing.T) {
	ctx := context.Background()
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")

	_, err := alice.w.Engine.StartProtocol(ctx, invitation.ID,
		invitation.Invite{Contact: bob.id, Device: bob.dev}, alice.id, domain.NewFlowID())
	require.NoError(t, err)
	pump(t, alice, bob)
	require.Len(t, bob.dialogs.dialogs, 1)

	require.NoError(t, bob.w.Engine.RespondToDialog(ctx, bob.id, bob.dialogs.dialogs[0].ID, invitation.Response{}, domain.NewFlowID()))
	pump(t, alice, bob)

	assert.False(t, hasContact(t, bob, alice.id))
	assert.False(t, hasContact(t, alice, bob.id))
	assert.Empty(t, instances(t, bob))
	insts := instances(t, alice)
	require.Len(t, insts, 1)
	assert.Equal(t, "invitation-sent", insts[0].StateID)
}

// family is alice on two devices and her contact bob, with confirmed
// channels between every pair.
type family struct {
	net    *relay.Memory
	a1, a2 *device
	bob    *device
}

func newFamily(t *testing.T) family {
	net := relay.NewMemory()
	f := family{net: net}
	f.a1 = newDevice(t, net, "a.example")
	f.a2 = newOtherDevice(t, net, f.a1)
	f.bob = newDevice(t, net, "b.example")
	all := []*device{f.a1, f.a2, f.bob}
	connect(t, f.a1, f.a2, all...)
	connect(t, f.a1, f.bob, all...)
	connect(t, f.a2, f.bob, all...)
	return f
}

func (f family) all() []*device { return []*device{f.a1, f.a2, f.bob} }

func deleteContact(t *testing.T, d *device, contact domain.Identity) {
	t.Helper()
	_, err := d.w.Engine.StartProtocol(context.Background(), contactmgmt.ID,
		contactmgmt.DeleteContact{Contact: contact}, d.id, domain.NewFlowID())
	require.NoError(t, err)
}

func assertDeleted(t *testing.T, f family) {
	t.Helper()
	for _, a := range []*device{f.a1, f.a2} {
		assert.False(t, hasContact(t, a, f.bob.id))
		exists, _ := channelState(t, a, f.bob)
		assert.False(t, exists)
		exists, _ = channelState(t, f.bob, a)
		assert.False(t, exists)
	}
	assert.False(t, hasContact(t, f.bob, f.a1.id))
	_, confirmed := channelState(t, f.a1, f.a2)
	assert.True(t, confirmed, "own-device channel must survive")
	for _, d := range f.all() {
		assert.Empty(t, instances(t, d))
	}
}

func TestContactDeletion_PropagatesAndNotifies(t *testing.T) {
	f := newFamily(t)

	deleteContact(t, f.a1, f.bob.id)
	assert.False(t, hasContact(t, f.a1, f.bob.id))
	pump(t, f.all()...)

	assertDeleted(t, f)
}

func TestContactDeletion_SingleDeviceOnlyNotifiesContact(t *testing.T) {
	ctx := context.Background()
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")
	connect(t, alice, bob, alice, bob)

	deleteContact(t, alice, bob.id)

	own, err := net.Fetch(ctx, domain.Recipient{Identity: alice.id, Device: alice.dev}, 0)
	require.NoError(t, err)
	assert.Empty(t, own, "nothing is sent to own devices")
	queued, err := net.Fetch(ctx, domain.Recipient{Identity: bob.id, Device: bob.dev}, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	for _, h := range queued[0].Envelope.Headers {
		assert.Equal(t, bob.id, h.ToIdentity)
	}
	require.NoError(t, alice.w.DB.View(ctx, func(tx domain.Tx) error {
		p, err := dispatch.Pending(tx)
		if err != nil {
			return err
		}
		assert.Empty(t, p.Envelopes)
		return nil
	}))

	exists, _ := channelState(t, alice, bob)
	assert.False(t, exists)
	assert.False(t, hasContact(t, alice, bob.id))
	assert.Empty(t, instances(t, alice))

	pump(t, alice, bob)
	assert.False(t, hasContact(t, bob, alice.id))
	exists, _ = channelState(t, bob, alice)
	assert.False(t, exists)
	assert.Empty(t, instances(t, bob))
}

func TestContactDeletion_UnknownContactIsCancelled(t *testing.T) {
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	stranger := newDevice(t, net, "s.example")

	deleteContact(t, alice, stranger.id)

	assert.Empty(t, instances(t, alice))
	n, err := stranger.w.Sync(context.Background(), stranger.id, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestContactDeletion_RelayDownStillDeletesLocally(t *testing.T) {
	ctx := context.Background()
	f := newFamily(t)

	f.net.SetFailing(assert.AnError)
	deleteContact(t, f.a1, f.bob.id)
	assert.False(t, hasContact(t, f.a1, f.bob.id))
	assert.True(t, hasContact(t, f.a2, f.bob.id))

	f.net.SetFailing(nil)
	require.NoError(t, f.a1.w.Engine.Resume(ctx))
	pump(t, f.all()...)

	assertDeleted(t, f)
}

func TestPropagatedDeletion_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFamily(t)
	deleteContact(t, f.a1, f.bob.id)
	pump(t, f.all()...)

	pm, err := definition.EncodeMessage(contactmgmt.ID, domain.NewInstanceID(), contactmgmt.PropagatedDeletion{Contact: f.bob.id})
	require.NoError(t, err)
	_, err = f.a1.w.Engine.PostMessage(ctx, f.a1.id,
		domain.LogicalMessage{Kind: domain.LogicalProtocol, Protocol: &pm},
		dispatch.AllConfirmedChannelsWithOwnOtherDevices{}, domain.NewFlowID())
	require.NoError(t, err)
	pump(t, f.all()...)

	assertDeleted(t, f)
}

func TestPropagatedDeletion_IgnoredFromContact(t *testing.T) {
	ctx := context.Background()
	net := relay.NewMemory()
	alice := newDevice(t, net, "a.example")
	bob := newDevice(t, net, "b.example")
	carol := newDevice(t, net, "c.example")
	connect(t, alice, bob, alice, bob)
	befriend(t, alice, carol)

	pm, err := definition.EncodeMessage(contactmgmt.ID, domain.NewInstanceID(), contactmgmt.PropagatedDeletion{Contact: carol.id})
	require.NoError(t, err)
	_, err = bob.w.Engine.PostMessage(ctx, bob.id,
		domain.LogicalMessage{Kind: domain.LogicalProtocol, Protocol: &pm},
		dispatch.AllConfirmedChannelsWithContact{Contact: alice.id}, domain.NewFlowID())
	require.NoError(t, err)
	pump(t, alice, bob)

	assert.True(t, hasContact(t, alice, carol.id))
	assert.True(t, hasContact(t, alice, bob.id))
	assert.Empty(t, instances(t, alice))
}

func TestChannelCreationMessagesAreRegistered(t *testing.T) {
	p := channelcreation.Protocol()
	require.NoError(t, p.Validate())
	_, ok := p.Match(definition.InitialStateID, "ping", domain.AsymmetricReception(domain.Identity{}, "d"))
	assert.True(t, ok)
	_, ok = p.Match(definition.InitialStateID, "ping", domain.LocalReception(domain.Identity{}))
	assert.False(t, ok)
}
