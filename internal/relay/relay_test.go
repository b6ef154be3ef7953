package relay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obvcore/internal/domain"
	"obvcore/internal/relay"
)

var (
	alice = domain.Identity{Server: "a.example", EncryptionKey: domain.X25519Public{1}}
	bob   = domain.Identity{Server: "b.example", EncryptionKey: domain.X25519Public{2}}
)

func envelope(id string, to ...domain.Recipient) domain.Envelope {
	env := domain.Envelope{
		ID:        id,
		Server:    "a.example",
		Payload:   []byte("payload-" + id),
		CreatedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for i, r := range to {
		env.Headers = append(env.Headers, domain.EnvelopeHeader{
			ToIdentity: r.Identity,
			ToDevice:   r.Device,
			Variant:    domain.VariantOblivious,
			Index:      uint64(i),
		})
	}
	return env
}

func newRedis(t *testing.T) (*relay.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return relay.NewRedis(rdb, time.Hour), mr
}

func networks(t *testing.T) map[string]domain.Network {
	r, _ := newRedis(t)
	return map[string]domain.Network{
		"memory": relay.NewMemory(),
		"redis":  r,
	}
}

func TestPostFetchAck(t *testing.T) {
	ctx := context.Background()
	a1 := domain.Recipient{Identity: alice, Device: "a1"}
	b1 := domain.Recipient{Identity: bob, Device: "b1"}
	b2 := domain.Recipient{Identity: bob, Device: "b2"}

	for name, n := range networks(t) {
		t.Run(name, func(t *testing.T) {
			ids, err := n.Post(ctx, envelope("e1", b1, b2))
			require.NoError(t, err)
			require.Len(t, ids, 2)
			assert.NotEqual(t, ids[0], ids[1])
			_, err = n.Post(ctx, envelope("e2", b1, a1))
			require.NoError(t, err)

			got, err := n.Fetch(ctx, b1, 0)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "e1", got[0].Envelope.ID)
			assert.Equal(t, 0, got[0].Header)
			assert.Equal(t, "e2", got[1].Envelope.ID)
			assert.Equal(t, 0, got[1].Header)
			assert.Equal(t, []byte("payload-e1"), got[0].Envelope.Payload)

			got, err = n.Fetch(ctx, b2, 10)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, 1, got[0].Header)

			require.NoError(t, n.Ack(ctx, b1, 1))
			got, err = n.Fetch(ctx, b1, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, "e2", got[0].Envelope.ID)

			require.NoError(t, n.Ack(ctx, b1, 5))
			got, err = n.Fetch(ctx, b1, 0)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestMemory_Failing(t *testing.T) {
	ctx := context.Background()
	m := relay.NewMemory()
	boom := errors.New("offline")
	m.SetFailing(boom)

	_, err := m.Post(ctx, envelope("e1", domain.Recipient{Identity: bob, Device: "b1"}))
	require.ErrorIs(t, err, relay.ErrPostFailed)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, m.Query(ctx, domain.ServerQuery{ID: "q", Server: "a.example"}), relay.ErrPostFailed)

	m.SetFailing(nil)
	require.NoError(t, m.Query(ctx, domain.ServerQuery{ID: "q", Server: "a.example", Kind: "ping"}))
	assert.Len(t, m.Queries("a.example"), 1)
}

func TestRedis_ExpiredEnvelopesAreSkipped(t *testing.T) {
	ctx := context.Background()
	r, mr := newRedis(t)
	b1 := domain.Recipient{Identity: bob, Device: "b1"}

	_, err := r.Post(ctx, envelope("old", b1))
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)
	_, err = r.Post(ctx, envelope("new", b1))
	require.NoError(t, err)

	got, err := r.Fetch(ctx, b1, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Envelope.ID)

	require.NoError(t, r.Ack(ctx, b1, len(got)))
	got, err = r.Fetch(ctx, b1, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRedis_Queries(t *testing.T) {
	ctx := context.Background()
	r, _ := newRedis(t)
	q := domain.ServerQuery{ID: "q1", Server: "a.example", Owned: alice, Kind: "device-list", Payload: []byte{1}}
	require.NoError(t, r.Query(ctx, q))

	got, err := r.Queries(ctx, "a.example")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, q, got[0])
}
