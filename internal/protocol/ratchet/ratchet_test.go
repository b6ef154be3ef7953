package ratchet_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"obvcore/internal/crypto"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/ratchet"
)

// makeEndpoint returns an endpoint on a fresh identity.
func makeEndpoint(t *testing.T, device string) ratchet.Endpoint {
	t.Helper()
	keys, err := crypto.NewOwnedIdentity("https://server.example")
	require.NoError(t, err)
	return ratchet.Endpoint{Identity: keys.Identity, Device: domain.DeviceID(device)}
}

func TestDeriveChains_Mirror(t *testing.T) {
	var seed domain.Seed
	seed[0] = 0x42
	a := makeEndpoint(t, "a1")
	b := makeEndpoint(t, "b1")

	aSend, aRecv, err := ratchet.DeriveChains(seed, a, b)
	require.NoError(t, err)
	bSend, bRecv, err := ratchet.DeriveChains(seed, b, a)
	require.NoError(t, err)

	require.Equal(t, aSend, bRecv)
	require.Equal(t, aRecv, bSend)
	require.NotEqual(t, aSend, aRecv)
}

func TestDeriveChains_SameEndpoint(t *testing.T) {
	a := makeEndpoint(t, "a1")
	_, _, err := ratchet.DeriveChains(domain.Seed{}, a, a)
	require.ErrorIs(t, err, ratchet.ErrSameEndpoint)
}

func TestAdvance_OneRoundTrip(t *testing.T) {
	var seed domain.Seed
	seed[31] = 7
	a := makeEndpoint(t, "a1")
	b := makeEndpoint(t, "b1")

	aSend, _, err := ratchet.DeriveChains(seed, a, b)
	require.NoError(t, err)
	_, bRecv, err := ratchet.DeriveChains(seed, b, a)
	require.NoError(t, err)

	mk0 := ratchet.Advance(&aSend)
	mk1 := ratchet.Advance(&aSend)
	require.NotEqual(t, mk0, mk1)

	ct, err := ratchet.Seal(mk1, 1, []byte("ad"), []byte("hi"))
	require.NoError(t, err)

	require.Equal(t, mk0, ratchet.Advance(&bRecv))
	got := ratchet.Advance(&bRecv)
	pt, err := ratchet.Open(got, 1, []byte("ad"), ct)
	require.NoError(t, err)
	require.Equal(t, "hi", string(pt))

	_, err = ratchet.Open(got, 2, []byte("ad"), ct)
	require.Error(t, err)
	_, err = ratchet.Open(got, 1, []byte("other"), ct)
	require.Error(t, err)
}

func TestSeedFromExchange_OrderIndependent(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	dhA, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	dhB, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)

	sa := ratchet.SeedFromExchange(dhA, aPub, bPub)
	sb := ratchet.SeedFromExchange(dhB, bPub, aPub)
	require.Equal(t, sa, sb)
	require.Equal(t, ratchet.Fingerprint(sa), ratchet.Fingerprint(sb))
}
