package app_test

import (
	"context"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obvcore/internal/app"
	"obvcore/internal/relay"
)

func newTestWire(t *testing.T, mutate func(*app.Config), opts ...app.Option) *app.Wire {
	t.Helper()
	cfg := app.DefaultConfig(t.TempDir())
	cfg.InMemory = true
	if mutate != nil {
		mutate(&cfg)
	}
	w, err := app.NewWire(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestNewWire_RejectsInvalidConfig(t *testing.T) {
	cfg := app.DefaultConfig(t.TempDir())
	cfg.Server = ""
	_, err := app.NewWire(cfg)
	require.ErrorIs(t, err, app.ErrInvalidConfig)
}

func TestNewWire_SelectsRelay(t *testing.T) {
	w := newTestWire(t, nil)
	assert.IsType(t, &relay.Memory{}, w.Network)

	mr := miniredis.RunT(t)
	w = newTestWire(t, func(c *app.Config) { c.Redis.Addr = mr.Addr() })
	assert.IsType(t, &relay.Redis{}, w.Network)
}

func TestNewWire_WarnsOnProcessLocalRelay(t *testing.T) {
	logger, hook := test.NewNullLogger()
	newTestWire(t, nil, app.WithLogger(logger))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "no redis address configured; envelopes stay inside this process" {
			warned = true
		}
	}
	assert.True(t, warned)

	hook.Reset()
	mr := miniredis.RunT(t)
	newTestWire(t, func(c *app.Config) { c.Redis.Addr = mr.Addr() }, app.WithLogger(logger))
	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.WarnLevel, e.Level, e.Message)
	}
}

func TestWire_CreateIdentity(t *testing.T) {
	ctx := context.Background()
	w := newTestWire(t, nil)

	_, _, err := w.Owned(ctx)
	require.ErrorIs(t, err, app.ErrNoIdentity)

	keys, device, err := w.CreateIdentity(ctx, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "localhost", keys.Identity.Server)

	id, current, err := w.Owned(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys.Identity, id)
	assert.Equal(t, device, current)

	_, err = os.Stat(w.KeyFile.Path())
	require.NoError(t, err)
	loaded, err := w.KeyFile.LoadOwnedKeys("hunter2")
	require.NoError(t, err)
	assert.Equal(t, keys, loaded)
}

func TestWire_CreateIdentityWithoutPassphraseSkipsKeyFile(t *testing.T) {
	w := newTestWire(t, nil)
	_, _, err := w.CreateIdentity(context.Background(), "")
	require.NoError(t, err)
	_, err = os.Stat(w.KeyFile.Path())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWire_SyncWithEmptyRelay(t *testing.T) {
	ctx := context.Background()
	w := newTestWire(t, nil)
	keys, _, err := w.CreateIdentity(ctx, "")
	require.NoError(t, err)

	n, err := w.Sync(ctx, keys.Identity, 8)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWire_CloseTwice(t *testing.T) {
	w := newTestWire(t, nil)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
