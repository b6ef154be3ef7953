package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"obvcore/internal/domain"
	"obvcore/internal/store"
)

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.OpenInMemory(logrus.New())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type record struct {
	Name  string
	Count int
}

func TestDB_UpdateCommitsAndAbortDiscards(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	require.NoError(t, db.Update(ctx, func(tx domain.Tx) error {
		return store.Save(tx, store.Key("rec", "a"), record{Name: "a", Count: 1})
	}))

	boom := errors.New("boom")
	err := db.Update(ctx, func(tx domain.Tx) error {
		if err := store.Save(tx, store.Key("rec", "a"), record{Name: "a", Count: 2}); err != nil {
			return err
		}
		if err := store.Save(tx, store.Key("rec", "b"), record{Name: "b"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, db.View(ctx, func(tx domain.Tx) error {
		a, err := store.MustLoad[record](tx, store.Key("rec", "a"))
		require.NoError(t, err)
		require.Equal(t, 1, a.Count)

		_, ok, err := store.Load[record](tx, store.Key("rec", "b"))
		require.NoError(t, err)
		require.False(t, ok)
		return nil
	}))
}

func TestDB_ScanPrefixIsExact(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)

	require.NoError(t, db.Update(ctx, func(tx domain.Tx) error {
		for _, k := range [][]byte{
			store.Key("p", "dev1", "x"),
			store.Key("p", "dev1", "y"),
			store.Key("p", "dev10", "x"),
			store.Key("p", "dev/1", "x"),
		} {
			if err := tx.Set(k, []byte("v")); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, db.Update(ctx, func(tx domain.Tx) error {
		kvs, err := tx.Scan(store.Prefix("p", "dev1"))
		require.NoError(t, err)
		require.Len(t, kvs, 2)

		n, err := store.DeletePrefix(tx, store.Prefix("p", "dev1"))
		require.NoError(t, err)
		require.Equal(t, 2, n)

		kvs, err = tx.Scan(store.Prefix("p"))
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		return nil
	}))
}

func TestDB_CancelledContext(t *testing.T) {
	db := openDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := db.Update(ctx, func(domain.Tx) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestIndex_SortsNumerically(t *testing.T) {
	require.Less(t, store.Index(9), store.Index(10))
}
