package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"obvcore/internal/domain"
)

// ErrNotFound is returned by Load helpers when a key is absent and the
// caller asked for it to be present.
var ErrNotFound = errors.New("not found")

// Config selects where and how the database is opened.
type Config struct {
	Dir        string // database directory; ignored when InMemory is set
	InMemory   bool
	SyncWrites bool
	Logger     *logrus.Logger
}

// DB is a badger database with serialized write transactions. Reads run in
// parallel against consistent snapshots.
type DB struct {
	badgerDB *badger.DB
	writeMu  sync.Mutex
	log      *logrus.Entry
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, errors.New("store: database directory is required")
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger database: %w", err)
	}
	return &DB{
		badgerDB: db,
		log:      cfg.Logger.WithField("component", "store"),
	}, nil
}

// OpenInMemory opens a throwaway database, mostly for tests.
func OpenInMemory(logger *logrus.Logger) (*DB, error) {
	return Open(Config{InMemory: true, Logger: logger})
}

// Close flushes and closes the database.
func (d *DB) Close() error {
	return d.badgerDB.Close()
}

// Update runs fn in a read-write transaction. The transaction commits when fn
// returns nil and is discarded otherwise. Only one Update runs at a time.
func (d *DB) Update(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	err := d.badgerDB.Update(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		d.log.WithError(err).Warn("write transaction conflicted")
	}
	return err
}

// View runs fn in a read-only transaction.
func (d *DB) View(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.badgerDB.View(func(txn *badger.Txn) error {
		return fn(&tx{txn: txn})
	})
}

var _ domain.Store = (*DB)(nil)
