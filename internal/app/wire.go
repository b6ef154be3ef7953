package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"obvcore/internal/channel"
	"obvcore/internal/crypto"
	"obvcore/internal/directory"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/protocol/engine"
	"obvcore/internal/protocols"
	"obvcore/internal/relay"
	"obvcore/internal/store"
)

// ErrNoIdentity is returned when the database holds no owned identity.
var ErrNoIdentity = errors.New("no owned identity; run init first")

// Wire bundles the dependency graph.
type Wire struct {
	Config     Config
	Log        *logrus.Logger
	DB         *store.DB
	KeyFile    *store.KeyFile
	Directory  *directory.Directory
	Channels   *channel.Registry
	Dispatcher *dispatch.Dispatcher
	Protocols  *definition.Registry
	Network    domain.Network
	Engine     *engine.Engine

	closers []func() error
}

type options struct {
	network     domain.Network
	dialogs     domain.DialogPresenter
	application domain.ApplicationSink
	logger      *logrus.Logger
	clock       func() time.Time
}

// Option overrides a collaborator built by NewWire.
type Option func(*options)

// WithNetwork uses n instead of the relay selected by the config.
func WithNetwork(n domain.Network) Option { return func(o *options) { o.network = n } }

// WithDialogs sets the dialog presenter; dialogs are logged by default.
func WithDialogs(p domain.DialogPresenter) Option { return func(o *options) { o.dialogs = p } }

// WithApplication sets the sink for application messages.
func WithApplication(s domain.ApplicationSink) Option {
	return func(o *options) { o.application = s }
}

// WithLogger replaces the logger built from the config.
func WithLogger(l *logrus.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(o *options) { o.clock = now } }

// NewLogger builds a logger at the given level.
func NewLogger(level string) (*logrus.Logger, error) {
	l := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l, nil
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config, opts ...Option) (*Wire, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		l, err := NewLogger(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		o.logger = l
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	w := &Wire{Config: cfg, Log: o.logger, KeyFile: store.NewKeyFile(cfg.Home)}
	db, err := store.Open(store.Config{
		Dir:      filepath.Join(cfg.Home, "db"),
		InMemory: cfg.InMemory,
		Logger:   o.logger,
	})
	if err != nil {
		return nil, err
	}
	w.DB = db
	w.closers = append(w.closers, db.Close)

	w.Directory = directory.New()
	w.Channels = channel.New(channel.Config{
		Window:    cfg.ProvisionWindow,
		Retention: cfg.RetentionPeriod(),
		Logger:    o.logger,
	})
	w.Dispatcher = dispatch.New(w.Channels, w.Directory, o.logger)
	if w.Protocols, err = protocols.NewRegistry(); err != nil {
		return nil, multierr.Append(err, w.Close())
	}

	switch {
	case o.network != nil:
		w.Network = o.network
	case cfg.Redis.Addr != "":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		w.closers = append(w.closers, rdb.Close)
		w.Network = relay.NewRedis(rdb, 0)
	default:
		o.logger.WithField("home", cfg.Home).Warn("no redis address configured; envelopes stay inside this process")
		w.Network = relay.NewMemory()
	}

	if o.dialogs == nil {
		o.dialogs = logPresenter{log: o.logger}
	}
	if o.application == nil {
		o.application = logSink{log: o.logger}
	}
	w.Engine, err = engine.New(engine.Config{
		Store:        db,
		Directory:    w.Directory,
		Registry:     w.Channels,
		Dispatcher:   w.Dispatcher,
		Protocols:    w.Protocols,
		Network:      w.Network,
		Dialogs:      o.dialogs,
		Application:  o.application,
		Logger:       o.logger,
		Workers:      cfg.Workers,
		ParkedTTL:    cfg.ParkedPeriod(),
		CompletedTTL: cfg.CompletedPeriod(),
		Clock:        o.clock,
	})
	if err != nil {
		return nil, multierr.Append(err, w.Close())
	}
	return w, nil
}

// Close releases the database and network clients.
func (w *Wire) Close() error {
	var errs error
	for i := len(w.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, w.closers[i]())
	}
	w.closers = nil
	return errs
}

// CreateIdentity generates an owned identity on a new current device,
// records it and, when passphrase is set, writes the key file.
func (w *Wire) CreateIdentity(ctx context.Context, passphrase string) (domain.OwnedIdentityKeys, domain.DeviceID, error) {
	keys, err := crypto.NewOwnedIdentity(w.Config.Server)
	if err != nil {
		return keys, "", err
	}
	device := domain.NewDeviceID()
	if err := w.DB.Update(ctx, func(tx domain.Tx) error {
		return w.Directory.AddOwnedIdentity(tx, keys, device)
	}); err != nil {
		return keys, "", err
	}
	if passphrase != "" {
		if err := w.KeyFile.SaveOwnedKeys(passphrase, keys); err != nil {
			return keys, "", err
		}
	}
	return keys, device, nil
}

// Owned returns the owned identity and its current device.
func (w *Wire) Owned(ctx context.Context) (domain.Identity, domain.DeviceID, error) {
	var (
		id     domain.Identity
		device domain.DeviceID
	)
	err := w.DB.View(ctx, func(tx domain.Tx) error {
		ids, err := w.Directory.OwnedIdentities(tx)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return ErrNoIdentity
		}
		id = ids[0]
		device, err = w.Directory.CurrentDevice(tx, id)
		return err
	})
	return id, device, err
}

// Sync fetches everything queued for the current device of owned, delivers
// it and acknowledges it, until the relay has nothing left. It returns the
// number of envelopes processed.
func (w *Wire) Sync(ctx context.Context, owned domain.Identity, batch int) (int, error) {
	var device domain.DeviceID
	if err := w.DB.View(ctx, func(tx domain.Tx) error {
		var err error
		device, err = w.Directory.CurrentDevice(tx, owned)
		return err
	}); err != nil {
		return 0, err
	}
	me := domain.Recipient{Identity: owned, Device: device}

	total := 0
	for {
		ins, err := w.Network.Fetch(ctx, me, batch)
		if err != nil {
			return total, err
		}
		if len(ins) == 0 {
			return total, nil
		}
		// Unacknowledged envelopes are fetched again; those already
		// processed are then dropped as replays.
		if err := w.Engine.DeliverBatch(ctx, ins, domain.NewFlowID()); err != nil {
			return total, err
		}
		if err := w.Network.Ack(ctx, me, len(ins)); err != nil {
			return total, err
		}
		total += len(ins)
	}
}

type logPresenter struct{ log *logrus.Logger }

func (p logPresenter) Present(_ context.Context, d domain.Dialog) error {
	p.log.WithFields(logrus.Fields{
		"dialog":   d.ID,
		"kind":     d.Kind,
		"protocol": d.Protocol,
	}).Info("dialog awaiting response")
	return nil
}

type logSink struct{ log *logrus.Logger }

func (s logSink) Deliver(_ context.Context, _ domain.Identity, from domain.ReceptionChannel, payload []byte) error {
	s.log.WithFields(logrus.Fields{
		"from":  from.String(),
		"bytes": len(payload),
	}).Info("application message received")
	return nil
}
