package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"obvcore/internal/channel"
	"obvcore/internal/crypto"
	"obvcore/internal/directory"
	"obvcore/internal/dispatch"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/definition"
	"obvcore/internal/protocol/engine"
	"obvcore/internal/relay"
	"obvcore/internal/store"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const counterID domain.ProtocolID = "counter"

type start struct {
	_ struct{} `cbor:",toarray"`
	N int
}

type bump struct {
	_ struct{} `cbor:",toarray"`
}

type forward struct {
	_ struct{} `cbor:",toarray"`
}

type explode struct {
	_      struct{} `cbor:",toarray"`
	Remote domain.Identity
}

type ask struct {
	_ struct{} `cbor:",toarray"`
}

type answer struct {
	_     struct{} `cbor:",toarray"`
	Value int
}

func (start) MessageType() domain.MessageTypeID   { return "start" }
func (bump) MessageType() domain.MessageTypeID    { return "bump" }
func (forward) MessageType() domain.MessageTypeID { return "forward" }
func (explode) MessageType() domain.MessageTypeID { return "explode" }
func (ask) MessageType() domain.MessageTypeID     { return "ask" }
func (answer) MessageType() domain.MessageTypeID  { return "answer" }

type counting struct{ N int }

type asking struct{ Dialog domain.DialogID }

func (counting) StateID() definition.StateID { return "counting" }
func (asking) StateID() definition.StateID   { return "asking" }

var errBoom = errors.New("boom")

// counterProtocol counts bumps and finishes at three.
func counterProtocol() *definition.Protocol {
	return &definition.Protocol{
		ID:       counterID,
		States:   []definition.State{counting{}, asking{}},
		Messages: []definition.Message{start{}, bump{}, forward{}, explode{}, ask{}, answer{}},
		Steps: []definition.Step{
			{ID: "start", From: definition.InitialStateID, On: "start", Requires: definition.RequireLocal,
				Run: func(_ definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
					return counting{N: m.(start).N}, nil
				}},
			{ID: "bump", From: "counting", On: "bump", Requires: definition.RequireLocal,
				Run: func(_ definition.StepContext, s definition.State, _ definition.Message) (definition.State, error) {
					n := s.(counting).N + 1
					if n >= 3 {
						return definition.Final{}, nil
					}
					return counting{N: n}, nil
				}},
			{ID: "forward", From: "counting", On: "forward", Requires: definition.RequireLocal,
				Run: func(sc definition.StepContext, s definition.State, _ definition.Message) (definition.State, error) {
					return s, sc.Post(dispatch.Local{}, bump{})
				}},
			{ID: "explode", From: "counting", On: "explode", Requires: definition.RequireLocal,
				Run: func(sc definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
					if err := sc.Channels().Create(m.(explode).Remote, "remote", domain.Seed{1}); err != nil {
						return nil, err
					}
					if _, err := sc.PresentDialog("never", "shown"); err != nil {
						return nil, err
					}
					return counting{N: 99}, errBoom
				}},
			{ID: "ask", From: "counting", On: "ask", Requires: definition.RequireLocal,
				Run: func(sc definition.StepContext, _ definition.State, _ definition.Message) (definition.State, error) {
					id, err := sc.PresentDialog("question", "how many?")
					return asking{Dialog: id}, err
				}},
			{ID: "answer", From: "asking", On: "answer", Requires: definition.RequireLocal,
				Run: func(_ definition.StepContext, _ definition.State, m definition.Message) (definition.State, error) {
					return counting{N: m.(answer).Value}, nil
				}},
		},
	}
}

type sink struct {
	mu  sync.Mutex
	got []string
}

func (s *sink) Deliver(_ context.Context, _ domain.Identity, _ domain.ReceptionChannel, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, string(payload))
	return nil
}

func (s *sink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

type presenter struct {
	mu      sync.Mutex
	dialogs []domain.Dialog
}

func (p *presenter) Present(_ context.Context, d domain.Dialog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialogs = append(p.dialogs, d)
	return nil
}

func (p *presenter) presented() []domain.Dialog {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Dialog(nil), p.dialogs...)
}

type node struct {
	db      *store.DB
	dir     *directory.Directory
	reg     *channel.Registry
	eng     *engine.Engine
	net     *relay.Memory
	keys    domain.OwnedIdentityKeys
	id      domain.Identity
	device  domain.DeviceID
	sink    *sink
	dialogs *presenter
}

func newNode(t *testing.T, net *relay.Memory, server string, dev domain.DeviceID) *node {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	db, err := store.OpenInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	keys, err := crypto.NewOwnedIdentity(server)
	require.NoError(t, err)
	dir := directory.New()
	require.NoError(t, db.Update(context.Background(), func(tx domain.Tx) error {
		return dir.AddOwnedIdentity(tx, keys, dev)
	}))
	reg := channel.New(channel.Config{Window: 8, Logger: logger})
	protos, err := definition.NewRegistry(counterProtocol())
	require.NoError(t, err)

	n := &node{db: db, dir: dir, reg: reg, net: net, keys: keys, id: keys.Identity, device: dev, sink: &sink{}, dialogs: &presenter{}}
	n.eng, err = engine.New(engine.Config{
		Store:        db,
		Directory:    dir,
		Registry:     reg,
		Dispatcher:   dispatch.New(reg, dir, logger),
		Protocols:    protos,
		Network:      net,
		Dialogs:      n.dialogs,
		Application:  n.sink,
		Logger:       logger,
		Workers:      2,
		ParkedTTL:    time.Hour,
		CompletedTTL: 3 * time.Hour,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	return n
}

func (n *node) key(o *node) domain.ChannelKey {
	return domain.ChannelKey{Owned: n.id, LocalDevice: n.device, RemoteIdentity: o.id, RemoteDevice: o.device}
}

func (n *node) createChannel(t *testing.T, o *node, seed domain.Seed) {
	t.Helper()
	require.NoError(t, n.db.Update(context.Background(), func(tx domain.Tx) error {
		if err := n.reg.Create(tx, n.key(o), seed, now); err != nil {
			return err
		}
		return n.reg.Confirm(tx, n.key(o), now)
	}))
}

func (n *node) inbox(t *testing.T) []domain.Inbound {
	t.Helper()
	ins, err := n.net.Fetch(context.Background(), domain.Recipient{Identity: n.id, Device: n.device}, 0)
	require.NoError(t, err)
	return ins
}

func (n *node) instance(t *testing.T, id domain.InstanceID) (domain.ProtocolInstance, bool) {
	t.Helper()
	insts, err := n.eng.Instances(context.Background(), n.id)
	require.NoError(t, err)
	for _, inst := range insts {
		if inst.Instance == id {
			return inst, true
		}
	}
	return domain.ProtocolInstance{}, false
}
