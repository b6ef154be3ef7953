package channel

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"obvcore/internal/codec"
	"obvcore/internal/crypto"
	"obvcore/internal/domain"
	"obvcore/internal/protocol/ratchet"
	"obvcore/internal/store"
)

// ErrUnknownOrReplayedKey is returned when a key index was never provisioned,
// has already been consumed, or lies at or below the last consumed index.
var ErrUnknownOrReplayedKey = errors.New("unknown or replayed key")

const (
	channelNS   = "ch"
	chainNS     = "chain"
	provisionNS = "prov"

	none int64 = -1
)

// chainState is the persisted head of one direction of a channel.
type chainState struct {
	Head         ratchet.ChainKey `cbor:"1,keyasint"`
	Next         uint64           `cbor:"2,keyasint"` // index the head yields next
	LastConsumed int64            `cbor:"3,keyasint"`
}

// SendKey is a freshly derived send key and its index.
type SendKey struct {
	Index uint64
	Key   domain.SymmetricKey
}

// DeriveNextSendKey advances the send chain and records the key as a pending
// provision. The caller marks it consumed once the key has been used.
func (r *Registry) DeriveNextSendKey(tx domain.Tx, key domain.ChannelKey, now time.Time) (SendKey, error) {
	st, err := r.loadChain(tx, key, domain.DirectionSend)
	if err != nil {
		return SendKey{}, err
	}
	p := domain.Provision{
		Channel:   key,
		Direction: domain.DirectionSend,
		Index:     st.Next,
		Key:       ratchet.Advance(&st.Head),
		CreatedAt: now,
	}
	st.Next++
	if err := store.Save(tx, provisionKey(key, domain.DirectionSend, p.Index), p); err != nil {
		return SendKey{}, err
	}
	if err := saveChain(tx, key, domain.DirectionSend, st); err != nil {
		return SendKey{}, err
	}
	return SendKey{Index: p.Index, Key: p.Key}, nil
}

// PeekNextSendKey returns the key DeriveNextSendKey would yield next
// without advancing the chain.
func (r *Registry) PeekNextSendKey(tx domain.Tx, key domain.ChannelKey) (SendKey, error) {
	st, err := r.loadChain(tx, key, domain.DirectionSend)
	if err != nil {
		return SendKey{}, err
	}
	defer crypto.Wipe(st.Head[:])
	return SendKey{Index: st.Next, Key: ratchet.Advance(&st.Head)}, nil
}

// DeriveNextReceiveKey claims the receive key at index. Lower unconsumed
// indices are given up for good, and the window is topped up past index.
func (r *Registry) DeriveNextReceiveKey(tx domain.Tx, key domain.ChannelKey, index uint64, now time.Time) (domain.SymmetricKey, error) {
	st, err := r.loadChain(tx, key, domain.DirectionReceive)
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	if int64(index) <= st.LastConsumed {
		return domain.SymmetricKey{}, ErrUnknownOrReplayedKey
	}
	p, ok, err := store.Load[domain.Provision](tx, provisionKey(key, domain.DirectionReceive, index))
	if err != nil {
		return domain.SymmetricKey{}, err
	}
	if !ok || p.Consumed {
		return domain.SymmetricKey{}, ErrUnknownOrReplayedKey
	}
	mk := p.Key

	for i := uint64(st.LastConsumed + 1); i < index; i++ {
		if err := r.consume(tx, key, domain.DirectionReceive, i, now); err != nil && !errors.Is(err, ErrUnknownOrReplayedKey) {
			return domain.SymmetricKey{}, err
		}
	}
	if err := r.consume(tx, key, domain.DirectionReceive, index, now); err != nil {
		return domain.SymmetricKey{}, err
	}

	if skipped := index - uint64(st.LastConsumed+1); skipped > 0 {
		r.log.WithFields(logrus.Fields{
			"channel": describe(key),
			"skipped": skipped,
		}).Debug("receive keys skipped")
	}
	st.LastConsumed = int64(index)
	if err := r.topUp(tx, key, &st, now); err != nil {
		return domain.SymmetricKey{}, err
	}
	if err := saveChain(tx, key, domain.DirectionReceive, st); err != nil {
		return domain.SymmetricKey{}, err
	}
	return mk, nil
}

// MarkConsumed turns the provision at index into a tombstone. Consuming the
// same provision twice fails with ErrUnknownOrReplayedKey.
func (r *Registry) MarkConsumed(tx domain.Tx, key domain.ChannelKey, dir domain.Direction, index uint64, now time.Time) error {
	if err := r.consume(tx, key, dir, index, now); err != nil {
		return err
	}
	st, err := r.loadChain(tx, key, dir)
	if err != nil {
		return err
	}
	if int64(index) > st.LastConsumed {
		st.LastConsumed = int64(index)
		return saveChain(tx, key, dir, st)
	}
	return nil
}

// DeleteExpired removes tombstones consumed at least the retention period
// before now. Unconsumed provisions are never removed.
func (r *Registry) DeleteExpired(tx domain.Tx, now time.Time) (int, error) {
	kvs, err := tx.Scan(store.Prefix(provisionNS))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, kv := range kvs {
		var p domain.Provision
		if err := codec.Unmarshal(kv.Value, &p); err != nil {
			return n, err
		}
		if !p.Consumed || now.Sub(p.ConsumedAt) < r.retention {
			continue
		}
		if err := tx.Delete(kv.Key); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		r.log.WithField("count", n).Debug("expired provisions deleted")
	}
	return n, nil
}

// Provisions lists the provisions of a channel, receive direction first,
// each in index order.
func (r *Registry) Provisions(tx domain.Tx, key domain.ChannelKey) ([]domain.Provision, error) {
	return store.LoadAll[domain.Provision](tx, provisionPrefix(key))
}

func (r *Registry) consume(tx domain.Tx, key domain.ChannelKey, dir domain.Direction, index uint64, now time.Time) error {
	k := provisionKey(key, dir, index)
	p, ok, err := store.Load[domain.Provision](tx, k)
	if err != nil {
		return err
	}
	if !ok || p.Consumed {
		return ErrUnknownOrReplayedKey
	}
	crypto.Wipe(p.Key[:])
	p.Key = domain.SymmetricKey{}
	p.Consumed = true
	p.ConsumedAt = now
	return store.Save(tx, k, p)
}

// topUp provisions receive keys until the window extends past LastConsumed.
func (r *Registry) topUp(tx domain.Tx, key domain.ChannelKey, st *chainState, now time.Time) error {
	target := uint64(st.LastConsumed+1) + r.window
	for st.Next < target {
		p := domain.Provision{
			Channel:   key,
			Direction: domain.DirectionReceive,
			Index:     st.Next,
			Key:       ratchet.Advance(&st.Head),
			CreatedAt: now,
		}
		if err := store.Save(tx, provisionKey(key, domain.DirectionReceive, p.Index), p); err != nil {
			return err
		}
		st.Next++
	}
	return nil
}

func (r *Registry) loadChain(tx domain.Tx, key domain.ChannelKey, dir domain.Direction) (chainState, error) {
	st, ok, err := store.Load[chainState](tx, chainKey(key, dir))
	if err != nil {
		return chainState{}, err
	}
	if !ok {
		return chainState{}, ErrChannelNotFound
	}
	return st, nil
}

func saveChain(tx domain.Tx, key domain.ChannelKey, dir domain.Direction, st chainState) error {
	return store.Save(tx, chainKey(key, dir), st)
}

func channelParts(key domain.ChannelKey) []string {
	return []string{key.Owned.Key(), key.LocalDevice.String(), key.RemoteIdentity.Key(), key.RemoteDevice.String()}
}

func channelKey(key domain.ChannelKey) []byte {
	return store.Key(append([]string{channelNS}, channelParts(key)...)...)
}

func chainKey(key domain.ChannelKey, dir domain.Direction) []byte {
	return store.Key(append(append([]string{chainNS}, channelParts(key)...), dir.String())...)
}

func provisionPrefix(key domain.ChannelKey) []byte {
	return store.Prefix(append([]string{provisionNS}, channelParts(key)...)...)
}

func provisionKey(key domain.ChannelKey, dir domain.Direction, index uint64) []byte {
	return store.Key(append(append([]string{provisionNS}, channelParts(key)...), dir.String(), store.Index(index))...)
}
