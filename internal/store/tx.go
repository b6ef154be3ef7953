package store

import (
	"errors"

	"github.com/dgraph-io/badger/v4"

	"obvcore/internal/domain"
)

type tx struct {
	txn *badger.Txn
}

func (t *tx) Get(key []byte) ([]byte, bool, error) {
	item, err := t.txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (t *tx) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t *tx) Delete(key []byte) error {
	return t.txn.Delete(key)
}

// Scan collects the matching pairs before returning, so callers may write to
// the transaction while walking the result.
func (t *tx) Scan(prefix []byte) ([]domain.KV, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := t.txn.NewIterator(opts)
	defer it.Close()

	var out []domain.KV
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.KV{Key: item.KeyCopy(nil), Value: v})
	}
	return out, nil
}

var _ domain.Tx = (*tx)(nil)
