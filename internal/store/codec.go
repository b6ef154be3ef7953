package store

import (
	"fmt"

	"obvcore/internal/codec"
	"obvcore/internal/domain"
)

// Load decodes the value at key into a T. ok is false when the key is absent.
func Load[T any](t domain.Tx, key []byte) (v T, ok bool, err error) {
	raw, ok, err := t.Get(key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := codec.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

// MustLoad is Load but reports an absent key as ErrNotFound.
func MustLoad[T any](t domain.Tx, key []byte) (T, error) {
	v, ok, err := Load[T](t, key)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, nil
}

// Save encodes v and stores it at key.
func Save(t domain.Tx, key []byte, v any) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return t.Set(key, raw)
}

// LoadAll decodes every value below prefix.
func LoadAll[T any](t domain.Tx, prefix []byte) ([]T, error) {
	kvs, err := t.Scan(prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(kvs))
	for _, kv := range kvs {
		var v T
		if err := codec.Unmarshal(kv.Value, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kv.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// DeletePrefix removes every key below prefix and returns how many were removed.
func DeletePrefix(t domain.Tx, prefix []byte) (int, error) {
	kvs, err := t.Scan(prefix)
	if err != nil {
		return 0, err
	}
	for _, kv := range kvs {
		if err := t.Delete(kv.Key); err != nil {
			return 0, err
		}
	}
	return len(kvs), nil
}
