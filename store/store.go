// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package store provides typed storage primitives over a kv store.
// Values are RLP encoded; keys are composed through named buckets so
// that range iteration stays within one logical collection.
package store

import (
	"encoding/binary"
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/stakehub-labs/stakehub/kv"
)

// Item holds a single value under a fixed name.
type Item[V any] struct {
	store kv.Store
	key   []byte
}

// NewItem creates an item named name on the given store.
func NewItem[V any](s kv.Store, name string) *Item[V] {
	return &Item[V]{store: s, key: []byte("i-" + name)}
}

// Get loads the value. ok is false when the item was never set.
func (i *Item[V]) Get() (value V, ok bool, err error) {
	raw, err := i.store.Get(i.key)
	if err != nil {
		if i.store.IsNotFound(err) {
			return value, false, nil
		}
		return value, false, errors.Wrap(err, "get item")
	}
	if err := decodeValue(raw, &value); err != nil {
		return value, false, err
	}
	return value, true, nil
}

// Set stores the value.
func (i *Item[V]) Set(value V) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return errors.Wrap(err, "encode item")
	}
	return i.store.Put(i.key, raw)
}

// Delete removes the value.
func (i *Item[V]) Delete() error {
	return i.store.Delete(i.key)
}

// Mapping is a keyed collection of RLP encoded values, similar to a
// contract storage mapping but iterable in key order.
type Mapping[V any] struct {
	store  kv.Store
	bucket kv.Bucket
}

// NewMapping creates a mapping named name on the given store.
func NewMapping[V any](s kv.Store, name string) *Mapping[V] {
	return &Mapping[V]{store: s, bucket: kv.Bucket("m-" + name + "\x00")}
}

// Sub derives a nested mapping, e.g. per-validator period series.
func (m *Mapping[V]) Sub(name string) *Mapping[V] {
	return &Mapping[V]{store: m.store, bucket: m.bucket.Sub(name + "\x00")}
}

func (m *Mapping[V]) scoped() kv.Store {
	return m.bucket.NewStore(m.store)
}

// Get loads the value at key. ok is false when absent.
func (m *Mapping[V]) Get(key []byte) (value V, ok bool, err error) {
	raw, err := m.scoped().Get(key)
	if err != nil {
		if m.store.IsNotFound(err) {
			return value, false, nil
		}
		return value, false, errors.Wrap(err, "get mapping entry")
	}
	if err := decodeValue(raw, &value); err != nil {
		return value, false, err
	}
	return value, true, nil
}

// Has reports whether the key is present.
func (m *Mapping[V]) Has(key []byte) (bool, error) {
	return m.scoped().Has(key)
}

// Set stores the value at key.
func (m *Mapping[V]) Set(key []byte, value V) error {
	raw, err := rlp.EncodeToBytes(value)
	if err != nil {
		return errors.Wrap(err, "encode mapping entry")
	}
	return m.scoped().Put(key, raw)
}

// Delete removes the value at key.
func (m *Mapping[V]) Delete(key []byte) error {
	return m.scoped().Delete(key)
}

// Iterate walks entries within the key range in order, descending when
// reverse is set. The callback returns false to stop early.
func (m *Mapping[V]) Iterate(r kv.Range, reverse bool, fn func(key []byte, value V) (bool, error)) error {
	iter := m.scoped().Iterate(r, reverse)
	defer iter.Release()

	for iter.Next() {
		var value V
		if err := decodeValue(iter.Value(), &value); err != nil {
			return err
		}
		key := append([]byte(nil), iter.Key()...)
		goOn, err := fn(key, value)
		if err != nil {
			return err
		}
		if !goOn {
			break
		}
	}
	return errors.Wrap(iter.Error(), "iterate mapping")
}

// decodeValue decodes raw into value, allocating if V is a pointer type.
func decodeValue[V any](raw []byte, value *V) error {
	if reflect.ValueOf(*value).Kind() == reflect.Ptr {
		*value = reflect.New(reflect.TypeOf(*value).Elem()).Interface().(V)
	}
	if len(raw) == 0 {
		return nil
	}
	return errors.Wrap(rlp.DecodeBytes(raw, value), "decode stored value")
}

// U64Key encodes an integer key big endian so lexical order matches
// numeric order.
func U64Key(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// ParseU64Key decodes a U64Key.
func ParseU64Key(key []byte) uint64 {
	return binary.BigEndian.Uint64(key)
}

// ConfigVariable is a named uint64 parameter with a default.
type ConfigVariable struct {
	item *Item[uint64]
	def  uint64
}

// NewConfigVariable creates the variable named name with default def.
func NewConfigVariable(s kv.Store, name string, def uint64) *ConfigVariable {
	return &ConfigVariable{item: NewItem[uint64](s, "cfg-"+name), def: def}
}

// Get returns the stored value, or the default when never set.
func (c *ConfigVariable) Get() (uint64, error) {
	v, ok, err := c.item.Get()
	if err != nil {
		return 0, err
	}
	if !ok {
		return c.def, nil
	}
	return v, nil
}

// Set stores a new value.
func (c *ConfigVariable) Set(v uint64) error {
	return c.item.Set(v)
}
