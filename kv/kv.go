// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package kv defines the key-value storage abstraction the protocol state
// is persisted through, along with a goleveldb backed implementation.
package kv

// Getter defines methods to read kv.
type Getter interface {
	// Get retrieves the value for the given key.
	// An error is returned if the key is not found. Check it via IsNotFound.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	IsNotFound(err error) bool
}

// Putter defines methods to write kv.
type Putter interface {
	Put(key, val []byte) error
	Delete(key []byte) error
}

// Batch accumulates writes to be committed atomically.
type Batch interface {
	Putter

	Len() int
	Write() error
}

// Iterator iterates over kv pairs in a fixed direction.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Range is the key range. Start is included, Limit is excluded.
type Range struct {
	Start []byte
	Limit []byte
}

// Store defines the full functional kv store.
type Store interface {
	Getter
	Putter

	NewBatch() Batch

	// Iterate walks the given range in ascending key order,
	// or descending when reverse is set.
	Iterate(r Range, reverse bool) Iterator
}

// Closer with close method.
type Closer interface {
	Close() error
}

// StoreCloser is a closable store.
type StoreCloser interface {
	Store
	Closer
}
