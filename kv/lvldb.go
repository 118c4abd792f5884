// Copyright (c) 2025 The StakeHub developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var (
	writeOpt = &opt.WriteOptions{}
	readOpt  = &opt.ReadOptions{}
)

// implements Batch interface
type lvldbBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *lvldbBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *lvldbBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *lvldbBatch) Len() int {
	return b.batch.Len()
}

func (b *lvldbBatch) Write() error {
	return b.db.Write(b.batch, writeOpt)
}

// implements StoreCloser interface
type lvldb struct {
	db *leveldb.DB
}

func openLevelDB(stg storage.Storage, cacheSize, openFilesCacheCapacity int) (*lvldb, error) {
	if cacheSize < 128 {
		cacheSize = 128
	}

	if openFilesCacheCapacity < 64 {
		openFilesCacheCapacity = 64
	}

	db, err := leveldb.Open(stg, &opt.Options{
		OpenFilesCacheCapacity: openFilesCacheCapacity,
		BlockCacheCapacity:     cacheSize / 2 * opt.MiB,
		WriteBuffer:            cacheSize / 4 * opt.MiB, // Two of these are used internally
		Filter:                 filter.NewBloomFilter(10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open level db")
	}
	return &lvldb{db: db}, nil
}

// NewMem creates an in-memory store, handy for tests.
func NewMem() StoreCloser {
	db, err := openLevelDB(storage.NewMemStorage(), 128, 0)
	if err != nil {
		// mem storage cannot fail to open
		panic(err)
	}
	return db
}

// New opens a persistent store located at path.
func New(path string, cacheSizeMB int) (StoreCloser, error) {
	stg, err := storage.OpenFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, "open db dir")
	}
	db, err := openLevelDB(stg, cacheSizeMB, 512)
	if err != nil {
		stg.Close()
		return nil, err
	}
	return db, nil
}

func (l *lvldb) Get(key []byte) ([]byte, error) {
	return l.db.Get(key, readOpt)
}

func (l *lvldb) Has(key []byte) (bool, error) {
	return l.db.Has(key, readOpt)
}

func (l *lvldb) IsNotFound(err error) bool {
	return errors.Is(err, leveldb.ErrNotFound)
}

func (l *lvldb) Put(key, value []byte) error {
	return l.db.Put(key, value, writeOpt)
}

func (l *lvldb) Delete(key []byte) error {
	return l.db.Delete(key, writeOpt)
}

func (l *lvldb) Close() error {
	return l.db.Close()
}

func (l *lvldb) NewBatch() Batch {
	return &lvldbBatch{
		l.db,
		&leveldb.Batch{},
	}
}

func (l *lvldb) Iterate(r Range, reverse bool) Iterator {
	iter := l.db.NewIterator(&util.Range{Start: r.Start, Limit: r.Limit}, readOpt)
	return &dirIterator{iter: iter, reverse: reverse}
}

// dirIterator adapts goleveldb's bidirectional iterator into a
// single-direction one.
type dirIterator struct {
	iter    iterator.Iterator
	reverse bool
	started bool
}

func (i *dirIterator) Next() bool {
	if !i.started {
		i.started = true
		if i.reverse {
			return i.iter.Last()
		}
		return i.iter.First()
	}
	if i.reverse {
		return i.iter.Prev()
	}
	return i.iter.Next()
}

func (i *dirIterator) Key() []byte   { return i.iter.Key() }
func (i *dirIterator) Value() []byte { return i.iter.Value() }
func (i *dirIterator) Release()      { i.iter.Release() }
func (i *dirIterator) Error() error  { return i.iter.Error() }
