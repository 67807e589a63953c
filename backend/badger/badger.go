// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package badger

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Database is a backend.Database stored in BadgerDB. Badger is used in its
// plain transactional mode; versions are encoded into keys by the layers
// above like for every other backend.
type Database struct {
	db *badger.DB
}

// Options configures a Badger backed database.
type Options struct {
	// SyncWrites ensures durability by syncing writes to disk.
	SyncWrites bool
	// Compression enables Snappy compression of tables.
	Compression bool
	// InMemory keeps all data in memory, the directory is ignored.
	InMemory bool
}

// DefaultOptions returns the options used if nothing else is configured.
func DefaultOptions() Options {
	return Options{SyncWrites: true, Compression: true}
}

// Open opens or creates a Badger instance in the given directory.
func Open(path string, opts Options) (*Database, error) {
	badgerOpts := badger.DefaultOptions(path).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(nil)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if opts.Compression {
		badgerOpts = badgerOpts.WithCompression(options.Snappy)
	} else {
		badgerOpts = badgerOpts.WithCompression(options.None)
	}
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger at %q: %w", path, err)
	}
	return &Database{db: db}, nil
}

// OpenInMemory creates a volatile Badger instance.
func OpenInMemory() (*Database, error) {
	return Open("", Options{InMemory: true})
}

func dbKey(space backend.TableSpace, key []byte) []byte {
	res := make([]byte, 1+len(key))
	res[0] = byte(space)
	copy(res[1:], key)
	return res
}

func (d *Database) Get(space backend.TableSpace, key []byte) ([]byte, error) {
	var res []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dbKey(space, key))
		if err != nil {
			return err
		}
		res, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, backend.ErrNotFound
	}
	if errors.Is(err, badger.ErrDBClosed) {
		return nil, backend.ErrClosed
	}
	return res, err
}

func (d *Database) Iterate(space backend.TableSpace, min, max []byte, order common.Order) (backend.Iterator, error) {
	if d.db.IsClosed() {
		return nil, backend.ErrClosed
	}
	txn := d.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = order == common.Descending
	lower := dbKey(space, min)
	upper := []byte{byte(space) + 1}
	if max != nil {
		upper = dbKey(space, max)
	}
	return &badgerIterator{
		txn:   txn,
		iter:  txn.NewIterator(opts),
		lower: lower,
		upper: upper,
		order: order,
	}, nil
}

func (d *Database) Apply(batch *backend.Batch) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		for _, op := range batch.Operations() {
			var err error
			if op.Delete {
				err = txn.Delete(dbKey(op.Space, op.Key))
			} else {
				err = txn.Set(dbKey(op.Space, op.Key), bytes.Clone(op.Value))
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrDBClosed) {
		return backend.ErrClosed
	}
	if err != nil {
		return fmt.Errorf("failed to write batch to Badger: %w", err)
	}
	return nil
}

// RunGarbageCollection rewrites value log files with a discard ratio above
// the given threshold until no more files qualify.
func (d *Database) RunGarbageCollection(discardRatio float64) error {
	for {
		err := d.db.RunValueLogGC(discardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *Database) Close() error {
	return d.db.Close()
}

type badgerIterator struct {
	txn     *badger.Txn
	iter    *badger.Iterator
	lower   []byte
	upper   []byte
	order   common.Order
	started bool
	done    bool
	key     []byte
	value   []byte
	err     error
}

func (i *badgerIterator) Next() bool {
	if i.done {
		return false
	}
	if !i.advance() {
		i.done = true
		return false
	}
	return true
}

func (i *badgerIterator) advance() bool {
	if i.err != nil {
		return false
	}
	if !i.started {
		i.started = true
		if i.order == common.Descending {
			// In reverse mode Seek positions at the largest key <= upper.
			i.iter.Seek(i.upper)
			for i.iter.Valid() && bytes.Compare(i.iter.Item().Key(), i.upper) >= 0 {
				i.iter.Next()
			}
		} else {
			i.iter.Seek(i.lower)
		}
	} else {
		i.iter.Next()
	}
	if !i.iter.Valid() {
		return false
	}
	item := i.iter.Item()
	k := item.Key()
	if bytes.Compare(k, i.lower) < 0 || bytes.Compare(k, i.upper) >= 0 {
		return false
	}
	i.key = k[1:]
	i.value, i.err = item.ValueCopy(i.value[:0])
	return i.err == nil
}

func (i *badgerIterator) Key() []byte {
	return i.key
}

func (i *badgerIterator) Value() []byte {
	return i.value
}

func (i *badgerIterator) Err() error {
	return i.err
}

func (i *badgerIterator) Release() {
	i.iter.Close()
	i.txn.Discard()
}
