// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ldb

import (
	"errors"
	"fmt"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Database is a backend.Database stored in LevelDB.
type Database struct {
	db           *leveldb.DB
	writeOptions *opt.WriteOptions
}

// Options configures a LevelDB backed database.
type Options struct {
	// Sync forces a sync of the write-ahead log on every applied batch.
	Sync bool
	// BlockCacheCapacity is the size of the LevelDB block cache in bytes. Zero
	// selects the LevelDB default.
	BlockCacheCapacity int
}

// Open opens or creates a LevelDB instance in the given directory.
func Open(path string, options Options) (*Database, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: options.BlockCacheCapacity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open LevelDB at %s: %w", path, err)
	}
	return &Database{db: db, writeOptions: &opt.WriteOptions{Sync: options.Sync}}, nil
}

// OpenInMemory creates a LevelDB instance on a volatile in-memory storage.
func OpenInMemory() (*Database, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory LevelDB: %w", err)
	}
	return &Database{db: db, writeOptions: &opt.WriteOptions{}}, nil
}

func (d *Database) Get(space backend.TableSpace, key []byte) ([]byte, error) {
	res, err := d.db.Get(dbKey(space, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, backend.ErrNotFound
	}
	if errors.Is(err, leveldb.ErrClosed) {
		return nil, backend.ErrClosed
	}
	return res, err
}

func (d *Database) Iterate(space backend.TableSpace, min, max []byte, order common.Order) (backend.Iterator, error) {
	start, limit := spaceRange(space, min, max)
	iter := d.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil)
	if err := iter.Error(); err != nil {
		iter.Release()
		if errors.Is(err, leveldb.ErrClosed) {
			return nil, backend.ErrClosed
		}
		return nil, err
	}
	return &ldbIterator{iter: iter, order: order}, nil
}

func (d *Database) Apply(batch *backend.Batch) error {
	var lb leveldb.Batch
	for _, op := range batch.Operations() {
		if op.Delete {
			lb.Delete(dbKey(op.Space, op.Key))
		} else {
			lb.Put(dbKey(op.Space, op.Key), op.Value)
		}
	}
	if err := d.db.Write(&lb, d.writeOptions); err != nil {
		if errors.Is(err, leveldb.ErrClosed) {
			return backend.ErrClosed
		}
		return fmt.Errorf("failed to write batch to LevelDB: %w", err)
	}
	return nil
}

// Compact triggers a compaction of the full key range.
func (d *Database) Compact() error {
	return d.db.CompactRange(util.Range{})
}

func (d *Database) Close() error {
	return d.db.Close()
}

type ldbIterator struct {
	iter    iterator.Iterator
	order   common.Order
	started bool
	done    bool
}

func (i *ldbIterator) Next() bool {
	if i.done {
		return false
	}
	if !i.advance() {
		i.done = true
		return false
	}
	return true
}

func (i *ldbIterator) advance() bool {
	if !i.started {
		i.started = true
		if i.order == common.Descending {
			return i.iter.Last()
		}
		return i.iter.First()
	}
	if i.order == common.Descending {
		return i.iter.Prev()
	}
	return i.iter.Next()
}

func (i *ldbIterator) Key() []byte {
	return i.iter.Key()[1:]
}

func (i *ldbIterator) Value() []byte {
	return i.iter.Value()
}

func (i *ldbIterator) Err() error {
	return i.iter.Error()
}

func (i *ldbIterator) Release() {
	i.iter.Release()
}
