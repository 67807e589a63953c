// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package pebble

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// Database is a backend.Database stored in Pebble. Table spaces are mapped
// to a one-byte key prefix.
type Database struct {
	db           *pebble.DB
	writeOptions *pebble.WriteOptions
}

// Open opens or creates a Pebble instance in the given directory.
func Open(path string, sync bool) (*Database, error) {
	return open(path, &pebble.Options{}, sync)
}

// OpenInMemory creates a Pebble instance on an in-memory file system.
func OpenInMemory() (*Database, error) {
	return open("", &pebble.Options{FS: vfs.NewMem()}, false)
}

func open(path string, options *pebble.Options, sync bool) (*Database, error) {
	db, err := pebble.Open(path, options)
	if err != nil {
		return nil, fmt.Errorf("failed to open Pebble at %q: %w", path, err)
	}
	writeOptions := pebble.NoSync
	if sync {
		writeOptions = pebble.Sync
	}
	return &Database{db: db, writeOptions: writeOptions}, nil
}

func key(space backend.TableSpace, key []byte) []byte {
	res := make([]byte, 1+len(key))
	res[0] = byte(space)
	copy(res[1:], key)
	return res
}

func (d *Database) Get(space backend.TableSpace, k []byte) ([]byte, error) {
	value, closer, err := d.db.Get(key(space, k))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(value), nil
}

func (d *Database) Iterate(space backend.TableSpace, min, max []byte, order common.Order) (backend.Iterator, error) {
	upper := []byte{byte(space) + 1}
	if max != nil {
		upper = key(space, max)
	}
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: key(space, min),
		UpperBound: upper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Pebble iterator: %w", err)
	}
	return &pebbleIterator{iter: iter, order: order}, nil
}

func (d *Database) Apply(batch *backend.Batch) error {
	pb := d.db.NewBatch()
	defer pb.Close()
	for _, op := range batch.Operations() {
		var err error
		if op.Delete {
			err = pb.Delete(key(op.Space, op.Key), nil)
		} else {
			err = pb.Set(key(op.Space, op.Key), op.Value, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to stage Pebble batch: %w", err)
		}
	}
	if err := pb.Commit(d.writeOptions); err != nil {
		return fmt.Errorf("failed to commit Pebble batch: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	order   common.Order
	started bool
	done    bool
}

func (i *pebbleIterator) Next() bool {
	if i.done {
		return false
	}
	if !i.advance() {
		i.done = true
		return false
	}
	return true
}

func (i *pebbleIterator) advance() bool {
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

func (i *pebbleIterator) Key() []byte {
	return i.iter.Key()[1:]
}

func (i *pebbleIterator) Value() []byte {
	return i.iter.Value()
}

func (i *pebbleIterator) Err() error {
	return i.iter.Error()
}

func (i *pebbleIterator) Release() {
	i.iter.Close()
}
