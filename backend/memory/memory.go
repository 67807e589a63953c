// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package memory

import (
	"bytes"
	"sync"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/tidwall/btree"
)

type entry struct {
	space backend.TableSpace
	key   []byte
	value []byte
}

func less(a, b entry) bool {
	if a.space != b.space {
		return a.space < b.space
	}
	return bytes.Compare(a.key, b.key) < 0
}

// Database is an in-memory backend.Database kept in a B-tree. Iterators work
// on copy-on-write snapshots of the tree and are thus not affected by
// concurrent updates.
type Database struct {
	mu     sync.RWMutex
	tree   *btree.BTreeG[entry]
	closed bool
}

// New creates an empty in-memory database.
func New() *Database {
	return &Database{
		tree: btree.NewBTreeGOptions(less, btree.Options{NoLocks: true}),
	}
}

func (d *Database) Get(space backend.TableSpace, key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, backend.ErrClosed
	}
	res, found := d.tree.Get(entry{space: space, key: key})
	if !found {
		return nil, backend.ErrNotFound
	}
	return bytes.Clone(res.value), nil
}

func (d *Database) Iterate(space backend.TableSpace, min, max []byte, order common.Order) (backend.Iterator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, backend.ErrClosed
	}
	snapshot := d.tree.Copy()
	return &iterator{
		iter:  snapshot.Iter(),
		space: space,
		min:   min,
		max:   max,
		order: order,
	}, nil
}

func (d *Database) Apply(batch *backend.Batch) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return backend.ErrClosed
	}
	for _, op := range batch.Operations() {
		if op.Delete {
			d.tree.Delete(entry{space: op.Space, key: op.Key})
			continue
		}
		d.tree.Set(entry{
			space: op.Space,
			key:   bytes.Clone(op.Key),
			value: bytes.Clone(op.Value),
		})
	}
	return nil
}

// Len returns the number of entries stored in all table spaces.
func (d *Database) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.tree.Len()
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.tree.Clear()
	return nil
}

type iterator struct {
	iter    btree.IterG[entry]
	space   backend.TableSpace
	min     []byte
	max     []byte
	order   common.Order
	started bool
	done    bool
	current entry
}

func (i *iterator) Next() bool {
	if i.done {
		return false
	}
	if !i.advance() {
		i.done = true
		return false
	}
	return true
}

func (i *iterator) advance() bool {
	var ok bool
	if !i.started {
		i.started = true
		ok = i.seek()
	} else if i.order == common.Descending {
		ok = i.iter.Prev()
	} else {
		ok = i.iter.Next()
	}
	if !ok {
		return false
	}
	item := i.iter.Item()
	if item.space != i.space || !backend.InRange(item.key, i.min, i.max) {
		return false
	}
	i.current = item
	return true
}

func (i *iterator) seek() bool {
	if i.order != common.Descending {
		return i.iter.Seek(entry{space: i.space, key: i.min})
	}
	upper := entry{space: i.space + 1}
	if i.max != nil {
		upper = entry{space: i.space, key: i.max}
	}
	if i.iter.Seek(upper) {
		return i.iter.Prev()
	}
	return i.iter.Last()
}

func (i *iterator) Key() []byte {
	return i.current.key
}

func (i *iterator) Value() []byte {
	return i.current.value
}

func (i *iterator) Err() error {
	return nil
}

func (i *iterator) Release() {
	i.iter.Release()
}
