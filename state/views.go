// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"fmt"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/database/jmt"
	"github.com/0xsoniclabs/jellyfish/database/versioned"
)

// KVStore is a key/value store interface. The views offered by a Db are
// read-only implementations of it. Their Set and Delete methods panic.
type KVStore interface {
	Get(key []byte) ([]byte, bool, error)
	Has(key []byte) (bool, error)
	Set(key, value []byte)
	Delete(key []byte)
}

var (
	_ KVStore = (*StorageView)(nil)
	_ KVStore = (*CommitmentView)(nil)
)

// StorageView is a read-only view on the raw key/value pairs of a version.
type StorageView struct {
	db      *Db
	version uint64
}

// StateStorage returns a read-only view on the raw key/value pairs of the
// given version. Reads fail once the version gets pruned.
func (d *Db) StateStorage(version uint64) (*StorageView, error) {
	v, err := d.resolve(version)
	if err != nil {
		return nil, err
	}
	return &StorageView{db: d, version: v}, nil
}

// Version returns the version this view is reading from.
func (v *StorageView) Version() uint64 {
	return v.version
}

func (v *StorageView) Get(key []byte) ([]byte, bool, error) {
	return v.db.Get(key, v.version)
}

func (v *StorageView) Has(key []byte) (bool, error) {
	_, found, err := v.Get(key)
	return found, err
}

// Iterate lists the keys in [min, max) of the viewed version in the given
// order. A nil bound is unbounded.
func (v *StorageView) Iterate(min, max []byte, order common.Order) (*versioned.Iterator, error) {
	if _, err := v.db.resolve(v.version); err != nil {
		return nil, err
	}
	iter, err := v.db.storage.Iterate(min, max, order, v.version)
	if err != nil {
		return nil, err
	}
	// Iterators observe the data as of their creation.
	if err := v.db.checkRetained(v.version); err != nil {
		iter.Release()
		return nil, err
	}
	return iter, nil
}

func (v *StorageView) Set(key, value []byte) {
	panic("state storage view is read-only")
}

func (v *StorageView) Delete(key []byte) {
	panic("state storage view is read-only")
}

// CommitmentView is a read-only view on the nodes of the commitment tree,
// addressed by encoded node keys.
type CommitmentView struct {
	db *Db
}

// StateCommitment returns a read-only view on the tree nodes of all retained
// versions.
func (d *Db) StateCommitment() *CommitmentView {
	return &CommitmentView{db: d}
}

// Get returns the encoded node stored under the given encoded node key.
func (v *CommitmentView) Get(key []byte) ([]byte, bool, error) {
	nodeKey, n, err := jmt.DecodeNodeKey(key)
	if err != nil {
		return nil, false, err
	}
	if n != len(key) {
		return nil, false, fmt.Errorf("invalid node key: %d trailing bytes", len(key)-n)
	}
	return v.db.tree.Store().Raw(nodeKey)
}

func (v *CommitmentView) Has(key []byte) (bool, error) {
	_, found, err := v.Get(key)
	return found, err
}

func (v *CommitmentView) Set(key, value []byte) {
	panic("state commitment view is read-only")
}

func (v *CommitmentView) Delete(key []byte) {
	panic("state commitment view is read-only")
}
