// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package preimage maintains the mapping from key hashes to the raw keys they
// were computed from. The commitment tree only knows key hashes; proofs of
// absence need the raw keys of the neighbouring entries.
//
// The index is versioned like the state storage. Deleting a key records a
// tombstone, so that lookups at or after the deletion no longer see it while
// older versions remain provable.
package preimage

import (
	"fmt"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/database/versioned"
)

// Direction selects the neighbour searched for by Neighbor.
type Direction int

const (
	// Left selects the closest entry with a smaller key hash.
	Left Direction = iota
	// Right selects the closest entry with a larger key hash.
	Right
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// Index is a versioned key-hash to raw-key index.
type Index struct {
	store *versioned.Store
}

// New creates an index stored in the preimage space of the given database.
func New(db backend.Database) *Index {
	return &Index{store: versioned.New(db, backend.PreimageSpace)}
}

// Record registers the raw key at the given version. Recording an already
// present key is idempotent.
func (i *Index) Record(batch *backend.Batch, key []byte, version uint64) {
	hash := common.Sha256(key)
	i.store.Set(batch, hash[:], key, version)
}

// Erase registers the removal of the key at the given version.
func (i *Index) Erase(batch *backend.Batch, key []byte, version uint64) {
	hash := common.Sha256(key)
	i.store.Delete(batch, hash[:], version)
}

// Lookup returns the raw key of the given hash as of the given version.
func (i *Index) Lookup(keyHash common.Hash, version uint64) ([]byte, bool, error) {
	return i.store.Get(keyHash[:], version)
}

// Neighbor finds the raw key with the closest key hash strictly smaller
// (Left) or larger (Right) than the given hash, as of the given version.
func (i *Index) Neighbor(keyHash common.Hash, direction Direction, version uint64) ([]byte, bool, error) {
	var (
		iter *versioned.Iterator
		err  error
	)
	if direction == Left {
		iter, err = i.store.Iterate(nil, keyHash[:], common.Descending, version)
	} else {
		// the smallest key larger than keyHash is keyHash followed by 0x00
		iter, err = i.store.Iterate(append(keyHash.ToBytes(), 0x00), nil, common.Ascending, version)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to search %v neighbor of %v: %w", direction, keyHash, err)
	}
	defer iter.Release()
	if !iter.Next() {
		return nil, false, iter.Err()
	}
	return append([]byte(nil), iter.Value()...), true, nil
}

// Compact removes entries which can no longer be observed by lookups at
// versions >= upTo.
func (i *Index) Compact(upTo uint64, remove func(backend.TableSpace, []byte) error) (versioned.CompactStats, error) {
	return i.store.Compact(upTo, remove)
}
