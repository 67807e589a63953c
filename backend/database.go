// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package backend defines the ordered key-value engine the versioned store is
// built on. Implementations live in sub-packages and differ only in the
// physical storage they use.
package backend

import (
	"errors"
	"fmt"

	"github.com/0xsoniclabs/jellyfish/common"
)

//go:generate mockgen -source database.go -destination database_mocks.go -package backend

// TableSpace divides the key space of a Database into independent spaces.
type TableSpace byte

const (
	// MetadataSpace holds version counters and other store-wide properties.
	MetadataSpace TableSpace = 'M'
	// CommitmentSpace holds the encoded nodes and orphan records of the tree.
	CommitmentSpace TableSpace = 'C'
	// StorageSpace holds versioned raw key-value pairs.
	StorageSpace TableSpace = 'S'
	// PreimageSpace holds versioned key-hash to raw-key mappings.
	PreimageSpace TableSpace = 'P'
	// HistorySpace records which keys of the versioned spaces were written
	// at which version.
	HistorySpace TableSpace = 'H'
)

// Spaces lists all table spaces in use.
var Spaces = []TableSpace{MetadataSpace, CommitmentSpace, StorageSpace, PreimageSpace, HistorySpace}

func (s TableSpace) String() string {
	switch s {
	case MetadataSpace:
		return "metadata"
	case CommitmentSpace:
		return "commitment"
	case StorageSpace:
		return "storage"
	case PreimageSpace:
		return "preimage"
	case HistorySpace:
		return "history"
	}
	return fmt.Sprintf("space(%d)", byte(s))
}

var (
	// ErrNotFound is returned by Get if a key is not present.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("database is closed")
)

// Database is an ordered byte key-value store partitioned into table spaces.
// All implementations are safe for concurrent use. Iterators observe a
// consistent view of the data as of their creation.
type Database interface {
	// Get returns the value stored for the key or ErrNotFound.
	Get(space TableSpace, key []byte) ([]byte, error)
	// Iterate produces the entries with keys in [min, max) in the given order.
	// A nil bound is unbounded.
	Iterate(space TableSpace, min, max []byte, order common.Order) (Iterator, error)
	// Apply writes all operations of the batch atomically.
	Apply(batch *Batch) error
	// Close releases the resources of the database.
	Close() error
}

// Iterator is a cursor over a range of entries. Slices returned by Key and
// Value are only valid until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Release()
}

// First returns the first entry of the given range in the given order. The
// found result is false if the range is empty.
func First(db Database, space TableSpace, min, max []byte, order common.Order) (key, value []byte, found bool, err error) {
	iter, err := db.Iterate(space, min, max, order)
	if err != nil {
		return nil, nil, false, err
	}
	defer iter.Release()
	if iter.Next() {
		key = append([]byte(nil), iter.Key()...)
		value = append([]byte(nil), iter.Value()...)
		found = true
	}
	return key, value, found, iter.Err()
}

// InRange reports whether key is within [min, max) where nil bounds are
// unbounded.
func InRange(key, min, max []byte) bool {
	if min != nil && string(key) < string(min) {
		return false
	}
	if max != nil && string(key) >= string(max) {
		return false
	}
	return true
}
