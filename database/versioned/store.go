// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package versioned implements a multi-version key-value store on top of a
// single table space of a backend.Database. Each write is tagged with the
// version it belongs to; reads at a version observe the most recent write at
// or before that version.
package versioned

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
)

// Store is a versioned key-value store in one table space. A Store does not
// buffer anything, writes are registered in batches provided by the caller.
type Store struct {
	db    backend.Database
	space backend.TableSpace
}

// New creates a versioned store in the given space of the database.
func New(db backend.Database, space backend.TableSpace) *Store {
	return &Store{db: db, space: space}
}

// Get returns the value of the key as of the given version. The found flag
// is false if the key was never written or deleted at or before the version.
func (s *Store) Get(key []byte, version uint64) ([]byte, bool, error) {
	prefix := keyPrefix(key)
	max := append(encodeKey(key, version), 0x00)
	_, encoded, found, err := backend.First(s.db, s.space, prefix, max, common.Descending)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %x from %v: %w", key, s.space, err)
	}
	if !found {
		return nil, false, nil
	}
	value, exists, err := decodeValue(encoded)
	if err != nil {
		return nil, false, err
	}
	return value, exists, nil
}

// Set registers setting the key to the value at the given version.
func (s *Store) Set(batch *backend.Batch, key, value []byte, version uint64) {
	batch.Put(s.space, encodeKey(key, version), encodeValue(value))
	s.recordChange(batch, key, version)
}

// Delete registers the removal of the key at the given version. Older
// versions keep observing the previous value.
func (s *Store) Delete(batch *backend.Batch, key []byte, version uint64) {
	batch.Put(s.space, encodeKey(key, version), []byte{tombstone})
	s.recordChange(batch, key, version)
}

// recordChange notes in the history space that the key was written at the
// given version, so that Compact only needs to visit written keys.
func (s *Store) recordChange(batch *backend.Batch, key []byte, version uint64) {
	batch.Put(backend.HistorySpace, historyKey(s.space, version, key), []byte{})
}

// Iterate produces the keys in [min, max) existing at the given version in
// the requested order. Nil bounds are unbounded.
func (s *Store) Iterate(min, max []byte, order common.Order, version uint64) (*Iterator, error) {
	var lower, upper []byte
	if min != nil {
		lower = keyPrefix(min)
	}
	if max != nil {
		upper = keyPrefix(max)
	}
	iter, err := s.db.Iterate(s.space, lower, upper, order)
	if err != nil {
		return nil, fmt.Errorf("failed to iterate %v: %w", s.space, err)
	}
	return &Iterator{iter: iter, version: version}, nil
}

// CompactStats summarizes a Compact run.
type CompactStats struct {
	Entries int // removed entries of the store
	Records int // removed history records
}

// Compact calls remove for every physical entry that can no longer be
// observed by reads at versions >= upTo. Per key, the most recent live entry
// at or before upTo is retained, as are all later entries.
//
// Only keys written at versions <= upTo since the last compaction are
// visited. Their history records are removed as well.
func (s *Store) Compact(upTo uint64, remove func(space backend.TableSpace, encodedKey []byte) error) (CompactStats, error) {
	var stats CompactStats
	min, max := historyRange(s.space, upTo)
	iter, err := s.db.Iterate(backend.HistorySpace, min, max, common.Ascending)
	if err != nil {
		return stats, fmt.Errorf("failed to iterate history of %v: %w", s.space, err)
	}
	defer iter.Release()

	// newest change at or before upTo per key prefix
	changes := map[string]uint64{}
	for iter.Next() {
		record := bytes.Clone(iter.Key())
		version, prefix, err := decodeHistoryKey(record)
		if err != nil {
			return stats, err
		}
		changes[string(prefix)] = version
		if err := remove(backend.HistorySpace, record); err != nil {
			return stats, err
		}
		stats.Records++
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("failed to iterate history of %v: %w", s.space, err)
	}

	for _, prefix := range slices.Sorted(maps.Keys(changes)) {
		removed, err := s.compactKey([]byte(prefix), changes[prefix], remove)
		stats.Entries += removed
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// compactKey removes all entries of the key with the given prefix which are
// shadowed by its entry at the given version, and that entry itself if it is
// a tombstone.
func (s *Store) compactKey(prefix []byte, version uint64, remove func(backend.TableSpace, []byte) error) (int, error) {
	newest := binary.BigEndian.AppendUint64(bytes.Clone(prefix), version)
	iter, err := s.db.Iterate(s.space, prefix, newest, common.Ascending)
	if err != nil {
		return 0, fmt.Errorf("failed to iterate %v: %w", s.space, err)
	}
	defer iter.Release()

	removed := 0
	for iter.Next() {
		if err := remove(s.space, bytes.Clone(iter.Key())); err != nil {
			return removed, err
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to iterate %v: %w", s.space, err)
	}

	encoded, err := s.db.Get(s.space, newest)
	if errors.Is(err, backend.ErrNotFound) {
		return removed, nil
	}
	if err != nil {
		return removed, fmt.Errorf("failed to read %x from %v: %w", newest, s.space, err)
	}
	if _, exists, err := decodeValue(encoded); err != nil || exists {
		return removed, err
	}
	if err := remove(s.space, newest); err != nil {
		return removed, err
	}
	return removed + 1, nil
}

// Iterator produces the live entries of a versioned store at a version.
type Iterator struct {
	iter    backend.Iterator
	version uint64

	// read-ahead of the first physical entry of the next key
	nextKey     []byte
	nextVersion uint64
	nextValue   []byte
	hasNext     bool
	exhausted   bool

	key   []byte
	value []byte
	err   error
}

func (i *Iterator) read() bool {
	if i.exhausted || !i.iter.Next() {
		i.hasNext = false
		i.exhausted = true
		return false
	}
	key, version, err := decodeKey(i.iter.Key())
	if err != nil {
		i.err = err
		i.hasNext = false
		return false
	}
	i.nextKey = key
	i.nextVersion = version
	i.nextValue = bytes.Clone(i.iter.Value())
	i.hasNext = true
	return true
}

// Next moves to the next live key. It returns false at the end of the range
// or on errors, to be checked using Err.
func (i *Iterator) Next() bool {
	if i.err != nil {
		return false
	}
	if !i.hasNext && (i.exhausted || !i.read()) {
		return false
	}
	for i.hasNext {
		key := i.nextKey
		var (
			best      []byte
			bestFound bool
			bestVer   uint64
		)
		for i.hasNext && bytes.Equal(i.nextKey, key) {
			if i.nextVersion <= i.version && (!bestFound || i.nextVersion >= bestVer) {
				best, bestVer, bestFound = i.nextValue, i.nextVersion, true
			}
			if !i.read() {
				break
			}
		}
		if i.err != nil {
			return false
		}
		if !bestFound {
			continue
		}
		value, exists, err := decodeValue(best)
		if err != nil {
			i.err = err
			return false
		}
		if exists {
			i.key, i.value = key, value
			return true
		}
	}
	return false
}

// Key returns the raw key of the current entry.
func (i *Iterator) Key() []byte {
	return i.key
}

// Value returns the value of the current entry.
func (i *Iterator) Value() []byte {
	return i.value
}

// Err returns the first error encountered during the iteration.
func (i *Iterator) Err() error {
	if i.err != nil {
		return i.err
	}
	return i.iter.Err()
}

// Release frees the resources of the iterator.
func (i *Iterator) Release() {
	i.iter.Release()
}
