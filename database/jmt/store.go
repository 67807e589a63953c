// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package jmt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/0xsoniclabs/jellyfish/backend"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbnjay/memory"
)

// Prefixes of the keys in the commitment table space.
const (
	nodePrefix   = 'n'
	orphanPrefix = 'o'
)

const (
	// approxNodeMemory is a rough estimate of the memory a cached node and its
	// cache entry occupy.
	approxNodeMemory = 256
	minCacheSize     = 1 << 10
	maxCacheSize     = 1 << 22
)

// DefaultCacheSize returns a node cache capacity using 1/64 of the available
// physical memory, bounded to a sane range.
func DefaultCacheSize() int {
	size := memory.TotalMemory() / 64 / approxNodeMemory
	if size < minCacheSize {
		return minCacheSize
	}
	if size > maxCacheSize {
		return maxCacheSize
	}
	return int(size)
}

// CacheSizeFor converts a memory budget in bytes into a node cache capacity.
func CacheSizeFor(bytes uint64) int {
	return int(max(bytes/approxNodeMemory, 1))
}

// NodeStore provides cached read access to the tree nodes persisted in the
// commitment table space. It is safe for concurrent use.
type NodeStore struct {
	db     backend.Database
	cache  *lru.Cache[NodeKey, Node]
	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewNodeStore creates a node store reading from the given database. A
// non-positive cache size selects DefaultCacheSize.
func NewNodeStore(db backend.Database, cacheSize int) (*NodeStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize()
	}
	cache, err := lru.New[NodeKey, Node](cacheSize)
	if err != nil {
		return nil, err
	}
	return &NodeStore{db: db, cache: cache}, nil
}

// Get loads the node with the given key. If there is no such node, false is
// returned.
func (s *NodeStore) Get(key NodeKey) (Node, bool, error) {
	if node, found := s.cache.Get(key); found {
		s.hits.Add(1)
		return node, true, nil
	}
	s.misses.Add(1)
	data, err := s.db.Get(backend.CommitmentSpace, nodeDbKey(key))
	if errors.Is(err, backend.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	node, err := DecodeNode(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode node %v: %w", key, err)
	}
	s.cache.Add(key, node)
	return node, true, nil
}

// Raw returns the encoded node stored under the given key, bypassing the
// cache.
func (s *NodeStore) Raw(key NodeKey) ([]byte, bool, error) {
	data, err := s.db.Get(backend.CommitmentSpace, nodeDbKey(key))
	if errors.Is(err, backend.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// mustGet loads a node that is referenced by another node. A missing node
// indicates a corrupted database.
func (s *NodeStore) mustGet(key NodeKey) (Node, error) {
	node, found, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %v", ErrNodeNotFound, key)
	}
	return node, nil
}

// Committed makes the nodes written by the given writer available in the
// cache. It must only be called once the writer's batch has been persisted.
func (s *NodeStore) Committed(w *NodeWriter) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, node := range w.written {
		s.cache.Add(key, node)
	}
}

// Evict removes the given node from the cache.
func (s *NodeStore) Evict(key NodeKey) {
	s.cache.Remove(key)
}

// CacheStats returns the number of cache hits and misses so far.
func (s *NodeStore) CacheStats() (hits, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}

// NodeWriter stages node writes and orphan records produced by a tree update
// in a backend batch. It is safe for concurrent use.
type NodeWriter struct {
	mu      sync.Mutex
	batch   *backend.Batch
	written map[NodeKey]Node
	orphans int
}

// NewNodeWriter creates a writer staging its updates in the given batch.
func NewNodeWriter(batch *backend.Batch) *NodeWriter {
	return &NodeWriter{
		batch:   batch,
		written: map[NodeKey]Node{},
	}
}

// Put stages the given node under the given key.
func (w *NodeWriter) Put(key NodeKey, node Node) {
	value := EncodeNode(make([]byte, 0, EncodedSize(node)), node)
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batch.Put(backend.CommitmentSpace, nodeDbKey(key), value)
	w.written[key] = node
}

// Orphan records that the node with the given key is no longer part of the
// tree starting with the given version.
func (w *NodeWriter) Orphan(key NodeKey, since uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batch.Put(backend.CommitmentSpace, orphanDbKey(since, key), []byte{})
	w.orphans++
}

// NumWritten returns the number of nodes staged so far.
func (w *NodeWriter) NumWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.written)
}

// NumOrphaned returns the number of orphan records staged so far.
func (w *NodeWriter) NumOrphaned() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orphans
}

func nodeDbKey(key NodeKey) []byte {
	res := make([]byte, 0, 1+8+key.Bits.EncodedSize())
	res = append(res, nodePrefix)
	return key.Append(res)
}

func orphanDbKey(since uint64, key NodeKey) []byte {
	res := make([]byte, 0, 1+8+8+key.Bits.EncodedSize())
	res = append(res, orphanPrefix)
	res = binary.BigEndian.AppendUint64(res, since)
	return key.Append(res)
}

// decodeOrphanDbKey parses an orphan record key.
func decodeOrphanDbKey(key []byte) (uint64, NodeKey, error) {
	if len(key) < 1+8 || key[0] != orphanPrefix {
		return 0, NodeKey{}, fmt.Errorf("invalid orphan record key %x", key)
	}
	nodeKey, n, err := DecodeNodeKey(key[9:])
	if err != nil {
		return 0, NodeKey{}, err
	}
	if 9+n != len(key) {
		return 0, NodeKey{}, fmt.Errorf("invalid orphan record key %x, trailing bytes", key)
	}
	return binary.BigEndian.Uint64(key[1:]), nodeKey, nil
}
