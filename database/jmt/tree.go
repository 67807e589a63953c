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
	"fmt"
	"math"
	"slices"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/common/bitarray"
)

// NoVersion is used as the old version of the first update of a tree, for
// which there is no previous tree.
const NoVersion uint64 = math.MaxUint64

const (
	defaultParallelDepth   = 4
	defaultParallelMinimum = 256
)

// Update is a single change to the tree. A nil ValueHash removes the key.
type Update struct {
	KeyHash   common.Hash
	ValueHash *common.Hash
}

// Set creates an update inserting or replacing the value of a key.
func Set(keyHash, valueHash common.Hash) Update {
	return Update{KeyHash: keyHash, ValueHash: &valueHash}
}

// Remove creates an update deleting a key.
func Remove(keyHash common.Hash) Update {
	return Update{KeyHash: keyHash}
}

func (u Update) String() string {
	if u.ValueHash == nil {
		return fmt.Sprintf("delete %v", u.KeyHash)
	}
	return fmt.Sprintf("set %v=%v", u.KeyHash, *u.ValueHash)
}

// Tree is a binary Jellyfish Merkle Tree whose nodes are persisted in the
// commitment table space of a database. Every version of the tree is
// addressed by its root node key. Reads of any retained version may run
// concurrently, while updates need to be serialized by the caller.
type Tree struct {
	store         *NodeStore
	parallelDepth int
	parallelMin   int
}

// Option configures a Tree.
type Option func(*Tree)

// WithParallelism configures the update of the sub-trees of the top depth
// levels to be conducted in parallel whenever at least minUpdates updates
// affect a sub-tree. A depth of zero disables parallelism.
func WithParallelism(depth, minUpdates int) Option {
	return func(t *Tree) {
		t.parallelDepth = depth
		t.parallelMin = minUpdates
	}
}

// NewTree creates a tree reading its nodes from the given store.
func NewTree(store *NodeStore, opts ...Option) *Tree {
	res := &Tree{
		store:         store,
		parallelDepth: defaultParallelDepth,
		parallelMin:   defaultParallelMinimum,
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// Store returns the node store of this tree.
func (t *Tree) Store() *NodeStore {
	return t.store
}

// Apply applies the given updates to the tree of the old version and stages
// the nodes of the resulting tree of the new version in the writer. The
// order of the updates is irrelevant, except for updates of the same key of
// which only the last one is effective. Deleting absent keys has no effect.
// For the first update of a tree, NoVersion is to be used as old version.
// The root hash of the new tree is returned, which is nil for an empty tree.
func (t *Tree) Apply(w *NodeWriter, updates []Update, oldVersion, newVersion uint64) (*common.Hash, error) {
	if oldVersion != NoVersion && oldVersion >= newVersion {
		return nil, fmt.Errorf("invalid version transition from %d to %d", oldVersion, newVersion)
	}
	if newVersion == NoVersion {
		return nil, fmt.Errorf("invalid target version %d", newVersion)
	}

	var root Node
	rootKey := RootKey(oldVersion)
	if oldVersion != NoVersion {
		node, err := t.Root(oldVersion)
		if err != nil {
			return nil, err
		}
		root = node
	}

	ctx := &applyContext{
		store:         t.store,
		writer:        w,
		version:       newVersion,
		parallelDepth: t.parallelDepth,
		parallelMin:   t.parallelMin,
	}
	res, err := ctx.apply(bitarray.New(), rootKey, root, prepareUpdates(updates))
	if err != nil {
		return nil, err
	}

	switch res.outcome {
	case deleted:
		return nil, nil
	case unchanged:
		if res.node == nil {
			return nil, nil
		}
		// The unchanged root is copied to the new version.
		w.Orphan(rootKey, newVersion)
	}
	w.Put(RootKey(newVersion), res.node)
	hash := res.node.Hash()
	return &hash, nil
}

// Root loads the root node of the given version. The result is nil if the
// tree of this version is empty or the version is unknown.
func (t *Tree) Root(version uint64) (Node, error) {
	node, found, err := t.store.Get(RootKey(version))
	if err != nil || !found {
		return nil, err
	}
	return node, nil
}

// RootHash returns the root hash of the given version, nil for an empty tree.
func (t *Tree) RootHash(version uint64) (*common.Hash, error) {
	root, err := t.Root(version)
	if err != nil || root == nil {
		return nil, err
	}
	hash := root.Hash()
	return &hash, nil
}

// Get looks up the value hash of the given key hash in the given version.
// The result is nil if the key is not present.
func (t *Tree) Get(keyHash common.Hash, version uint64) (*common.Hash, error) {
	var res *common.Hash
	err := t.walk(keyHash, version, func(_ NodeKey, node Node) error {
		if leaf, ok := node.(*LeafNode); ok && leaf.KeyHash == keyHash {
			value := leaf.ValueHash
			res = &value
		}
		return nil
	})
	return res, err
}

// walk visits the nodes on the path of the given key from the root of the
// given version down to the first leaf or missing child.
func (t *Tree) walk(keyHash common.Hash, version uint64, visit func(NodeKey, Node) error) error {
	key := RootKey(version)
	node, err := t.Root(version)
	if err != nil || node == nil {
		return err
	}
	for depth := 0; ; depth++ {
		if err := visit(key, node); err != nil {
			return err
		}
		internal, ok := node.(*InternalNode)
		if !ok {
			return nil
		}
		bit := bitOf(keyHash, depth)
		ref := internal.Child(bit)
		if ref == nil {
			return nil
		}
		key = NodeKey{Version: ref.Version, Bits: key.Bits.Child(bit)}
		if node, err = t.store.mustGet(key); err != nil {
			return err
		}
	}
}

// prepareUpdates sorts the updates by key hash and removes all but the last
// update of each key.
func prepareUpdates(updates []Update) []Update {
	res := slices.Clone(updates)
	slices.SortStableFunc(res, func(a, b Update) int {
		return a.KeyHash.Compare(b.KeyHash)
	})
	out := res[:0]
	for i, update := range res {
		if i+1 < len(res) && res[i+1].KeyHash == update.KeyHash {
			continue
		}
		out = append(out, update)
	}
	return out
}

// bitOf returns the bit of the given hash at the given depth, most
// significant bit first.
func bitOf(hash common.Hash, depth int) uint8 {
	return (hash[depth/8] >> (7 - depth%8)) & 1
}
