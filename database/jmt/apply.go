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
	"slices"
	"sort"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/common/bitarray"
	"golang.org/x/sync/errgroup"
)

// outcome summarizes the effect of a list of updates on a sub-tree.
type outcome int

const (
	unchanged outcome = iota
	updated
	deleted
)

type applyResult struct {
	outcome outcome
	// node is the root of the resulting sub-tree, nil if the sub-tree is empty.
	node Node
}

// applyContext holds the state shared by all steps of a single Apply call.
type applyContext struct {
	store         *NodeStore
	writer        *NodeWriter
	version       uint64
	parallelDepth int
	parallelMin   int
}

// apply applies the given updates to the sub-tree rooted by the given node
// stored under the given key. The node is nil for an empty sub-tree. Updates
// must be sorted by key hash and all key hashes must start with the given
// path. Nodes that are replaced or removed are recorded as orphans, new nodes
// are written to the writer except for the resulting sub-tree root, which is
// positioned by the caller.
func (c *applyContext) apply(path bitarray.BitArray, key NodeKey, node Node, updates []Update) (applyResult, error) {
	switch n := node.(type) {
	case nil:
		return c.applyEmpty(path, updates)
	case *LeafNode:
		return c.applyLeaf(path, key, n, updates)
	case *InternalNode:
		return c.applyInternal(path, key, n, updates)
	}
	return applyResult{}, fmt.Errorf("unsupported node type %T", node)
}

func (c *applyContext) applyEmpty(path bitarray.BitArray, updates []Update) (applyResult, error) {
	leaves := make([]LeafNode, 0, len(updates))
	for _, update := range updates {
		if update.ValueHash != nil {
			leaves = append(leaves, LeafNode{KeyHash: update.KeyHash, ValueHash: *update.ValueHash})
		}
	}
	if len(leaves) == 0 {
		return applyResult{outcome: unchanged}, nil
	}
	node, err := c.build(path, leaves)
	if err != nil {
		return applyResult{}, err
	}
	return applyResult{outcome: updated, node: node}, nil
}

func (c *applyContext) applyLeaf(path bitarray.BitArray, key NodeKey, leaf *LeafNode, updates []Update) (applyResult, error) {
	pos, found := slices.BinarySearchFunc(updates, leaf.KeyHash, compareUpdate)

	current := leaf
	if found {
		if value := updates[pos].ValueHash; value == nil {
			current = nil
		} else if *value != leaf.ValueHash {
			current = &LeafNode{KeyHash: leaf.KeyHash, ValueHash: *value}
		}
	}

	others := make([]LeafNode, 0, len(updates)+1)
	for i, update := range updates {
		if found && i == pos || update.ValueHash == nil {
			continue
		}
		others = append(others, LeafNode{KeyHash: update.KeyHash, ValueHash: *update.ValueHash})
	}

	if len(others) == 0 {
		if current == leaf {
			return applyResult{outcome: unchanged, node: leaf}, nil
		}
		c.orphan(key)
		if current == nil {
			return applyResult{outcome: deleted}, nil
		}
		return applyResult{outcome: updated, node: current}, nil
	}

	// The leaf is split into a sub-tree holding it and the new leaves.
	if current != nil {
		at, _ := slices.BinarySearchFunc(others, current.KeyHash, compareLeaf)
		others = slices.Insert(others, at, *current)
	}
	c.orphan(key)
	node, err := c.build(path, others)
	if err != nil {
		return applyResult{}, err
	}
	return applyResult{outcome: updated, node: node}, nil
}

// childState tracks the update of a single child of an internal node.
type childState struct {
	ref     *ChildRef
	key     NodeKey
	node    Node
	outcome outcome
}

func (c *applyContext) applyInternal(path bitarray.BitArray, key NodeKey, node *InternalNode, updates []Update) (applyResult, error) {
	depth := path.Len()
	split := sort.Search(len(updates), func(i int) bool {
		return bitOf(updates[i].KeyHash, depth) == bitarray.Right
	})
	parts := [2][]Update{updates[:split], updates[split:]}

	var children [2]childState
	err := c.forEachSide(depth, len(updates), func(side uint8) error {
		state := &children[side]
		state.ref = node.Child(side)
		if state.ref != nil {
			state.key = NodeKey{Version: state.ref.Version, Bits: path.Child(side)}
		}
		if len(parts[side]) == 0 {
			return nil
		}
		var child Node
		if state.ref != nil {
			loaded, err := c.store.mustGet(state.key)
			if err != nil {
				return err
			}
			child = loaded
		}
		res, err := c.apply(path.Child(side), state.key, child, parts[side])
		if err != nil {
			return err
		}
		state.outcome = res.outcome
		state.node = res.node
		return nil
	})
	if err != nil {
		return applyResult{}, err
	}

	if children[0].outcome == unchanged && children[1].outcome == unchanged {
		return applyResult{outcome: unchanged, node: node}, nil
	}
	c.orphan(key)

	remaining := make([]uint8, 0, 2)
	for side := range children {
		state := &children[side]
		if state.outcome == updated || state.outcome == unchanged && state.ref != nil {
			remaining = append(remaining, uint8(side))
		}
	}

	var refs [2]*ChildRef
	switch len(remaining) {
	case 0:
		return applyResult{outcome: deleted}, nil
	case 1:
		side := remaining[0]
		state := &children[side]
		if state.outcome == updated {
			// A single remaining leaf replaces this node.
			if leaf, ok := state.node.(*LeafNode); ok {
				return applyResult{outcome: updated, node: leaf}, nil
			}
			refs[side] = c.save(path.Child(side), state.node)
			return applyResult{outcome: updated, node: newInternalNode(refs[0], refs[1])}, nil
		}
		if state.ref.LeafCount == 1 {
			child := state.node
			if child == nil {
				loaded, err := c.store.mustGet(state.key)
				if err != nil {
					return applyResult{}, err
				}
				child = loaded
			}
			leaf, ok := child.(*LeafNode)
			if !ok {
				return applyResult{}, fmt.Errorf("inconsistent leaf count of node %v", state.key)
			}
			c.orphan(state.key)
			return applyResult{outcome: updated, node: leaf}, nil
		}
		refs[side] = state.ref
		return applyResult{outcome: updated, node: newInternalNode(refs[0], refs[1])}, nil
	}

	for side := range children {
		state := &children[side]
		if state.outcome == updated {
			refs[side] = c.save(path.Child(uint8(side)), state.node)
		} else {
			refs[side] = state.ref
		}
	}
	return applyResult{outcome: updated, node: newInternalNode(refs[0], refs[1])}, nil
}

// build creates a new sub-tree at the given path holding the given leaves,
// which must be sorted by key hash. All nodes but the returned root are
// written to the writer.
func (c *applyContext) build(path bitarray.BitArray, leaves []LeafNode) (Node, error) {
	if len(leaves) == 1 {
		leaf := leaves[0]
		return &leaf, nil
	}
	depth := path.Len()
	if depth >= bitarray.MaxBits {
		return nil, fmt.Errorf("duplicate key hash %v", leaves[0].KeyHash)
	}
	split := sort.Search(len(leaves), func(i int) bool {
		return bitOf(leaves[i].KeyHash, depth) == bitarray.Right
	})
	parts := [2][]LeafNode{leaves[:split], leaves[split:]}

	var refs [2]*ChildRef
	err := c.forEachSide(depth, len(leaves), func(side uint8) error {
		if len(parts[side]) == 0 {
			return nil
		}
		child, err := c.build(path.Child(side), parts[side])
		if err != nil {
			return err
		}
		refs[side] = c.save(path.Child(side), child)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newInternalNode(refs[0], refs[1]), nil
}

// forEachSide runs the given function for the left and the right side of a
// node. Close to the root and for large numbers of updates, both sides are
// processed in parallel.
func (c *applyContext) forEachSide(depth, size int, run func(side uint8) error) error {
	if depth >= c.parallelDepth || size < c.parallelMin {
		if err := run(bitarray.Left); err != nil {
			return err
		}
		return run(bitarray.Right)
	}
	var group errgroup.Group
	group.Go(func() error { return run(bitarray.Left) })
	group.Go(func() error { return run(bitarray.Right) })
	return group.Wait()
}

// save writes the given node at the given path of the new version and
// returns a reference to it.
func (c *applyContext) save(path bitarray.BitArray, node Node) *ChildRef {
	c.writer.Put(NodeKey{Version: c.version, Bits: path}, node)
	return &ChildRef{
		Version:   c.version,
		Hash:      node.Hash(),
		LeafCount: node.LeafCount(),
	}
}

func (c *applyContext) orphan(key NodeKey) {
	c.writer.Orphan(key, c.version)
}

func compareUpdate(update Update, keyHash common.Hash) int {
	return update.KeyHash.Compare(keyHash)
}

func compareLeaf(leaf LeafNode, keyHash common.Hash) int {
	return leaf.KeyHash.Compare(keyHash)
}
