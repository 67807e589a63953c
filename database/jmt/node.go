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

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/common/bitarray"
)

// Domain separation prefixes of node hashes.
const (
	internalHashPrefix = 0x00
	leafHashPrefix     = 0x01
)

// Node is a node of a Jellyfish Merkle Tree, either an *InternalNode or a
// *LeafNode. Nodes are immutable once created.
type Node interface {
	// Hash computes the hash of this node.
	Hash() common.Hash
	// LeafCount returns the number of leaves in the subtree rooted by this node.
	LeafCount() uint64
}

// ChildRef references a child of an internal node. The child is stored under
// the node key formed by the referenced version and the path of the child.
type ChildRef struct {
	Version   uint64
	Hash      common.Hash
	LeafCount uint64
}

// InternalNode is a branch of the tree with at least one child. A missing
// child is represented by nil.
type InternalNode struct {
	Left  *ChildRef
	Right *ChildRef
}

// newInternalNode creates an internal node. Creating an internal node without
// children is a violation of the tree invariants and causes a panic.
func newInternalNode(left, right *ChildRef) *InternalNode {
	if left == nil && right == nil {
		panic("internal node without children")
	}
	return &InternalNode{Left: left, Right: right}
}

// Child returns the child reference selected by the given bit.
func (n *InternalNode) Child(bit uint8) *ChildRef {
	if bit == bitarray.Left {
		return n.Left
	}
	return n.Right
}

func (n *InternalNode) Hash() common.Hash {
	var left, right common.Hash
	if n.Left != nil {
		left = n.Left.Hash
	}
	if n.Right != nil {
		right = n.Right.Hash
	}
	return common.Sha256([]byte{internalHashPrefix}, left[:], right[:])
}

func (n *InternalNode) LeafCount() uint64 {
	var res uint64
	if n.Left != nil {
		res += n.Left.LeafCount
	}
	if n.Right != nil {
		res += n.Right.LeafCount
	}
	return res
}

func (n *InternalNode) String() string {
	format := func(ref *ChildRef) string {
		if ref == nil {
			return "-"
		}
		return fmt.Sprintf("%v@%d", ref.Hash, ref.Version)
	}
	return fmt.Sprintf("Internal(%s,%s)", format(n.Left), format(n.Right))
}

// LeafNode holds the full key hash and the hash of the value of an entry.
type LeafNode struct {
	KeyHash   common.Hash
	ValueHash common.Hash
}

func (n *LeafNode) Hash() common.Hash {
	return LeafHash(n.KeyHash, n.ValueHash)
}

func (n *LeafNode) LeafCount() uint64 {
	return 1
}

func (n *LeafNode) String() string {
	return fmt.Sprintf("Leaf(%v=%v)", n.KeyHash, n.ValueHash)
}

// LeafHash computes the hash of a leaf with the given key and value hashes.
func LeafHash(keyHash, valueHash common.Hash) common.Hash {
	return common.Sha256([]byte{leafHashPrefix}, keyHash[:], valueHash[:])
}
