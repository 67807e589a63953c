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
)

// Proof is a Merkle proof for the presence or absence of a key in a tree.
// It lists the siblings along the path of the key and the node the path ends
// in. If that node is a leaf of the key, the key is present. Otherwise the
// path ends in a leaf of another key or in an internal node lacking the child
// on the path. For an empty tree, the proof has neither a leaf nor a node.
type Proof struct {
	// Siblings holds the sibling hashes from the root downwards, nil marking
	// a missing sibling.
	Siblings []*common.Hash
	// Leaf is the leaf the path ends in, if any.
	Leaf *LeafNode
	// Node is the internal node missing the child on the path, if any.
	Node *InternalNode
}

// Prove creates a proof for the given key hash in the tree of the given
// version.
func (t *Tree) Prove(keyHash common.Hash, version uint64) (*Proof, error) {
	res := &Proof{}
	err := t.walk(keyHash, version, func(_ NodeKey, node Node) error {
		switch n := node.(type) {
		case *LeafNode:
			res.Leaf = n
		case *InternalNode:
			bit := bitOf(keyHash, len(res.Siblings))
			if n.Child(bit) == nil {
				res.Node = n
				return nil
			}
			var sibling *common.Hash
			if ref := n.Child(1 - bit); ref != nil {
				hash := ref.Hash
				sibling = &hash
			}
			res.Siblings = append(res.Siblings, sibling)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Exists reports whether this proof shows the presence of the given key.
func (p *Proof) Exists(keyHash common.Hash) bool {
	return p.Leaf != nil && p.Leaf.KeyHash == keyHash
}

// Verify checks the proof against the given root hash, nil for an empty tree.
// If the proof is valid, the value hash of the key is returned, or nil if
// the key is absent.
func (p *Proof) Verify(root *common.Hash, keyHash common.Hash) (*common.Hash, error) {
	if p.Leaf == nil && p.Node == nil {
		if root != nil || len(p.Siblings) != 0 {
			return nil, fmt.Errorf("empty tree proof for non-empty tree")
		}
		return nil, nil
	}
	if p.Leaf != nil && p.Node != nil {
		return nil, fmt.Errorf("proof ends in both a leaf and an internal node")
	}
	if root == nil {
		return nil, fmt.Errorf("proof for non-empty tree, but root is empty")
	}
	depth := len(p.Siblings)
	if depth >= 256 {
		return nil, fmt.Errorf("proof too long: %d", depth)
	}

	var hash common.Hash
	if p.Leaf != nil {
		for i := range depth {
			if bitOf(p.Leaf.KeyHash, i) != bitOf(keyHash, i) {
				return nil, fmt.Errorf("leaf %v is not on the path of key %v", p.Leaf.KeyHash, keyHash)
			}
		}
		hash = p.Leaf.Hash()
	} else {
		if p.Node.Child(bitOf(keyHash, depth)) != nil {
			return nil, fmt.Errorf("node at end of path has a child on the path")
		}
		hash = p.Node.Hash()
	}

	for i := depth - 1; i >= 0; i-- {
		sibling := common.HashOrZero(p.Siblings[i])
		if bitOf(keyHash, i) == 0 {
			hash = common.Sha256([]byte{internalHashPrefix}, hash[:], sibling[:])
		} else {
			hash = common.Sha256([]byte{internalHashPrefix}, sibling[:], hash[:])
		}
	}
	if hash != *root {
		return nil, fmt.Errorf("proof root %v does not match expected root %v", hash, *root)
	}
	if !p.Exists(keyHash) {
		return nil, nil
	}
	value := p.Leaf.ValueHash
	return &value, nil
}
