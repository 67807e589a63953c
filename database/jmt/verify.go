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
	"errors"
	"fmt"
)

// Stats summarizes the shape of the tree of a single version.
type Stats struct {
	InternalNodes uint64
	Leaves        uint64
	MaxDepth      int
	// NodesByVersion counts the nodes of the tree by the version that created
	// them, showing how much of the tree is shared with older versions.
	NodesByVersion map[uint64]uint64
}

// Stats collects statistics of the tree of the given version by visiting
// all of its nodes.
func (t *Tree) Stats(version uint64) (Stats, error) {
	res := Stats{NodesByVersion: map[uint64]uint64{}}
	err := t.visitAll(version, func(key NodeKey, node Node) error {
		switch node.(type) {
		case *LeafNode:
			res.Leaves++
		case *InternalNode:
			res.InternalNodes++
		}
		res.MaxDepth = max(res.MaxDepth, key.Bits.Len())
		res.NodesByVersion[key.Version]++
		return nil
	})
	return res, err
}

// Verify checks the structural integrity of the tree of the given version.
// It recomputes all hashes and leaf counts and checks that every leaf is
// located on the path of its key and that no internal node could be
// collapsed. All detected issues are reported.
func (t *Tree) Verify(version uint64) error {
	var issues []error
	report := func(format string, args ...any) {
		issues = append(issues, fmt.Errorf(format, args...))
	}
	err := t.visitAll(version, func(key NodeKey, node Node) error {
		switch n := node.(type) {
		case *LeafNode:
			for i := range key.Bits.Len() {
				if key.Bits.BitAt(i) != bitOf(n.KeyHash, i) {
					report("leaf %v stored at %v is not on its path", n.KeyHash, key)
					break
				}
			}
		case *InternalNode:
			children := 0
			for bit := range uint8(2) {
				ref := n.Child(bit)
				if ref == nil {
					continue
				}
				children++
				if ref.Version > key.Version {
					report("node %v references child of newer version %d", key, ref.Version)
				}
				child, found, err := t.store.Get(NodeKey{Version: ref.Version, Bits: key.Bits.Child(bit)})
				if err != nil {
					return err
				}
				if !found {
					report("child %d of node %v is missing", bit, key)
					continue
				}
				if got := child.Hash(); got != ref.Hash {
					report("child %d of node %v has hash %v, referenced as %v", bit, key, got, ref.Hash)
				}
				if got := child.LeafCount(); got != ref.LeafCount {
					report("child %d of node %v has %d leaves, referenced with %d", bit, key, got, ref.LeafCount)
				}
			}
			if children == 1 && n.LeafCount() == 1 {
				report("node %v has a single leaf child", key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(issues...)
}

// visitAll visits all nodes of the tree of the given version in pre-order.
// Missing nodes are skipped.
func (t *Tree) visitAll(version uint64, visit func(NodeKey, Node) error) error {
	root, err := t.Root(version)
	if err != nil || root == nil {
		return err
	}
	return t.visitNode(RootKey(version), root, visit)
}

func (t *Tree) visitNode(key NodeKey, node Node, visit func(NodeKey, Node) error) error {
	if err := visit(key, node); err != nil {
		return err
	}
	internal, ok := node.(*InternalNode)
	if !ok {
		return nil
	}
	for bit := range uint8(2) {
		ref := internal.Child(bit)
		if ref == nil {
			continue
		}
		childKey := NodeKey{Version: ref.Version, Bits: key.Bits.Child(bit)}
		child, found, err := t.store.Get(childKey)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := t.visitNode(childKey, child, visit); err != nil {
			return err
		}
	}
	return nil
}
