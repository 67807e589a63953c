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
	"fmt"

	"github.com/0xsoniclabs/jellyfish/common"
)

// Nodes are encoded as follows, all integers big-endian:
//
//	leaf:     0x01 | key hash (32) | value hash (32)
//	internal: 0x00 | child mask (1) | left child? | right child?
//	child:    version (8) | hash (32) | leaf count (8)
//
// Bit 0 of the child mask marks the presence of the left child, bit 1 the
// presence of the right child. The encoding is canonical, equal nodes are
// encoded to equal byte strings.
const (
	internalTag = 0x00
	leafTag     = 0x01

	leafEncodedSize  = 1 + 2*common.HashSize
	childEncodedSize = 8 + common.HashSize + 8

	leftMask  = 0x01
	rightMask = 0x02
)

// EncodedSize returns the number of bytes of the encoding of the given node.
func EncodedSize(node Node) int {
	switch n := node.(type) {
	case *LeafNode:
		return leafEncodedSize
	case *InternalNode:
		size := 2
		if n.Left != nil {
			size += childEncodedSize
		}
		if n.Right != nil {
			size += childEncodedSize
		}
		return size
	}
	panic(fmt.Sprintf("unsupported node type %T", node))
}

// EncodeNode appends the canonical encoding of the node to dst.
func EncodeNode(dst []byte, node Node) []byte {
	switch n := node.(type) {
	case *LeafNode:
		dst = append(dst, leafTag)
		dst = append(dst, n.KeyHash[:]...)
		return append(dst, n.ValueHash[:]...)
	case *InternalNode:
		var mask byte
		if n.Left != nil {
			mask |= leftMask
		}
		if n.Right != nil {
			mask |= rightMask
		}
		dst = append(dst, internalTag, mask)
		dst = appendChild(dst, n.Left)
		return appendChild(dst, n.Right)
	}
	panic(fmt.Sprintf("unsupported node type %T", node))
}

func appendChild(dst []byte, ref *ChildRef) []byte {
	if ref == nil {
		return dst
	}
	dst = binary.BigEndian.AppendUint64(dst, ref.Version)
	dst = append(dst, ref.Hash[:]...)
	return binary.BigEndian.AppendUint64(dst, ref.LeafCount)
}

// DecodeNode parses a node from its canonical encoding.
func DecodeNode(src []byte) (Node, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("invalid node encoding, empty input")
	}
	switch src[0] {
	case leafTag:
		if len(src) != leafEncodedSize {
			return nil, fmt.Errorf("invalid leaf encoding, expected %d bytes, got %d", leafEncodedSize, len(src))
		}
		res := &LeafNode{}
		copy(res.KeyHash[:], src[1:])
		copy(res.ValueHash[:], src[1+common.HashSize:])
		return res, nil
	case internalTag:
		if len(src) < 2 {
			return nil, fmt.Errorf("invalid internal node encoding, missing child mask")
		}
		mask := src[1]
		if mask == 0 || mask&^(leftMask|rightMask) != 0 {
			return nil, fmt.Errorf("invalid internal node encoding, bad child mask 0x%02x", mask)
		}
		rest := src[2:]
		res := &InternalNode{}
		if mask&leftMask != 0 {
			res.Left, rest = decodeChild(rest)
		}
		if mask&rightMask != 0 {
			res.Right, rest = decodeChild(rest)
		}
		if res.Left == nil && mask&leftMask != 0 || res.Right == nil && mask&rightMask != 0 || len(rest) != 0 {
			return nil, fmt.Errorf("invalid internal node encoding, unexpected length %d", len(src))
		}
		return res, nil
	}
	return nil, fmt.Errorf("invalid node encoding, unknown tag 0x%02x", src[0])
}

func decodeChild(src []byte) (*ChildRef, []byte) {
	if len(src) < childEncodedSize {
		return nil, src
	}
	res := &ChildRef{
		Version:   binary.BigEndian.Uint64(src),
		LeafCount: binary.BigEndian.Uint64(src[8+common.HashSize:]),
	}
	copy(res.Hash[:], src[8:])
	return res, src[childEncodedSize:]
}
