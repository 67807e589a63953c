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
	"bytes"
	"testing"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/common/bitarray"
	"github.com/stretchr/testify/require"
)

func TestLeafNode_HashCoversKeyAndValue(t *testing.T) {
	require := require.New(t)
	leaf := &LeafNode{KeyHash: common.Hash{1}, ValueHash: common.Hash{2}}

	want := common.Sha256(append(append([]byte{0x01}, leaf.KeyHash[:]...), leaf.ValueHash[:]...))
	require.Equal(want, leaf.Hash())
	require.Equal(want, LeafHash(leaf.KeyHash, leaf.ValueHash))
	require.NotEqual(want, (&LeafNode{KeyHash: common.Hash{1}, ValueHash: common.Hash{3}}).Hash())
	require.NotEqual(want, (&LeafNode{KeyHash: common.Hash{3}, ValueHash: common.Hash{2}}).Hash())
	require.Equal(uint64(1), leaf.LeafCount())
}

func TestInternalNode_MissingChildrenAreHashedAsZero(t *testing.T) {
	require := require.New(t)
	left := &ChildRef{Version: 1, Hash: common.Hash{1}, LeafCount: 2}
	right := &ChildRef{Version: 3, Hash: common.Hash{2}, LeafCount: 5}

	hash := func(l, r common.Hash) common.Hash {
		data := append([]byte{0x00}, l[:]...)
		return common.Sha256(append(data, r[:]...))
	}

	require.Equal(hash(left.Hash, right.Hash), newInternalNode(left, right).Hash())
	require.Equal(hash(left.Hash, common.ZeroHash), newInternalNode(left, nil).Hash())
	require.Equal(hash(common.ZeroHash, right.Hash), newInternalNode(nil, right).Hash())
}

func TestInternalNode_HashIgnoresVersionAndLeafCount(t *testing.T) {
	a := newInternalNode(&ChildRef{Version: 1, Hash: common.Hash{1}, LeafCount: 2}, nil)
	b := newInternalNode(&ChildRef{Version: 7, Hash: common.Hash{1}, LeafCount: 9}, nil)
	require.Equal(t, a.Hash(), b.Hash())
}

func TestInternalNode_LeafCountSumsChildren(t *testing.T) {
	require := require.New(t)
	require.Equal(uint64(7), newInternalNode(&ChildRef{LeafCount: 2}, &ChildRef{LeafCount: 5}).LeafCount())
	require.Equal(uint64(2), newInternalNode(&ChildRef{LeafCount: 2}, nil).LeafCount())
	require.Equal(uint64(5), newInternalNode(nil, &ChildRef{LeafCount: 5}).LeafCount())
}

func TestInternalNode_ChildSelectsSide(t *testing.T) {
	left := &ChildRef{Version: 1}
	right := &ChildRef{Version: 2}
	node := newInternalNode(left, right)
	require.Same(t, left, node.Child(bitarray.Left))
	require.Same(t, right, node.Child(bitarray.Right))
}

func TestInternalNode_CreationWithoutChildrenPanics(t *testing.T) {
	require.Panics(t, func() { newInternalNode(nil, nil) })
}

func TestNodeEncoding_NodesCanBeEncodedAndDecoded(t *testing.T) {
	left := &ChildRef{Version: 12, Hash: common.Hash{1, 2, 3}, LeafCount: 4}
	right := &ChildRef{Version: 1 << 40, Hash: common.Hash{31: 9}, LeafCount: 1}
	nodes := []Node{
		&LeafNode{},
		&LeafNode{KeyHash: common.Hash{1}, ValueHash: common.Hash{31: 2}},
		&InternalNode{Left: left},
		&InternalNode{Right: right},
		&InternalNode{Left: left, Right: right},
	}
	for _, node := range nodes {
		encoded := EncodeNode(nil, node)
		require.Len(t, encoded, EncodedSize(node))
		decoded, err := DecodeNode(encoded)
		require.NoError(t, err)
		require.Equal(t, node, decoded)
		require.Equal(t, node.Hash(), decoded.Hash())
	}
}

func TestNodeEncoding_EncodingIsCanonical(t *testing.T) {
	require := require.New(t)
	leaf := &LeafNode{KeyHash: common.Hash{1}, ValueHash: common.Hash{2}}
	encoded := EncodeNode(nil, leaf)
	require.Equal(byte(0x01), encoded[0])
	require.Equal(leaf.KeyHash[:], encoded[1:33])
	require.Equal(leaf.ValueHash[:], encoded[33:65])

	node := &InternalNode{Right: &ChildRef{Version: 0x0102, Hash: common.Hash{7}, LeafCount: 3}}
	encoded = EncodeNode(nil, node)
	require.Equal([]byte{0x00, 0x02, 0, 0, 0, 0, 0, 0, 0x01, 0x02, 7}, encoded[:11])
	require.Equal([]byte{0, 0, 0, 0, 0, 0, 0, 3}, encoded[len(encoded)-8:])
	require.True(bytes.Equal(encoded, EncodeNode(nil, &InternalNode{Right: &ChildRef{Version: 0x0102, Hash: common.Hash{7}, LeafCount: 3}})))
}

func TestNodeEncoding_EncodeAppendsToPrefix(t *testing.T) {
	leaf := &LeafNode{KeyHash: common.Hash{1}}
	encoded := EncodeNode([]byte{0xAB}, leaf)
	require.Equal(t, byte(0xAB), encoded[0])
	require.Equal(t, EncodeNode(nil, leaf), encoded[1:])
}

func TestNodeEncoding_InvalidEncodingsAreDetected(t *testing.T) {
	leaf := EncodeNode(nil, &LeafNode{})
	full := EncodeNode(nil, &InternalNode{Left: &ChildRef{}, Right: &ChildRef{}})
	tests := map[string][]byte{
		"empty":                 {},
		"unknown tag":           {0x02},
		"short leaf":            leaf[:len(leaf)-1],
		"long leaf":             append(leaf, 0),
		"missing mask":          {0x00},
		"empty mask":            {0x00, 0x00},
		"invalid mask":          {0x00, 0x04},
		"missing child":         full[:len(full)-childEncodedSize],
		"truncated child":       full[:len(full)-1],
		"trailing bytes":        append(full, 0),
		"extra child for mask":  append([]byte{0x00, 0x01}, full[2:]...),
		"missing child of mask": {0x00, 0x03},
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeNode(data)
			require.Error(t, err)
		})
	}
}

func TestNodeKey_CanBeEncodedAndDecoded(t *testing.T) {
	require := require.New(t)
	for _, key := range []NodeKey{
		RootKey(0),
		RootKey(42),
		{Version: 3, Bits: bitarray.New().Child(1).Child(0)},
		{Version: ^uint64(0), Bits: bitarray.FromHash(common.Hash{0xFF, 31: 0x01})},
	} {
		encoded := key.Append([]byte{0xAA})
		decoded, n, err := DecodeNodeKey(encoded[1:])
		require.NoError(err)
		require.Equal(len(encoded)-1, n)
		require.Equal(key, decoded)
	}
}

func TestNodeKey_EncodingOrdersByVersionThenPath(t *testing.T) {
	keys := []NodeKey{
		RootKey(1),
		{Version: 1, Bits: bitarray.New().Child(0)},
		{Version: 1, Bits: bitarray.New().Child(1)},
		{Version: 1, Bits: bitarray.New().Child(0).Child(0)},
		{Version: 1, Bits: bitarray.New().Child(1).Child(1)},
		RootKey(2),
		{Version: 2, Bits: bitarray.New().Child(0)},
	}
	for i := 1; i < len(keys); i++ {
		a := keys[i-1].Append(nil)
		b := keys[i].Append(nil)
		require.Negative(t, bytes.Compare(a, b), "%v should be before %v", keys[i-1], keys[i])
	}
}

func TestNodeKey_InvalidEncodingsAreDetected(t *testing.T) {
	for _, data := range [][]byte{
		{},
		{0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0, 0, 8},
	} {
		_, _, err := DecodeNodeKey(data)
		require.Error(t, err)
	}
}

func TestOrphanDbKey_CanBeDecoded(t *testing.T) {
	require := require.New(t)
	key := NodeKey{Version: 7, Bits: bitarray.New().Child(1)}
	since, decoded, err := decodeOrphanDbKey(orphanDbKey(9, key))
	require.NoError(err)
	require.Equal(uint64(9), since)
	require.Equal(key, decoded)

	_, _, err = decodeOrphanDbKey(nodeDbKey(key))
	require.Error(err)
	_, _, err = decodeOrphanDbKey(append(orphanDbKey(9, key), 0))
	require.Error(err)
}
