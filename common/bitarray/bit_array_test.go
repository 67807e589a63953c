// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package bitarray

import (
	"bytes"
	"slices"
	"testing"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/stretchr/testify/require"
)

func TestBitArray_NewIsEmpty(t *testing.T) {
	require := require.New(t)
	b := New()
	require.Equal(0, b.Len())
	require.True(b.IsEmpty())
	require.Equal("", b.String())
}

func TestBitArray_PushAppendsBitsInOrder(t *testing.T) {
	require := require.New(t)
	b := New()
	for _, bit := range []uint8{1, 0, 1, 1, 0, 0, 0, 0, 1} {
		require.NoError(b.Push(bit))
	}
	require.Equal(9, b.Len())
	require.Equal("101100001", b.String())
	require.Equal(uint8(1), b.BitAt(0))
	require.Equal(uint8(0), b.BitAt(1))
	require.Equal(uint8(1), b.BitAt(8))
}

func TestBitArray_PushFailsOnInvalidBitOrFullArray(t *testing.T) {
	require := require.New(t)
	b := New()
	require.Error(b.Push(2))

	full := FromHash(common.Hash{})
	require.Equal(MaxBits, full.Len())
	require.Error(full.Push(0))
}

func TestBitArray_BitAtPanicsOutOfRange(t *testing.T) {
	b, err := FromBits([]uint8{1, 0})
	require.NoError(t, err)
	require.Panics(t, func() { b.BitAt(2) })
	require.Panics(t, func() { b.BitAt(-1) })
}

func TestBitArray_FromBytesCoversAllBits(t *testing.T) {
	require := require.New(t)
	b, err := FromBytes([]byte{0x80, 0x01})
	require.NoError(err)
	require.Equal(16, b.Len())
	require.Equal("1000000000000001", b.String())

	_, err = FromBytes(make([]byte, 33))
	require.Error(err)
}

func TestBitArray_FromBitsRejectsTooManyBits(t *testing.T) {
	_, err := FromBits(make([]uint8, MaxBits+1))
	require.Error(t, err)
	_, err = FromBits([]uint8{0, 3})
	require.Error(t, err)
}

func TestBitArray_ChildAndExtendOneBitDoNotModifyParent(t *testing.T) {
	require := require.New(t)
	parent, err := FromBits([]uint8{1})
	require.NoError(err)
	left := parent.ExtendOneBit(true)
	right := parent.Child(Right)
	require.Equal("1", parent.String())
	require.Equal("10", left.String())
	require.Equal("11", right.String())
}

func TestBitArray_ChildPanicsWhenFull(t *testing.T) {
	full := FromHash(common.Hash{})
	require.Panics(t, func() { full.Child(Left) })
}

func TestBitArray_RangeProducesBitsInBothDirections(t *testing.T) {
	require := require.New(t)
	b, err := FromBits([]uint8{1, 1, 0, 1, 0})
	require.NoError(err)

	require.Equal([]uint8{1, 0, 1}, slices.Collect(b.Range(1, 4, common.Ascending)))
	require.Equal([]uint8{1, 0}, slices.Collect(b.Range(2, 4, common.Descending)))
	require.Equal([]uint8{1, 0, 1, 1}, slices.Collect(b.Range(0, 4, common.Descending)))
	require.Empty(slices.Collect(b.Range(3, 3, common.Ascending)))
	require.Empty(slices.Collect(b.Range(4, 2, common.Descending)))
	require.Equal([]uint8{1, 0}, slices.Collect(b.Range(3, 100, common.Ascending)))
}

func TestBitArray_RangeIsRestartable(t *testing.T) {
	b, err := FromBits([]uint8{0, 1, 1})
	require.NoError(t, err)
	seq := b.Range(0, 3, common.Ascending)
	require.Equal(t, slices.Collect(seq), slices.Collect(seq))
}

func TestBitArray_FromHashFollowsByteOrder(t *testing.T) {
	require := require.New(t)
	low := common.Hash{0x01}
	high := common.Hash{0x80}
	a, b := FromHash(low), FromHash(high)
	require.Equal(-1, a.Compare(b))
	require.Equal(uint8(0), a.BitAt(0))
	require.Equal(uint8(1), b.BitAt(0))
	require.Equal(uint8(1), a.BitAt(7))
}

func TestBitArray_CompareOrdersByLengthFirst(t *testing.T) {
	require := require.New(t)
	short, _ := FromBits([]uint8{1, 1})
	long, _ := FromBits([]uint8{0, 0, 0})
	require.Equal(-1, short.Compare(long))
	require.Equal(1, long.Compare(short))
	require.Equal(0, short.Compare(short))
}

func TestBitArray_EncodingOrderMatchesCompare(t *testing.T) {
	require := require.New(t)
	arrays := []BitArray{New()}
	for _, bits := range [][]uint8{{0}, {1}, {0, 1}, {1, 0}, {1, 1, 1}, {0, 0, 0, 0, 0, 0, 0, 0, 1}} {
		b, err := FromBits(bits)
		require.NoError(err)
		arrays = append(arrays, b)
	}
	for _, a := range arrays {
		for _, b := range arrays {
			require.Equal(a.Compare(b), bytes.Compare(a.Append(nil), b.Append(nil)), "%v vs %v", a, b)
		}
	}
}

func TestBitArray_EncodingCanBeDecoded(t *testing.T) {
	require := require.New(t)
	for _, bits := range [][]uint8{{}, {1}, {0, 1, 1, 0, 1, 0, 1, 0, 1, 1}} {
		b, err := FromBits(bits)
		require.NoError(err)
		encoded := b.Append([]byte{0xAA})
		require.Len(encoded, 1+b.EncodedSize())
		decoded, n, err := Decode(encoded[1:])
		require.NoError(err)
		require.Equal(b.EncodedSize(), n)
		require.Equal(b, decoded)
	}
}

func TestBitArray_DecodeRejectsInvalidInput(t *testing.T) {
	tests := map[string][]byte{
		"empty":         {},
		"too many bits": {0x01, 0x01},
		"truncated":     {0x00, 0x09, 0xFF},
		"dirty padding": {0x00, 0x01, 0xFF},
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := Decode(input)
			require.Error(t, err)
		})
	}
}

func TestBitArray_PrefixTruncates(t *testing.T) {
	require := require.New(t)
	full := FromHash(common.Hash{0xFF, 0xFF})
	p := full.Prefix(11)
	require.Equal("11111111111", p.String())
	want, _ := FromBits([]uint8{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1})
	require.Equal(want, p)
	require.Panics(func() { full.Prefix(MaxBits + 1) })
}
