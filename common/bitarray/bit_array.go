// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package bitarray provides a bounded bit string addressing nodes of a binary
// radix tree by a prefix of a 256-bit key hash.
//
// Bit i of a BitArray is stored in bit 7-(i%8) of byte i/8. Thus, the order
// of full-length bit arrays equals the lexicographic order of the hashes they
// were created from. Bit value 0 routes to the left child of a node, bit
// value 1 to the right child.
package bitarray

import (
	"encoding/binary"
	"fmt"
	"iter"
	"strings"

	"github.com/0xsoniclabs/jellyfish/common"
)

// MaxBits is the maximum number of bits a BitArray can hold.
const MaxBits = 256

const numBytes = MaxBits / 8

const (
	Left  uint8 = 0
	Right uint8 = 1
)

// BitArray is a bit string of at most MaxBits bits. The zero value is the
// empty bit string addressing the root of a tree. Bits beyond Len are kept
// zero so that BitArrays can be compared with ==.
type BitArray struct {
	numBits uint16
	bits    [numBytes]byte
}

// New returns an empty bit array.
func New() BitArray {
	return BitArray{}
}

// FromBytes creates a bit array covering all bits of the given bytes.
func FromBytes(data []byte) (BitArray, error) {
	var res BitArray
	if len(data) > numBytes {
		return res, fmt.Errorf("too many bytes for bit array: %d > %d", len(data), numBytes)
	}
	copy(res.bits[:], data)
	res.numBits = uint16(len(data) * 8)
	return res, nil
}

// FromHash creates a full-length bit array from the given hash.
func FromHash(hash common.Hash) BitArray {
	return BitArray{numBits: MaxBits, bits: hash}
}

// FromBits creates a bit array from a list of bit values, each 0 or 1.
func FromBits(values []uint8) (BitArray, error) {
	var res BitArray
	if len(values) > MaxBits {
		return res, fmt.Errorf("too many bits for bit array: %d > %d", len(values), MaxBits)
	}
	for _, bit := range values {
		if err := res.Push(bit); err != nil {
			return BitArray{}, err
		}
	}
	return res, nil
}

// Len returns the number of bits in this bit array.
func (b BitArray) Len() int {
	return int(b.numBits)
}

// IsEmpty reports whether this bit array has no bits, thus addresses a root.
func (b BitArray) IsEmpty() bool {
	return b.numBits == 0
}

// BitAt returns the bit at the given position. It panics if the index is out
// of range.
func (b BitArray) BitAt(index int) uint8 {
	if index < 0 || index >= int(b.numBits) {
		panic(fmt.Sprintf("bit index %d out of range [0,%d)", index, b.numBits))
	}
	return bitOf(&b.bits, index)
}

func bitOf(bits *[numBytes]byte, index int) uint8 {
	return (bits[index/8] >> (7 - index%8)) & 1
}

// Push appends a single bit to the end of this bit array.
func (b *BitArray) Push(bit uint8) error {
	if bit > 1 {
		return fmt.Errorf("invalid bit value %d", bit)
	}
	if b.numBits >= MaxBits {
		return fmt.Errorf("bit array is full")
	}
	if bit == 1 {
		b.bits[b.numBits/8] |= 1 << (7 - b.numBits%8)
	}
	b.numBits++
	return nil
}

// Child returns a copy of this bit array extended by the given bit. It
// panics if the bit array is already full or the bit is not 0 or 1.
func (b BitArray) Child(bit uint8) BitArray {
	if err := b.Push(bit); err != nil {
		panic(err)
	}
	return b
}

// ExtendOneBit returns a copy extended by 0 if isLeft is set and by 1
// otherwise.
func (b BitArray) ExtendOneBit(isLeft bool) BitArray {
	if isLeft {
		return b.Child(Left)
	}
	return b.Child(Right)
}

// Prefix returns the first n bits of this bit array.
func (b BitArray) Prefix(n int) BitArray {
	if n < 0 || n > int(b.numBits) {
		panic(fmt.Sprintf("prefix length %d out of range [0,%d]", n, b.numBits))
	}
	var res BitArray
	full := n / 8
	copy(res.bits[:full], b.bits[:full])
	if rest := n % 8; rest != 0 {
		res.bits[full] = b.bits[full] & (0xFF << (8 - rest))
	}
	res.numBits = uint16(n)
	return res
}

// Range produces the bits in the index range [min, max) in the given order.
// The range is clamped to the length of the bit array and is empty if
// min >= max. The resulting sequence may be iterated multiple times.
func (b BitArray) Range(min, max int, order common.Order) iter.Seq[uint8] {
	if min < 0 {
		min = 0
	}
	if max > int(b.numBits) {
		max = int(b.numBits)
	}
	bits := b.bits
	return func(yield func(uint8) bool) {
		if order == common.Descending {
			for i := max - 1; i >= min; i-- {
				if !yield(bitOf(&bits, i)) {
					return
				}
			}
			return
		}
		for i := min; i < max; i++ {
			if !yield(bitOf(&bits, i)) {
				return
			}
		}
	}
}

// Compare orders bit arrays first by their length, then by their content.
func (b BitArray) Compare(o BitArray) int {
	if b.numBits != o.numBits {
		if b.numBits < o.numBits {
			return -1
		}
		return 1
	}
	for i := range b.bits {
		if b.bits[i] != o.bits[i] {
			if b.bits[i] < o.bits[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// EncodedSize returns the number of bytes produced by Append.
func (b BitArray) EncodedSize() int {
	return 2 + (int(b.numBits)+7)/8
}

// Append appends the binary encoding of this bit array to dst. The encoding
// is the big-endian bit count followed by the bytes holding the bits. The
// byte-wise order of encodings equals the order defined by Compare.
func (b BitArray) Append(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, b.numBits)
	return append(dst, b.bits[:(b.numBits+7)/8]...)
}

// Decode parses a bit array from the beginning of src and returns it along
// with the number of consumed bytes.
func Decode(src []byte) (BitArray, int, error) {
	var res BitArray
	if len(src) < 2 {
		return res, 0, fmt.Errorf("invalid bit array encoding, too short")
	}
	numBits := binary.BigEndian.Uint16(src)
	if numBits > MaxBits {
		return res, 0, fmt.Errorf("invalid bit array encoding, %d bits exceed limit", numBits)
	}
	size := int(numBits+7) / 8
	if len(src) < 2+size {
		return res, 0, fmt.Errorf("invalid bit array encoding, expected %d bytes, got %d", size, len(src)-2)
	}
	copy(res.bits[:size], src[2:2+size])
	if rest := numBits % 8; rest != 0 && res.bits[size-1]&(0xFF>>rest) != 0 {
		return BitArray{}, 0, fmt.Errorf("invalid bit array encoding, unused bits are set")
	}
	res.numBits = numBits
	return res, 2 + size, nil
}

func (b BitArray) String() string {
	var builder strings.Builder
	builder.Grow(int(b.numBits))
	for bit := range b.Range(0, int(b.numBits), common.Ascending) {
		builder.WriteByte('0' + bit)
	}
	return builder.String()
}
