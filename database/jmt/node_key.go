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

	"github.com/0xsoniclabs/jellyfish/common/bitarray"
)

// NodeKey addresses a node by the version that created it and its path from
// the root.
type NodeKey struct {
	Version uint64
	Bits    bitarray.BitArray
}

// RootKey returns the key of the root node of the given version.
func RootKey(version uint64) NodeKey {
	return NodeKey{Version: version}
}

// Append appends the encoding of the key to dst. Encoded keys are ordered by
// version first, then by path length, then by path.
func (k NodeKey) Append(dst []byte) []byte {
	dst = binary.BigEndian.AppendUint64(dst, k.Version)
	return k.Bits.Append(dst)
}

// DecodeNodeKey parses a node key from the beginning of src and returns the
// number of consumed bytes.
func DecodeNodeKey(src []byte) (NodeKey, int, error) {
	if len(src) < 8 {
		return NodeKey{}, 0, fmt.Errorf("invalid node key encoding, too short")
	}
	bits, n, err := bitarray.Decode(src[8:])
	if err != nil {
		return NodeKey{}, 0, fmt.Errorf("invalid node key encoding: %w", err)
	}
	return NodeKey{Version: binary.BigEndian.Uint64(src), Bits: bits}, 8 + n, nil
}

func (k NodeKey) String() string {
	return fmt.Sprintf("%d:%v", k.Version, k.Bits)
}
