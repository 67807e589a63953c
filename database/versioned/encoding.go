// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package versioned

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/0xsoniclabs/jellyfish/backend"
)

const (
	escapeByte = 0x00
	escapedNul = 0xFF
	terminator = 0x01

	versionSize = 8

	tombstone = 0x00
	live      = 0x01
)

// appendPrefix appends the escaped form of key followed by the terminator.
// Every 0x00 byte of the key is written as 0x00 0xFF, the terminator is
// 0x00 0x01. This keeps the lexicographic order of raw keys and makes the
// encoding prefix free, so that the appended version never interferes with
// the order of keys.
func appendPrefix(dst, key []byte) []byte {
	for _, b := range key {
		if b == escapeByte {
			dst = append(dst, escapeByte, escapedNul)
		} else {
			dst = append(dst, b)
		}
	}
	return append(dst, escapeByte, terminator)
}

func keyPrefix(key []byte) []byte {
	return appendPrefix(make([]byte, 0, len(key)+2+versionSize), key)
}

func encodeKey(key []byte, version uint64) []byte {
	return binary.BigEndian.AppendUint64(keyPrefix(key), version)
}

func decodeKey(encoded []byte) (key []byte, version uint64, err error) {
	key = make([]byte, 0, len(encoded))
	for i := 0; i < len(encoded); i++ {
		b := encoded[i]
		if b != escapeByte {
			key = append(key, b)
			continue
		}
		if i+1 >= len(encoded) {
			return nil, 0, fmt.Errorf("invalid versioned key, truncated escape sequence")
		}
		switch encoded[i+1] {
		case escapedNul:
			key = append(key, escapeByte)
			i++
		case terminator:
			rest := encoded[i+2:]
			if len(rest) != versionSize {
				return nil, 0, fmt.Errorf("invalid versioned key, version has %d bytes", len(rest))
			}
			return key, binary.BigEndian.Uint64(rest), nil
		default:
			return nil, 0, fmt.Errorf("invalid versioned key, unknown escape 0x%02x", encoded[i+1])
		}
	}
	return nil, 0, fmt.Errorf("invalid versioned key, missing terminator")
}

// historyKey encodes a history record as space ‖ version ‖ key prefix, so
// that the records of one space are ordered by version.
func historyKey(space backend.TableSpace, version uint64, key []byte) []byte {
	res := make([]byte, 0, 1+versionSize+len(key)+2)
	res = append(res, byte(space))
	res = binary.BigEndian.AppendUint64(res, version)
	return appendPrefix(res, key)
}

// historyRange returns the bounds of the history records of the given space
// with versions <= upTo.
func historyRange(space backend.TableSpace, upTo uint64) (min, max []byte) {
	min = []byte{byte(space)}
	if upTo == math.MaxUint64 {
		return min, []byte{byte(space) + 1}
	}
	return min, binary.BigEndian.AppendUint64([]byte{byte(space)}, upTo+1)
}

func decodeHistoryKey(encoded []byte) (version uint64, prefix []byte, err error) {
	if len(encoded) < 1+versionSize+2 {
		return 0, nil, fmt.Errorf("invalid history record, %d bytes", len(encoded))
	}
	return binary.BigEndian.Uint64(encoded[1:]), encoded[1+versionSize:], nil
}

func encodeValue(value []byte) []byte {
	res := make([]byte, 1+len(value))
	res[0] = live
	copy(res[1:], value)
	return res
}

func decodeValue(encoded []byte) (value []byte, exists bool, err error) {
	if len(encoded) == 0 {
		return nil, false, fmt.Errorf("invalid versioned value, empty encoding")
	}
	switch encoded[0] {
	case tombstone:
		return nil, false, nil
	case live:
		return encoded[1:], true, nil
	}
	return nil, false, fmt.Errorf("invalid versioned value, unknown flag 0x%02x", encoded[0])
}
