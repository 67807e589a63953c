// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package ldb

import "github.com/0xsoniclabs/jellyfish/backend"

// dbKey prefixes a key with the byte of its table space so that all spaces
// share a single LevelDB key space without overlapping.
func dbKey(space backend.TableSpace, key []byte) []byte {
	res := make([]byte, 1+len(key))
	res[0] = byte(space)
	copy(res[1:], key)
	return res
}

// spaceRange converts the bounds of a range within a table space into the
// bounds of the underlying key space.
func spaceRange(space backend.TableSpace, min, max []byte) (start, limit []byte) {
	start = dbKey(space, min)
	if max != nil {
		limit = dbKey(space, max)
	} else {
		limit = []byte{byte(space) + 1}
	}
	return start, limit
}
