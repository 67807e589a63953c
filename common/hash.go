// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package common

import (
	"bytes"
	"encoding/hex"
	"fmt"

	sha256 "github.com/minio/sha256-simd"
)

// HashSize is the number of bytes of a Hash.
const HashSize = 32

// Hash is a 256-bit SHA-256 digest. It is used for key hashes, value hashes
// and node hashes of the commitment tree.
type Hash [HashSize]byte

// ZeroHash is the all-zero hash used as a placeholder for missing children.
var ZeroHash Hash

// Sha256 computes the SHA-256 digest of the concatenation of the given parts.
func Sha256(parts ...[]byte) Hash {
	if len(parts) == 1 {
		return Hash(sha256.Sum256(parts[0]))
	}
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write(part)
	}
	var res Hash
	hasher.Sum(res[:0])
	return res
}

// HashFromBytes converts the given slice into a Hash. It fails if the slice
// is not exactly HashSize bytes long.
func HashFromBytes(data []byte) (Hash, error) {
	var res Hash
	if len(data) != HashSize {
		return res, fmt.Errorf("invalid hash length %d, expected %d", len(data), HashSize)
	}
	copy(res[:], data)
	return res, nil
}

// Compare returns -1, 0 or 1 depending on the lexicographic order of h and o.
func (h Hash) Compare(o Hash) int {
	return bytes.Compare(h[:], o[:])
}

// IsZero reports whether all bytes of the hash are zero.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ToBytes returns a copy of the hash as a byte slice.
func (h Hash) ToBytes() []byte {
	return bytes.Clone(h[:])
}

// HashOrZero returns the referenced hash or the zero hash if h is nil.
func HashOrZero(h *Hash) Hash {
	if h == nil {
		return ZeroHash
	}
	return *h
}
