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

// Op is a single operation of a Batch, either an insertion of a value or a
// deletion of a key.
type Op struct {
	value  []byte
	insert bool
}

// Insert creates an operation setting a key to the given value.
func Insert(value []byte) Op {
	if value == nil {
		value = []byte{}
	}
	return Op{value: value, insert: true}
}

// Delete creates an operation removing a key.
func Delete() Op {
	return Op{}
}

// IsInsert reports whether this operation sets a value.
func (o Op) IsInsert() bool {
	return o.insert
}

// Value returns the value of an insert operation, nil for deletions.
func (o Op) Value() []byte {
	return o.value
}

// Batch is a set of operations keyed by raw keys. Each key occurs at most
// once, the last operation registered for a key wins.
type Batch map[string]Op

// NewBatch creates an empty batch.
func NewBatch() Batch {
	return Batch{}
}

// Insert registers an insertion of the given key-value pair.
func (b Batch) Insert(key, value []byte) Batch {
	b[string(key)] = Insert(value)
	return b
}

// Delete registers the deletion of the given key.
func (b Batch) Delete(key []byte) Batch {
	b[string(key)] = Delete()
	return b
}
