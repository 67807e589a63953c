// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package backend

// Operation is a single write of a Batch.
type Operation struct {
	Space  TableSpace
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch collects write operations to be applied atomically to a Database.
// Later operations on the same key override earlier ones. Slices passed to a
// batch must not be modified afterwards. A Batch is not safe for concurrent
// use.
type Batch struct {
	ops  []Operation
	size int
}

// NewBatch creates an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Put registers setting the key of the given space to the value.
func (b *Batch) Put(space TableSpace, key, value []byte) {
	b.ops = append(b.ops, Operation{Space: space, Key: key, Value: value})
	b.size += len(key) + len(value)
}

// Delete registers the removal of the key of the given space.
func (b *Batch) Delete(space TableSpace, key []byte) {
	b.ops = append(b.ops, Operation{Space: space, Key: key, Delete: true})
	b.size += len(key)
}

// Append adds all operations of the other batch to this batch.
func (b *Batch) Append(other *Batch) {
	b.ops = append(b.ops, other.ops...)
	b.size += other.size
}

// Len returns the number of operations in the batch.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Size returns the number of key and value bytes in the batch.
func (b *Batch) Size() int {
	return b.size
}

// Operations returns the operations of the batch in registration order.
func (b *Batch) Operations() []Operation {
	return b.ops
}

// Reset removes all operations from the batch.
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
	b.size = 0
}
