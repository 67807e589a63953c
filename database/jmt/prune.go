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
	"encoding/binary"
	"fmt"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
)

// PruneStats summarizes the effect of a prune operation.
type PruneStats struct {
	Orphans int // number of removed orphan records
	Nodes   int // number of removed nodes
}

// Prune removes all nodes which are not part of any tree of version upTo or
// later. Trees of older versions are thereby destroyed, while the trees of
// version upTo and later remain fully intact. The keys of the removed records
// are reported to the given remove function, allowing the caller to delete
// them in chunks of its choosing.
func (t *Tree) Prune(upTo uint64, remove func(space backend.TableSpace, key []byte) error) (PruneStats, error) {
	min := []byte{orphanPrefix}
	var max []byte
	if upTo == NoVersion {
		max = []byte{orphanPrefix + 1}
	} else {
		max = binary.BigEndian.AppendUint64([]byte{orphanPrefix}, upTo+1)
	}

	iter, err := t.store.db.Iterate(backend.CommitmentSpace, min, max, common.Ascending)
	if err != nil {
		return PruneStats{}, fmt.Errorf("failed to iterate orphans: %w", err)
	}
	defer iter.Release()

	var stats PruneStats
	for iter.Next() {
		record := bytes.Clone(iter.Key())
		_, key, err := decodeOrphanDbKey(record)
		if err != nil {
			return stats, err
		}
		if err := remove(backend.CommitmentSpace, nodeDbKey(key)); err != nil {
			return stats, err
		}
		t.store.Evict(key)
		stats.Nodes++
		if err := remove(backend.CommitmentSpace, record); err != nil {
			return stats, err
		}
		stats.Orphans++
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("failed to iterate orphans: %w", err)
	}
	return stats, nil
}
