// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/database/jmt"
)

// TreeStats collects statistics on the commitment tree of the given version.
func (d *Db) TreeStats(version uint64) (jmt.Stats, error) {
	v, err := d.resolve(version)
	if err != nil {
		return jmt.Stats{}, err
	}
	stats, err := d.tree.Stats(v)
	if err := d.checkRetained(v); err != nil {
		return jmt.Stats{}, err
	}
	return stats, err
}

// Verify checks the integrity of the given version. Besides the structure of
// the commitment tree, it checks that every stored key/value pair is
// committed to by the tree and indexed by its key hash, and that the tree
// holds no other keys. Up to a limited number of issues are reported.
func (d *Db) Verify(version uint64) error {
	v, err := d.resolve(version)
	if err != nil {
		return err
	}
	err = d.verify(v)
	if err := d.checkRetained(v); err != nil {
		return err
	}
	return err
}

func (d *Db) verify(v uint64) error {
	if err := d.tree.Verify(v); err != nil {
		return fmt.Errorf("invalid tree in version %d: %w", v, err)
	}
	stats, err := d.tree.Stats(v)
	if err != nil {
		return err
	}

	iter, err := d.storage.Iterate(nil, nil, common.Ascending, v)
	if err != nil {
		return err
	}
	defer iter.Release()

	var issues issueCollector
	keys := uint64(0)
	for iter.Next() {
		keys++
		key, value := iter.Key(), iter.Value()
		keyHash := common.Sha256(key)
		valueHash, err := d.tree.Get(keyHash, v)
		if err != nil {
			return err
		}
		if valueHash == nil {
			issues.HandleIssue(fmt.Errorf("key %x is not committed to by the tree", key))
		} else if *valueHash != common.Sha256(value) {
			issues.HandleIssue(fmt.Errorf("value of key %x does not match the tree", key))
		}
		preimage, found, err := d.preimages.Lookup(keyHash, v)
		if err != nil {
			return err
		}
		if !found || !bytes.Equal(preimage, key) {
			issues.HandleIssue(fmt.Errorf("key %x is not indexed by its hash", key))
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if keys != stats.Leaves {
		issues.HandleIssue(fmt.Errorf("storage holds %d keys, tree holds %d", keys, stats.Leaves))
	}
	if err := issues.Collect(); err != nil {
		return errors.Join(fmt.Errorf("%w in version %d", ErrInconsistentState, v), err)
	}
	return nil
}
