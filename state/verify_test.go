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
	"testing"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/stretchr/testify/require"
)

func TestVerify_ConsistentVersionsPass(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	buildRandomHistory(t, db, 10)
	for version := range uint64(10) {
		require.NoError(db.Verify(version))
	}
}

func TestVerify_DetectsStorageWithoutCommitment(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, exampleBatch())

	// Sneak a value into the storage bypassing the tree.
	batch := backend.NewBatch()
	db.storage.Set(batch, []byte("x"), []byte("y"), 0)
	require.NoError(db.db.Apply(batch))

	err := db.Verify(0)
	require.ErrorIs(err, ErrInconsistentState)
	require.ErrorContains(err, "not committed")
	require.ErrorContains(err, "not indexed")
	require.ErrorContains(err, "storage holds 5 keys, tree holds 4")
}

func TestVerify_DetectsModifiedValues(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, exampleBatch())

	batch := backend.NewBatch()
	db.storage.Set(batch, []byte("m"), []byte("changed"), 0)
	require.NoError(db.db.Apply(batch))

	require.ErrorContains(db.Verify(0), "does not match")
}

func TestTreeStats_CountsLeaves(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, exampleBatch())
	commit(t, db, common.NewBatch().Delete([]byte("a")))

	stats, err := db.TreeStats(0)
	require.NoError(err)
	require.Equal(uint64(4), stats.Leaves)
	require.Equal(uint64(4), stats.InternalNodes)
	require.Equal(4, stats.MaxDepth)

	stats, err = db.TreeStats(Latest)
	require.NoError(err)
	require.Equal(uint64(3), stats.Leaves)

	_, err = db.TreeStats(5)
	require.ErrorIs(err, ErrVersionNotFound)
}
