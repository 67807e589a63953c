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

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/database/jmt"
	"github.com/stretchr/testify/require"
)

func TestStorageView_ReadsFixedVersion(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, common.NewBatch().Insert([]byte("a"), []byte("1")))

	view, err := db.StateStorage(Latest)
	require.NoError(err)
	require.Equal(uint64(0), view.Version())

	commit(t, db, common.NewBatch().Insert([]byte("a"), []byte("2")).Insert([]byte("b"), []byte("3")))

	value, found, err := view.Get([]byte("a"))
	require.NoError(err)
	require.True(found)
	require.Equal([]byte("1"), value)

	has, err := view.Has([]byte("b"))
	require.NoError(err)
	require.False(has)
}

func TestStorageView_IteratesKeysOfVersion(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, common.NewBatch().
		Insert([]byte("a"), []byte("1")).
		Insert([]byte("b"), []byte("2")).
		Insert([]byte("c"), []byte("3")),
	)
	commit(t, db, common.NewBatch().Delete([]byte("b")).Insert([]byte("d"), []byte("4")))

	collect := func(version uint64, order common.Order) []string {
		view, err := db.StateStorage(version)
		require.NoError(err)
		iter, err := view.Iterate(nil, nil, order)
		require.NoError(err)
		defer iter.Release()
		res := []string{}
		for iter.Next() {
			res = append(res, string(iter.Key())+"="+string(iter.Value()))
		}
		require.NoError(iter.Err())
		return res
	}

	require.Equal([]string{"a=1", "b=2", "c=3"}, collect(0, common.Ascending))
	require.Equal([]string{"a=1", "c=3", "d=4"}, collect(1, common.Ascending))
	require.Equal([]string{"d=4", "c=3", "a=1"}, collect(1, common.Descending))
}

func TestStorageView_FailsOncePruned(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, common.NewBatch().Insert([]byte("a"), []byte("1")))
	view, err := db.StateStorage(0)
	require.NoError(err)
	commit(t, db, common.NewBatch().Insert([]byte("a"), []byte("2")))

	_, err = db.Prune(1)
	require.NoError(err)

	_, _, err = view.Get([]byte("a"))
	require.ErrorIs(err, ErrVersionPruned)
	_, err = view.Iterate(nil, nil, common.Ascending)
	require.ErrorIs(err, ErrVersionPruned)
	_, err = db.StateStorage(0)
	require.ErrorIs(err, ErrVersionPruned)
}

func TestStorageView_IsReadOnly(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, common.NewBatch())
	view, err := db.StateStorage(Latest)
	require.NoError(err)
	require.Panics(func() { view.Set([]byte("a"), []byte("1")) })
	require.Panics(func() { view.Delete([]byte("a")) })
}

func TestCommitmentView_ProvidesEncodedNodes(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, exampleBatch())

	view := db.StateCommitment()
	data, found, err := view.Get(jmt.RootKey(0).Append(nil))
	require.NoError(err)
	require.True(found)

	node, err := jmt.DecodeNode(data)
	require.NoError(err)
	require.Equal(*root, node.Hash())

	has, err := view.Has(jmt.RootKey(1).Append(nil))
	require.NoError(err)
	require.False(has)
}

func TestCommitmentView_RejectsInvalidKeys(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	view := db.StateCommitment()

	_, _, err := view.Get([]byte{1, 2})
	require.Error(err)
	_, _, err = view.Get(append(jmt.RootKey(0).Append(nil), 0))
	require.Error(err)
}

func TestCommitmentView_IsReadOnly(t *testing.T) {
	require := require.New(t)
	view := newTestDb(t).StateCommitment()
	require.Panics(func() { view.Set([]byte("a"), []byte("1")) })
	require.Panics(func() { view.Delete([]byte("a")) })
}
