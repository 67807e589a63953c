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
	"fmt"
	"math/rand"
	"testing"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPrune_RemovesExactlyNodesOfPrunedVersions(t *testing.T) {
	const versions = 20
	for _, upTo := range []uint64{0, 1, 5, 10, versions - 1} {
		t.Run(fmt.Sprintf("upTo=%d", upTo), func(t *testing.T) {
			require := require.New(t)
			tree := newTestTree(t)
			roots := buildRandomHistory(tree, versions, 11)

			_, err := tree.prune(upTo)
			require.NoError(err)

			// All retained versions are intact.
			for version := upTo; version < versions; version++ {
				require.Equal(roots[version], tree.rootHash(version))
				require.NoError(tree.Verify(version))
			}

			// Only nodes of retained versions are kept.
			reachable := map[NodeKey]bool{}
			for version := upTo; version < versions; version++ {
				require.NoError(tree.visitAll(version, func(key NodeKey, _ Node) error {
					reachable[key] = true
					return nil
				}))
			}
			stored := storedNodeKeys(t, tree.db)
			require.Equal(len(reachable), len(stored))
			for key := range stored {
				require.True(reachable[key], "unreachable node %v was retained", key)
			}
		})
	}
}

func TestPrune_PrunedRootsAreRemoved(t *testing.T) {
	require := require.New(t)
	tree := newTestTree(t)
	roots := buildRandomHistory(tree, 10, 5)

	stats, err := tree.prune(5)
	require.NoError(err)
	require.NotZero(stats.Nodes)
	require.Equal(stats.Nodes, stats.Orphans)

	for version := range uint64(5) {
		require.Nil(tree.rootHash(version))
	}
	for version := uint64(5); version < 10; version++ {
		require.Equal(roots[version], tree.rootHash(version))
	}
}

func TestPrune_IsIdempotent(t *testing.T) {
	require := require.New(t)
	tree := newTestTree(t)
	buildRandomHistory(tree, 10, 9)

	_, err := tree.prune(6)
	require.NoError(err)
	size := tree.db.Len()

	stats, err := tree.prune(6)
	require.NoError(err)
	require.Zero(stats.Nodes)
	require.Equal(size, tree.db.Len())
}

func TestPrune_TreeCanBeUpdatedAfterPruning(t *testing.T) {
	require := require.New(t)
	tree := newTestTree(t)
	buildRandomHistory(tree, 10, 21)
	_, err := tree.prune(tree.latest)
	require.NoError(err)

	entries := map[common.Hash]common.Hash{}
	for i := range 100 {
		got, err := tree.Get(key(i), tree.latest)
		require.NoError(err)
		if got != nil {
			entries[key(i)] = *got
		}
	}
	entries[key(1000)] = value(1000)
	root := tree.apply(Set(key(1000), value(1000)))
	require.Equal(referenceRoot(entries), root)
	require.NoError(tree.Verify(tree.latest))
}

func TestPrune_PruningEverythingRemovesAllOrphans(t *testing.T) {
	require := require.New(t)
	tree := newTestTree(t)
	buildRandomHistory(tree, 5, 13)
	_, err := tree.prune(NoVersion)
	require.NoError(err)

	iter, err := tree.db.Iterate(backend.CommitmentSpace, []byte{orphanPrefix}, []byte{orphanPrefix + 1}, common.Ascending)
	require.NoError(err)
	defer iter.Release()
	require.False(iter.Next())
}

func TestPrune_ErrorsArePropagated(t *testing.T) {
	ctrl := gomock.NewController(t)
	db := backend.NewMockDatabase(ctrl)
	iter := backend.NewMockIterator(ctrl)
	injected := fmt.Errorf("injected")

	store, err := NewNodeStore(db, 16)
	require.NoError(t, err)
	tree := NewTree(store)

	db.EXPECT().Iterate(backend.CommitmentSpace, gomock.Any(), gomock.Any(), common.Ascending).Return(nil, injected)
	_, err = tree.Prune(1, nil)
	require.ErrorIs(t, err, injected)

	db.EXPECT().Iterate(backend.CommitmentSpace, gomock.Any(), gomock.Any(), common.Ascending).Return(iter, nil)
	iter.EXPECT().Next().Return(false)
	iter.EXPECT().Err().Return(injected)
	iter.EXPECT().Release()
	_, err = tree.Prune(1, nil)
	require.ErrorIs(t, err, injected)

	db.EXPECT().Iterate(backend.CommitmentSpace, gomock.Any(), gomock.Any(), common.Ascending).Return(iter, nil)
	iter.EXPECT().Next().Return(true)
	iter.EXPECT().Key().Return(orphanDbKey(1, RootKey(0)))
	iter.EXPECT().Release()
	_, err = tree.Prune(1, func(backend.TableSpace, []byte) error { return injected })
	require.ErrorIs(t, err, injected)
}

// prune removes pruned nodes in a single batch.
func (tt *testTree) prune(upTo uint64) (PruneStats, error) {
	batch := backend.NewBatch()
	stats, err := tt.Prune(upTo, func(space backend.TableSpace, key []byte) error {
		batch.Delete(space, key)
		return nil
	})
	if err != nil {
		return stats, err
	}
	return stats, tt.db.Apply(batch)
}

// buildRandomHistory applies the given number of versions of random updates
// and returns the root hashes of all versions.
func buildRandomHistory(tree *testTree, versions int, seed int64) []*common.Hash {
	r := rand.New(rand.NewSource(seed))
	roots := []*common.Hash{}
	for range versions {
		updates := []Update{}
		for range 30 {
			if r.Intn(3) == 0 {
				updates = append(updates, Remove(key(r.Intn(100))))
			} else {
				updates = append(updates, Set(key(r.Intn(100)), value(r.Intn(1000))))
			}
		}
		roots = append(roots, tree.apply(updates...))
	}
	return roots
}

func storedNodeKeys(t *testing.T, db backend.Database) map[NodeKey]bool {
	t.Helper()
	iter, err := db.Iterate(backend.CommitmentSpace, []byte{nodePrefix}, []byte{nodePrefix + 1}, common.Ascending)
	require.NoError(t, err)
	defer iter.Release()
	res := map[NodeKey]bool{}
	for iter.Next() {
		key, _, err := DecodeNodeKey(iter.Key()[1:])
		require.NoError(t, err)
		res[key] = true
	}
	require.NoError(t, iter.Err())
	return res
}
