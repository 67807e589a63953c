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
	"fmt"
	"math/rand"
	"testing"

	"github.com/0xsoniclabs/jellyfish/common"
	ics23 "github.com/cosmos/ics23/go"
	"github.com/stretchr/testify/require"
)

// In hash order, the keys used below are sorted as
//   b < r < m < o < L < a
// with r, m, L and a stored in the test state.

func TestProof_EndToEndScenario(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	version, root := commit(t, db, exampleBatch())
	require.Equal(uint64(0), version)

	for key, value := range map[string]string{"r": "foo", "m": "bar", "L": "fuzz", "a": "buzz"} {
		proof, err := db.Prove([]byte(key), 0)
		require.NoError(err)
		require.True(VerifyMembership(root, proof, []byte(key), []byte(value)), "key %s", key)
	}
	for _, key := range []string{"b", "o"} {
		proof, err := db.Prove([]byte(key), 0)
		require.NoError(err)
		require.True(VerifyNonMembership(root, proof, []byte(key)), "key %s", key)
	}
}

func TestProof_ExistenceProofsVerify(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, exampleBatch())

	for key, op := range exampleBatch() {
		proof, err := db.Prove([]byte(key), Latest)
		require.NoError(err)
		require.NotNil(proof.GetExist())
		require.True(VerifyMembership(root, proof, []byte(key), op.Value()), "key %s", key)
		require.False(VerifyMembership(root, proof, []byte(key), []byte("wrong")), "key %s", key)
		require.False(VerifyNonMembership(root, proof, []byte(key)), "key %s", key)
	}
}

func TestProof_ExistenceProofRootMatchesTree(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, exampleBatch())

	proof, err := db.Prove([]byte("m"), Latest)
	require.NoError(err)
	calculated, err := proof.GetExist().Calculate()
	require.NoError(err)
	require.Equal(root[:], []byte(calculated))
}

func TestProof_NonExistenceOfKeyBeforeAllKeysHasOnlyRightNeighbor(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, exampleBatch())

	proof, err := db.Prove([]byte("b"), Latest)
	require.NoError(err)
	nonexist := proof.GetNonexist()
	require.NotNil(nonexist)
	require.Nil(nonexist.Left)
	require.NotNil(nonexist.Right)
	require.Equal([]byte("r"), nonexist.Right.Key)
	require.True(VerifyNonMembership(root, proof, []byte("b")))
	require.False(VerifyMembership(root, proof, []byte("b"), []byte("x")))
}

func TestProof_NonExistenceBetweenKeysHasBothNeighbors(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, exampleBatch())

	proof, err := db.Prove([]byte("o"), Latest)
	require.NoError(err)
	nonexist := proof.GetNonexist()
	require.NotNil(nonexist)
	require.Equal([]byte("m"), nonexist.Left.Key)
	require.Equal([]byte("L"), nonexist.Right.Key)
	require.True(VerifyNonMembership(root, proof, []byte("o")))

	// The proof does not cover other absent keys.
	require.False(VerifyNonMembership(root, proof, []byte("b")))
}

func TestProof_NonExistenceAfterDeletionHasNoPhantomNeighbour(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, common.NewBatch().
		Insert([]byte("b"), []byte("1")).
		Insert([]byte("a"), []byte("2")),
	)
	_, root := commit(t, db, common.NewBatch().Delete([]byte("a")))

	proof, err := db.Prove([]byte("L"), Latest)
	require.NoError(err)
	nonexist := proof.GetNonexist()
	require.NotNil(nonexist)
	require.NotNil(nonexist.Left)
	require.Equal([]byte("b"), nonexist.Left.Key)
	require.Nil(nonexist.Right)
	require.True(VerifyNonMembership(root, proof, []byte("L")))

	// In the previous version, the deleted key is still a neighbor.
	old, err := db.RootHash(0)
	require.NoError(err)
	proof, err = db.Prove([]byte("L"), 0)
	require.NoError(err)
	require.Equal([]byte("a"), proof.GetNonexist().Right.Key)
	require.True(VerifyNonMembership(old, proof, []byte("L")))
}

func TestProof_EmptyTreeHasNeighborlessNonExistenceProof(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, common.NewBatch())
	require.Nil(root)

	proof, err := db.Prove([]byte("a"), Latest)
	require.NoError(err)
	nonexist := proof.GetNonexist()
	require.NotNil(nonexist)
	require.Nil(nonexist.Left)
	require.Nil(nonexist.Right)
	require.True(VerifyNonMembership(root, proof, []byte("a")))
	require.False(VerifyNonMembership(root, proof, []byte("b")))
	require.False(VerifyMembership(root, proof, []byte("a"), []byte("1")))
}

func TestProof_ProofsOfHistoricVersionsVerifyAgainstTheirRoots(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	roots := []*common.Hash{}
	for i := range 5 {
		_, root := commit(t, db, common.NewBatch().Insert([]byte("key"), fmt.Appendf(nil, "value-%d", i)))
		roots = append(roots, root)
	}
	for i := range 5 {
		proof, err := db.Prove([]byte("key"), uint64(i))
		require.NoError(err)
		value := fmt.Appendf(nil, "value-%d", i)
		require.True(VerifyMembership(roots[i], proof, []byte("key"), value))
		if i > 0 {
			require.False(VerifyMembership(roots[i-1], proof, []byte("key"), value))
		}
	}
}

func TestProof_SerializedProofsVerify(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, exampleBatch())

	proof, err := db.Prove([]byte("o"), Latest)
	require.NoError(err)
	data, err := proof.Marshal()
	require.NoError(err)

	var restored ics23.CommitmentProof
	require.NoError(restored.Unmarshal(data))
	require.True(VerifyNonMembership(root, &restored, []byte("o")))
}

func TestProof_RandomKeysProduceValidProofs(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	r := rand.New(rand.NewSource(1))
	present := map[string][]byte{}
	var root *common.Hash
	for range 10 {
		batch := common.NewBatch()
		for range 30 {
			key := fmt.Sprintf("key-%d", r.Intn(200))
			if r.Intn(4) == 0 {
				batch.Delete([]byte(key))
				delete(present, key)
			} else {
				value := fmt.Appendf(nil, "value-%d", r.Int())
				batch.Insert([]byte(key), value)
				present[key] = value
			}
		}
		_, root = commit(t, db, batch)
	}

	for i := range 200 {
		key := fmt.Sprintf("key-%d", i)
		proof, err := db.Prove([]byte(key), Latest)
		require.NoError(err)
		if value, found := present[key]; found {
			require.True(VerifyMembership(root, proof, []byte(key), value), "key %s", key)
		} else {
			require.True(VerifyNonMembership(root, proof, []byte(key)), "key %s", key)
		}
	}
}

func TestProof_ProvingUnavailableVersionsFails(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, err := db.Prove([]byte("a"), Latest)
	require.ErrorIs(err, ErrVersionNotFound)

	commit(t, db, exampleBatch())
	commit(t, db, exampleBatch())
	_, err = db.Prove([]byte("a"), 2)
	require.ErrorIs(err, ErrVersionNotFound)

	_, err = db.Prune(1)
	require.NoError(err)
	_, err = db.Prove([]byte("a"), 0)
	require.ErrorIs(err, ErrVersionPruned)
}

func TestFlush_EmptyKeysAndValuesAreRejected(t *testing.T) {
	tests := map[string]struct {
		batch common.Batch
		want  error
	}{
		"nil value":     {common.NewBatch().Insert([]byte("a"), nil), ErrEmptyValue},
		"empty value":   {common.NewBatch().Insert([]byte("a"), []byte{}), ErrEmptyValue},
		"empty key":     {common.NewBatch().Insert([]byte{}, []byte("x")), ErrEmptyKey},
		"empty deleted": {common.NewBatch().Delete([]byte{}), ErrEmptyKey},
		"mixed batch":   {common.NewBatch().Insert([]byte("b"), []byte("1")).Insert([]byte("a"), nil), ErrEmptyValue},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			db := newTestDb(t)
			version, want := commit(t, db, exampleBatch())

			_, _, err := db.Flush(test.batch)
			require.ErrorIs(err, test.want)

			// Nothing was staged, the state is unchanged.
			require.ErrorIs(db.Commit(), ErrNothingToCommit)
			latest, found := db.LatestVersion()
			require.True(found)
			require.Equal(version, latest)
			root, err := db.RootHash(Latest)
			require.NoError(err)
			require.Equal(want, root)
		})
	}
}

func TestProof_AbsentKeysCanBeProvenAfterRejectedEmptyValue(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	_, root := commit(t, db, exampleBatch())
	_, _, err := db.FlushAndCommit(common.NewBatch().Insert([]byte("x"), nil))
	require.ErrorIs(err, ErrEmptyValue)

	for _, key := range []string{"x", "zzz-absent", "b", "o"} {
		proof, err := db.Prove([]byte(key), Latest)
		require.NoError(err, "key %q", key)
		require.True(VerifyNonMembership(root, proof, []byte(key)), "key %q", key)
	}
}

func TestProof_EmptyKeyIsRejected(t *testing.T) {
	require := require.New(t)
	db := newTestDb(t)
	commit(t, db, exampleBatch())
	_, err := db.Prove(nil, Latest)
	require.ErrorIs(err, ErrEmptyKey)
}

func TestVerify_NilInputsAreRejected(t *testing.T) {
	require := require.New(t)
	root := common.Sha256([]byte("root"))
	require.False(VerifyMembership(nil, &ics23.CommitmentProof{}, []byte("a"), []byte("b")))
	require.False(VerifyMembership(&root, nil, []byte("a"), []byte("b")))
	require.False(VerifyNonMembership(&root, nil, []byte("a")))
	require.False(VerifyNonMembership(nil, nil, []byte("a")))
}

func TestProofSpec_MatchesTreeHashing(t *testing.T) {
	require := require.New(t)
	spec := ProofSpec()
	leaf, err := spec.LeafSpec.Apply([]byte("key"), []byte("value"))
	require.NoError(err)

	keyHash, valueHash := common.Sha256([]byte("key")), common.Sha256([]byte("value"))
	want := common.Sha256([]byte{1}, keyHash[:], valueHash[:])
	require.Equal(want[:], leaf)
}

func exampleBatch() common.Batch {
	return common.NewBatch().
		Insert([]byte("r"), []byte("foo")).
		Insert([]byte("m"), []byte("bar")).
		Insert([]byte("L"), []byte("fuzz")).
		Insert([]byte("a"), []byte("buzz"))
}
