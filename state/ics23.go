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
	"fmt"
	"time"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/common/bitarray"
	"github.com/0xsoniclabs/jellyfish/database/jmt"
	"github.com/0xsoniclabs/jellyfish/database/preimage"
	"github.com/0xsoniclabs/jellyfish/metrics"
	ics23 "github.com/cosmos/ics23/go"
)

// ProofSpec returns the ICS-23 proof specification of the commitment tree.
// Leaves hash to sha256(0x01 || sha256(key) || sha256(value)) and internal
// nodes to sha256(0x00 || left || right), with missing children represented
// by the zero hash.
func ProofSpec() *ics23.ProofSpec {
	return &ics23.ProofSpec{
		LeafSpec: &ics23.LeafOp{
			Hash:         ics23.HashOp_SHA256,
			PrehashKey:   ics23.HashOp_SHA256,
			PrehashValue: ics23.HashOp_SHA256,
			Length:       ics23.LengthOp_NO_PREFIX,
			Prefix:       []byte{1},
		},
		InnerSpec: &ics23.InnerSpec{
			ChildOrder:      []int32{0, 1},
			ChildSize:       common.HashSize,
			MinPrefixLength: 1,
			MaxPrefixLength: 1,
			EmptyChild:      make([]byte, common.HashSize),
			Hash:            ics23.HashOp_SHA256,
		},
		MaxDepth:                   bitarray.MaxBits,
		PrehashKeyBeforeComparison: true,
	}
}

// Prove creates an ICS-23 commitment proof for the given key in the given
// version. If the key is present, the result is an existence proof. Otherwise
// it is a non-existence proof built from existence proofs of the closest
// present keys on both sides of the key in hash order.
func (d *Db) Prove(key []byte, version uint64) (*ics23.CommitmentProof, error) {
	start := time.Now()
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	v, err := d.resolve(version)
	if err != nil {
		return nil, err
	}
	res, err := d.prove(key, v, start)
	if err := d.checkRetained(v); err != nil {
		return nil, err
	}
	return res, err
}

func (d *Db) prove(key []byte, v uint64, start time.Time) (*ics23.CommitmentProof, error) {
	keyHash := common.Sha256(key)
	proof, err := d.tree.Prove(keyHash, v)
	if err != nil {
		return nil, fmt.Errorf("failed to prove key %x: %w", key, err)
	}
	if proof.Exists(keyHash) {
		exist, err := d.toExistenceProof(key, proof, v)
		if err != nil {
			return nil, err
		}
		d.metrics.ObserveProof(metrics.ProofExistence, time.Since(start))
		return &ics23.CommitmentProof{
			Proof: &ics23.CommitmentProof_Exist{Exist: exist},
		}, nil
	}

	nonexist := &ics23.NonExistenceProof{Key: key}
	for _, direction := range []preimage.Direction{preimage.Left, preimage.Right} {
		neighbor, found, err := d.preimages.Neighbor(keyHash, direction, v)
		if err != nil {
			return nil, fmt.Errorf("failed to find %v neighbor of key %x: %w", direction, key, err)
		}
		if !found {
			continue
		}
		exist, err := d.existenceProof(neighbor, v)
		if err != nil {
			return nil, err
		}
		if direction == preimage.Left {
			nonexist.Left = exist
		} else {
			nonexist.Right = exist
		}
	}
	d.metrics.ObserveProof(metrics.ProofNonExistence, time.Since(start))
	return &ics23.CommitmentProof{
		Proof: &ics23.CommitmentProof_Nonexist{Nonexist: nonexist},
	}, nil
}

// existenceProof proves the presence of a key known to exist.
func (d *Db) existenceProof(key []byte, version uint64) (*ics23.ExistenceProof, error) {
	keyHash := common.Sha256(key)
	proof, err := d.tree.Prove(keyHash, version)
	if err != nil {
		return nil, fmt.Errorf("failed to prove key %x: %w", key, err)
	}
	if !proof.Exists(keyHash) {
		return nil, fmt.Errorf("%w: indexed key %x missing in tree of version %d", ErrInconsistentState, key, version)
	}
	return d.toExistenceProof(key, proof, version)
}

func (d *Db) toExistenceProof(key []byte, proof *jmt.Proof, version uint64) (*ics23.ExistenceProof, error) {
	value, found, err := d.storage.Get(key, version)
	if err != nil {
		return nil, fmt.Errorf("failed to read key %x: %w", key, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: key %x in tree but not in storage of version %d", ErrInconsistentState, key, version)
	}
	if common.Sha256(value) != proof.Leaf.ValueHash {
		return nil, fmt.Errorf("%w: value of key %x does not match tree of version %d", ErrInconsistentState, key, version)
	}
	if len(key) == 0 || len(value) == 0 {
		return nil, fmt.Errorf("%w: empty key or value of key %x in version %d", ErrInconsistentState, key, version)
	}
	return newExistenceProof(key, value, proof), nil
}

// newExistenceProof converts the tree path of a present key into an ICS-23
// existence proof. The path is listed from the leaf upwards.
func newExistenceProof(key, value []byte, proof *jmt.Proof) *ics23.ExistenceProof {
	bits := bitarray.FromHash(proof.Leaf.KeyHash)
	path := make([]*ics23.InnerOp, 0, len(proof.Siblings))
	for i := len(proof.Siblings) - 1; i >= 0; i-- {
		sibling := common.HashOrZero(proof.Siblings[i])
		op := &ics23.InnerOp{Hash: ics23.HashOp_SHA256}
		if bits.BitAt(i) == bitarray.Left {
			op.Prefix = []byte{0}
			op.Suffix = bytes.Clone(sibling[:])
		} else {
			op.Prefix = append([]byte{0}, sibling[:]...)
		}
		path = append(path, op)
	}
	return &ics23.ExistenceProof{
		Key:   key,
		Value: value,
		Leaf:  ProofSpec().LeafSpec,
		Path:  path,
	}
}

// VerifyMembership checks that the given proof shows the presence of the key
// with the given value in the tree with the given root hash.
func VerifyMembership(root *common.Hash, proof *ics23.CommitmentProof, key, value []byte) bool {
	if root == nil || proof == nil {
		return false
	}
	return ics23.VerifyMembership(ProofSpec(), root[:], proof, key, value)
}

// VerifyNonMembership checks that the given proof shows the absence of the
// key in the tree with the given root hash. A nil root denotes the empty
// tree, for which a non-existence proof without neighbors is valid.
func VerifyNonMembership(root *common.Hash, proof *ics23.CommitmentProof, key []byte) bool {
	if proof == nil {
		return false
	}
	if root == nil {
		nonexist := proof.GetNonexist()
		return nonexist != nil &&
			bytes.Equal(nonexist.Key, key) &&
			nonexist.Left == nil &&
			nonexist.Right == nil
	}
	return ics23.VerifyNonMembership(ProofSpec(), root[:], proof, key)
}
