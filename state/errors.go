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
	"errors"

	"github.com/0xsoniclabs/jellyfish/database/jmt"
)

var (
	// ErrVersionNotFound is returned for versions newer than the latest
	// committed version, or for any version of an empty database.
	ErrVersionNotFound = jmt.ErrVersionNotFound
	// ErrVersionPruned is returned for versions removed by pruning.
	ErrVersionPruned = jmt.ErrVersionPruned
	// ErrPendingFlush is returned by Flush if a flushed version awaits its
	// commit.
	ErrPendingFlush = errors.New("a flushed version is pending commit")
	// ErrNothingToCommit is returned by Commit if no version was flushed.
	ErrNothingToCommit = errors.New("no flushed version to commit")
	// ErrInvalidPruneVersion is returned when pruning beyond the latest
	// version.
	ErrInvalidPruneVersion = errors.New("invalid prune version")
	// ErrClosed is returned by operations on a closed database.
	ErrClosed = errors.New("state database is closed")
	// ErrInconsistentState is returned when the storage, the preimage index
	// and the commitment tree disagree.
	ErrInconsistentState = errors.New("inconsistent state")
	// ErrEmptyKey is returned for empty keys, which ICS-23 proofs cannot
	// represent.
	ErrEmptyKey = errors.New("empty keys are not supported")
	// ErrEmptyValue is returned by Flush for inserts of empty values, which
	// ICS-23 proofs cannot represent.
	ErrEmptyValue = errors.New("empty values are not supported")
)
