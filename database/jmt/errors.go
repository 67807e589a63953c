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

import "errors"

var (
	// ErrVersionNotFound is returned for versions that were never committed.
	ErrVersionNotFound = errors.New("version not found")
	// ErrVersionPruned is returned for versions removed by pruning.
	ErrVersionPruned = errors.New("version has been pruned")
	// ErrNodeNotFound indicates that a node referenced by the tree is missing
	// in the database, which is a sign of a corrupted database.
	ErrNodeNotFound = errors.New("tree node not found")
)
