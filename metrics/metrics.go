// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package metrics defines the instrumentation hooks of the state database and
// provides a Prometheus based and a no-op implementation.
package metrics

import "time"

// Proof kinds reported by ObserveProof.
const (
	ProofExistence    = "existence"
	ProofNonExistence = "nonexistence"
)

// Metrics collects operational metrics of a state database.
type Metrics interface {
	// ObserveFlush records a flush staging the given number of key updates.
	ObserveFlush(duration time.Duration, updates int)
	// ObserveCommit records the commit of a version and the number of tree
	// nodes and orphan records it wrote.
	ObserveCommit(version uint64, duration time.Duration, nodes, orphans int)
	// ObserveProof records the creation of a proof of the given kind.
	ObserveProof(kind string, duration time.Duration)
	// ObservePrune records a prune run removing the given number of tree
	// nodes and storage entries.
	ObservePrune(oldest uint64, duration time.Duration, nodes, entries int)
	// SetNodeCacheStats reports the accumulated node cache hits and misses.
	SetNodeCacheStats(hits, misses uint64)
}
