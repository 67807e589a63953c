// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package metrics

import "time"

// NopMetrics is a no-op implementation of the Metrics interface.
// Use this when metrics collection is disabled.
type NopMetrics struct{}

// NewNopMetrics creates a new NopMetrics instance.
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

func (m *NopMetrics) ObserveFlush(duration time.Duration, updates int)                          {}
func (m *NopMetrics) ObserveCommit(version uint64, duration time.Duration, nodes, orphans int) {}
func (m *NopMetrics) ObserveProof(kind string, duration time.Duration)                         {}
func (m *NopMetrics) ObservePrune(oldest uint64, duration time.Duration, nodes, entries int)   {}
func (m *NopMetrics) SetNodeCacheStats(hits, misses uint64)                                    {}
