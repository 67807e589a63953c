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

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	_ Metrics = (*NopMetrics)(nil)
	_ Metrics = (*PrometheusMetrics)(nil)
)

func TestPrometheusMetrics_ObservationsAreRecorded(t *testing.T) {
	require := require.New(t)
	m := NewPrometheusMetrics("test")

	m.ObserveFlush(time.Millisecond, 3)
	m.ObserveCommit(7, time.Millisecond, 10, 4)
	m.ObserveProof(ProofExistence, time.Microsecond)
	m.ObserveProof(ProofNonExistence, time.Microsecond)
	m.ObservePrune(5, time.Millisecond, 4, 2)
	m.SetNodeCacheStats(12, 3)

	families, err := m.Registry().Gather()
	require.NoError(err)
	values := map[string]float64{}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[family.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[family.GetName()] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				values[family.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}

	require.Equal(3.0, values["test_flushed_updates_total"])
	require.Equal(1.0, values["test_commits_total"])
	require.Equal(7.0, values["test_latest_version"])
	require.Equal(10.0, values["test_tree_nodes_written_total"])
	require.Equal(4.0, values["test_tree_nodes_orphaned_total"])
	require.Equal(2.0, values["test_proofs_total"])
	require.Equal(2.0, values["test_proof_duration_seconds"])
	require.Equal(4.0, values["test_pruned_nodes_total"])
	require.Equal(2.0, values["test_pruned_entries_total"])
	require.Equal(5.0, values["test_oldest_version"])
	require.Equal(12.0, values["test_node_cache_hits"])
	require.Equal(3.0, values["test_node_cache_misses"])
}

func TestPrometheusMetrics_HandlerExposesMetrics(t *testing.T) {
	require := require.New(t)
	m := NewPrometheusMetrics("jmt")
	m.ObserveCommit(3, time.Millisecond, 1, 0)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(recorder.Result().Body)
	require.NoError(err)
	require.True(strings.Contains(string(body), "jmt_latest_version 3"))
}

func TestNopMetrics_AcceptsAllObservations(t *testing.T) {
	m := NewNopMetrics()
	m.ObserveFlush(time.Second, 1)
	m.ObserveCommit(1, time.Second, 1, 1)
	m.ObserveProof(ProofExistence, time.Second)
	m.ObservePrune(1, time.Second, 1, 1)
	m.SetNodeCacheStats(1, 1)
}
