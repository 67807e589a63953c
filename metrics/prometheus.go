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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements the Metrics interface using Prometheus.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Write metrics
	flushDuration  prometheus.Histogram
	flushedUpdates prometheus.Counter
	commitDuration prometheus.Histogram
	commits        prometheus.Counter
	latestVersion  prometheus.Gauge
	nodesWritten   prometheus.Counter
	nodesOrphaned  prometheus.Counter

	// Proof metrics
	proofs        *prometheus.CounterVec
	proofDuration *prometheus.HistogramVec

	// Pruning metrics
	pruneDuration prometheus.Histogram
	prunedNodes   prometheus.Counter
	prunedEntries prometheus.Counter
	oldestVersion prometheus.Gauge

	// Cache metrics
	cacheHits   prometheus.Gauge
	cacheMisses prometheus.Gauge
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance with its own
// registry.
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	m := &PrometheusMetrics{
		registry: registry,

		flushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_duration_seconds",
				Help:      "Time spent staging a batch of updates",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		flushedUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushed_updates_total",
				Help:      "Total number of key updates flushed",
			},
		),
		commitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "commit_duration_seconds",
				Help:      "Time spent persisting a version",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		commits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_total",
				Help:      "Total number of committed versions",
			},
		),
		latestVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "latest_version",
				Help:      "Latest committed version",
			},
		),
		nodesWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tree_nodes_written_total",
				Help:      "Total number of tree nodes written",
			},
		),
		nodesOrphaned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tree_nodes_orphaned_total",
				Help:      "Total number of tree nodes dropped from the latest tree",
			},
		),

		proofs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proofs_total",
				Help:      "Total number of created proofs",
			},
			[]string{"kind"},
		),
		proofDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "proof_duration_seconds",
				Help:      "Time spent creating a proof",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
			[]string{"kind"},
		),

		pruneDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prune_duration_seconds",
				Help:      "Time spent pruning old versions",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		prunedNodes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pruned_nodes_total",
				Help:      "Total number of removed tree nodes",
			},
		),
		prunedEntries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pruned_entries_total",
				Help:      "Total number of removed storage and preimage entries",
			},
		),
		oldestVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "oldest_version",
				Help:      "Oldest retained version",
			},
		),

		cacheHits: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_cache_hits",
				Help:      "Accumulated number of node cache hits",
			},
		),
		cacheMisses: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_cache_misses",
				Help:      "Accumulated number of node cache misses",
			},
		),
	}

	m.registry.MustRegister(
		m.flushDuration,
		m.flushedUpdates,
		m.commitDuration,
		m.commits,
		m.latestVersion,
		m.nodesWritten,
		m.nodesOrphaned,
		m.proofs,
		m.proofDuration,
		m.pruneDuration,
		m.prunedNodes,
		m.prunedEntries,
		m.oldestVersion,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

// Registry returns the registry holding all metrics of this instance.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the metrics.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PrometheusMetrics) ObserveFlush(duration time.Duration, updates int) {
	m.flushDuration.Observe(duration.Seconds())
	m.flushedUpdates.Add(float64(updates))
}

func (m *PrometheusMetrics) ObserveCommit(version uint64, duration time.Duration, nodes, orphans int) {
	m.commitDuration.Observe(duration.Seconds())
	m.commits.Inc()
	m.latestVersion.Set(float64(version))
	m.nodesWritten.Add(float64(nodes))
	m.nodesOrphaned.Add(float64(orphans))
}

func (m *PrometheusMetrics) ObserveProof(kind string, duration time.Duration) {
	m.proofs.WithLabelValues(kind).Inc()
	m.proofDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *PrometheusMetrics) ObservePrune(oldest uint64, duration time.Duration, nodes, entries int) {
	m.pruneDuration.Observe(duration.Seconds())
	m.prunedNodes.Add(float64(nodes))
	m.prunedEntries.Add(float64(entries))
	m.oldestVersion.Set(float64(oldest))
}

func (m *PrometheusMetrics) SetNodeCacheStats(hits, misses uint64) {
	m.cacheHits.Set(float64(hits))
	m.cacheMisses.Set(float64(misses))
}
