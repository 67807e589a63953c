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
	"github.com/0xsoniclabs/jellyfish/database/jmt"
	"github.com/0xsoniclabs/jellyfish/metrics"
	"go.uber.org/zap"
)

const (
	defaultParallelDepth     = 4
	defaultParallelThreshold = 256
	defaultPruneChunkSize    = 10_000
)

// Option customizes a Db created by NewDb or Open.
type Option func(*options)

type options struct {
	logger            *zap.Logger
	metrics           metrics.Metrics
	nodeCacheSize     int
	parallelDepth     int
	parallelThreshold int
	keepRecent        uint64
	pruneChunkSize    int
}

func defaultOptions() options {
	return options{
		logger:            zap.NewNop(),
		metrics:           metrics.NewNopMetrics(),
		nodeCacheSize:     jmt.DefaultCacheSize(),
		parallelDepth:     defaultParallelDepth,
		parallelThreshold: defaultParallelThreshold,
		pruneChunkSize:    defaultPruneChunkSize,
	}
}

// WithLogger sets the logger of the database.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink of the database.
func WithMetrics(m metrics.Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithNodeCacheSize sets the number of tree nodes kept in memory.
func WithNodeCacheSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.nodeCacheSize = size
		}
	}
}

// WithParallelism sets how many top tree levels are updated in parallel and
// the minimum number of updates a sub-tree needs to be split across workers.
// A depth of zero disables parallel updates.
func WithParallelism(depth, threshold int) Option {
	return func(o *options) {
		o.parallelDepth = depth
		o.parallelThreshold = threshold
	}
}

// WithKeepRecent enables background pruning retaining the given number of
// recent versions. Zero disables background pruning.
func WithKeepRecent(versions uint64) Option {
	return func(o *options) {
		o.keepRecent = versions
	}
}

// WithPruneChunkSize sets the number of deletions written per batch while
// pruning.
func WithPruneChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.pruneChunkSize = size
		}
	}
}
