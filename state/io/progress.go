// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package io

import (
	"time"

	"go.uber.org/zap"
)

// ProgressLogger periodically logs the progress of a long running operation.
type ProgressLogger struct {
	logger   *zap.Logger
	msg      string
	interval int
	counter  int
	start    time.Time
	last     time.Time
}

// NewProgressLogger creates a progress logger emitting the given message
// every interval steps.
func NewProgressLogger(logger *zap.Logger, msg string, interval int) *ProgressLogger {
	now := time.Now()
	return &ProgressLogger{
		logger:   logger,
		msg:      msg,
		interval: max(interval, 1),
		start:    now,
		last:     now,
	}
}

// Step records the given number of processed items.
func (p *ProgressLogger) Step(n int) {
	before := p.counter / p.interval
	p.counter += n
	if p.counter/p.interval == before {
		return
	}
	now := time.Now()
	rate := float64(p.interval) / now.Sub(p.last).Seconds()
	p.last = now
	p.logger.Info(p.msg, zap.Int("items", p.counter), zap.Float64("items_per_second", rate))
}

// Count returns the number of processed items.
func (p *ProgressLogger) Count() int {
	return p.counter
}

// Done logs the total number of processed items and the average rate.
func (p *ProgressLogger) Done() {
	elapsed := time.Since(p.start)
	p.logger.Info(p.msg+" done",
		zap.Int("items", p.counter),
		zap.Duration("elapsed", elapsed),
		zap.Float64("items_per_second", float64(p.counter)/max(elapsed.Seconds(), 1e-9)),
	)
}
