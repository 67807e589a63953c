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
	"fmt"
	"sync"

	"github.com/0xsoniclabs/jellyfish/common/future"
	"go.uber.org/zap"
)

// pruner runs prune requests on a background worker, keeping pruning off the
// commit path.
type pruner struct {
	mutex    sync.Mutex
	commands chan<- pruneCommand // < commands to background worker
	syncs    <-chan struct{}     // < signalled when syncing with background worker
	done     <-chan struct{}     // < when background work is done
	closed   bool

	issues issueCollector // < issues of failed prune runs
}

// pruneCommand is either a prune request or, with a nil promise, a sync
// request waiting for all preceding requests to be processed.
type pruneCommand struct {
	upTo    uint64
	promise *future.Promise[PruneStats]
}

func startPruner(db *Db) *pruner {
	commands := make(chan pruneCommand, 1024)
	syncs := make(chan struct{})
	done := make(chan struct{})
	res := &pruner{
		commands: commands,
		syncs:    syncs,
		done:     done,
	}
	go func() {
		defer close(done)
		processPruneCommands(db, commands, syncs, &res.issues)
	}()
	return res
}

func processPruneCommands(
	db *Db,
	commands <-chan pruneCommand,
	syncs chan<- struct{},
	issues *issueCollector,
) {
	for command := range commands {
		if command.promise == nil {
			syncs <- struct{}{}
			continue
		}
		stats, err := db.Prune(command.upTo)
		if err != nil {
			db.logger.Warn("background pruning failed", zap.Uint64("up_to", command.upTo), zap.Error(err))
			issues.HandleIssue(err)
		}
		command.promise.Complete(stats, err)
	}
}

// schedule requests a prune run without waiting for its outcome. Failures are
// reported by the next sync.
func (p *pruner) schedule(upTo uint64) {
	p.submit(upTo)
}

func (p *pruner) submit(upTo uint64) future.Future[PruneStats] {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return future.Failed[PruneStats](ErrClosed)
	}
	promise, res := future.Create[PruneStats]()
	p.commands <- pruneCommand{upTo: upTo, promise: &promise}
	return res
}

// sync waits for all requested prune runs to be completed and returns the
// issues encountered since the last sync.
func (p *pruner) sync() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.commands <- pruneCommand{}
	<-p.syncs
	return p.issues.Collect()
}

func (p *pruner) close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.commands)
	<-p.done
	return p.issues.Collect()
}

// PruneAsync requests the removal of all versions older than upTo on the
// background pruning worker. Requests are processed in order.
func (d *Db) PruneAsync(upTo uint64) future.Future[PruneStats] {
	return d.pruner.submit(upTo)
}

// WaitForPruning blocks until all requested prune runs are completed and
// returns the errors of the runs failed since the last call.
func (d *Db) WaitForPruning() error {
	return d.pruner.sync()
}

// issueCollector collects issues encountered during background processing.
// It limits the number of stored issues to avoid excessive memory usage.
// Only the first 10 issues are stored; any additional issues are counted
// but not stored in detail.
type issueCollector struct {
	issues      []error // < collected issues
	extraIssues int     // < count of additional issues beyond stored ones
	mutex       sync.Mutex
}

func (c *issueCollector) HandleIssue(err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if len(c.issues) < 10 {
		c.issues = append(c.issues, err)
	} else {
		c.extraIssues++
	}
}

func (c *issueCollector) Collect() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.extraIssues > 0 {
		c.issues = append(c.issues, fmt.Errorf("%d additional errors truncated", c.extraIssues))
	}
	res := errors.Join(c.issues...)
	c.issues = c.issues[:0]
	c.extraIssues = 0
	return res
}
