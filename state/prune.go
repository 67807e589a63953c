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
	"fmt"
	"time"

	"github.com/0xsoniclabs/jellyfish/backend"
	"go.uber.org/zap"
)

// PruneStats summarizes a prune run.
type PruneStats struct {
	Oldest          uint64        // oldest version retained after the run
	Versions        uint64        // number of versions made unavailable
	Nodes           int           // removed tree nodes
	Orphans         int           // removed orphan records
	StorageEntries  int           // removed storage entries
	PreimageEntries int           // removed preimage index entries
	HistoryRecords  int           // removed history records of both
	Duration        time.Duration // time spent on the run
}

// Prune removes all versions older than upTo. Version upTo and all later
// versions remain fully readable and provable. Pruning to a version at or
// below the oldest retained version has no effect.
//
// Pruned versions are unavailable to readers as soon as Prune starts removing
// data. Prune may run concurrently with reads, flushes and commits.
func (d *Db) Prune(upTo uint64) (PruneStats, error) {
	d.pruneMutex.Lock()
	defer d.pruneMutex.Unlock()

	start := time.Now()
	initialized, latest, oldest := d.versions()
	if !initialized {
		return PruneStats{}, fmt.Errorf("%w: no version committed", ErrVersionNotFound)
	}
	if upTo > latest {
		return PruneStats{}, fmt.Errorf("%w: version %d is newer than latest version %d", ErrInvalidPruneVersion, upTo, latest)
	}
	if upTo <= oldest {
		return PruneStats{Oldest: oldest}, nil
	}

	// Retire the versions before removing any of their data.
	batch := backend.NewBatch()
	batch.Put(backend.MetadataSpace, oldestVersionKey, encodeVersion(upTo))
	if err := d.db.Apply(batch); err != nil {
		return PruneStats{}, fmt.Errorf("failed to update oldest version: %w", err)
	}
	d.versionMutex.Lock()
	d.oldest = upTo
	d.versionMutex.Unlock()

	remover := &chunkedRemover{db: d.db, batch: backend.NewBatch(), limit: d.params.pruneChunkSize}
	res := PruneStats{Oldest: upTo, Versions: upTo - oldest}

	treeStats, err := d.tree.Prune(upTo, remover.remove)
	if err != nil {
		return res, fmt.Errorf("failed to prune tree: %w", err)
	}
	res.Nodes = treeStats.Nodes
	res.Orphans = treeStats.Orphans

	storageStats, err := d.storage.Compact(upTo, remover.remove)
	if err != nil {
		return res, fmt.Errorf("failed to prune storage: %w", err)
	}
	res.StorageEntries = storageStats.Entries
	preimageStats, err := d.preimages.Compact(upTo, remover.remove)
	if err != nil {
		return res, fmt.Errorf("failed to prune preimages: %w", err)
	}
	res.PreimageEntries = preimageStats.Entries
	res.HistoryRecords = storageStats.Records + preimageStats.Records
	if err := remover.flush(); err != nil {
		return res, fmt.Errorf("failed to prune: %w", err)
	}
	res.Duration = time.Since(start)

	d.metrics.ObservePrune(upTo, res.Duration, res.Nodes, res.StorageEntries+res.PreimageEntries)
	d.metrics.SetNodeCacheStats(d.tree.Store().CacheStats())
	d.logger.Info("pruned state",
		zap.Uint64("oldest", upTo),
		zap.Uint64("versions", res.Versions),
		zap.Int("nodes", res.Nodes),
		zap.Int("orphans", res.Orphans),
		zap.Int("storage_entries", res.StorageEntries),
		zap.Int("preimage_entries", res.PreimageEntries),
		zap.Int("history_records", res.HistoryRecords),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// chunkedRemover collects deletions and applies them in batches of limited
// size.
type chunkedRemover struct {
	db    backend.Database
	batch *backend.Batch
	limit int
}

func (r *chunkedRemover) remove(space backend.TableSpace, key []byte) error {
	r.batch.Delete(space, key)
	if r.batch.Len() < r.limit {
		return nil
	}
	return r.flush()
}

func (r *chunkedRemover) flush() error {
	if r.batch.Len() == 0 {
		return nil
	}
	if err := r.db.Apply(r.batch); err != nil {
		return err
	}
	r.batch.Reset()
	return nil
}
