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
	"os"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/backend/badger"
	"github.com/0xsoniclabs/jellyfish/backend/ldb"
	"github.com/0xsoniclabs/jellyfish/backend/memory"
	"github.com/0xsoniclabs/jellyfish/backend/pebble"
	"github.com/0xsoniclabs/jellyfish/backend/sqlite"
	"github.com/0xsoniclabs/jellyfish/config"
	"github.com/0xsoniclabs/jellyfish/database/jmt"
)

// OpenDatabase opens the key/value backend selected by the given
// configuration.
func OpenDatabase(cfg config.StorageConfig) (backend.Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend != config.BackendMemory {
		if err := os.MkdirAll(cfg.Directory, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", cfg.Directory, err)
		}
	}
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendLevelDb:
		return ldb.Open(cfg.Directory, ldb.Options{
			Sync:               cfg.Sync,
			BlockCacheCapacity: int(cfg.BlockCache.Bytes()),
		})
	case config.BackendPebble:
		return pebble.Open(cfg.Directory, cfg.Sync)
	case config.BackendBadger:
		opts := badger.DefaultOptions()
		opts.SyncWrites = cfg.Sync
		return badger.Open(cfg.Directory, opts)
	case config.BackendSqlite:
		return sqlite.Open(cfg.Directory)
	}
	return nil, fmt.Errorf("%w: %q", config.ErrInvalidBackend, cfg.Backend)
}

// Open opens the state database described by the given configuration. The
// given options take precedence over the configuration.
func Open(cfg *config.Config, opts ...Option) (*Db, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	db, err := OpenDatabase(cfg.Storage)
	if err != nil {
		return nil, err
	}

	configured := []Option{
		WithParallelism(cfg.Tree.ParallelDepth, cfg.Tree.ParallelThreshold),
		WithKeepRecent(cfg.Pruning.KeepRecent),
		WithPruneChunkSize(cfg.Pruning.ChunkSize),
	}
	if cfg.Tree.NodeCache > 0 {
		configured = append(configured, WithNodeCacheSize(jmt.CacheSizeFor(cfg.Tree.NodeCache.Bytes())))
	}
	res, err := NewDb(db, append(configured, opts...)...)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return res, nil
}
