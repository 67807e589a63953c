// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package state implements a versioned, authenticated key/value store. Every
// committed version of the key space is retained until pruned and committed
// to by the root hash of a Jellyfish Merkle Tree over the hashed keys and
// values. Raw key/value pairs live in a versioned storage next to the tree,
// allowing reads of historic versions and ICS-23 proofs of membership and
// non-membership.
package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/0xsoniclabs/jellyfish/backend"
	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/database/jmt"
	"github.com/0xsoniclabs/jellyfish/database/preimage"
	"github.com/0xsoniclabs/jellyfish/database/versioned"
	"github.com/0xsoniclabs/jellyfish/metrics"
	"go.uber.org/zap"
)

// Latest may be passed in place of a version to address the latest committed
// version.
const Latest uint64 = math.MaxUint64

var (
	latestVersionKey = []byte("latest_version")
	oldestVersionKey = []byte("oldest_version")
)

// Db is a versioned key/value store authenticated by a Jellyfish Merkle Tree.
//
// Changes are applied in two phases. Flush stages a batch of changes as the
// next version and computes its root hash without making it visible. Commit
// atomically persists the staged version, making it the latest version. At
// most one version can be staged at any time.
//
// A Db is safe for concurrent use. Reads never block on Flush, Commit or
// pruning.
type Db struct {
	db        backend.Database
	tree      *jmt.Tree
	storage   *versioned.Store
	preimages *preimage.Index
	logger    *zap.Logger
	metrics   metrics.Metrics
	params    options

	writeMutex sync.Mutex // < serializes Flush, Commit and Close
	pending    *changeSet // < the flushed version awaiting its commit
	closed     bool

	versionMutex sync.RWMutex // < guards the version range below
	initialized  bool         // < true once the first version is committed
	latest       uint64
	oldest       uint64

	pruneMutex sync.Mutex // < serializes prune runs
	pruner     *pruner
}

// changeSet is a flushed version awaiting its commit.
type changeSet struct {
	batch   *backend.Batch
	writer  *jmt.NodeWriter
	version uint64
	root    *common.Hash
	updates int
}

// NewDb creates a state database on top of the given key/value database,
// resuming from the versions it already contains. The Db takes ownership of
// the given database and closes it on Close.
func NewDb(db backend.Database, opts ...Option) (*Db, error) {
	params := defaultOptions()
	for _, opt := range opts {
		opt(&params)
	}

	store, err := jmt.NewNodeStore(db, params.nodeCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create node store: %w", err)
	}
	res := &Db{
		db:        db,
		tree:      jmt.NewTree(store, jmt.WithParallelism(params.parallelDepth, params.parallelThreshold)),
		storage:   versioned.New(db, backend.StorageSpace),
		preimages: preimage.New(db),
		logger:    params.logger,
		metrics:   params.metrics,
		params:    params,
	}

	latest, found, err := readVersion(db, latestVersionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest version: %w", err)
	}
	if found {
		oldest, _, err := readVersion(db, oldestVersionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to read oldest version: %w", err)
		}
		res.initialized = true
		res.latest = latest
		res.oldest = oldest
	}

	res.pruner = startPruner(res)

	if found {
		res.logger.Info("opened state database",
			zap.Uint64("oldest", res.oldest),
			zap.Uint64("latest", res.latest),
		)
	} else {
		res.logger.Info("opened empty state database")
	}
	return res, nil
}

// Flush stages the given batch of changes as the next version and returns the
// new version number and its root hash. Keys present in the batch are
// inserted or deleted. Deleting a key which does not exist has no effect. The
// version becomes visible to readers only once committed by Commit.
//
// The root hash is nil if the staged version contains no keys.
func (d *Db) Flush(batch common.Batch) (uint64, *common.Hash, error) {
	start := time.Now()
	d.writeMutex.Lock()
	defer d.writeMutex.Unlock()
	if d.closed {
		return 0, nil, ErrClosed
	}
	if d.pending != nil {
		return 0, nil, fmt.Errorf("%w: version %d", ErrPendingFlush, d.pending.version)
	}
	if err := checkBatch(batch); err != nil {
		return 0, nil, err
	}

	initialized, latest, _ := d.versions()
	version, base := uint64(0), jmt.NoVersion
	if initialized {
		if latest == math.MaxUint64-1 {
			return 0, nil, fmt.Errorf("version space exhausted")
		}
		version, base = latest+1, latest
	}

	changes := backend.NewBatch()
	updates := make([]jmt.Update, 0, len(batch))
	for _, key := range slices.Sorted(maps.Keys(batch)) {
		op := batch[key]
		raw := []byte(key)
		keyHash := common.Sha256(raw)
		if op.IsInsert() {
			value := op.Value()
			d.storage.Set(changes, raw, value, version)
			d.preimages.Record(changes, raw, version)
			updates = append(updates, jmt.Set(keyHash, common.Sha256(value)))
			continue
		}

		// Deleting absent keys must not touch storage or the preimage index.
		if !initialized {
			continue
		}
		_, exists, err := d.storage.Get(raw, latest)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to read key %x: %w", raw, err)
		}
		if !exists {
			continue
		}
		d.storage.Delete(changes, raw, version)
		d.preimages.Erase(changes, raw, version)
		updates = append(updates, jmt.Remove(keyHash))
	}

	writer := jmt.NewNodeWriter(changes)
	root, err := d.tree.Apply(writer, updates, base, version)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to update tree for version %d: %w", version, err)
	}

	changes.Put(backend.MetadataSpace, latestVersionKey, encodeVersion(version))
	if !initialized {
		changes.Put(backend.MetadataSpace, oldestVersionKey, encodeVersion(version))
	}

	d.pending = &changeSet{
		batch:   changes,
		writer:  writer,
		version: version,
		root:    root,
		updates: len(updates),
	}

	d.metrics.ObserveFlush(time.Since(start), len(updates))
	d.logger.Debug("flushed version",
		zap.Uint64("version", version),
		zap.Int("updates", len(updates)),
		zap.Stringer("root", rootString{root}),
	)
	return version, root, nil
}

// checkBatch rejects batches containing empty keys or inserts of empty
// values. Such entries could not be covered by ICS-23 proofs, neither their
// own nor those of absent keys next to them.
func checkBatch(batch common.Batch) error {
	for key, op := range batch {
		if len(key) == 0 {
			return ErrEmptyKey
		}
		if op.IsInsert() && len(op.Value()) == 0 {
			return fmt.Errorf("%w: key %x", ErrEmptyValue, key)
		}
	}
	return nil
}

// Commit persists the version staged by the preceding Flush, making it the
// latest version.
func (d *Db) Commit() error {
	start := time.Now()
	d.writeMutex.Lock()
	defer d.writeMutex.Unlock()
	if d.closed {
		return ErrClosed
	}
	pending := d.pending
	if pending == nil {
		return ErrNothingToCommit
	}
	if err := d.db.Apply(pending.batch); err != nil {
		return fmt.Errorf("failed to commit version %d: %w", pending.version, err)
	}
	d.pending = nil
	d.tree.Store().Committed(pending.writer)

	d.versionMutex.Lock()
	if !d.initialized {
		d.oldest = pending.version
	}
	d.initialized = true
	d.latest = pending.version
	d.versionMutex.Unlock()

	d.metrics.ObserveCommit(pending.version, time.Since(start), pending.writer.NumWritten(), pending.writer.NumOrphaned())
	d.metrics.SetNodeCacheStats(d.tree.Store().CacheStats())
	d.logger.Debug("committed version",
		zap.Uint64("version", pending.version),
		zap.Int("nodes", pending.writer.NumWritten()),
		zap.Int("orphans", pending.writer.NumOrphaned()),
	)

	if keep := d.params.keepRecent; keep > 0 && pending.version+1 > keep {
		d.pruner.schedule(pending.version + 1 - keep)
	}
	return nil
}

// FlushAndCommit stages the given batch as the next version and commits it.
func (d *Db) FlushAndCommit(batch common.Batch) (uint64, *common.Hash, error) {
	version, root, err := d.Flush(batch)
	if err != nil {
		return 0, nil, err
	}
	if err := d.Commit(); err != nil {
		return 0, nil, err
	}
	return version, root, nil
}

// Discard drops the version staged by the preceding Flush, if any.
func (d *Db) Discard() {
	d.writeMutex.Lock()
	defer d.writeMutex.Unlock()
	if d.pending == nil {
		return
	}
	d.logger.Debug("discarded version", zap.Uint64("version", d.pending.version))
	d.pending = nil
}

// LatestVersion returns the latest committed version. The second result is
// false if no version has been committed yet.
func (d *Db) LatestVersion() (uint64, bool) {
	initialized, latest, _ := d.versions()
	return latest, initialized
}

// OldestVersion returns the oldest version not removed by pruning. The second
// result is false if no version has been committed yet.
func (d *Db) OldestVersion() (uint64, bool) {
	initialized, _, oldest := d.versions()
	return oldest, initialized
}

// RootHash returns the root hash of the given version, which is nil if the
// version contains no keys.
func (d *Db) RootHash(version uint64) (*common.Hash, error) {
	v, err := d.resolve(version)
	if err != nil {
		return nil, err
	}
	root, err := d.tree.RootHash(v)
	if err := d.checkRetained(v); err != nil {
		return nil, err
	}
	return root, err
}

// Get returns the value of the given key in the given version. The second
// result is false if the key is not present.
func (d *Db) Get(key []byte, version uint64) ([]byte, bool, error) {
	v, err := d.resolve(version)
	if err != nil {
		return nil, false, err
	}
	value, found, err := d.storage.Get(key, v)
	if err := d.checkRetained(v); err != nil {
		return nil, false, err
	}
	return value, found, err
}

// Close waits for pending pruning to finish and closes the underlying
// database. A flushed but uncommitted version is lost.
func (d *Db) Close() error {
	d.writeMutex.Lock()
	defer d.writeMutex.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.pending = nil
	return errors.Join(
		d.pruner.close(),
		d.db.Close(),
	)
}

func (d *Db) versions() (initialized bool, latest, oldest uint64) {
	d.versionMutex.RLock()
	defer d.versionMutex.RUnlock()
	return d.initialized, d.latest, d.oldest
}

// resolve maps the given version to a committed version available for reads.
func (d *Db) resolve(version uint64) (uint64, error) {
	initialized, latest, oldest := d.versions()
	if !initialized {
		return 0, fmt.Errorf("%w: no version committed", ErrVersionNotFound)
	}
	if version == Latest {
		return latest, nil
	}
	if version > latest {
		return 0, fmt.Errorf("%w: version %d is newer than latest version %d", ErrVersionNotFound, version, latest)
	}
	if version < oldest {
		return 0, fmt.Errorf("%w: version %d is older than oldest version %d", ErrVersionPruned, version, oldest)
	}
	return version, nil
}

// checkRetained fails if the given version got pruned. Prune retires
// versions before removing any of their data, so a read completed before a
// successful check observed the version intact.
func (d *Db) checkRetained(version uint64) error {
	_, _, oldest := d.versions()
	if version < oldest {
		return fmt.Errorf("%w: version %d was pruned while being read", ErrVersionPruned, version)
	}
	return nil
}

func readVersion(db backend.Database, key []byte) (uint64, bool, error) {
	data, err := db.Get(backend.MetadataSpace, key)
	if errors.Is(err, backend.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("%w: invalid version encoding of length %d", ErrInconsistentState, len(data))
	}
	return binary.BigEndian.Uint64(data), true, nil
}

func encodeVersion(version uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, version)
}

type rootString struct {
	root *common.Hash
}

func (r rootString) String() string {
	if r.root == nil {
		return "empty"
	}
	return r.root.String()
}
