// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package io exports the content of a state database version into a portable
// snapshot and restores databases from such snapshots.
//
// A snapshot is a snappy framed stream of
//
//	magic   "JMTSNAP1"
//	version u64 (big-endian), the exported version
//	root    flag byte, followed by the 32 byte root hash if the flag is 1
//	records (uvarint len(key)+1, key, uvarint len(value), value) in key order
//	end     a zero byte followed by the uvarint number of records
package io

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/common/interrupt"
	"github.com/0xsoniclabs/jellyfish/state"
	"github.com/golang/snappy"
	"go.uber.org/zap"
)

var magic = []byte("JMTSNAP1")

// ImportBatchSize is the number of keys committed per version during an
// import.
const ImportBatchSize = 1000

var (
	// ErrInvalidSnapshot is returned for malformed snapshot streams.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	// ErrRootMismatch is returned if an imported state does not reproduce the
	// root hash recorded in the snapshot.
	ErrRootMismatch = errors.New("imported state does not match snapshot root")
	// ErrNotEmpty is returned when importing into a non-empty database.
	ErrNotEmpty = errors.New("target database is not empty")
)

// Header describes the exported version of a snapshot.
type Header struct {
	Version uint64
	Root    *common.Hash
}

// Export writes the key/value pairs of the given version of the database to
// the given writer. It returns the header of the snapshot.
func Export(ctx context.Context, logger *zap.Logger, db *state.Db, version uint64, out io.Writer) (Header, error) {
	view, err := db.StateStorage(version)
	if err != nil {
		return Header{}, err
	}
	root, err := db.RootHash(view.Version())
	if err != nil {
		return Header{}, err
	}
	header := Header{Version: view.Version(), Root: root}

	writer := snappy.NewBufferedWriter(out)
	if err := writeHeader(writer, header); err != nil {
		return Header{}, err
	}

	iter, err := view.Iterate(nil, nil, common.Ascending)
	if err != nil {
		return Header{}, err
	}
	defer iter.Release()

	logger.Info("exporting state", zap.Uint64("version", header.Version), zap.Stringer("root", rootString{root}))
	progress := NewProgressLogger(logger, "exported keys", 100_000)
	var buffer []byte
	for iter.Next() {
		if interrupt.IsCancelled(ctx) {
			return Header{}, interrupt.ErrCanceled
		}
		buffer = binary.AppendUvarint(buffer[:0], uint64(len(iter.Key()))+1)
		buffer = append(buffer, iter.Key()...)
		buffer = binary.AppendUvarint(buffer, uint64(len(iter.Value())))
		buffer = append(buffer, iter.Value()...)
		if _, err := writer.Write(buffer); err != nil {
			return Header{}, err
		}
		progress.Step(1)
	}
	if err := iter.Err(); err != nil {
		return Header{}, fmt.Errorf("failed to read version %d: %w", header.Version, err)
	}

	buffer = binary.AppendUvarint(append(buffer[:0], 0), uint64(progress.Count()))
	if _, err := writer.Write(buffer); err != nil {
		return Header{}, err
	}
	if err := writer.Close(); err != nil {
		return Header{}, err
	}
	progress.Done()
	return header, nil
}

// Import restores the snapshot of the given reader into the given empty
// database. The keys are committed in chunks of ImportBatchSize keys, one
// version per chunk, and all but the final version are pruned afterwards. It
// returns the version holding the restored state and its root hash, which is
// checked against the root recorded in the snapshot.
func Import(ctx context.Context, logger *zap.Logger, db *state.Db, in io.Reader) (uint64, *common.Hash, error) {
	if _, found := db.LatestVersion(); found {
		return 0, nil, ErrNotEmpty
	}
	reader := bufio.NewReader(snappy.NewReader(in))
	header, err := readHeader(reader)
	if err != nil {
		return 0, nil, err
	}
	logger.Info("importing state",
		zap.Uint64("snapshot_version", header.Version),
		zap.Stringer("root", rootString{header.Root}),
	)

	progress := NewProgressLogger(logger, "imported keys", 100_000)
	var (
		version uint64
		root    *common.Hash
		batch   = common.NewBatch()
	)
	commit := func() error {
		version, root, err = db.FlushAndCommit(batch)
		batch = common.NewBatch()
		return err
	}

	var previous []byte
	for {
		if interrupt.IsCancelled(ctx) {
			return 0, nil, interrupt.ErrCanceled
		}
		key, value, end, err := readRecord(reader)
		if err != nil {
			return 0, nil, err
		}
		if end {
			break
		}
		if previous != nil && bytes.Compare(previous, key) >= 0 {
			return 0, nil, fmt.Errorf("%w: keys out of order", ErrInvalidSnapshot)
		}
		previous = key
		batch.Insert(key, value)
		progress.Step(1)
		if len(batch) >= ImportBatchSize {
			if err := commit(); err != nil {
				return 0, nil, err
			}
		}
	}

	count, err := binary.ReadUvarint(reader)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: missing record count: %v", ErrInvalidSnapshot, err)
	}
	if count != uint64(progress.Count()) {
		return 0, nil, fmt.Errorf("%w: expected %d records, got %d", ErrInvalidSnapshot, count, progress.Count())
	}
	if _, found := db.LatestVersion(); len(batch) > 0 || !found {
		if err := commit(); err != nil {
			return 0, nil, err
		}
	}
	progress.Done()

	if !equalRoots(root, header.Root) {
		return 0, nil, fmt.Errorf("%w: expected %v, got %v", ErrRootMismatch, rootString{header.Root}, rootString{root})
	}

	// Drop the versions holding partial imports.
	if _, err := db.Prune(version); err != nil {
		return 0, nil, fmt.Errorf("failed to prune partial versions: %w", err)
	}
	logger.Info("imported state", zap.Uint64("version", version), zap.Stringer("root", rootString{root}))
	return version, root, nil
}

// ReadHeader reads the header of the snapshot provided by the given reader.
func ReadHeader(in io.Reader) (Header, error) {
	return readHeader(bufio.NewReader(snappy.NewReader(in)))
}

func writeHeader(out io.Writer, header Header) error {
	buffer := append([]byte{}, magic...)
	buffer = binary.BigEndian.AppendUint64(buffer, header.Version)
	if header.Root == nil {
		buffer = append(buffer, 0)
	} else {
		buffer = append(buffer, 1)
		buffer = append(buffer, header.Root[:]...)
	}
	_, err := out.Write(buffer)
	return err
}

func readHeader(in *bufio.Reader) (Header, error) {
	buffer := make([]byte, len(magic)+8+1)
	if _, err := io.ReadFull(in, buffer); err != nil {
		return Header{}, fmt.Errorf("%w: failed to read header: %v", ErrInvalidSnapshot, err)
	}
	if !bytes.Equal(buffer[:len(magic)], magic) {
		return Header{}, fmt.Errorf("%w: unknown format", ErrInvalidSnapshot)
	}
	res := Header{Version: binary.BigEndian.Uint64(buffer[len(magic):])}
	switch buffer[len(buffer)-1] {
	case 0:
	case 1:
		var root common.Hash
		if _, err := io.ReadFull(in, root[:]); err != nil {
			return Header{}, fmt.Errorf("%w: failed to read root: %v", ErrInvalidSnapshot, err)
		}
		res.Root = &root
	default:
		return Header{}, fmt.Errorf("%w: invalid root flag %d", ErrInvalidSnapshot, buffer[len(buffer)-1])
	}
	return res, nil
}

func readRecord(in *bufio.Reader) (key, value []byte, end bool, err error) {
	keyLen, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: failed to read key length: %v", ErrInvalidSnapshot, err)
	}
	if keyLen == 0 {
		return nil, nil, true, nil
	}
	if key, err = readBytes(in, keyLen-1); err != nil {
		return nil, nil, false, err
	}
	valueLen, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, nil, false, fmt.Errorf("%w: failed to read value length: %v", ErrInvalidSnapshot, err)
	}
	if value, err = readBytes(in, valueLen); err != nil {
		return nil, nil, false, err
	}
	return key, value, false, nil
}

// maxRecordSize bounds the size of keys and values to protect against
// corrupted length prefixes.
const maxRecordSize = 1 << 30

func readBytes(in io.Reader, n uint64) ([]byte, error) {
	if n > maxRecordSize {
		return nil, fmt.Errorf("%w: record of %d bytes exceeds limit", ErrInvalidSnapshot, n)
	}
	res := make([]byte, n)
	if _, err := io.ReadFull(in, res); err != nil {
		return nil, fmt.Errorf("%w: truncated record: %v", ErrInvalidSnapshot, err)
	}
	return res, nil
}

func equalRoots(a, b *common.Hash) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
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
