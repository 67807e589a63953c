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
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/config"
)

// To run this benchmarks, use the following command:
// go test ./state -run none -bench BenchmarkFlush --benchtime 10s

func BenchmarkFlush(b *testing.B) {
	for _, backend := range []string{config.BackendMemory, config.BackendLevelDb, config.BackendPebble} {
		b.Run(backend, func(b *testing.B) {
			b.StopTimer()
			cfg := config.DefaultConfig()
			cfg.Storage.Backend = backend
			cfg.Storage.Directory = b.TempDir()
			db, err := Open(cfg)
			if err != nil {
				b.Fatal(err)
			}
			defer db.Close()

			for n := uint64(0); n < uint64(b.N); n++ {
				batch := common.NewBatch()
				for i := uint64(0); i < 10_000; i++ {
					key := binary.BigEndian.AppendUint64(binary.BigEndian.AppendUint64(nil, n), i)
					batch.Insert(key, binary.BigEndian.AppendUint64(nil, n))
				}

				b.StartTimer()
				_, _, err := db.Flush(batch)
				b.StopTimer()
				if err != nil {
					b.Fatal(err)
				}
				if err := db.Commit(); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Run, for example, with:
// go test ./state -cpuprofile=cpu.prof -run none -bench BenchmarkFlush_Parallelism --benchtime 10s
// and compare the time spent in the sequential and parallel tree updates.
func BenchmarkFlush_Parallelism(b *testing.B) {
	for _, depth := range []int{0, 2, 4, 8} {
		b.Run(fmt.Sprintf("depth=%d", depth), func(b *testing.B) {
			b.StopTimer()
			db := newBenchmarkDb(b, WithParallelism(depth, 64))
			for n := uint64(0); n < uint64(b.N); n++ {
				batch := common.NewBatch()
				for i := uint64(0); i < 10_000; i++ {
					key := binary.BigEndian.AppendUint64(nil, (n*10_000+i)*2654435761)
					batch.Insert(key, binary.BigEndian.AppendUint64(nil, n))
				}
				b.StartTimer()
				_, _, err := db.FlushAndCommit(batch)
				b.StopTimer()
				if err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkProve(b *testing.B) {
	db := newBenchmarkDb(b)
	batch := common.NewBatch()
	for i := uint64(0); i < 100_000; i++ {
		batch.Insert(binary.BigEndian.AppendUint64(nil, 2*i), []byte("value"))
	}
	if _, _, err := db.FlushAndCommit(batch); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Even keys are present, odd keys are absent.
		key := binary.BigEndian.AppendUint64(nil, uint64(i%200_000))
		if _, err := db.Prove(key, Latest); err != nil {
			b.Fatal(err)
		}
	}
}

func newBenchmarkDb(b *testing.B, opts ...Option) *Db {
	b.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = config.BackendMemory
	db, err := Open(cfg, opts...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() {
		if err := db.Close(); err != nil {
			b.Error(err)
		}
	})
	return db
}
