// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/config"
	"github.com/0xsoniclabs/jellyfish/state"
	"github.com/urfave/cli/v2"
)

var (
	numBlocksFlag = cli.IntFlag{
		Name:  "num-blocks",
		Usage: "the number of versions to be committed",
		Value: 10_000,
	}
	numInsertsPerBlockFlag = cli.IntFlag{
		Name:  "inserts-per-block",
		Usage: "the number of keys inserted per version",
		Value: 1_000,
	}
	reportIntervalFlag = cli.IntFlag{
		Name:  "report-interval",
		Usage: "the number of versions between reports",
		Value: 1_000,
	}
	tmpDirFlag = cli.StringFlag{
		Name:  "tmp-dir",
		Usage: "the directory to place the state database in",
		Value: os.TempDir(),
	}
	keepStateFlag = cli.BoolFlag{
		Name:  "keep-state",
		Usage: "disables the deletion of the state database at the end of the benchmark",
	}
	keepRecentFlag = cli.Uint64Flag{
		Name:  "keep-recent",
		Usage: "the number of recent versions retained by background pruning, 0 disables pruning",
	}
)

var Benchmark = cli.Command{
	Action: withDiagnostics(benchmark),
	Name:   "benchmark",
	Usage:  "benchmarks inserting keys into a fresh state database",
	Flags: []cli.Flag{
		&backendFlag,
		&numBlocksFlag,
		&numInsertsPerBlockFlag,
		&reportIntervalFlag,
		&tmpDirFlag,
		&keepStateFlag,
		&keepRecentFlag,
	},
}

func benchmark(context *cli.Context) error {
	params := benchmarkParams{
		backend:            context.String(backendFlag.Name),
		numBlocks:          context.Int(numBlocksFlag.Name),
		numInsertsPerBlock: context.Int(numInsertsPerBlockFlag.Name),
		reportInterval:     context.Int(reportIntervalFlag.Name),
		tmpDir:             context.String(tmpDirFlag.Name),
		keepState:          context.Bool(keepStateFlag.Name),
		keepRecent:         context.Uint64(keepRecentFlag.Name),
	}
	out := context.App.Writer
	observer := func(format string, args ...any) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	start := time.Now()
	res, err := runBenchmark(params, observer)
	if err != nil {
		return err
	}
	end := time.Now()

	fmt.Fprintln(out, "block,memory,disk,throughput")
	for _, cur := range res.intervals {
		fmt.Fprintf(out, "%d,%d,%d,%.2f\n", cur.endOfBlock, cur.memory, cur.disk, cur.throughput)
	}
	fmt.Fprintf(out, "Overall time: %v (+%v for reporting)\n", res.insertTime, res.reportTime)
	fmt.Fprintf(out, "Overall inserts throughput: %.2f inserts/second\n", float64(res.numInserts)/res.insertTime.Seconds())
	fmt.Fprintf(out, "Total runtime: %v\n", end.Sub(start))
	return nil
}

type benchmarkParams struct {
	backend            string
	numBlocks          int
	numInsertsPerBlock int
	reportInterval     int
	tmpDir             string
	keepState          bool
	keepRecent         uint64
}

type benchmarkRecord struct {
	endOfBlock int
	memory     int64
	disk       int64
	throughput float64
}

type benchmarkResult struct {
	intervals  []benchmarkRecord
	insertTime time.Duration
	reportTime time.Duration
	numInserts int64
}

func runBenchmark(params benchmarkParams, observer func(string, ...any)) (res benchmarkResult, err error) {
	if params.reportInterval <= 0 {
		return res, fmt.Errorf("report interval must be positive")
	}
	dir, err := os.MkdirTemp(params.tmpDir, "state_")
	if err != nil {
		return res, fmt.Errorf("failed to create temporary state directory: %w", err)
	}
	if params.keepState {
		observer("State DB will remain in %s", dir)
	} else {
		defer func() {
			observer("Deleting temporary DB in %s ...", dir)
			err = errors.Join(err, os.RemoveAll(dir))
		}()
	}

	cfg := config.DefaultConfig()
	if params.backend != "" {
		cfg.Storage.Backend = params.backend
	}
	cfg.Storage.Directory = dir
	cfg.Pruning.KeepRecent = params.keepRecent
	observer("Creating %s state DB in %s ...", cfg.Storage.Backend, dir)
	db, err := state.Open(cfg)
	if err != nil {
		return res, err
	}
	defer func() {
		observer("Closing DB ...")
		err = errors.Join(err, db.Close())
	}()

	observer("Running benchmark ...")
	benchmarkStart := time.Now()
	lastReport := benchmarkStart
	reportingTime := time.Duration(0)
	counter := uint64(0)
	for i := 0; i < params.numBlocks; i++ {
		batch := common.NewBatch()
		for j := 0; j < params.numInsertsPerBlock; j++ {
			key := common.Sha256(binary.BigEndian.AppendUint64(nil, counter))
			batch.Insert(key[:], binary.BigEndian.AppendUint64(nil, uint64(i)))
			counter++
		}
		if _, _, err := db.FlushAndCommit(batch); err != nil {
			return res, fmt.Errorf("failed to commit block %d: %w", i, err)
		}

		if (i+1)%params.reportInterval == 0 {
			startReporting := time.Now()
			if err := db.WaitForPruning(); err != nil {
				return res, err
			}

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			disk := getDirectorySize(dir)
			throughput := float64(params.reportInterval*params.numInsertsPerBlock) / startReporting.Sub(lastReport).Seconds()
			res.intervals = append(res.intervals, benchmarkRecord{
				endOfBlock: i + 1,
				memory:     int64(memStats.HeapAlloc),
				disk:       disk,
				throughput: throughput,
			})
			observer(
				"Reached block %d, memory %.2f GB, disk %.2f GB, %.2f inserts/second",
				i+1,
				float64(memStats.HeapAlloc)/float64(1<<30),
				float64(disk)/float64(1<<30),
				throughput,
			)

			endReporting := time.Now()
			reportingTime += endReporting.Sub(startReporting)
			lastReport = endReporting
		}
	}

	res.insertTime = time.Since(benchmarkStart) - reportingTime
	res.reportTime = reportingTime
	res.numInserts = int64(params.numBlocks) * int64(params.numInsertsPerBlock)
	return res, nil
}

// getDirectorySize computes the total size of all files in the given
// directory in bytes. Unreadable entries are skipped.
func getDirectorySize(directory string) int64 {
	var sum int64
	filepath.WalkDir(directory, func(path string, entry fs.DirEntry, err error) error {
		if err != nil || entry.IsDir() {
			return nil
		}
		if info, err := entry.Info(); err == nil {
			sum += info.Size()
		}
		return nil
	})
	return sum
}
