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
	"fmt"

	"github.com/urfave/cli/v2"
)

var (
	upToFlag = cli.Uint64Flag{
		Name:  "up-to",
		Usage: "removes all versions older than the given version",
	}
	keepFlag = cli.Uint64Flag{
		Name:  "keep",
		Usage: "retains the given number of most recent versions",
	}
)

var Prune = cli.Command{
	Action:    withDiagnostics(prune),
	Name:      "prune",
	Usage:     "removes old versions of a state database",
	ArgsUsage: "",
	Flags:     append([]cli.Flag{&upToFlag, &keepFlag}, databaseFlags...),
}

func prune(context *cli.Context) error {
	if context.IsSet(upToFlag.Name) == context.IsSet(keepFlag.Name) {
		return fmt.Errorf("exactly one of --%s and --%s is required", upToFlag.Name, keepFlag.Name)
	}
	db, _, closeDb, err := openDb(context)
	if err != nil {
		return err
	}
	defer closeDb()

	latest, found := db.LatestVersion()
	if !found {
		return fmt.Errorf("the database is empty")
	}
	upTo := context.Uint64(upToFlag.Name)
	if context.IsSet(keepFlag.Name) {
		keep := context.Uint64(keepFlag.Name)
		if keep == 0 {
			return fmt.Errorf("at least one version must be kept")
		}
		if latest+1 <= keep {
			fmt.Fprintln(context.App.Writer, "Nothing to prune.")
			return nil
		}
		upTo = latest + 1 - keep
	}

	stats, err := db.Prune(upTo)
	if err != nil {
		return err
	}
	out := context.App.Writer
	fmt.Fprintf(out, "Oldest version:   %d\n", stats.Oldest)
	fmt.Fprintf(out, "Pruned versions:  %d\n", stats.Versions)
	fmt.Fprintf(out, "Removed nodes:    %d\n", stats.Nodes)
	fmt.Fprintf(out, "Removed entries:  %d\n", stats.StorageEntries+stats.PreimageEntries)
	fmt.Fprintf(out, "Duration:         %v\n", stats.Duration)
	return nil
}
