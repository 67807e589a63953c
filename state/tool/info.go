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
	"maps"
	"slices"

	"github.com/urfave/cli/v2"
)

var Info = cli.Command{
	Action:    withDiagnostics(info),
	Name:      "info",
	Usage:     "prints the version range and tree statistics of a state database",
	ArgsUsage: "",
	Flags:     append([]cli.Flag{&versionFlag}, databaseFlags...),
}

func info(context *cli.Context) error {
	version, err := parseVersion(context)
	if err != nil {
		return err
	}
	db, _, closeDb, err := openDb(context)
	if err != nil {
		return err
	}
	defer closeDb()

	out := context.App.Writer
	latest, found := db.LatestVersion()
	if !found {
		fmt.Fprintln(out, "The database is empty.")
		return nil
	}
	oldest, _ := db.OldestVersion()
	fmt.Fprintf(out, "Versions:       %d - %d\n", oldest, latest)

	root, err := db.RootHash(version)
	if err != nil {
		return err
	}
	if root == nil {
		fmt.Fprintln(out, "Root hash:      empty")
	} else {
		fmt.Fprintf(out, "Root hash:      %s\n", root)
	}

	stats, err := db.TreeStats(version)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Keys:           %d\n", stats.Leaves)
	fmt.Fprintf(out, "Internal nodes: %d\n", stats.InternalNodes)
	fmt.Fprintf(out, "Max depth:      %d\n", stats.MaxDepth)
	fmt.Fprintln(out, "Nodes by version:")
	for _, v := range slices.Sorted(maps.Keys(stats.NodesByVersion)) {
		fmt.Fprintf(out, "  %10d: %d\n", v, stats.NodesByVersion[v])
	}
	return nil
}
