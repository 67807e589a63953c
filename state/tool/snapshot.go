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
	"bufio"
	"errors"
	"fmt"
	"os"

	"github.com/0xsoniclabs/jellyfish/common/interrupt"
	"github.com/0xsoniclabs/jellyfish/state/io"
	"github.com/urfave/cli/v2"
)

var Export = cli.Command{
	Action:    withDiagnostics(doExport),
	Name:      "export",
	Usage:     "exports a version of a state database into a snapshot file",
	ArgsUsage: "<snapshot-file>",
	Flags:     append([]cli.Flag{&versionFlag}, databaseFlags...),
}

var Import = cli.Command{
	Action:    withDiagnostics(doImport),
	Name:      "import",
	Usage:     "restores an empty state database from a snapshot file",
	ArgsUsage: "<snapshot-file>",
	Flags:     databaseFlags,
}

func doExport(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing snapshot file parameter")
	}
	version, err := parseVersion(context)
	if err != nil {
		return err
	}
	db, log, closeDb, err := openDb(context)
	if err != nil {
		return err
	}
	defer closeDb()

	file, err := os.Create(context.Args().First())
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	writer := bufio.NewWriter(file)

	ctx, stop := interrupt.CancelOnInterrupt(context.Context)
	defer stop()
	header, err := io.Export(ctx, log, db, version, writer)
	if err := errors.Join(err, writer.Flush(), file.Close()); err != nil {
		return err
	}
	fmt.Fprintf(context.App.Writer, "Exported version %d with root %s\n", header.Version, rootString(header.Root))
	return nil
}

func doImport(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing snapshot file parameter")
	}
	db, log, closeDb, err := openDb(context)
	if err != nil {
		return err
	}
	defer closeDb()

	file, err := os.Open(context.Args().First())
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	ctx, stop := interrupt.CancelOnInterrupt(context.Context)
	defer stop()
	version, root, err := io.Import(ctx, log, db, bufio.NewReader(file))
	if err != nil {
		return err
	}
	fmt.Fprintf(context.App.Writer, "Imported version %d with root %s\n", version, rootString(root))
	return nil
}
