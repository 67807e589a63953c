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
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var allVersionsFlag = cli.BoolFlag{
	Name:  "all",
	Usage: "verifies all retained versions instead of a single one",
}

var Verify = cli.Command{
	Action:    withDiagnostics(verify),
	Name:      "verify",
	Usage:     "checks the integrity of a state database",
	ArgsUsage: "",
	Flags:     append([]cli.Flag{&versionFlag, &allVersionsFlag}, databaseFlags...),
}

func verify(context *cli.Context) error {
	version, err := parseVersion(context)
	if err != nil {
		return err
	}
	db, log, closeDb, err := openDb(context)
	if err != nil {
		return err
	}
	defer closeDb()

	latest, found := db.LatestVersion()
	if !found {
		fmt.Fprintln(context.App.Writer, "The database is empty.")
		return nil
	}
	versions := []uint64{version}
	if context.Bool(allVersionsFlag.Name) {
		oldest, _ := db.OldestVersion()
		versions = versions[:0]
		for v := oldest; v <= latest; v++ {
			versions = append(versions, v)
		}
	}

	var errs []error
	for _, v := range versions {
		if err := db.Verify(v); err != nil {
			log.Error("verification failed", zap.Uint64("version", v), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		log.Info("verified version", zap.Uint64("version", v))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	fmt.Fprintf(context.App.Writer, "Verification of %d version(s) successful.\n", len(versions))
	return nil
}
