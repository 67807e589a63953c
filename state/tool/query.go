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
	"encoding/json"
	"fmt"

	"github.com/0xsoniclabs/jellyfish/state"
	"github.com/urfave/cli/v2"
)

var Get = cli.Command{
	Action:    withDiagnostics(get),
	Name:      "get",
	Usage:     "prints the value of a key",
	ArgsUsage: "<key>",
	Flags:     append([]cli.Flag{&versionFlag, &hexFlag}, databaseFlags...),
}

var Prove = cli.Command{
	Action:    withDiagnostics(prove),
	Name:      "prove",
	Usage:     "creates and verifies an ICS-23 proof for a key and prints it as JSON",
	ArgsUsage: "<key>",
	Flags:     append([]cli.Flag{&versionFlag, &hexFlag}, databaseFlags...),
}

func get(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one key")
	}
	key, err := parseBytes(context, context.Args().First())
	if err != nil {
		return err
	}
	version, err := parseVersion(context)
	if err != nil {
		return err
	}
	db, _, closeDb, err := openDb(context)
	if err != nil {
		return err
	}
	defer closeDb()

	value, found, err := db.Get(key, version)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("key %q not found", context.Args().First())
	}
	fmt.Fprintln(context.App.Writer, formatBytes(context, value))
	return nil
}

func prove(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one key")
	}
	key, err := parseBytes(context, context.Args().First())
	if err != nil {
		return err
	}
	version, err := parseVersion(context)
	if err != nil {
		return err
	}
	db, _, closeDb, err := openDb(context)
	if err != nil {
		return err
	}
	defer closeDb()

	proof, err := db.Prove(key, version)
	if err != nil {
		return err
	}
	root, err := db.RootHash(version)
	if err != nil {
		return err
	}

	var valid bool
	if exist := proof.GetExist(); exist != nil {
		valid = state.VerifyMembership(root, proof, key, exist.Value)
	} else {
		valid = state.VerifyNonMembership(root, proof, key)
	}

	data, err := json.MarshalIndent(proof, "", "  ")
	if err != nil {
		return err
	}
	out := context.App.Writer
	fmt.Fprintln(out, string(data))
	if proof.GetExist() != nil {
		fmt.Fprintln(out, "Kind:  existence")
	} else {
		fmt.Fprintln(out, "Kind:  non-existence")
	}
	fmt.Fprintf(out, "Valid: %t\n", valid)
	if !valid {
		return fmt.Errorf("created proof is invalid")
	}
	return nil
}
