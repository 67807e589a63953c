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
	"os"

	"github.com/0xsoniclabs/jellyfish/common"
	"github.com/0xsoniclabs/jellyfish/config"
	"github.com/urfave/cli/v2"
)

var InitConfig = cli.Command{
	Action:    initConfig,
	Name:      "init-config",
	Usage:     "writes a configuration file with default values",
	ArgsUsage: "<config-file>",
}

func initConfig(context *cli.Context) error {
	if context.Args().Len() != 1 {
		return fmt.Errorf("missing config file parameter")
	}
	path := context.Args().First()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file %s already exists", path)
	}
	if err := config.WriteConfigFile(path, config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Fprintf(context.App.Writer, "Default configuration written to %s\n", path)
	return nil
}

func rootString(root *common.Hash) string {
	if root == nil {
		return "empty"
	}
	return root.String()
}
