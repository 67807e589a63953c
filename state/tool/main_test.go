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
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMain_RunNoArgs(t *testing.T) {
	os.Args = []string{"tool", "--help"}
	main()
}

func TestAllCommands_Run(t *testing.T) {
	for _, cmd := range commands {
		t.Run(cmd.Name, func(t *testing.T) {
			require.NoError(t, newApp().Run([]string{"tool", cmd.Name, "--help"}))
		})
	}
}

func TestAllCommands_HaveUniqueNamesAndUsage(t *testing.T) {
	require := require.New(t)
	seen := map[string]bool{}
	for _, cmd := range commands {
		require.NotEmpty(cmd.Usage, "command %s has no usage", cmd.Name)
		require.NotNil(cmd.Action, "command %s has no action", cmd.Name)
		require.False(seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
	}
}

func TestMain_UnknownFlagIsAnError(t *testing.T) {
	require.Error(t, newApp().Run([]string{"tool", "--nonexistent-flag"}))
}
