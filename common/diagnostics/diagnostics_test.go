// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package diagnostics

import (
	"net/http"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func TestAddPerformanceDiagnosticsAction(t *testing.T) {
	dir := t.TempDir()
	called := false
	action := func(ctx *cli.Context) error {
		// profile file created
		require.FileExists(t, path.Join(dir, "cpu.profile"))
		require.FileExists(t, path.Join(dir, "tracer.out"))

		// server started
		var statusCode int
		var counter int
		const loops = 10
		var lastHttpGetErr error
		wait := 100 * time.Millisecond
		for statusCode != http.StatusOK && counter < loops {
			resp, err := http.Get("http://localhost:6060/debug/pprof/")
			lastHttpGetErr = err
			if resp != nil {
				statusCode = resp.StatusCode
			}
			counter++
			time.Sleep(wait)
			wait *= 2
		}

		require.NoError(t, lastHttpGetErr)
		require.Equal(t, http.StatusOK, statusCode)

		called = true
		return nil
	}

	diagnosticsFlag := cli.IntFlag{Name: "diagnostics"}
	cpuProfileFlag := cli.StringFlag{Name: "cpu-profile"}
	traceFlag := cli.StringFlag{Name: "trace"}

	app := &cli.App{
		Action: AddPerformanceDiagnosticsAction(action, func(*cli.Context) *zap.Logger { return zap.NewNop() }, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
		Flags:  []cli.Flag{&diagnosticsFlag, &cpuProfileFlag, &traceFlag},
	}

	set := []string{"cmd", "--diagnostics", "6060", "--cpu-profile", path.Join(dir, "cpu.profile"), "--trace", path.Join(dir, "tracer.out")}
	err := app.RunContext(
		nil,
		set,
	)
	require.NoError(t, err)

	require.True(t, called, "action should be called")
}

func TestAddPerformanceDiagnosticsAction_NoDiagnosticsRequested(t *testing.T) {
	called := false
	diagnosticsFlag := cli.IntFlag{Name: "diagnostics"}
	cpuProfileFlag := cli.StringFlag{Name: "cpu-profile"}
	traceFlag := cli.StringFlag{Name: "trace"}

	app := &cli.App{
		Action: AddPerformanceDiagnosticsAction(func(*cli.Context) error {
			called = true
			return nil
		}, nil, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
		Flags: []cli.Flag{&diagnosticsFlag, &cpuProfileFlag, &traceFlag},
	}
	require.NoError(t, app.Run([]string{"cmd"}))
	require.True(t, called, "action should be called")
}

func TestAddPerformanceDiagnosticsAction_InvalidProfileFileFails(t *testing.T) {
	diagnosticsFlag := cli.IntFlag{Name: "diagnostics"}
	cpuProfileFlag := cli.StringFlag{Name: "cpu-profile"}
	traceFlag := cli.StringFlag{Name: "trace"}

	app := &cli.App{
		Action: AddPerformanceDiagnosticsAction(func(*cli.Context) error {
			return nil
		}, nil, &diagnosticsFlag, &cpuProfileFlag, &traceFlag),
		Flags: []cli.Flag{&diagnosticsFlag, &cpuProfileFlag, &traceFlag},
	}
	err := app.Run([]string{"cmd", "--cpu-profile", path.Join(t.TempDir(), "missing", "cpu.profile")})
	require.Error(t, err)
}

func TestStartMetricsServer_ServesHandler(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	server := StartMetricsServer(zap.NewNop(), "localhost:6061", handler)
	defer server.Close()

	var statusCode int
	wait := 10 * time.Millisecond
	for i := 0; i < 10 && statusCode != http.StatusTeapot; i++ {
		time.Sleep(wait)
		wait *= 2
		resp, err := http.Get("http://localhost:6061/metrics")
		if err != nil {
			continue
		}
		statusCode = resp.StatusCode
		resp.Body.Close()
	}
	require.Equal(t, http.StatusTeapot, statusCode)
}
