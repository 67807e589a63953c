// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package diagnostics adds performance diagnostics to command line tools.
package diagnostics

import (
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// AddPerformanceDiagnosticsAction wraps an action function to add performance diagnostics
// such as CPU profiling, tracing, and a diagnostic server.
// It takes the action function and flags for diagnostics, CPU profiling, and tracing.
// The diagnosticsFlag must be an integer, and it starts diagnostic server at the port parsed from this flag,
// cpuProfileFlag is a string that starts CPU profiling giving the file name from this flag,
// and traceFlag is a string that starts tracing giving the file name from this flag.
// The logger returned by getLogger at invocation time reports the diagnostic server.
func AddPerformanceDiagnosticsAction(action cli.ActionFunc, getLogger func(*cli.Context) *zap.Logger, diagnosticsFlag *cli.IntFlag, cpuProfileFlag, traceFlag *cli.StringFlag) cli.ActionFunc {
	return func(context *cli.Context) error {
		logger := zap.NewNop()
		if getLogger != nil {
			logger = getLogger(context)
		}

		// Start the diagnostic service if requested.
		diagnosticPort := context.Int(diagnosticsFlag.Names()[0])
		startDiagnosticServer(logger, diagnosticPort)

		// Start CPU profiling.
		cpuProfileFileName := context.String(cpuProfileFlag.Names()[0])
		if strings.TrimSpace(cpuProfileFileName) != "" {
			if err := startCpuProfiler(cpuProfileFileName); err != nil {
				return err
			}
			defer stopCpuProfiler()
		}

		// Start recording a trace.
		traceFileName := context.String(traceFlag.Names()[0])
		if strings.TrimSpace(traceFileName) != "" {
			if err := startTracer(traceFileName); err != nil {
				return err
			}
			defer stopTracer()
		}

		return action(context)
	}
}

func startDiagnosticServer(logger *zap.Logger, port int) {
	if port <= 0 || port >= (1<<16) {
		return
	}
	logger.Info("starting diagnostic server",
		zap.String("url", fmt.Sprintf("http://localhost:%d/debug/pprof/", port)),
		zap.String("usage", "https://pkg.go.dev/net/http/pprof#hdr-Usage_examples"),
	)
	logger.Warn("block and mutex sampling rate is set to 100% for diagnostics, which may impact overall performance")
	go func() {
		addr := fmt.Sprintf("localhost:%d", port)
		if err := http.ListenAndServe(addr, nil); err != nil {
			logger.Error("diagnostic server failed", zap.Error(err))
		}
	}()
	runtime.SetBlockProfileRate(1)
	runtime.SetMutexProfileFraction(1)
}

// StartMetricsServer serves the given metrics handler under /metrics at the
// given address. The returned server is to be closed by the caller.
func StartMetricsServer(logger *zap.Logger, addr string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux}
	logger.Info("starting metrics server", zap.String("addr", addr))
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return server
}

func startCpuProfiler(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %s", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		return fmt.Errorf("could not start CPU profile: %s", err)
	}
	return nil
}

func stopCpuProfiler() {
	pprof.StopCPUProfile()
}

func startTracer(filename string) error {
	traceFile, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create trace file: %v", err)
	}
	if err := trace.Start(traceFile); err != nil {
		return fmt.Errorf("failed to start trace: %v", err)
	}
	return nil
}

func stopTracer() {
	trace.Stop()
}
