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
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/0xsoniclabs/jellyfish/common/diagnostics"
	"github.com/0xsoniclabs/jellyfish/common/logger"
	"github.com/0xsoniclabs/jellyfish/config"
	"github.com/0xsoniclabs/jellyfish/metrics"
	"github.com/0xsoniclabs/jellyfish/state"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file of the state database",
	}
	backendFlag = cli.StringFlag{
		Name:  "backend",
		Usage: "storage backend, overrides the configuration (memory, leveldb, pebble, badger, sqlite)",
	}
	dirFlag = cli.StringFlag{
		Name:  "dir",
		Usage: "database directory, overrides the configuration",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log-level",
		Usage: "minimum log level, overrides the configuration (debug, info, warn, error)",
	}
	versionFlag = cli.StringFlag{
		Name:  "version",
		Usage: "the version to operate on, a number or 'latest'",
		Value: "latest",
	}
	hexFlag = cli.BoolFlag{
		Name:  "hex",
		Usage: "keys and values are given and shown hex encoded",
	}
)

// databaseFlags are accepted by every command operating on a database.
var databaseFlags = []cli.Flag{
	&configFlag,
	&backendFlag,
	&dirFlag,
	&logLevelFlag,
}

// withDiagnostics wraps the given action with the performance diagnostics
// requested by the global flags.
func withDiagnostics(action cli.ActionFunc) cli.ActionFunc {
	return diagnostics.AddPerformanceDiagnosticsAction(action, func(ctx *cli.Context) *zap.Logger {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return zap.NewNop()
		}
		log, err := logger.New(cfg.Logging)
		if err != nil {
			return zap.NewNop()
		}
		return log
	}, &diagnosticsFlag, &cpuProfileFlag, &traceFlag)
}

// loadConfig assembles the configuration from the configuration file and the
// overriding command line flags.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if backend := ctx.String(backendFlag.Name); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dir := ctx.String(dirFlag.Name); dir != "" {
		cfg.Storage.Directory = dir
	}
	if level := ctx.String(logLevelFlag.Name); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, cfg.Validate()
}

// openDb opens the state database selected by the command line and returns a
// function closing it together with the logger and metrics server.
func openDb(ctx *cli.Context, opts ...state.Option) (*state.Db, *zap.Logger, func() error, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, nil, err
	}

	options := []state.Option{state.WithLogger(logger.Named(log, "state"))}
	var stopMetrics func() error
	if cfg.Metrics.Enabled {
		m := metrics.NewPrometheusMetrics(cfg.Metrics.Namespace)
		server := diagnostics.StartMetricsServer(log, cfg.Metrics.ListenAddr, m.Handler())
		options = append(options, state.WithMetrics(m))
		stopMetrics = server.Close
	}

	db, err := state.Open(cfg, append(options, opts...)...)
	if err != nil {
		if stopMetrics != nil {
			err = errors.Join(err, stopMetrics())
		}
		return nil, nil, nil, err
	}
	closer := func() error {
		err := db.Close()
		if stopMetrics != nil {
			err = errors.Join(err, stopMetrics())
		}
		return errors.Join(err, log.Sync())
	}
	return db, log, closer, nil
}

// parseVersion parses the version flag.
func parseVersion(ctx *cli.Context) (uint64, error) {
	value := ctx.String(versionFlag.Name)
	if value == "" || value == "latest" {
		return state.Latest, nil
	}
	version, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", value, err)
	}
	return version, nil
}

// parseBytes decodes a key or value given on the command line.
func parseBytes(ctx *cli.Context, value string) ([]byte, error) {
	if !ctx.Bool(hexFlag.Name) {
		return []byte(value), nil
	}
	res, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid hex value %q: %w", value, err)
	}
	return res, nil
}

// formatBytes encodes a key or value for printing.
func formatBytes(ctx *cli.Context, value []byte) string {
	if ctx.Bool(hexFlag.Name) {
		return hex.EncodeToString(value)
	}
	return string(value)
}
