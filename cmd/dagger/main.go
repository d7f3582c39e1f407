// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command dagger extracts constructor dependencies from TypeScript sources.
//
// Usage:
//
//	dagger extract src/app.ts           Print dependency records as JSON
//	dagger extract 'src/**/*.ts'        Extract every matching file
//	dagger graph src/app.ts --snapshot  Print construction order, save a snapshot
//	dagger watch src/app.ts             Re-extract on change
//	dagger serve                        Run the HTTP service
//	dagger components                   Show the service's own wiring
//
// Configuration comes from the embedded defaults, an optional YAML file
// (--config), a .env file, DAGGER_* environment variables and flags, in
// that order.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsdagger/services/dagger/config"
)

// app carries flag values and the state built in PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	baseDir    string
	exporter   string

	cfg    *config.Config
	logger *slog.Logger

	stdout io.Writer
	stderr io.Writer

	shutdownTelemetry func(context.Context) error
}

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree writing to stdout and stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:          "dagger",
		Short:        "Static constructor-dependency extraction for TypeScript",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close(cmd.Context())
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&a.baseDir, "base-dir", "", "Directory imports and request paths resolve against")
	flags.StringVar(&a.exporter, "telemetry", "", "Trace exporter: none, stdout, otlp")

	root.AddCommand(
		newExtractCmd(a),
		newGraphCmd(a),
		newWatchCmd(a),
		newServeCmd(a),
		newComponentsCmd(a),
	)
	return root
}

// setup loads configuration, builds the logger and starts telemetry.
func (a *app) setup(ctx context.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(cfg, os.LookupEnv); err != nil {
		return err
	}

	for _, o := range []struct {
		flag  string
		field *string
	}{
		{a.logLevel, &cfg.Log.Level},
		{a.logFormat, &cfg.Log.Format},
		{a.baseDir, &cfg.Extract.BaseDir},
		{a.exporter, &cfg.Telemetry.Exporter},
	} {
		if o.flag != "" {
			*o.field = o.flag
		}
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	a.cfg = cfg

	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(a.stderr, opts)
	} else {
		handler = slog.NewTextHandler(a.stderr, opts)
	}
	a.logger = slog.New(handler)
	slog.SetDefault(a.logger)

	shutdown, err := setupTelemetry(ctx, cfg.Telemetry, a.stderr)
	if err != nil {
		return fmt.Errorf("starting telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown
	return nil
}

func (a *app) close(ctx context.Context) error {
	if a.shutdownTelemetry == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := a.shutdownTelemetry(ctx)
	a.shutdownTelemetry = nil
	return err
}
