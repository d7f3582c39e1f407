// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsdagger/services/dagger"
)

const defaultDebounce = 200 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	var (
		policy   string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Re-extract a file whenever sources under --base-dir change",
		Long: `Watch prints the records of <file> as one JSON line, then again after
every change to a source file under --base-dir. Unchanged files are served
from the parse cache. Extraction errors are logged and watching continues.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := dagger.NewService(a.cfg, dagger.WithServiceLogger(a.logger))
			if err != nil {
				return err
			}
			ex, err := svc.Extractor(policy)
			if err != nil {
				return err
			}
			paths, err := expandPaths(a.cfg.Extract.BaseDir, args)
			if err != nil {
				return err
			}
			entry := paths[0]

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("creating watcher: %w", err)
			}
			defer watcher.Close()

			dirs, err := addWatchDirs(watcher, a.cfg.Extract.BaseDir)
			if err != nil {
				return err
			}
			a.logger.Info("watching",
				slog.String("entry", entry),
				slog.Int("directories", dirs))

			run := func() {
				results, err := ex.ExtractFile(ctx, entry)
				if err != nil {
					a.logger.Error("extraction failed", slog.String("error", err.Error()))
					return
				}
				if err := writeJSON(a.stdout, results, false); err != nil {
					a.logger.Error("writing results failed", slog.String("error", err.Error()))
				}
			}

			run()
			return watchLoop(ctx, watcher, a.cfg.Extract.SourceSuffix, debounce, a.logger, run)
		},
	}

	cmd.Flags().StringVar(&policy, "import-policy", "", "duplicate or unique (default from config)")
	cmd.Flags().DurationVar(&debounce, "debounce", defaultDebounce, "Quiet period before re-extracting")
	return cmd
}

// addWatchDirs adds root and every directory below it, skipping hidden
// directories and node_modules. Returns the number of directories added.
func addWatchDirs(w *fsnotify.Watcher, root string) (int, error) {
	n := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		n++
		return nil
	})
	return n, err
}

// watchLoop calls run once per burst of source-file events, after the
// events have been quiet for debounce. It returns nil when ctx is done.
func watchLoop(ctx context.Context, w *fsnotify.Watcher, suffix string, debounce time.Duration, logger *slog.Logger, run func()) error {
	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, suffix) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("source changed", slog.String("file", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(debounce)

		case <-timer.C:
			run()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logger.Warn("watch events overflowed, re-extracting")
				run()
				continue
			}
			logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}
