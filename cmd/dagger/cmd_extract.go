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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsdagger/services/dagger"
	"github.com/AleutianAI/tsdagger/services/dagger/extract"
)

// fileResults pairs one input file with its records when several files
// are extracted at once.
type fileResults struct {
	File    string                `json:"file"`
	Results []extract.ParseResult `json:"results"`
}

func newExtractCmd(a *app) *cobra.Command {
	var (
		policy string
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "extract [file or glob ...]",
		Short: "Print constructor dependencies as JSON",
		Long: `Extract prints one {className, params} record per class, imported
classes first. Arguments are files or doublestar globs ('src/**/*.ts')
relative to --base-dir. With no arguments, source is read from stdin.

A single file prints a JSON array of records. Several files print an array
of {file, results} objects in argument order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := dagger.NewService(a.cfg, dagger.WithServiceLogger(a.logger))
			if err != nil {
				return err
			}
			ex, err := svc.Extractor(policy)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var out any
			if len(args) == 0 {
				text, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				if out, err = ex.Extract(ctx, string(text)); err != nil {
					return err
				}
			} else {
				paths, err := expandPaths(a.cfg.Extract.BaseDir, args)
				if err != nil {
					return err
				}
				results, err := ex.ExtractFiles(ctx, paths)
				if err != nil {
					return err
				}
				if len(paths) == 1 {
					out = results[0]
				} else {
					files := make([]fileResults, len(paths))
					for i, p := range paths {
						files[i] = fileResults{File: p, Results: results[i]}
					}
					out = files
				}
			}

			return writeJSON(a.stdout, out, pretty || isTerminal(a.stdout))
		},
	}

	cmd.Flags().StringVar(&policy, "import-policy", "", "duplicate or unique (default from config)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent JSON output")
	return cmd
}

// expandPaths resolves arguments against baseDir and expands globs.
// A pattern without glob syntax is passed through so a missing file
// surfaces as a not-found extraction error.
func expandPaths(baseDir string, args []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, arg := range args {
		pattern := arg
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}

		matches := []string{pattern}
		if hasGlobMeta(arg) {
			m, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("expanding %q: %w", arg, err)
			}
			if len(m) == 0 {
				return nil, fmt.Errorf("no files match %q", arg)
			}
			matches = m
		}

		for _, p := range matches {
			p = filepath.Clean(p)
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths, nil
}

func hasGlobMeta(s string) bool {
	for _, r := range s {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
