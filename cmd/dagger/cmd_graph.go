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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsdagger/services/dagger"
	"github.com/AleutianAI/tsdagger/services/dagger/graph"
)

var (
	classStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	depStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		policy   string
		asJSON   bool
		snapshot bool
		label    string
		compare  bool
	)

	cmd := &cobra.Command{
		Use:   "graph <file>",
		Short: "Print the construction order of a file's classes",
		Long: `Graph extracts <file> and its imports, builds the class dependency graph
and prints classes dependencies-first. A dependency cycle is reported
instead of an order.

--compare-latest diffs the graph against the latest snapshot saved for the
same file. --snapshot saves the graph to the snapshot store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

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
			results, err := ex.ExtractFile(ctx, paths[0])
			if err != nil {
				return err
			}
			g, err := graph.FromParseResults(args[0], results)
			if err != nil {
				return err
			}

			var snapshots *graph.SnapshotManager
			if snapshot || compare {
				mgr, closeDB, err := graph.OpenSnapshotManager(a.cfg.Snapshot.Dir, a.logger)
				if err != nil {
					return err
				}
				defer func() {
					if err := closeDB(); err != nil {
						a.logger.Warn("closing snapshot store failed", slog.String("error", err.Error()))
					}
				}()
				snapshots = mgr
			}

			if compare {
				prev, meta, err := snapshots.Latest(ctx, g.Root)
				switch {
				case errors.Is(err, graph.ErrSnapshotNotFound):
					fmt.Fprintln(a.stderr, warnStyle.Render("no previous snapshot for "+g.Root))
				case err != nil:
					return err
				default:
					diff, err := graph.DiffSnapshots(prev, g, meta.SnapshotID, "")
					if err != nil {
						return err
					}
					printDrift(a.stderr, diff)
				}
			}

			if snapshot {
				meta, err := snapshots.Save(ctx, g, label)
				if err != nil {
					return err
				}
				a.logger.Info("snapshot saved",
					slog.String("snapshot_id", meta.SnapshotID),
					slog.String("root", meta.Root))
			}

			order, cycleErr := g.TopologicalOrder()
			if asJSON {
				return writeJSON(a.stdout, struct {
					Graph *graph.SerializableGraph `json:"graph"`
					Order []string                 `json:"order"`
					Cycle string                   `json:"cycle,omitempty"`
				}{g.ToSerializable(), order, errString(cycleErr)}, true)
			}
			if cycleErr != nil {
				return cycleErr
			}
			printOrder(a.stdout, g, order)
			return nil
		},
	}

	cmd.Flags().StringVar(&policy, "import-policy", "", "duplicate or unique (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the serialized graph as JSON")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "Save the graph to the snapshot store")
	cmd.Flags().StringVar(&label, "label", "", "Label for the saved snapshot")
	cmd.Flags().BoolVar(&compare, "compare-latest", false, "Diff against the latest snapshot of the same file")
	return cmd
}

// printOrder writes one line per class with its constructor types.
func printOrder(w io.Writer, g *graph.Graph, order []string) {
	for i, id := range order {
		edges := g.Dependencies(id)
		types := make([]string, len(edges))
		for j, e := range edges {
			types[j] = e.Type
		}
		line := fmt.Sprintf("%3d  %s", i+1, classStyle.Render(id))
		if len(types) > 0 {
			line += depStyle.Render("(" + strings.Join(types, ", ") + ")")
		}
		fmt.Fprintln(w, line)
	}
}

// printDrift summarizes how the current graph differs from a snapshot.
func printDrift(w io.Writer, diff *graph.SnapshotDiff) {
	if !diff.HasChanges() {
		fmt.Fprintln(w, okStyle.Render("unchanged since snapshot "+diff.BaseSnapshotID))
		return
	}
	changed := len(diff.NodesAdded) + len(diff.NodesRemoved) + len(diff.NodesModified)
	fmt.Fprintln(w, warnStyle.Render(fmt.Sprintf("%d classes changed since snapshot %s", changed, diff.BaseSnapshotID)))
	for _, id := range diff.NodesAdded {
		fmt.Fprintf(w, "  + %s\n", id)
	}
	for _, id := range diff.NodesRemoved {
		fmt.Fprintf(w, "  - %s\n", id)
	}
	for _, m := range diff.NodesModified {
		fmt.Fprintf(w, "  ~ %s: (%s) -> (%s)\n", m.Class,
			strings.Join(m.Before, ", "), strings.Join(m.After, ", "))
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
