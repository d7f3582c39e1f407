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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/tsdagger/services/dagger/graph"
)

func newComponentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "Print the HTTP service's component wiring in construction order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var closers []func() error
			reg := serviceComponents(a, false, &closers)

			g, err := graph.FromRegistry(reg, idRouter)
			if err != nil {
				return err
			}
			order, err := g.TopologicalOrder()
			if err != nil {
				return err
			}
			printOrder(a.stdout, g, order)
			fmt.Fprintf(a.stderr, "%d components, %d dependencies\n", g.NodeCount(), g.EdgeCount())
			return nil
		},
	}
}
