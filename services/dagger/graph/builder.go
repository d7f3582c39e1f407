// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"regexp"
	"slices"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
	"github.com/AleutianAI/tsdagger/services/dagger/component"
	"github.com/AleutianAI/tsdagger/services/dagger/extract"
)

// referencePattern matches a plain or dotted type name.
var referencePattern = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)

// referenceTarget returns the class a rendered type names, or "" when the
// type is a keyword or a composite.
func referenceTarget(typ string) string {
	if !referencePattern.MatchString(typ) {
		return ""
	}
	if _, ok := ast.LookupKeyword(typ); ok {
		return ""
	}
	return typ
}

// FromParseResults builds a static graph from extraction output.
//
// Description:
//
//	Each named class becomes a node with one edge per constructor
//	parameter. Anonymous classes ("?") cannot be referenced and are
//	skipped. A class name seen more than once, as happens when a shared
//	file is imported twice, is kept once if its parameters are identical.
//
// Inputs:
//
//	root - Label stored on the graph, such as the entry file.
//	results - Extraction output in any order.
//
// Outputs:
//
//	*Graph - A frozen graph with Origin OriginStatic.
//	error - ErrDuplicateNode if one name has two different parameter lists.
func FromParseResults(root string, results []extract.ParseResult) (*Graph, error) {
	g := NewGraph(root, OriginStatic)
	seen := make(map[string][]extract.ParamResult, len(results))

	for _, r := range results {
		if r.ClassName == extract.AnonymousClassName {
			continue
		}
		if prev, ok := seen[r.ClassName]; ok {
			if !slices.Equal(prev, r.Params) {
				return nil, fmt.Errorf("%w: class %s declared with different constructors", ErrDuplicateNode, r.ClassName)
			}
			continue
		}
		seen[r.ClassName] = r.Params

		if err := g.AddNode(r.ClassName); err != nil {
			return nil, err
		}
		for i, param := range r.Params {
			if err := g.AddEdge(Edge{
				From:     r.ClassName,
				To:       referenceTarget(param.Type),
				Type:     param.Type,
				Position: i,
			}); err != nil {
				return nil, err
			}
		}
	}

	g.Freeze()
	return g, nil
}

// Catalog is a component source that can enumerate its IDs.
// *component.Registry implements it.
type Catalog interface {
	component.Source
	IDs() []component.ID
}

// FromRegistry builds a runtime graph from registry metadata.
//
// Description:
//
//	Walks the declared dependencies reachable from roots, or from every
//	registered ID when roots is empty. Each registered component becomes a
//	node. Dependencies that are not registered still produce an edge but
//	no node. An empty dependency slot produces an edge with an empty To.
//
// Outputs:
//
//	*Graph - A frozen graph with Origin OriginRuntime.
//	error - ErrNodeNotFound when a root is not registered.
func FromRegistry(catalog Catalog, roots ...component.ID) (*Graph, error) {
	g := NewGraph("registry", OriginRuntime)
	if len(roots) == 0 {
		roots = catalog.IDs()
	}

	var visit func(id component.ID) error
	visit = func(id component.ID) error {
		if g.HasNode(string(id)) {
			return nil
		}
		deps, ok := catalog.DependenciesOf(id)
		if !ok {
			return fmt.Errorf("%w: %s is not registered", ErrNodeNotFound, id)
		}
		if err := g.AddNode(string(id)); err != nil {
			return err
		}
		for i, dep := range deps {
			if err := g.AddEdge(Edge{
				From:     string(id),
				To:       string(dep),
				Type:     string(dep),
				Position: i,
			}); err != nil {
				return err
			}
		}
		for _, dep := range deps {
			if dep == "" || !catalog.IsValidComponent(dep) {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := visit(root); err != nil {
			return nil, err
		}
	}

	g.Freeze()
	return g, nil
}
