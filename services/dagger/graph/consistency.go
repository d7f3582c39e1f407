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
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// ErrInconsistent marks a class whose static and runtime dependencies differ.
var ErrInconsistent = errors.New("graph: static and runtime dependencies differ")

// Mismatch describes one class whose two views disagree.
type Mismatch struct {
	Class   string
	Static  []string
	Runtime []string
}

// ConsistencyError aggregates every Mismatch found by Compare.
//
// errors.Is(err, ErrInconsistent) holds for any ConsistencyError.
type ConsistencyError struct {
	Mismatches []Mismatch
	merr       *multierror.Error
}

// Error lists every mismatch.
func (e *ConsistencyError) Error() string {
	return e.merr.Error()
}

// Unwrap returns the per-class errors.
func (e *ConsistencyError) Unwrap() []error {
	return e.merr.WrappedErrors()
}

// Compare checks that every class present in both graphs declares the same
// dependencies in the same order.
//
// Description:
//
//	A dependency is compared by its target class when it has one, else by
//	its declared type text. Classes present in only one graph are not
//	compared: the static view sees every parsed class while the runtime
//	view sees only registered components.
//
// Outputs:
//
//	error - nil when consistent, else a *ConsistencyError listing every
//	        mismatching class in sorted order.
func Compare(static, runtime *Graph) error {
	var (
		merr       *multierror.Error
		mismatches []Mismatch
	)

	for _, id := range static.Nodes() {
		if !runtime.HasNode(id) {
			continue
		}
		s := dependencyNames(static, id)
		r := dependencyNames(runtime, id)
		if slices.Equal(s, r) {
			continue
		}
		mismatches = append(mismatches, Mismatch{Class: id, Static: s, Runtime: r})
		merr = multierror.Append(merr, fmt.Errorf("%w: %s: static [%s] runtime [%s]",
			ErrInconsistent, id, strings.Join(s, ", "), strings.Join(r, ", ")))
	}

	if merr == nil {
		return nil
	}
	merr.ErrorFormat = func(errs []error) string {
		lines := make([]string, len(errs))
		for i, err := range errs {
			lines[i] = "  - " + err.Error()
		}
		return fmt.Sprintf("graph: %d inconsistent classes:\n%s", len(errs), strings.Join(lines, "\n"))
	}
	return &ConsistencyError{Mismatches: mismatches, merr: merr}
}

func dependencyNames(g *Graph, id string) []string {
	edges := g.Dependencies(id)
	names := make([]string, len(edges))
	for i, e := range edges {
		names[i] = e.To
		if names[i] == "" {
			names[i] = e.Type
		}
	}
	return names
}
