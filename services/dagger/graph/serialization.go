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
)

// SchemaVersion is the version of the serialization schema.
// Increment when the serialization format changes in a breaking way.
const SchemaVersion = "1.0"

// ErrHashMismatch is returned when a deserialized graph does not match its
// recorded hash.
var ErrHashMismatch = errors.New("graph: hash mismatch")

// SerializableGraph is the JSON-serializable representation of a Graph.
//
// Description:
//
//	Nodes are sorted and edges ordered by (From, Position), so equal graphs
//	encode to identical bytes.
//
// Thread Safety: SerializableGraph is a value type with no internal state.
type SerializableGraph struct {
	SchemaVersion string `json:"schema_version"`
	Root          string `json:"root"`
	Origin        Origin `json:"origin"`
	BuiltAtMilli  int64  `json:"built_at_milli"`

	// GraphHash is Graph.Hash at serialization time.
	GraphHash string `json:"graph_hash"`

	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// ToSerializable converts a Graph to its JSON-serializable representation.
//
// Outputs:
//
//	*SerializableGraph - Never nil. A nil graph yields an empty document.
func (g *Graph) ToSerializable() *SerializableGraph {
	if g == nil {
		return &SerializableGraph{
			SchemaVersion: SchemaVersion,
			Nodes:         []string{},
			Edges:         []Edge{},
		}
	}
	return &SerializableGraph{
		SchemaVersion: SchemaVersion,
		Root:          g.Root,
		Origin:        g.Origin,
		BuiltAtMilli:  g.BuiltAtMilli,
		GraphHash:     g.Hash(),
		Nodes:         g.Nodes(),
		Edges:         g.Edges(),
	}
}

// FromSerializable reconstructs a frozen Graph.
//
// Description:
//
//	Rebuilds the graph through AddNode and AddEdge, then verifies the
//	recorded hash when one is present.
//
// Outputs:
//
//	*Graph - The reconstructed, frozen graph.
//	error - Non-nil for a nil input, an unsupported schema version, an edge
//	        from an unknown node, or ErrHashMismatch.
func FromSerializable(sg *SerializableGraph) (*Graph, error) {
	if sg == nil {
		return nil, fmt.Errorf("serializable graph must not be nil")
	}
	if sg.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %q (expected %q)", sg.SchemaVersion, SchemaVersion)
	}

	g := NewGraph(sg.Root, sg.Origin)
	g.BuiltAtMilli = sg.BuiltAtMilli

	for _, id := range sg.Nodes {
		if err := g.AddNode(id); err != nil {
			return nil, fmt.Errorf("adding node %q: %w", id, err)
		}
	}
	for i, e := range sg.Edges {
		if err := g.AddEdge(e); err != nil {
			return nil, fmt.Errorf("adding edge %d: %w", i, err)
		}
	}
	g.Freeze()

	if sg.GraphHash != "" {
		if got := g.Hash(); got != sg.GraphHash {
			return nil, fmt.Errorf("%w: recorded %s, rebuilt %s", ErrHashMismatch, sg.GraphHash, got)
		}
	}
	return g, nil
}
