// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph materializes dependency graphs from extraction results or
// registry metadata, checks the two views against each other, and persists
// snapshots.
package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrGraphFrozen is returned when mutating a frozen graph.
	ErrGraphFrozen = errors.New("graph: graph is frozen")

	// ErrDuplicateNode is returned when a node ID is added twice with
	// different dependencies.
	ErrDuplicateNode = errors.New("graph: duplicate node")

	// ErrNodeNotFound is returned when an edge starts at an unknown node.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrCycle is returned by TopologicalOrder when the graph has a cycle.
	ErrCycle = errors.New("graph: dependency cycle")
)

// Origin is the evidence a graph was built from.
type Origin string

const (
	// OriginStatic graphs come from parsed source.
	OriginStatic Origin = "static"

	// OriginRuntime graphs come from registry metadata.
	OriginRuntime Origin = "runtime"
)

// Edge is one "constructor requires" relation.
type Edge struct {
	// From is the class that declares the dependency.
	From string `json:"from"`

	// To is the required class. Empty when the declared type is not a plain
	// named reference (a union, an array, a missing annotation).
	To string `json:"to,omitempty"`

	// Type is the declared type text.
	Type string `json:"type"`

	// Position is the zero-based constructor parameter index.
	Position int `json:"position"`
}

// Graph is a set of class nodes and their constructor dependency edges.
//
// Description:
//
//	A Graph is built with AddNode/AddEdge and then frozen. Edges of a node
//	are kept in parameter order. An edge may point at a class that is not
//	a node (an external type); such edges are ignored for ordering.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. A frozen graph is safe for
//	concurrent reads.
type Graph struct {
	// Root names what the graph was built from, such as a project directory.
	Root string

	// Origin is the evidence source.
	Origin Origin

	// BuiltAtMilli is set by Freeze (Unix milliseconds UTC).
	BuiltAtMilli int64

	nodes  map[string][]Edge
	order  []string
	frozen bool
}

// NewGraph creates an empty, mutable graph.
func NewGraph(root string, origin Origin) *Graph {
	return &Graph{
		Root:   root,
		Origin: origin,
		nodes:  make(map[string][]Edge),
	}
}

// AddNode adds a class node. Adding an existing ID is a no-op.
func (g *Graph) AddNode(id string) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, ok := g.nodes[id]; ok {
		return nil
	}
	g.nodes[id] = nil
	g.order = append(g.order, id)
	return nil
}

// AddEdge appends a dependency edge to its From node.
func (g *Graph) AddEdge(e Edge) error {
	if g.frozen {
		return ErrGraphFrozen
	}
	if _, ok := g.nodes[e.From]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, e.From)
	}
	g.nodes[e.From] = append(g.nodes[e.From], e)
	return nil
}

// Freeze makes the graph read-only and stamps BuiltAtMilli.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	for id := range g.nodes {
		slices.SortStableFunc(g.nodes[id], func(a, b Edge) int { return a.Position - b.Position })
	}
	g.frozen = true
	if g.BuiltAtMilli == 0 {
		g.BuiltAtMilli = time.Now().UnixMilli()
	}
}

// IsFrozen reports whether Freeze was called.
func (g *Graph) IsFrozen() bool {
	return g.frozen
}

// HasNode reports whether id is a node.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns the node IDs sorted.
func (g *Graph) Nodes() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// InsertionOrder returns the node IDs in the order they were added.
func (g *Graph) InsertionOrder() []string {
	return slices.Clone(g.order)
}

// Dependencies returns the edges of id in parameter order.
func (g *Graph) Dependencies(id string) []Edge {
	return slices.Clone(g.nodes[id])
}

// Edges returns every edge sorted by From then Position.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, g.EdgeCount())
	for _, id := range g.Nodes() {
		edges = append(edges, g.nodes[id]...)
	}
	return edges
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, edges := range g.nodes {
		n += len(edges)
	}
	return n
}

// Hash returns a deterministic SHA-256 over nodes and edges.
//
// Root, Origin and BuiltAtMilli are not hashed, so a static and a runtime
// graph with the same structure hash equally.
func (g *Graph) Hash() string {
	h := sha256.New()
	for _, id := range g.Nodes() {
		h.Write([]byte("n\x00" + id + "\x00"))
		for _, e := range g.nodes[id] {
			h.Write([]byte("e\x00" + e.To + "\x00" + e.Type + "\x00" + strconv.Itoa(e.Position) + "\x00"))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// TopologicalOrder returns node IDs with every dependency before its
// dependents.
//
// Description:
//
//	Nodes are visited in sorted order and dependencies in parameter order,
//	so the result is deterministic. Edges to IDs that are not nodes are
//	skipped.
//
// Outputs:
//
//	[]string - Construction order.
//	error - ErrCycle naming the path, e.g. "A -> B -> A".
func (g *Graph) TopologicalOrder() ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(g.nodes))
	order := make([]string, 0, len(g.nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case done:
			return nil
		case visiting:
			start := slices.Index(path, id)
			cycle := append(slices.Clone(path[start:]), id)
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
		}
		state[id] = visiting
		path = append(path, id)
		for _, e := range g.nodes[id] {
			if e.To == "" || !g.HasNode(e.To) {
				continue
			}
			if err := visit(e.To); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		state[id] = done
		order = append(order, id)
		return nil
	}

	for _, id := range g.Nodes() {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
