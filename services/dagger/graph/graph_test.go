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
	"slices"
	"strings"
	"testing"

	"github.com/AleutianAI/tsdagger/services/dagger/component"
	"github.com/AleutianAI/tsdagger/services/dagger/extract"
)

func result(name string, params ...extract.ParamResult) extract.ParseResult {
	if params == nil {
		params = []extract.ParamResult{}
	}
	return extract.ParseResult{ClassName: name, Params: params}
}

func param(name, typ string) extract.ParamResult {
	return extract.ParamResult{Name: name, Type: typ}
}

func nop(...any) (any, error) { return struct{}{}, nil }

func mustRegister(t *testing.T, r *component.Registry, id component.ID, deps ...component.ID) {
	t.Helper()
	if err := r.Register(component.Descriptor{ID: id, Dependencies: deps, Construct: nop}); err != nil {
		t.Fatalf("Register(%s): %v", id, err)
	}
}

func TestFromParseResults(t *testing.T) {
	g, err := FromParseResults("app.ts", []extract.ParseResult{
		result("FooService"),
		result("BarService", param("foo", "FooService"), param("opts", "{TypeLiteral}"), param("n", "number")),
		result("?", param("x", "X")),
	})
	if err != nil {
		t.Fatalf("FromParseResults: %v", err)
	}

	if !g.IsFrozen() {
		t.Error("expected frozen graph")
	}
	if g.Origin != OriginStatic {
		t.Errorf("expected static origin, got %q", g.Origin)
	}
	if got := g.Nodes(); !slices.Equal(got, []string{"BarService", "FooService"}) {
		t.Errorf("unexpected nodes %v", got)
	}

	want := []Edge{
		{From: "BarService", To: "FooService", Type: "FooService", Position: 0},
		{From: "BarService", To: "", Type: "{TypeLiteral}", Position: 1},
		{From: "BarService", To: "", Type: "number", Position: 2},
	}
	if got := g.Dependencies("BarService"); !slices.Equal(got, want) {
		t.Errorf("unexpected edges:\n got %+v\nwant %+v", got, want)
	}
}

func TestFromParseResults_Duplicates(t *testing.T) {
	shared := result("Shared", param("a", "A"))

	g, err := FromParseResults("top.ts", []extract.ParseResult{shared, result("Left"), shared, result("Right")})
	if err != nil {
		t.Fatalf("identical duplicates should merge: %v", err)
	}
	if g.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", g.NodeCount())
	}

	_, err = FromParseResults("top.ts", []extract.ParseResult{shared, result("Shared", param("b", "B"))})
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("expected ErrDuplicateNode, got %v", err)
	}
}

func TestReferenceTarget(t *testing.T) {
	tests := map[string]string{
		"Foo":           "Foo",
		"ns.Foo":        "ns.Foo",
		"string":        "",
		"undefined":     "",
		"Foo[]":         "",
		"A | B":         "",
		"{TypeLiteral}": "",
		"":              "",
	}
	for in, want := range tests {
		if got := referenceTarget(in); got != want {
			t.Errorf("referenceTarget(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromRegistry(t *testing.T) {
	r := component.NewRegistry()
	mustRegister(t, r, "FooService")
	mustRegister(t, r, "BarService", "FooService", "Logger")
	mustRegister(t, r, "Unrelated")

	g, err := FromRegistry(r, "BarService")
	if err != nil {
		t.Fatalf("FromRegistry: %v", err)
	}
	if g.Origin != OriginRuntime {
		t.Errorf("expected runtime origin, got %q", g.Origin)
	}
	if got := g.Nodes(); !slices.Equal(got, []string{"BarService", "FooService"}) {
		t.Errorf("unexpected nodes %v", got)
	}
	if got := g.EdgeCount(); got != 2 {
		t.Errorf("expected 2 edges, got %d", got)
	}

	all, err := FromRegistry(r)
	if err != nil {
		t.Fatalf("FromRegistry(all): %v", err)
	}
	if all.NodeCount() != 3 {
		t.Errorf("expected 3 nodes, got %d", all.NodeCount())
	}

	if _, err := FromRegistry(r, "Missing"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g, err := FromParseResults("x.ts", []extract.ParseResult{
		result("X", param("y", "Y"), param("z", "Z")),
		result("Y", param("z", "Z"), param("log", "Logger")),
		result("Z"),
	})
	if err != nil {
		t.Fatalf("FromParseResults: %v", err)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("TopologicalOrder: %v", err)
	}
	if want := []string{"Z", "Y", "X"}; !slices.Equal(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	g := NewGraph("cycle", OriginStatic)
	for _, id := range []string{"A", "B", "C"} {
		if err := g.AddNode(id); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []Edge{
		{From: "A", To: "B", Type: "B"},
		{From: "B", To: "C", Type: "C"},
		{From: "C", To: "A", Type: "A"},
	} {
		if err := g.AddEdge(e); err != nil {
			t.Fatal(err)
		}
	}
	g.Freeze()

	_, err := g.TopologicalOrder()
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if !strings.Contains(err.Error(), "A -> B -> C -> A") {
		t.Errorf("expected cycle path in %q", err.Error())
	}
}

func TestGraph_Frozen(t *testing.T) {
	g := NewGraph("r", OriginStatic)
	g.Freeze()

	if err := g.AddNode("A"); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddNode: expected ErrGraphFrozen, got %v", err)
	}
	if err := g.AddEdge(Edge{From: "A"}); !errors.Is(err, ErrGraphFrozen) {
		t.Errorf("AddEdge: expected ErrGraphFrozen, got %v", err)
	}
}

func TestGraph_AddEdgeUnknownNode(t *testing.T) {
	g := NewGraph("r", OriginStatic)
	if err := g.AddEdge(Edge{From: "Ghost", To: "A"}); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestGraph_HashIgnoresOrigin(t *testing.T) {
	results := []extract.ParseResult{
		result("Bar", param("foo", "Foo")),
		result("Foo"),
	}
	static, err := FromParseResults("app.ts", results)
	if err != nil {
		t.Fatal(err)
	}

	r := component.NewRegistry()
	mustRegister(t, r, "Foo")
	mustRegister(t, r, "Bar", "Foo")
	runtime, err := FromRegistry(r)
	if err != nil {
		t.Fatal(err)
	}

	if static.Hash() != runtime.Hash() {
		t.Errorf("expected equal hashes for equal structure")
	}
}

func TestCompare(t *testing.T) {
	static, err := FromParseResults("app.ts", []extract.ParseResult{
		result("Foo"),
		result("Bar", param("foo", "Foo")),
		result("Baz", param("a", "A"), param("b", "B")),
		result("StaticOnly", param("x", "X")),
	})
	if err != nil {
		t.Fatal(err)
	}

	r := component.NewRegistry()
	mustRegister(t, r, "Foo")
	mustRegister(t, r, "Bar", "Foo")
	mustRegister(t, r, "Baz", "B", "A")
	runtime, err := FromRegistry(r)
	if err != nil {
		t.Fatal(err)
	}

	err = Compare(static, runtime)
	if !errors.Is(err, ErrInconsistent) {
		t.Fatalf("expected ErrInconsistent, got %v", err)
	}
	var cerr *ConsistencyError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConsistencyError, got %T", err)
	}
	if len(cerr.Mismatches) != 1 || cerr.Mismatches[0].Class != "Baz" {
		t.Fatalf("unexpected mismatches %+v", cerr.Mismatches)
	}
	if !strings.Contains(err.Error(), "1 inconsistent classes") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestCompare_Consistent(t *testing.T) {
	static, err := FromParseResults("app.ts", []extract.ParseResult{
		result("Foo"),
		result("Bar", param("foo", "Foo")),
	})
	if err != nil {
		t.Fatal(err)
	}
	r := component.NewRegistry()
	mustRegister(t, r, "Foo")
	mustRegister(t, r, "Bar", "Foo")
	runtime, err := FromRegistry(r)
	if err != nil {
		t.Fatal(err)
	}

	if err := Compare(static, runtime); err != nil {
		t.Errorf("expected consistent graphs, got %v", err)
	}
}
