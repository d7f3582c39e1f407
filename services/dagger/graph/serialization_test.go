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
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/AleutianAI/tsdagger/services/dagger/extract"
)

func buildTestGraph(t *testing.T) *Graph {
	t.Helper()
	g, err := FromParseResults("/test/project/app.ts", []extract.ParseResult{
		result("Repo"),
		result("Svc", param("repo", "Repo"), param("cfg", "Config | undefined")),
		result("App", param("svc", "Svc")),
	})
	if err != nil {
		t.Fatalf("FromParseResults: %v", err)
	}
	return g
}

func TestToSerializable_NilGraph(t *testing.T) {
	var g *Graph
	sg := g.ToSerializable()
	if sg.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema %q, got %q", SchemaVersion, sg.SchemaVersion)
	}
	if sg.Nodes == nil || sg.Edges == nil {
		t.Error("expected empty, non-nil slices")
	}
}

func TestToSerializable_Deterministic(t *testing.T) {
	g := buildTestGraph(t)

	first, err := json.Marshal(g.ToSerializable())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(g.ToSerializable())
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != string(again) {
			t.Fatalf("serialization %d differs", i)
		}
	}
}

func TestFromSerializable_JSONRoundTrip(t *testing.T) {
	g := buildTestGraph(t)

	data, err := json.Marshal(g.ToSerializable())
	if err != nil {
		t.Fatal(err)
	}
	var sg SerializableGraph
	if err := json.Unmarshal(data, &sg); err != nil {
		t.Fatal(err)
	}

	g2, err := FromSerializable(&sg)
	if err != nil {
		t.Fatalf("FromSerializable: %v", err)
	}
	if g2.Hash() != g.Hash() {
		t.Errorf("hash mismatch: %q vs %q", g2.Hash(), g.Hash())
	}
	if g2.Root != g.Root || g2.Origin != g.Origin || g2.BuiltAtMilli != g.BuiltAtMilli {
		t.Errorf("header mismatch: %+v vs %+v", g2.ToSerializable(), g.ToSerializable())
	}
	if !slices.Equal(g2.Dependencies("Svc"), g.Dependencies("Svc")) {
		t.Errorf("edges mismatch")
	}
}

func TestFromSerializable_Errors(t *testing.T) {
	valid := buildTestGraph(t).ToSerializable()

	tests := []struct {
		name   string
		mutate func(sg *SerializableGraph)
		target error
	}{
		{
			name:   "unsupported schema",
			mutate: func(sg *SerializableGraph) { sg.SchemaVersion = "0.1" },
		},
		{
			name: "edge from unknown node",
			mutate: func(sg *SerializableGraph) {
				sg.Edges = append(sg.Edges, Edge{From: "Ghost", To: "Repo", Type: "Repo"})
			},
			target: ErrNodeNotFound,
		},
		{
			name:   "hash mismatch",
			mutate: func(sg *SerializableGraph) { sg.GraphHash = "deadbeef" },
			target: ErrHashMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg := *valid
			sg.Nodes = slices.Clone(valid.Nodes)
			sg.Edges = slices.Clone(valid.Edges)
			tt.mutate(&sg)

			_, err := FromSerializable(&sg)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("expected %v, got %v", tt.target, err)
			}
		})
	}

	if _, err := FromSerializable(nil); err == nil {
		t.Error("expected error for nil input")
	}
}
