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
	"slices"
	"testing"

	"github.com/AleutianAI/tsdagger/services/dagger/extract"
)

func mustBuild(t *testing.T, results ...extract.ParseResult) *Graph {
	t.Helper()
	g, err := FromParseResults("app.ts", results)
	if err != nil {
		t.Fatalf("FromParseResults: %v", err)
	}
	return g
}

func TestDiffSnapshots(t *testing.T) {
	base := mustBuild(t,
		result("Repo"),
		result("Cache"),
		result("Service", param("repo", "Repo")),
		result("App", param("svc", "Service"), param("name", "string")),
	)
	target := mustBuild(t,
		result("Repo"),
		result("Service", param("repo", "Repo")),
		result("Clock"),
		result("App", param("svc", "Service"), param("clock", "Clock")),
	)

	diff, err := DiffSnapshots(base, target, "snap-1", "")
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if diff.BaseSnapshotID != "snap-1" || diff.TargetSnapshotID != "" {
		t.Errorf("ids = %q, %q", diff.BaseSnapshotID, diff.TargetSnapshotID)
	}
	if !slices.Equal(diff.NodesAdded, []string{"Clock"}) {
		t.Errorf("NodesAdded = %v, want [Clock]", diff.NodesAdded)
	}
	if !slices.Equal(diff.NodesRemoved, []string{"Cache"}) {
		t.Errorf("NodesRemoved = %v, want [Cache]", diff.NodesRemoved)
	}
	if len(diff.NodesModified) != 1 {
		t.Fatalf("NodesModified = %+v, want one entry", diff.NodesModified)
	}
	m := diff.NodesModified[0]
	if m.Class != "App" ||
		!slices.Equal(m.Before, []string{"Service", "string"}) ||
		!slices.Equal(m.After, []string{"Service", "Clock"}) {
		t.Errorf("modified = %+v", m)
	}
	if !diff.HasChanges() {
		t.Error("HasChanges = false, want true")
	}
}

func TestDiffSnapshots_AddedClassOnly(t *testing.T) {
	base := mustBuild(t, result("Repo"))
	target := mustBuild(t, result("Repo"), result("Extra", param("repo", "Repo")))

	diff, err := DiffSnapshots(base, target, "snap-1", "snap-2")
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if !slices.Equal(diff.NodesAdded, []string{"Extra"}) || len(diff.NodesModified) != 0 || len(diff.NodesRemoved) != 0 {
		t.Errorf("diff = %+v", diff)
	}
}

func TestDiffSnapshots_Unchanged(t *testing.T) {
	g := mustBuild(t, result("Repo"), result("Service", param("repo", "Repo")))

	diff, err := DiffSnapshots(g, g, "snap-1", "")
	if err != nil {
		t.Fatalf("DiffSnapshots: %v", err)
	}
	if diff.HasChanges() {
		t.Errorf("diff = %+v, want no changes", diff)
	}
}

func TestDiffSnapshots_NilGraph(t *testing.T) {
	g := mustBuild(t, result("Repo"))
	if _, err := DiffSnapshots(nil, g, "", ""); err == nil {
		t.Error("expected error for nil base")
	}
	if _, err := DiffSnapshots(g, nil, "", ""); err == nil {
		t.Error("expected error for nil target")
	}
}
