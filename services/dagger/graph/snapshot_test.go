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
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/tsdagger/services/dagger/extract"
)

// newTestDB creates an in-memory BadgerDB for testing.
func newTestDB(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSnapshotManager(t *testing.T) *SnapshotManager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	mgr, err := NewSnapshotManager(newTestDB(t), logger)
	if err != nil {
		t.Fatalf("NewSnapshotManager: %v", err)
	}
	return mgr
}

func TestNewSnapshotManager_NilDB(t *testing.T) {
	if _, err := NewSnapshotManager(nil, slog.Default()); err == nil {
		t.Error("expected error for nil DB")
	}
}

func TestSnapshotManager_SaveAndLoad(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	g := buildTestGraph(t)

	meta, err := mgr.Save(ctx, g, "first")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := uuid.Parse(meta.SnapshotID); err != nil {
		t.Errorf("expected UUID snapshot ID, got %q", meta.SnapshotID)
	}
	if meta.NodeCount != 3 || meta.EdgeCount != 3 {
		t.Errorf("unexpected counts: %d nodes, %d edges", meta.NodeCount, meta.EdgeCount)
	}
	if meta.RootHash != RootHash(g.Root) {
		t.Errorf("unexpected root hash %q", meta.RootHash)
	}

	loaded, loadedMeta, err := mgr.Load(ctx, meta.SnapshotID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Hash() != g.Hash() {
		t.Errorf("hash mismatch after load")
	}
	if loadedMeta.Label != "first" {
		t.Errorf("expected label 'first', got %q", loadedMeta.Label)
	}
}

func TestSnapshotManager_Latest(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	g := buildTestGraph(t)

	if _, err := mgr.Save(ctx, g, "old"); err != nil {
		t.Fatal(err)
	}
	second, err := mgr.Save(ctx, g, "new")
	if err != nil {
		t.Fatal(err)
	}

	_, meta, err := mgr.Latest(ctx, g.Root)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if meta.SnapshotID != second.SnapshotID {
		t.Errorf("expected latest %s, got %s", second.SnapshotID, meta.SnapshotID)
	}

	if _, _, err := mgr.Latest(ctx, "/nowhere"); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound, got %v", err)
	}
}

func TestSnapshotManager_List(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()

	a := buildTestGraph(t)
	b, err := FromParseResults("/other", []extract.ParseResult{result("Solo")})
	if err != nil {
		t.Fatal(err)
	}

	for _, g := range []*Graph{a, b, a} {
		if _, err := mgr.Save(ctx, g, ""); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	all, err := mgr.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAtMilli > all[i-1].CreatedAtMilli {
			t.Errorf("expected newest first")
		}
	}

	filtered, err := mgr.List(ctx, a.Root, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 2 {
		t.Errorf("expected 2 snapshots for %s, got %d", a.Root, len(filtered))
	}

	limited, err := mgr.List(ctx, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}

func TestSnapshotManager_Delete(t *testing.T) {
	mgr := newTestSnapshotManager(t)
	ctx := context.Background()
	g := buildTestGraph(t)

	meta, err := mgr.Save(ctx, g, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Delete(ctx, meta.SnapshotID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, _, err := mgr.Load(ctx, meta.SnapshotID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound after delete, got %v", err)
	}
	if _, _, err := mgr.Latest(ctx, g.Root); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected latest pointer removed, got %v", err)
	}
	if err := mgr.Delete(ctx, meta.SnapshotID); !errors.Is(err, ErrSnapshotNotFound) {
		t.Errorf("expected ErrSnapshotNotFound on second delete, got %v", err)
	}
}

func TestSnapshotManager_OpenOnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	mgr, closeDB, err := OpenSnapshotManager(dir, nil)
	if err != nil {
		t.Fatalf("OpenSnapshotManager: %v", err)
	}
	meta, err := mgr.Save(ctx, buildTestGraph(t), "")
	if err != nil {
		t.Fatal(err)
	}
	if err := closeDB(); err != nil {
		t.Fatal(err)
	}

	mgr, closeDB, err = OpenSnapshotManager(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer closeDB()
	if _, _, err := mgr.Load(ctx, meta.SnapshotID); err != nil {
		t.Errorf("Load after reopen: %v", err)
	}
}
