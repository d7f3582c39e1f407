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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tsdagger/services/dagger/config"
	"github.com/AleutianAI/tsdagger/services/dagger/container"
	"github.com/AleutianAI/tsdagger/services/dagger/extract"
)

// runCLI executes the root command and returns stdout, stderr and the
// command error.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeTree writes files under a new temp dir and returns the dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

var project = map[string]string{
	"app.ts":         "import './lib/service'\nexport class App { constructor(svc: Service, name: string) {} }",
	"lib/service.ts": "import './repo'\nexport class Service { constructor(repo: Repo) {} }",
	"lib/repo.ts":    "export class Repo { constructor() {} }",
}

func TestExtract_SingleFile(t *testing.T) {
	dir := writeTree(t, project)

	stdout, _, err := runCLI(t, "", "extract", "--base-dir", dir, "app.ts")
	require.NoError(t, err)

	var results []extract.ParseResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 3)
	assert.Equal(t, "Repo", results[0].ClassName)
	assert.Equal(t, "Service", results[1].ClassName)
	assert.Equal(t, "App", results[2].ClassName)
	assert.Equal(t, []extract.ParamResult{{Name: "svc", Type: "Service"}, {Name: "name", Type: "string"}}, results[2].Params)
}

func TestExtract_Glob(t *testing.T) {
	dir := writeTree(t, project)

	stdout, _, err := runCLI(t, "", "extract", "--base-dir", dir, "lib/**/*.ts")
	require.NoError(t, err)

	var files []fileResults
	require.NoError(t, json.Unmarshal([]byte(stdout), &files))
	require.Len(t, files, 2)

	byFile := make(map[string]int)
	for _, f := range files {
		byFile[filepath.Base(f.File)] = len(f.Results)
	}
	assert.Equal(t, map[string]int{"service.ts": 2, "repo.ts": 1}, byFile)
}

func TestExtract_Stdin(t *testing.T) {
	dir := writeTree(t, project)

	stdout, _, err := runCLI(t, "import './lib/repo'\nclass Local { constructor(r: Repo) {} }",
		"extract", "--base-dir", dir)
	require.NoError(t, err)

	var results []extract.ParseResult
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "Local", results[1].ClassName)
}

func TestExtract_Errors(t *testing.T) {
	dir := writeTree(t, map[string]string{"bad.ts": "class Bad { constructor(x = 1) {} }"})

	_, _, err := runCLI(t, "", "extract", "--base-dir", dir, "bad.ts")
	assert.ErrorIs(t, err, extract.ErrUnsupportedParameterShape)

	_, _, err = runCLI(t, "", "extract", "--base-dir", dir, "missing.ts")
	assert.ErrorIs(t, err, extract.ErrFileNotFound)

	_, _, err = runCLI(t, "", "extract", "--base-dir", dir, "nothing/**/*.ts")
	assert.ErrorContains(t, err, "no files match")

	_, _, err = runCLI(t, "", "extract", "--base-dir", dir, "--import-policy", "sometimes", "bad.ts")
	assert.Error(t, err)
}

func TestInvalidEnvironment(t *testing.T) {
	t.Setenv("DAGGER_IMPORT_POLICY", "sometimes")

	_, _, err := runCLI(t, "class A {}", "extract")
	assert.Error(t, err)
}

func TestGraph_Order(t *testing.T) {
	dir := writeTree(t, project)

	stdout, _, err := runCLI(t, "", "graph", "--base-dir", dir, "app.ts")
	require.NoError(t, err)

	repo := strings.Index(stdout, "Repo")
	service := strings.Index(stdout, "Service")
	app := strings.Index(stdout, "App")
	require.True(t, repo >= 0 && service >= 0 && app >= 0, stdout)
	assert.Less(t, repo, service)
	assert.Less(t, service, app)
}

func TestGraph_Cycle(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"loop.ts": "class A { constructor(b: B) {} }\nclass B { constructor(a: A) {} }",
	})

	_, _, err := runCLI(t, "", "graph", "--base-dir", dir, "loop.ts")
	assert.ErrorContains(t, err, "A -> B -> A")

	stdout, _, err := runCLI(t, "", "graph", "--base-dir", dir, "--json", "loop.ts")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"cycle"`)
}

func TestGraph_SnapshotAndCompare(t *testing.T) {
	dir := writeTree(t, project)
	t.Setenv("DAGGER_SNAPSHOT_DIR", filepath.Join(t.TempDir(), "snapshots"))

	_, stderr, err := runCLI(t, "", "graph", "--base-dir", dir, "--compare-latest", "--snapshot", "--label", "v1", "app.ts")
	require.NoError(t, err)
	assert.Contains(t, stderr, "no previous snapshot")

	_, stderr, err = runCLI(t, "", "graph", "--base-dir", dir, "--compare-latest", "app.ts")
	require.NoError(t, err)
	assert.Contains(t, stderr, "unchanged since snapshot")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.ts"),
		[]byte("import './lib/service'\nexport class App { constructor(svc: Service, repo: Repo) {} }\nexport class Extra {}"), 0o644))

	_, stderr, err = runCLI(t, "", "graph", "--base-dir", dir, "--compare-latest", "app.ts")
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 classes changed")
	assert.Contains(t, stderr, "+ Extra")
	assert.Contains(t, stderr, "~ App: (Service, string) -> (Service, Repo)")
}

func TestComponents(t *testing.T) {
	stdout, _, err := runCLI(t, "", "components")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[len(lines)-1], "Router")
	assert.Less(t, strings.Index(stdout, "Service"), strings.Index(stdout, "Handlers"))
}

func TestExpandPaths(t *testing.T) {
	dir := writeTree(t, project)

	paths, err := expandPaths(dir, []string{"app.ts", "./app.ts", "lib/*.ts"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "app.ts"),
		filepath.Join(dir, "lib", "repo.ts"),
		filepath.Join(dir, "lib", "service.ts"),
	}, paths)

	abs := filepath.Join(dir, "lib", "repo.ts")
	paths, err = expandPaths("/elsewhere", []string{abs})
	require.NoError(t, err)
	assert.Equal(t, []string{abs}, paths)
}

func TestWatchLoop(t *testing.T) {
	dir := t.TempDir()
	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer w.Close()

	n, err := addWatchDirs(w, dir)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- watchLoop(ctx, w, ".ts", 20*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)), func() {
			runs.Add(1)
		})
	}()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.ts"), []byte("class A {}"), 0o644))

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watchLoop did not return after cancel")
	}
}

func TestServiceWiring(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	a := &app{cfg: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	var closers []func() error
	c := container.New(serviceComponents(a, false, &closers))

	router, err := container.ResolveAs[*gin.Engine](context.Background(), c, idRouter)
	require.NoError(t, err)
	require.NotNil(t, router)
	assert.Empty(t, closers)
	assert.Equal(t, 6, c.Len())

	again, err := container.ResolveAs[*gin.Engine](context.Background(), c, idRouter)
	require.NoError(t, err)
	assert.Same(t, router, again)
}
