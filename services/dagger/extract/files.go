// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSource is the file collaborator used to follow imports.
//
// Implementations must be safe for concurrent use when an Extractor is
// shared across goroutines.
type FileSource interface {
	// Exists reports whether path names a readable regular file.
	Exists(path string) bool

	// ReadText returns the full contents of path.
	ReadText(path string) (string, error)
}

// OSFileSource reads from the local filesystem.
type OSFileSource struct{}

// Exists reports whether path is a regular file.
func (OSFileSource) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ReadText reads path from disk.
func (OSFileSource) ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MapFileSource is an in-memory FileSource keyed by cleaned path.
//
// Thread Safety:
//
//	Safe for concurrent reads. The contents are fixed at construction.
type MapFileSource struct {
	files map[string]string
}

// NewMapFileSource creates a MapFileSource from path -> contents.
// Paths are cleaned, so "./a.ts" and "a.ts" name the same file.
func NewMapFileSource(files map[string]string) *MapFileSource {
	m := &MapFileSource{files: make(map[string]string, len(files))}
	for path, text := range files {
		m.files[filepath.Clean(path)] = text
	}
	return m
}

// Exists reports whether path was provided.
func (m *MapFileSource) Exists(path string) bool {
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

// ReadText returns the contents of path.
func (m *MapFileSource) ReadText(path string) (string, error) {
	text, ok := m.files[filepath.Clean(path)]
	if !ok {
		return "", fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
	}
	return text, nil
}

// ConfinedFileSource restricts another FileSource to paths under a base
// directory. Paths outside the base do not exist.
type ConfinedFileSource struct {
	base string
	next FileSource
}

// NewConfinedFileSource wraps next so that only paths under base are
// visible. Relative paths are resolved against the working directory.
func NewConfinedFileSource(base string, next FileSource) *ConfinedFileSource {
	if abs, err := filepath.Abs(base); err == nil {
		base = abs
	}
	return &ConfinedFileSource{base: filepath.Clean(base), next: next}
}

// Exists reports false for any path outside the base.
func (c *ConfinedFileSource) Exists(path string) bool {
	return c.contains(path) && c.next.Exists(path)
}

// ReadText refuses paths outside the base with an fs.ErrNotExist error.
func (c *ConfinedFileSource) ReadText(path string) (string, error) {
	if !c.contains(path) {
		return "", fmt.Errorf("read %s: outside %s: %w", path, c.base, fs.ErrNotExist)
	}
	return c.next.ReadText(path)
}

func (c *ConfinedFileSource) contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(c.base, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
