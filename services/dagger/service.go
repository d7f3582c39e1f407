// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dagger exposes static dependency extraction over HTTP.
//
// Endpoints (under the group passed to RegisterRoutes, typically /v1):
//
//	POST   /dagger/extract        - Extract dependency records
//	POST   /dagger/graph          - Build the static dependency graph
//	GET    /dagger/snapshots      - List saved graph snapshots
//	GET    /dagger/snapshots/:id  - Load a snapshot
//	DELETE /dagger/snapshots/:id  - Delete a snapshot
//	GET    /dagger/health         - Health check
package dagger

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
	"github.com/AleutianAI/tsdagger/services/dagger/config"
	"github.com/AleutianAI/tsdagger/services/dagger/extract"
	"github.com/AleutianAI/tsdagger/services/dagger/graph"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSnapshotManager enables snapshot persistence.
func WithSnapshotManager(m *graph.SnapshotManager) ServiceOption {
	return func(s *Service) {
		s.snapshots = m
	}
}

// WithFileSource replaces the OS file source used to follow imports.
func WithFileSource(files extract.FileSource) ServiceOption {
	return func(s *Service) {
		s.files = files
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service holds the extractor and optional snapshot store behind the HTTP
// handlers.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	cfg       *config.Config
	files     extract.FileSource
	parser    extract.SyntaxSource
	snapshots *graph.SnapshotManager
	logger    *slog.Logger

	// extractors are prebuilt per import policy.
	extractors map[extract.ImportPolicy]*extract.Extractor
}

// NewService builds a Service from configuration.
//
// Description:
//
//	Creates a tree-sitter parser bounded by extract.max_file_size, wraps it
//	in an LRU parse cache when extract.parse_cache_size is positive, and
//	builds one extractor per import policy so requests can choose.
//
// Outputs:
//
//	*Service - The configured service.
//	error - Non-nil if the configuration is unusable.
func NewService(cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	s := &Service{
		cfg:    cfg,
		files:  extract.OSFileSource{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.files = extract.NewConfinedFileSource(cfg.Extract.BaseDir, s.files)

	var parser extract.SyntaxSource = ast.NewParser(ast.WithMaxFileSize(cfg.Extract.MaxFileSize))
	if cfg.Extract.ParseCacheSize > 0 {
		cached, err := extract.NewCachedSyntaxSource(parser, cfg.Extract.ParseCacheSize)
		if err != nil {
			return nil, err
		}
		parser = cached
	}
	s.parser = parser

	s.extractors = make(map[extract.ImportPolicy]*extract.Extractor, 2)
	for _, policy := range []extract.ImportPolicy{extract.ImportDuplicate, extract.ImportUnique} {
		s.extractors[policy] = extract.New(
			extract.WithSyntaxSource(parser),
			extract.WithFileSource(s.files),
			extract.WithSourceSuffix(cfg.Extract.SourceSuffix),
			extract.WithBaseDir(cfg.Extract.BaseDir),
			extract.WithImportPolicy(policy),
			extract.WithWorkers(cfg.Extract.Workers),
			extract.WithLogger(s.logger),
		)
	}
	return s, nil
}

// Extractor returns the extractor for policy. An empty policy selects the
// configured default.
func (s *Service) Extractor(policy string) (*extract.Extractor, error) {
	if policy == "" {
		policy = s.cfg.Extract.ImportPolicy
	}
	p, err := extract.ParseImportPolicy(policy)
	if err != nil {
		return nil, err
	}
	return s.extractors[p], nil
}

// Snapshots returns the snapshot manager, or nil when persistence is off.
func (s *Service) Snapshots() *graph.SnapshotManager {
	return s.snapshots
}

// resolvePath maps a request path onto the base directory and rejects
// paths that escape it.
func (s *Service) resolvePath(path string) (string, error) {
	base := filepath.Clean(s.cfg.Extract.BaseDir)
	full := filepath.Join(base, path)
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errPathOutsideBase, path)
	}
	return full, nil
}
