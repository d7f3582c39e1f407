// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract recovers constructor dependencies from TypeScript source
// without executing it.
//
// An Extractor parses a file, follows its imports by appending a source
// suffix to each specifier, and emits one ParseResult per class: imported
// results first, depth-first, then the file's own classes in source order.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
)

// DefaultSourceSuffix is appended to import specifiers to locate files.
const DefaultSourceSuffix = ".ts"

// SyntaxSource turns source text into a Program. *ast.Parser implements it.
type SyntaxSource interface {
	Parse(ctx context.Context, content []byte, filePath string) (*ast.Program, error)
}

// ImportPolicy decides how results of a file imported more than once in a
// single call appear in the output.
type ImportPolicy string

const (
	// ImportDuplicate emits a file's results at every import site, so a
	// diamond-shaped import graph repeats the shared file's classes.
	ImportDuplicate ImportPolicy = "duplicate"

	// ImportUnique emits a file's results only at its first import site.
	ImportUnique ImportPolicy = "unique"
)

// ParseImportPolicy converts a configuration string into an ImportPolicy.
// The empty string selects ImportDuplicate.
func ParseImportPolicy(s string) (ImportPolicy, error) {
	switch ImportPolicy(s) {
	case "", ImportDuplicate:
		return ImportDuplicate, nil
	case ImportUnique:
		return ImportUnique, nil
	default:
		return "", fmt.Errorf("extract: unknown import policy %q", s)
	}
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSyntaxSource replaces the default tree-sitter parser.
func WithSyntaxSource(src SyntaxSource) Option {
	return func(e *Extractor) {
		if src != nil {
			e.syntax = src
		}
	}
}

// WithFileSource replaces the default OS file source.
func WithFileSource(files FileSource) Option {
	return func(e *Extractor) {
		if files != nil {
			e.files = files
		}
	}
}

// WithSourceSuffix sets the suffix appended to import specifiers.
func WithSourceSuffix(suffix string) Option {
	return func(e *Extractor) {
		if suffix != "" {
			e.suffix = suffix
		}
	}
}

// WithBaseDir sets the directory that imports in raw source text resolve
// against. Imports inside files always resolve against the file's directory.
func WithBaseDir(dir string) Option {
	return func(e *Extractor) {
		if dir != "" {
			e.baseDir = dir
		}
	}
}

// WithImportPolicy sets the output policy for repeated imports.
func WithImportPolicy(policy ImportPolicy) Option {
	return func(e *Extractor) {
		if policy != "" {
			e.policy = policy
		}
	}
}

// WithWorkers bounds the concurrency of ExtractFiles.
func WithWorkers(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor walks parsed programs and renders class dependency records.
//
// Description:
//
//	An Extractor holds configuration only. Each call builds its own import
//	cache, so every file reachable from the entry point is read and parsed
//	at most once per call, and calls never share state.
//
// Thread Safety:
//
//	Safe for concurrent use provided the SyntaxSource and FileSource are.
type Extractor struct {
	syntax  SyntaxSource
	files   FileSource
	suffix  string
	baseDir string
	policy  ImportPolicy
	workers int
	logger  *slog.Logger
}

// New creates an Extractor.
//
// Defaults: tree-sitter parser, OS files, ".ts" suffix, base directory ".",
// ImportDuplicate, one ExtractFiles worker per CPU.
//
// Example:
//
//	ex := extract.New(extract.WithImportPolicy(extract.ImportUnique))
//	results, err := ex.ExtractFile(ctx, "src/app.ts")
func New(opts ...Option) *Extractor {
	e := &Extractor{
		syntax:  ast.NewParser(),
		files:   OSFileSource{},
		suffix:  DefaultSourceSuffix,
		baseDir: ".",
		policy:  ImportDuplicate,
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the dependency records for source text.
//
// Description:
//
//	Imports are resolved against the base directory. A specifier whose
//	suffixed path does not exist (a package import, for example)
//	contributes nothing. Any syntax or rendering failure aborts the whole
//	call without partial results.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	text - TypeScript source.
//
// Outputs:
//
//	[]ParseResult - Imported classes depth-first, then this text's classes.
//	                Never nil on success.
//	error - ast errors, ErrUnsupportedParameterShape,
//	        ErrUnsupportedTypeExpression, ErrUnsupportedDeclarationShape,
//	        ErrReadFailed, or the context error.
func (e *Extractor) Extract(ctx context.Context, text string) ([]ParseResult, error) {
	ctx, span := otel.Tracer(extractTracerName).Start(ctx, "extract.Extractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.Int("size_bytes", len(text)))

	start := time.Now()
	w := e.newWalk()
	results, err := w.source(ctx, []byte(text), "", e.baseDir)
	return e.finish(span, w, start, results, err)
}

// ExtractFile returns the dependency records for the file at path.
//
// Imports resolve against the file's directory. Returns ErrFileNotFound
// when the FileSource does not have path.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]ParseResult, error) {
	ctx, span := otel.Tracer(extractTracerName).Start(ctx, "extract.Extractor.ExtractFile")
	defer span.End()
	span.SetAttributes(attribute.String("file", path))

	start := time.Now()
	path = filepath.Clean(path)
	if !e.files.Exists(path) {
		return e.finish(span, nil, start, nil, fmt.Errorf("%w: %s", ErrFileNotFound, path))
	}

	w := e.newWalk()
	results, err := w.file(ctx, path)
	return e.finish(span, w, start, results, err)
}

// ExtractFiles extracts several files concurrently.
//
// Description:
//
//	Each path is an independent ExtractFile call. At most the configured
//	number of workers run at once. The first failure cancels the rest.
//
// Outputs:
//
//	[][]ParseResult - results[i] belongs to paths[i].
//	error - The first error, naming its path.
func (e *Extractor) ExtractFiles(ctx context.Context, paths []string) ([][]ParseResult, error) {
	ctx, span := otel.Tracer(extractTracerName).Start(ctx, "extract.Extractor.ExtractFiles")
	defer span.End()
	span.SetAttributes(attribute.Int("files", len(paths)))

	results := make([][]ParseResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i, path := range paths {
		g.Go(func() error {
			res, err := e.ExtractFile(gctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return results, nil
}

func (e *Extractor) finish(span trace.Span, w *walk, start time.Time, results []ParseResult, err error) ([]ParseResult, error) {
	recordExtract(err, time.Since(start))
	if w != nil {
		span.SetAttributes(attribute.Int("files_parsed", len(w.programs)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("classes", len(results)))
	return results, nil
}

func (e *Extractor) newWalk() *walk {
	return &walk{
		e:        e,
		programs: make(map[string]*ast.Program),
		results:  make(map[string][]ParseResult),
		active:   make(map[string]bool),
		emitted:  make(map[string]bool),
	}
}

// walk is the state of one extraction call.
type walk struct {
	e *Extractor

	// programs holds every parsed file.
	programs map[string]*ast.Program

	// results holds the finished output of every completed file.
	results map[string][]ParseResult

	// active is the current import chain.
	active map[string]bool

	// emitted records files already output under ImportUnique.
	emitted map[string]bool
}

// file returns the results for an existing file reached by import or as
// the entry point.
func (w *walk) file(ctx context.Context, path string) ([]ParseResult, error) {
	if w.active[path] {
		importsTotal.WithLabelValues("cycle").Inc()
		w.e.logger.Debug("import cycle, skipping re-entry", slog.String("file", path))
		return nil, nil
	}
	if w.e.policy == ImportUnique && w.emitted[path] {
		importsTotal.WithLabelValues("skipped").Inc()
		return nil, nil
	}
	if cached, ok := w.results[path]; ok {
		importsTotal.WithLabelValues("cached").Inc()
		return cloneResults(cached), nil
	}
	importsTotal.WithLabelValues("followed").Inc()

	w.active[path] = true
	w.emitted[path] = true
	defer delete(w.active, path)

	text, err := w.e.files.ReadText(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadFailed, path, err)
	}

	results, err := w.source(ctx, []byte(text), path, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	w.results[path] = results
	return cloneResults(results), nil
}

// source parses content and renders it with its imports resolved in dir.
func (w *walk) source(ctx context.Context, content []byte, path, dir string) ([]ParseResult, error) {
	prog, err := w.e.syntax.Parse(ctx, content, path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		w.programs[path] = prog
	}
	return w.program(ctx, prog, dir)
}

// program renders a parsed program.
func (w *walk) program(ctx context.Context, prog *ast.Program, dir string) ([]ParseResult, error) {
	imports, classes, err := partition(prog)
	if err != nil {
		return nil, err
	}

	results := make([]ParseResult, 0, len(classes))

	for _, imp := range imports {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract canceled: %w", err)
		}
		target := w.resolveImport(dir, imp.Source)
		if !w.e.files.Exists(target) {
			importsTotal.WithLabelValues("missing").Inc()
			w.e.logger.Debug("import target not found",
				slog.String("specifier", imp.Source),
				slog.String("path", target))
			continue
		}
		imported, err := w.file(ctx, target)
		if err != nil {
			return nil, err
		}
		results = append(results, imported...)
	}

	for _, cls := range classes {
		res, err := renderClass(cls)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", displayPath(prog.FilePath), err)
		}
		results = append(results, res)
	}

	return results, nil
}

// resolveImport maps a module specifier to a file path.
func (w *walk) resolveImport(dir, specifier string) string {
	target := specifier + w.e.suffix
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Join(dir, target)
}

// partition splits statements into imports and class-bearing declarations.
// Statements of any other kind are ignored.
func partition(prog *ast.Program) ([]ast.ImportDeclaration, []ast.ClassDeclaration, error) {
	var (
		imports []ast.ImportDeclaration
		classes []ast.ClassDeclaration
	)
	for i, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case ast.ImportDeclaration:
			imports = append(imports, s)
		case ast.ClassDeclaration:
			classes = append(classes, s)
		case ast.ExportDeclaration:
			switch d := s.Declaration.(type) {
			case ast.ClassDeclaration:
				classes = append(classes, d)
			case nil, ast.OtherStatement:
			default:
				return nil, nil, fmt.Errorf("%w: %s statement %d exports %T",
					ErrUnsupportedDeclarationShape, displayPath(prog.FilePath), i, d)
			}
		}
	}
	return imports, classes, nil
}

func cloneResults(in []ParseResult) []ParseResult {
	out := make([]ParseResult, len(in))
	for i, r := range in {
		out[i] = ParseResult{
			ClassName: r.ClassName,
			Params:    append(make([]ParamResult, 0, len(r.Params)), r.Params...),
		}
	}
	return out
}

func displayPath(path string) string {
	if path == "" {
		return "<source>"
	}
	return path
}
