// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dagger

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
	"github.com/AleutianAI/tsdagger/services/dagger/extract"
	"github.com/AleutianAI/tsdagger/services/dagger/graph"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	serviceVersion  = "0.1.0"
)

var errPathOutsideBase = errors.New("dagger: path outside base directory")

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// ExtractRequest selects the source to analyze. Exactly one of Source and
// File must be set.
type ExtractRequest struct {
	// Source is TypeScript text. Imports resolve against the base directory.
	Source string `json:"source"`

	// File is a path relative to the base directory.
	File string `json:"file"`

	// ImportPolicy overrides the configured policy: "duplicate" or "unique".
	ImportPolicy string `json:"import_policy"`
}

// ExtractResponse carries extraction results.
type ExtractResponse struct {
	Results   []extract.ParseResult `json:"results"`
	RequestID string                `json:"request_id"`
}

// GraphRequest is an ExtractRequest plus snapshot options.
type GraphRequest struct {
	ExtractRequest

	// Snapshot saves the graph when snapshot persistence is configured.
	Snapshot bool   `json:"snapshot"`
	Label    string `json:"label"`
}

// GraphResponse carries the static graph and its construction order.
type GraphResponse struct {
	Graph *graph.SerializableGraph `json:"graph"`

	// Order lists classes dependencies first. Empty when Cycle is set.
	Order []string `json:"order"`

	// Cycle describes a dependency cycle between extracted classes.
	Cycle string `json:"cycle,omitempty"`

	Snapshot  *graph.SnapshotMetadata `json:"snapshot,omitempty"`
	RequestID string                  `json:"request_id"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Snapshots bool   `json:"snapshots"`
}

// Handlers serves the dagger endpoints.
type Handlers struct {
	svc      *Service
	requests metric.Int64Counter
}

// NewHandlers creates Handlers over svc.
func NewHandlers(svc *Service) *Handlers {
	h := &Handlers{svc: svc}
	counter, err := otel.Meter("dagger.service").Int64Counter("dagger.http.extractions",
		metric.WithDescription("Extraction requests served, by endpoint and result code."))
	if err != nil {
		svc.logger.Warn("creating request counter failed", slog.Any("error", err))
	}
	h.requests = counter
	return h
}

// HandleExtract handles POST /v1/dagger/extract.
//
// Description:
//
//	Extracts dependency records from inline source or a file under the
//	base directory. Extraction failures return 422 with a stable code
//	(SYNTAX_ERROR, UNSUPPORTED_PARAMETER_SHAPE, ...).
func (h *Handlers) HandleExtract(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.svc.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleExtract"))

	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "extract", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	start := time.Now()
	results, ok := h.extract(c, "extract", req)
	if !ok {
		return
	}

	logger.Info("extraction complete",
		slog.Int("classes", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	h.count(c.Request.Context(), "extract", "OK")
	c.JSON(http.StatusOK, ExtractResponse{Results: results, RequestID: requestID})
}

// HandleGraph handles POST /v1/dagger/graph.
func (h *Handlers) HandleGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.svc.logger.With(slog.String("request_id", requestID), slog.String("handler", "HandleGraph"))

	var req GraphRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, "graph", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Snapshot && h.svc.snapshots == nil {
		h.fail(c, "graph", http.StatusServiceUnavailable, "SNAPSHOTS_NOT_AVAILABLE", "snapshot persistence not configured")
		return
	}

	results, ok := h.extract(c, "graph", req.ExtractRequest)
	if !ok {
		return
	}

	root := req.File
	if root == "" {
		root = "<source>"
	}
	g, err := graph.FromParseResults(root, results)
	if err != nil {
		status, code := classifyError(err)
		h.fail(c, "graph", status, code, err.Error())
		return
	}

	resp := GraphResponse{Graph: g.ToSerializable(), Order: []string{}, RequestID: requestID}
	order, err := g.TopologicalOrder()
	if err != nil {
		resp.Cycle = err.Error()
	} else {
		resp.Order = order
	}

	if req.Snapshot {
		meta, err := h.svc.snapshots.Save(c.Request.Context(), g, req.Label)
		if err != nil {
			logger.Error("snapshot save failed", slog.Any("error", err))
			h.fail(c, "graph", http.StatusInternalServerError, "SNAPSHOT_SAVE_FAILED", err.Error())
			return
		}
		resp.Snapshot = meta
	}

	logger.Info("graph built",
		slog.Int("nodes", g.NodeCount()),
		slog.Int("edges", g.EdgeCount()),
		slog.Bool("cycle", resp.Cycle != ""))

	h.count(c.Request.Context(), "graph", "OK")
	c.JSON(http.StatusOK, resp)
}

// HandleListSnapshots handles GET /v1/dagger/snapshots.
//
// Query: root (optional filter), limit (default 100).
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}
	limit := 0
	if s := c.Query("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	list, err := h.svc.snapshots.List(c.Request.Context(), c.Query("root"), limit)
	if err != nil {
		h.fail(c, "snapshots", http.StatusInternalServerError, "SNAPSHOT_LIST_FAILED", err.Error())
		return
	}
	if list == nil {
		list = []*graph.SnapshotMetadata{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": list, "count": len(list)})
}

// HandleLoadSnapshot handles GET /v1/dagger/snapshots/:id.
func (h *Handlers) HandleLoadSnapshot(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}
	g, meta, err := h.svc.snapshots.Load(c.Request.Context(), c.Param("id"))
	if err != nil {
		status, code := classifyError(err)
		h.fail(c, "snapshots", status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"metadata": meta, "graph": g.ToSerializable()})
}

// HandleDeleteSnapshot handles DELETE /v1/dagger/snapshots/:id.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	if !h.requireSnapshots(c) {
		return
	}
	if err := h.svc.snapshots.Delete(c.Request.Context(), c.Param("id")); err != nil {
		status, code := classifyError(err)
		h.fail(c, "snapshots", status, code, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/dagger/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   serviceVersion,
		Snapshots: h.svc.snapshots != nil,
	})
}

// extract runs one extraction for a request, writing the error response
// itself on failure.
func (h *Handlers) extract(c *gin.Context, endpoint string, req ExtractRequest) ([]extract.ParseResult, bool) {
	if (req.Source == "") == (req.File == "") {
		h.fail(c, endpoint, http.StatusBadRequest, "INVALID_REQUEST", "exactly one of source or file is required")
		return nil, false
	}

	ex, err := h.svc.Extractor(req.ImportPolicy)
	if err != nil {
		h.fail(c, endpoint, http.StatusBadRequest, "INVALID_IMPORT_POLICY", err.Error())
		return nil, false
	}

	ctx := c.Request.Context()
	var results []extract.ParseResult
	if req.File != "" {
		path, perr := h.svc.resolvePath(req.File)
		if perr != nil {
			h.fail(c, endpoint, http.StatusBadRequest, "PATH_OUTSIDE_BASE", perr.Error())
			return nil, false
		}
		results, err = ex.ExtractFile(ctx, path)
	} else {
		results, err = ex.Extract(ctx, req.Source)
	}
	if err != nil {
		status, code := classifyError(err)
		h.fail(c, endpoint, status, code, err.Error())
		return nil, false
	}
	return results, true
}

func (h *Handlers) requireSnapshots(c *gin.Context) bool {
	if h.svc.snapshots != nil {
		return true
	}
	h.fail(c, "snapshots", http.StatusServiceUnavailable, "SNAPSHOTS_NOT_AVAILABLE", "snapshot persistence not configured")
	return false
}

func (h *Handlers) fail(c *gin.Context, endpoint string, status int, code, msg string) {
	h.count(c.Request.Context(), endpoint, code)
	c.JSON(status, ErrorResponse{Error: msg, Code: code, RequestID: getOrCreateRequestID(c)})
}

func (h *Handlers) count(ctx context.Context, endpoint, code string) {
	if h.requests == nil {
		return
	}
	h.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("code", code),
	))
}

// classifyError maps a domain error to an HTTP status and stable code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ast.ErrSyntax):
		return http.StatusUnprocessableEntity, "SYNTAX_ERROR"
	case errors.Is(err, ast.ErrInvalidContent):
		return http.StatusUnprocessableEntity, "INVALID_CONTENT"
	case errors.Is(err, ast.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, extract.ErrUnsupportedParameterShape):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_PARAMETER_SHAPE"
	case errors.Is(err, extract.ErrUnsupportedTypeExpression):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_TYPE_EXPRESSION"
	case errors.Is(err, extract.ErrUnsupportedDeclarationShape):
		return http.StatusUnprocessableEntity, "UNSUPPORTED_DECLARATION_SHAPE"
	case errors.Is(err, graph.ErrDuplicateNode):
		return http.StatusUnprocessableEntity, "DUPLICATE_CLASS"
	case errors.Is(err, extract.ErrFileNotFound):
		return http.StatusNotFound, "FILE_NOT_FOUND"
	case errors.Is(err, graph.ErrSnapshotNotFound):
		return http.StatusNotFound, "SNAPSHOT_NOT_FOUND"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "REQUEST_CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// getOrCreateRequestID returns the request ID from the context, the
// X-Request-ID header, or a new UUID, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	id := c.GetHeader(requestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDKey, id)
	c.Header(requestIDHeader, id)
	return id
}
