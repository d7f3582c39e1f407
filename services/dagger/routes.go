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
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RegisterRoutes registers the dagger routes with the router group.
//
// Description:
//
//	Registers all /dagger/* endpoints on rg. The group should already
//	carry any required middleware.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST   /v1/dagger/extract
//	POST   /v1/dagger/graph
//	GET    /v1/dagger/snapshots
//	GET    /v1/dagger/snapshots/:id
//	DELETE /v1/dagger/snapshots/:id
//	GET    /v1/dagger/health
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	d := rg.Group("/dagger")
	{
		d.POST("/extract", handlers.HandleExtract)
		d.POST("/graph", handlers.HandleGraph)

		d.GET("/snapshots", handlers.HandleListSnapshots)
		d.GET("/snapshots/:id", handlers.HandleLoadSnapshot)
		d.DELETE("/snapshots/:id", handlers.HandleDeleteSnapshot)

		d.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter builds the full HTTP router: recovery, tracing, request IDs,
// /metrics and the dagger routes under /v1.
func NewRouter(handlers *Handlers, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("tsdagger"))
	router.Use(requestLogger(handlers.svc.logger, debug))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

// requestLogger assigns the request ID and logs each request at debug
// level, or at info when debug is set.
func requestLogger(logger *slog.Logger, debug bool) gin.HandlerFunc {
	level := slog.LevelDebug
	if debug {
		level = slog.LevelInfo
	}
	return func(c *gin.Context) {
		start := time.Now()
		requestID := getOrCreateRequestID(c)
		c.Next()
		logger.Log(c.Request.Context(), level, "request",
			slog.String("request_id", requestID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)))
	}
}
