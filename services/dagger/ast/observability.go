// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const astTracerName = "dagger.ast"

var (
	// parseDuration measures tree-sitter parse plus conversion time.
	//
	// Labels:
	//   - language: "typescript" or "tsx"
	//   - status: "success" or "error"
	parseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dagger",
			Subsystem: "ast",
			Name:      "parse_duration_seconds",
			Help:      "Duration of source parsing in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"language", "status"},
	)

	// parseStatements counts top-level statements produced.
	parseStatements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dagger",
			Subsystem: "ast",
			Name:      "statements_total",
			Help:      "Total top-level statements parsed.",
		},
		[]string{"language"},
	)
)

// startParseSpan starts a span for one Parse call.
func startParseSpan(ctx context.Context, language, filePath string, size int) (context.Context, trace.Span) {
	return otel.Tracer(astTracerName).Start(ctx, "ast.Parser.Parse",
		trace.WithAttributes(
			attribute.String("language", language),
			attribute.String("file", filePath),
			attribute.Int("size_bytes", size),
		),
	)
}

// recordParseMetrics records one Parse outcome.
func recordParseMetrics(language string, duration time.Duration, statements int, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	parseDuration.WithLabelValues(language, status).Observe(duration.Seconds())
	if success {
		parseStatements.WithLabelValues(language).Add(float64(statements))
	}
}
