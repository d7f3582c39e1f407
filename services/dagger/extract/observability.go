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
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const extractTracerName = "dagger.extract"

var (
	// extractTotal counts Extract/ExtractFile calls.
	//
	// Labels:
	//   - outcome: "success", "syntax", "parameter", "type", "declaration",
	//     "not_found", "read", "canceled" or "error"
	extractTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dagger",
			Subsystem: "extract",
			Name:      "calls_total",
			Help:      "Total extraction calls by outcome.",
		},
		[]string{"outcome"},
	)

	// extractDuration measures one extraction call including imports.
	extractDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dagger",
			Subsystem: "extract",
			Name:      "duration_seconds",
			Help:      "Duration of extraction calls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
	)

	// importsTotal counts import specifiers encountered.
	//
	// Labels:
	//   - result: "followed", "missing", "cached", "cycle" or "skipped"
	importsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dagger",
			Subsystem: "extract",
			Name:      "imports_total",
			Help:      "Total import specifiers encountered by result.",
		},
		[]string{"result"},
	)
)

// classifyExtractError maps an extraction error to an outcome label.
func classifyExtractError(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ast.ErrSyntax), errors.Is(err, ast.ErrInvalidContent), errors.Is(err, ast.ErrFileTooLarge):
		return "syntax"
	case errors.Is(err, ErrUnsupportedParameterShape):
		return "parameter"
	case errors.Is(err, ErrUnsupportedTypeExpression):
		return "type"
	case errors.Is(err, ErrUnsupportedDeclarationShape):
		return "declaration"
	case errors.Is(err, ErrFileNotFound):
		return "not_found"
	case errors.Is(err, ErrReadFailed):
		return "read"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func recordExtract(err error, duration time.Duration) {
	extractTotal.WithLabelValues(classifyExtractError(err)).Inc()
	extractDuration.Observe(duration.Seconds())
}
