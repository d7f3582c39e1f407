// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package container

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// containerTracerName is the OTel tracer name for the resolver.
const containerTracerName = "dagger.container"

// Package-level Prometheus metrics for resolution.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// resolveTotal counts top-level Resolve calls.
	//
	// Labels:
	//   - outcome: "hit", "constructed", "unresolvable", "invalid", "cyclic",
	//     "constructor", "canceled"
	resolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dagger",
			Subsystem: "container",
			Name:      "resolve_total",
			Help:      "Total Resolve calls by outcome.",
		},
		[]string{"outcome"},
	)

	// resolveDuration measures top-level Resolve latency.
	resolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dagger",
			Subsystem: "container",
			Name:      "resolve_duration_seconds",
			Help:      "Duration of Resolve calls in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	// constructionsTotal counts constructor invocations that produced an
	// instance. Each ID contributes at most once per container.
	constructionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dagger",
			Subsystem: "container",
			Name:      "constructions_total",
			Help:      "Total component instances constructed.",
		},
	)
)

// classifyResolveError maps a Resolve error to a label-safe outcome.
func classifyResolveError(err error) string {
	switch {
	case errors.Is(err, ErrUnresolvableDependency):
		return "unresolvable"
	case errors.Is(err, ErrInvalidDependency):
		return "invalid"
	case errors.Is(err, ErrCyclicDependency):
		return "cyclic"
	case errors.Is(err, ErrConstructorFailed):
		return "constructor"
	default:
		return "canceled"
	}
}

// recordResolve records metrics for one top-level Resolve call.
func recordResolve(outcome string, duration time.Duration) {
	resolveTotal.WithLabelValues(outcome).Inc()
	resolveDuration.Observe(duration.Seconds())
}
