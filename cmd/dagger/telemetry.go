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
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/tsdagger/services/dagger/config"
)

const serviceName = "tsdagger"

var (
	meterOnce     sync.Once
	meterProvider *sdkmetric.MeterProvider
	meterErr      error
)

// setupTelemetry installs the global propagator, tracer provider and meter
// provider.
//
// Description:
//
//	Traces go to the configured exporter: none, stdout (pretty JSON on w)
//	or otlp (gRPC). Metrics recorded through the otel API are always
//	exposed on the Prometheus default registry, and also printed to w when
//	the exporter is stdout. The meter provider is installed once per
//	process.
//
// Outputs:
//
//	func(context.Context) error - Flushes and shuts down the tracer provider.
//	error - Non-nil if an exporter cannot be created.
func setupTelemetry(ctx context.Context, cfg config.TelemetryConfig, w io.Writer) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	meterOnce.Do(func() {
		meterProvider, meterErr = newMeterProvider(cfg, res, w)
		if meterErr == nil {
			otel.SetMeterProvider(meterProvider)
		}
	})
	if meterErr != nil {
		return nil, meterErr
	}

	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("creating stdout trace exporter: %w", err)
		}
		exporter = exp
	case "otlp":
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
		}
		exporter = exp
	default:
		return func(ctx context.Context) error {
			return meterProvider.ForceFlush(ctx)
		}, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), meterProvider.ForceFlush(ctx))
	}, nil
}

func newMeterProvider(cfg config.TelemetryConfig, res *resource.Resource, w io.Writer) (*sdkmetric.MeterProvider, error) {
	prom, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("creating prometheus metric exporter: %w", err)
	}
	opts := []sdkmetric.Option{
		sdkmetric.WithReader(prom),
		sdkmetric.WithResource(res),
	}

	if cfg.Exporter == "stdout" {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("creating stdout metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}
