// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package container builds wired component instances from registry metadata.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/tsdagger/services/dagger/component"
)

// Option configures a Container.
type Option func(*Container)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Container resolves components and memoizes one instance per ID.
//
// Description:
//
//	Each Container owns a private instance cache. Entries are written once
//	and never evicted, which gives singleton semantics for the lifetime of
//	the Container. The registry is only read.
//
// Thread Safety:
//
//	Safe for concurrent use. Construction of any given ID is serialized, so
//	concurrent Resolve calls never produce two instances of the same ID.
type Container struct {
	source component.Source
	logger *slog.Logger

	mu        sync.RWMutex
	instances map[component.ID]any

	flights singleflight.Group
}

// New creates a Container reading from source.
//
// Example:
//
//	c := container.New(component.Default)
//	bar, err := container.ResolveAs[*BarService](ctx, c, "BarService")
func New(source component.Source, opts ...Option) *Container {
	c := &Container{
		source:    source,
		logger:    slog.Default(),
		instances: make(map[component.ID]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// step is one planned construction.
type step struct {
	id        component.ID
	deps      []component.ID
	construct component.Constructor
}

// Resolve returns the instance for id, constructing it and its
// dependencies on first use.
//
// Description:
//
//	A cached instance is returned without touching the registry. Otherwise
//	the dependency subgraph is planned first: every reachable ID is checked
//	against the registry and the walk keeps the set of IDs currently being
//	resolved, so a chain that comes back to one of them fails with a
//	*CycleError. Only a fully valid plan is constructed, dependencies
//	first, in declared order.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Checked between constructions.
//	id - The component to resolve.
//
// Outputs:
//
//	any - The instance. Repeated calls return the same instance.
//	error - ErrUnresolvableDependency, ErrInvalidDependency,
//	        ErrCyclicDependency (*CycleError), ErrConstructorFailed, or the
//	        context error.
//
// Thread Safety: safe for concurrent use.
func (c *Container) Resolve(ctx context.Context, id component.ID) (any, error) {
	ctx, span := otel.Tracer(containerTracerName).Start(ctx, "container.Container.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("component.id", string(id)))

	start := time.Now()

	if inst, ok := c.cached(id); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		recordResolve("hit", time.Since(start))
		return inst, nil
	}

	inst, constructed, err := c.resolve(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordResolve(classifyResolveError(err), time.Since(start))
		return nil, err
	}

	span.SetAttributes(attribute.Int("constructed", constructed))
	recordResolve("constructed", time.Since(start))
	return inst, nil
}

// ResolveAs resolves id and asserts the instance to T.
func ResolveAs[T any](ctx context.Context, c *Container, id component.ID) (T, error) {
	var zero T
	inst, err := c.Resolve(ctx, id)
	if err != nil {
		return zero, err
	}
	typed, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %T", ErrWrongType, id, inst, zero)
	}
	return typed, nil
}

// Has reports whether id already has a cached instance.
func (c *Container) Has(id component.ID) bool {
	_, ok := c.cached(id)
	return ok
}

// Len returns the number of cached instances.
func (c *Container) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.instances)
}

func (c *Container) cached(id component.ID) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instances[id]
	return inst, ok
}

// resolve plans and builds id. Returns the number of constructor calls
// made by this goroutine.
func (c *Container) resolve(ctx context.Context, id component.ID) (any, int, error) {
	plan, err := c.plan(id)
	if err != nil {
		return nil, 0, err
	}

	constructed := 0
	for _, s := range plan {
		if err := ctx.Err(); err != nil {
			return nil, constructed, fmt.Errorf("resolve %s canceled: %w", id, err)
		}
		built, err := c.construct(s)
		if err != nil {
			return nil, constructed, err
		}
		if built {
			constructed++
		}
	}

	inst, ok := c.cached(id)
	if !ok {
		return nil, constructed, fmt.Errorf("%w: %s", ErrUnresolvableDependency, id)
	}
	return inst, constructed, nil
}

// plan walks the dependency subgraph of root depth-first, in declared
// order, and returns the uncached IDs in construction order.
func (c *Container) plan(root component.ID) ([]step, error) {
	var (
		order    []step
		planned  = make(map[component.ID]bool)
		inFlight = make(map[component.ID]bool)
		path     []component.ID
	)

	var visit func(id component.ID) error
	visit = func(id component.ID) error {
		if planned[id] {
			return nil
		}
		if _, ok := c.cached(id); ok {
			planned[id] = true
			return nil
		}
		if inFlight[id] {
			cycle := append(cyclePath(path, id), id)
			return &CycleError{Path: cycle}
		}

		if !c.source.IsValidComponent(id) {
			return fmt.Errorf("%w: %s is not a registered component", ErrUnresolvableDependency, id)
		}
		deps, ok := c.source.DependenciesOf(id)
		if !ok {
			return fmt.Errorf("%w: no dependency metadata for %s", ErrUnresolvableDependency, id)
		}
		construct, ok := c.source.ConstructorOf(id)
		if !ok || construct == nil {
			return fmt.Errorf("%w: no constructor for %s", ErrUnresolvableDependency, id)
		}

		inFlight[id] = true
		path = append(path, id)

		for i, dep := range deps {
			if dep == "" {
				return fmt.Errorf("%w: %s parameter %d has no component id", ErrInvalidDependency, id, i)
			}
			if err := visit(dep); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		delete(inFlight, id)
		planned[id] = true
		order = append(order, step{id: id, deps: deps, construct: construct})
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	return order, nil
}

// cyclePath returns the suffix of path starting at id.
func cyclePath(path []component.ID, id component.ID) []component.ID {
	for i, p := range path {
		if p == id {
			return append([]component.ID(nil), path[i:]...)
		}
	}
	return []component.ID{id}
}

// construct builds s unless it is already cached. Construction of one ID is
// funnelled through a single flight, and the cache write happens inside the
// flight, so a later flight for the same ID always observes it.
func (c *Container) construct(s step) (bool, error) {
	built := false
	_, err, _ := c.flights.Do(string(s.id), func() (any, error) {
		if inst, ok := c.cached(s.id); ok {
			return inst, nil
		}

		args := make([]any, len(s.deps))
		for i, dep := range s.deps {
			inst, ok := c.cached(dep)
			if !ok {
				return nil, fmt.Errorf("%w: %s needed by %s was not built", ErrUnresolvableDependency, dep, s.id)
			}
			args[i] = inst
		}

		inst, err := s.construct(args...)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConstructorFailed, s.id, err)
		}

		c.mu.Lock()
		c.instances[s.id] = inst
		c.mu.Unlock()

		built = true
		constructionsTotal.Inc()
		c.logger.Debug("component constructed",
			slog.String("component", string(s.id)),
			slog.Int("dependencies", len(s.deps)))
		return inst, nil
	})
	return built, err
}
