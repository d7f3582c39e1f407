// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package component holds the process-wide record of injectable components.
//
// A component is declared once, at startup, with its identifier, the ordered
// identifiers of the components its constructor needs, and the constructor
// itself. Nothing here inspects types at runtime: the dependency list is
// whatever the declaration says it is.
//
// Example:
//
//	func init() {
//	    component.Declare("FooService").
//	        Constructs(func(...any) (any, error) { return &FooService{}, nil })
//
//	    component.Declare("BarService").
//	        DependsOn("FooService").
//	        Constructs(func(deps ...any) (any, error) {
//	            return &BarService{foo: deps[0].(*FooService)}, nil
//	        })
//	}
package component

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
)

var (
	// ErrEmptyID is returned when a descriptor has no identifier.
	ErrEmptyID = errors.New("component: empty component id")

	// ErrNilConstructor is returned when a descriptor has no constructor.
	ErrNilConstructor = errors.New("component: nil constructor")

	// ErrConflictingRegistration is returned when an ID is registered twice
	// with different dependency lists.
	ErrConflictingRegistration = errors.New("component: conflicting registration")
)

// ID identifies a component class. The zero value marks an absent or
// malformed dependency slot.
type ID string

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}

// Constructor builds a component instance from its resolved dependencies,
// passed in declared order.
type Constructor func(deps ...any) (any, error)

// Descriptor is the registry entry for one component.
//
// A descriptor exists for an ID if and only if that ID was registered as a
// component; absence means "not a component".
type Descriptor struct {
	// ID is the component identifier. Must not be empty.
	ID ID

	// Dependencies lists constructor dependency IDs in parameter order.
	// May be empty. An empty ID inside the list is an invalid slot and is
	// reported by the resolver, not rejected here.
	Dependencies []ID

	// Construct builds the instance. Must not be nil.
	Construct Constructor
}

// Source is the read-only query surface the resolver consumes.
//
// Thread Safety: implementations must be safe for concurrent reads.
type Source interface {
	// IsValidComponent reports whether id was registered as a component.
	IsValidComponent(id ID) bool

	// DependenciesOf returns the ordered dependency IDs of id, or false if
	// id is not a component.
	DependenciesOf(id ID) ([]ID, bool)

	// ConstructorOf returns the constructor of id, or false if id is not a
	// component.
	ConstructorOf(id ID) (Constructor, bool)
}

// Registry is an in-memory, concurrency-safe Source.
//
// Thread Safety: safe for concurrent use. Writes are expected at startup;
// reads dominate afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[ID]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[ID]Descriptor)}
}

// Register records d as a component.
//
// Description:
//
//	Re-registering the same ID with an identical dependency list is a no-op
//	(the first constructor wins). Re-registering with a different list is an
//	error, because the resolver would otherwise see two answers for one class.
//
// Outputs:
//
//	error - ErrEmptyID, ErrNilConstructor or ErrConflictingRegistration.
//
// Thread Safety: safe for concurrent use.
func (r *Registry) Register(d Descriptor) error {
	if d.ID == "" {
		return ErrEmptyID
	}
	if d.Construct == nil {
		return fmt.Errorf("%w: %s", ErrNilConstructor, d.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[d.ID]; ok {
		if slices.Equal(old.Dependencies, d.Dependencies) {
			return nil
		}
		return fmt.Errorf("%w: %s already depends on %v", ErrConflictingRegistration, d.ID, old.Dependencies)
	}

	r.entries[d.ID] = Descriptor{
		ID:           d.ID,
		Dependencies: slices.Clone(d.Dependencies),
		Construct:    d.Construct,
	}
	return nil
}

// MustRegister is Register for static initialisers. It panics on error.
func (r *Registry) MustRegister(d Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup returns a copy of the descriptor registered for id.
func (r *Registry) Lookup(id ID) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[id]
	if !ok {
		return Descriptor{}, false
	}
	d.Dependencies = slices.Clone(d.Dependencies)
	return d, true
}

// IsValidComponent implements Source.
func (r *Registry) IsValidComponent(id ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// DependenciesOf implements Source. The returned slice is a copy.
func (r *Registry) DependenciesOf(id ID) ([]ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(d.Dependencies), true
}

// ConstructorOf implements Source.
func (r *Registry) ConstructorOf(id ID) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return d.Construct, true
}

// IDs returns the registered IDs, sorted.
func (r *Registry) IDs() []ID {
	r.mu.RLock()
	ids := make([]ID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset removes every entry. Intended for tests.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[ID]Descriptor)
}
