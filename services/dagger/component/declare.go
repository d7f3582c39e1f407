// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package component

// Default is the process-wide registry used by Declare.
var Default = NewRegistry()

// Declaration accumulates a component descriptor before registration.
type Declaration struct {
	registry *Registry
	desc     Descriptor
}

// Declare starts a declaration for id against the Default registry.
func Declare(id ID) *Declaration {
	return Default.Declare(id)
}

// Declare starts a declaration for id against r.
func (r *Registry) Declare(id ID) *Declaration {
	return &Declaration{registry: r, desc: Descriptor{ID: id}}
}

// DependsOn appends constructor dependencies, in parameter order.
func (d *Declaration) DependsOn(ids ...ID) *Declaration {
	d.desc.Dependencies = append(d.desc.Dependencies, ids...)
	return d
}

// Constructs sets the constructor and registers the declaration.
// It panics if registration fails, since declarations run at startup.
func (d *Declaration) Constructs(fn Constructor) Descriptor {
	d.desc.Construct = fn
	d.registry.MustRegister(d.desc)
	return d.desc
}
