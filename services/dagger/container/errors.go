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
	"fmt"
	"strings"

	"github.com/AleutianAI/tsdagger/services/dagger/component"
)

var (
	// ErrUnresolvableDependency is returned when the registry has no
	// component entry for a requested ID.
	ErrUnresolvableDependency = errors.New("container: unresolvable dependency")

	// ErrInvalidDependency is returned when a component declares an empty
	// dependency slot.
	ErrInvalidDependency = errors.New("container: invalid dependency")

	// ErrCyclicDependency is returned when a dependency chain reaches an ID
	// that is still being resolved.
	ErrCyclicDependency = errors.New("container: cyclic dependency")

	// ErrConstructorFailed wraps an error returned by a component constructor.
	ErrConstructorFailed = errors.New("container: constructor failed")

	// ErrWrongType is returned by ResolveAs when the instance has another type.
	ErrWrongType = errors.New("container: instance has wrong type")
)

// CycleError describes a detected dependency cycle.
//
// It matches ErrCyclicDependency with errors.Is.
type CycleError struct {
	// Path is the chain of IDs, starting and ending with the repeated ID.
	Path []component.ID
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(parts, " -> "))
}

// Is reports whether target is ErrCyclicDependency.
func (e *CycleError) Is(target error) bool {
	return target == ErrCyclicDependency
}
