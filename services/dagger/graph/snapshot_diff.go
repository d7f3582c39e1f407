// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"fmt"
	"slices"
)

// SnapshotDiff lists how the classes of two graphs differ.
type SnapshotDiff struct {
	// BaseSnapshotID is the ID of the base snapshot.
	BaseSnapshotID string `json:"base_snapshot_id"`

	// TargetSnapshotID is the ID of the target snapshot, empty for a live graph.
	TargetSnapshotID string `json:"target_snapshot_id,omitempty"`

	// NodesAdded are classes present in target but not in base.
	NodesAdded []string `json:"nodes_added"`

	// NodesRemoved are classes present in base but not in target.
	NodesRemoved []string `json:"nodes_removed"`

	// NodesModified are classes whose dependencies changed.
	NodesModified []NodeDiff `json:"nodes_modified"`
}

// NodeDiff is one class whose dependency list changed.
type NodeDiff struct {
	Class  string   `json:"class"`
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// HasChanges reports whether any class was added, removed or modified.
func (d *SnapshotDiff) HasChanges() bool {
	return len(d.NodesAdded)+len(d.NodesRemoved)+len(d.NodesModified) > 0
}

// DiffSnapshots computes the differences between two graphs.
//
// Description:
//
//	Classes are matched by name. A class present in both graphs is
//	modified when its ordered dependency list differs.
//
// Inputs:
//
//	base - The earlier graph, usually loaded from a snapshot. Must not be nil.
//	target - The later graph. Must not be nil.
//	baseSnapshotID - ID of the base snapshot (for labeling).
//	targetSnapshotID - ID of the target snapshot, or "" for a live graph.
//
// Outputs:
//
//	*SnapshotDiff - The differences, each list sorted by class name.
//	error - Non-nil if either graph is nil.
//
// Thread Safety:
//
//	Safe for concurrent use on frozen graphs.
func DiffSnapshots(base, target *Graph, baseSnapshotID, targetSnapshotID string) (*SnapshotDiff, error) {
	if base == nil {
		return nil, fmt.Errorf("base graph must not be nil")
	}
	if target == nil {
		return nil, fmt.Errorf("target graph must not be nil")
	}

	diff := &SnapshotDiff{
		BaseSnapshotID:   baseSnapshotID,
		TargetSnapshotID: targetSnapshotID,
		NodesAdded:       []string{},
		NodesRemoved:     []string{},
		NodesModified:    []NodeDiff{},
	}

	// Nodes() is sorted, so every list comes out sorted.
	for _, id := range target.Nodes() {
		if !base.HasNode(id) {
			diff.NodesAdded = append(diff.NodesAdded, id)
			continue
		}
		before := dependencyNames(base, id)
		after := dependencyNames(target, id)
		if !slices.Equal(before, after) {
			diff.NodesModified = append(diff.NodesModified, NodeDiff{Class: id, Before: before, After: after})
		}
	}
	for _, id := range base.Nodes() {
		if !target.HasNode(id) {
			diff.NodesRemoved = append(diff.NodesRemoved, id)
		}
	}
	return diff, nil
}
