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
	"bytes"
	"cmp"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerDB key layout:
//
//	dagger:snap:{rootHash}:{id}:data  -> gzip(JSON(SerializableGraph))
//	dagger:snap:{rootHash}:{id}:meta  -> JSON(SnapshotMetadata)
//	dagger:snap:{rootHash}:latest     -> id
//	dagger:snapidx:{id}               -> rootHash
const (
	keyPrefixSnap   = "dagger:snap:"
	keyPrefixIndex  = "dagger:snapidx:"
	keySuffixData   = ":data"
	keySuffixMeta   = ":meta"
	keySuffixLatest = ":latest"

	defaultListLimit = 100
)

// ErrSnapshotNotFound is returned when no snapshot matches the request.
var ErrSnapshotNotFound = errors.New("graph: snapshot not found")

// SnapshotMetadata describes one saved snapshot.
type SnapshotMetadata struct {
	// SnapshotID is a random UUID.
	SnapshotID string `json:"snapshot_id"`

	Root string `json:"root"`

	// RootHash is RootHash(Root), the key grouping prefix.
	RootHash string `json:"root_hash"`

	Origin    Origin `json:"origin"`
	GraphHash string `json:"graph_hash"`
	Label     string `json:"label,omitempty"`

	// CreatedAtMilli is when the snapshot was saved (Unix milliseconds UTC).
	CreatedAtMilli int64 `json:"created_at_milli"`

	NodeCount     int    `json:"node_count"`
	EdgeCount     int    `json:"edge_count"`
	SchemaVersion string `json:"schema_version"`

	// CompressedSize is the size of the gzip payload in bytes.
	CompressedSize int64 `json:"compressed_size"`

	// ContentHash is the SHA-256 of the gzip payload.
	ContentHash string `json:"content_hash"`
}

// SnapshotManager saves and loads graph snapshots in BadgerDB.
//
// Description:
//
//	Snapshots are grouped by graph Root. Each save writes the payload, the
//	metadata, the reverse index and the root's latest pointer in a single
//	transaction.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control.
type SnapshotManager struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewSnapshotManager creates a SnapshotManager over an opened database.
// The caller owns db and closes it.
func NewSnapshotManager(db *badger.DB, logger *slog.Logger) (*SnapshotManager, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotManager{db: db, logger: logger}, nil
}

// OpenSnapshotManager opens (or creates) a BadgerDB directory and returns a
// manager over it together with a close function.
func OpenSnapshotManager(dir string, logger *slog.Logger) (*SnapshotManager, func() error, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot store %s: %w", dir, err)
	}
	mgr, err := NewSnapshotManager(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return mgr, db.Close, nil
}

// Save persists a snapshot of g.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	g - The graph to snapshot. Frozen if it is not already.
//	label - Optional human-readable label.
//
// Outputs:
//
//	*SnapshotMetadata - Metadata of the saved snapshot.
//	error - Non-nil if serialization or storage fails.
func (m *SnapshotManager) Save(ctx context.Context, g *Graph, label string) (*SnapshotMetadata, error) {
	if g == nil {
		return nil, fmt.Errorf("graph must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.Freeze()

	sg := g.ToSerializable()
	jsonData, err := json.Marshal(sg)
	if err != nil {
		return nil, fmt.Errorf("marshaling graph: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return nil, fmt.Errorf("compressing graph: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	payload := compressed.Bytes()

	meta := &SnapshotMetadata{
		SnapshotID:     uuid.NewString(),
		Root:           g.Root,
		RootHash:       RootHash(g.Root),
		Origin:         g.Origin,
		GraphHash:      sg.GraphHash,
		Label:          label,
		CreatedAtMilli: time.Now().UnixMilli(),
		NodeCount:      g.NodeCount(),
		EdgeCount:      g.EdgeCount(),
		SchemaVersion:  SchemaVersion,
		CompressedSize: int64(len(payload)),
		ContentHash:    hashBytes(payload),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(meta.RootHash, meta.SnapshotID), payload); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set(metaKey(meta.RootHash, meta.SnapshotID), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set(latestKey(meta.RootHash), []byte(meta.SnapshotID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		if err := txn.Set(indexKey(meta.SnapshotID), []byte(meta.RootHash)); err != nil {
			return fmt.Errorf("storing reverse index: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing snapshot to badger: %w", err)
	}

	m.logger.Info("snapshot saved",
		slog.String("snapshot_id", meta.SnapshotID),
		slog.String("root", meta.Root),
		slog.Int("node_count", meta.NodeCount),
		slog.Int("edge_count", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return meta, nil
}

// Load retrieves a snapshot by ID.
//
// Outputs:
//
//	*Graph - The reconstructed, frozen graph.
//	*SnapshotMetadata - The snapshot metadata.
//	error - ErrSnapshotNotFound, an integrity failure, or a storage error.
func (m *SnapshotManager) Load(ctx context.Context, snapshotID string) (*Graph, *SnapshotMetadata, error) {
	if snapshotID == "" {
		return nil, nil, fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	rootHash, err := m.readString(indexKey(snapshotID))
	if err != nil {
		return nil, nil, fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}
	return m.load(rootHash, snapshotID)
}

// Latest loads the most recent snapshot saved for root.
func (m *SnapshotManager) Latest(ctx context.Context, root string) (*Graph, *SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	rootHash := RootHash(root)
	snapshotID, err := m.readString(latestKey(rootHash))
	if err != nil {
		return nil, nil, fmt.Errorf("reading latest snapshot for %s: %w", root, err)
	}
	return m.load(rootHash, snapshotID)
}

// List returns snapshot metadata, newest first.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	root - Optional filter. Empty lists every root.
//	limit - Maximum results. Non-positive selects 100.
func (m *SnapshotManager) List(ctx context.Context, root string, limit int) ([]*SnapshotMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	prefix := keyPrefixSnap
	if root != "" {
		prefix = keyPrefixSnap + RootHash(root) + ":"
	}

	var results []*SnapshotMetadata
	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())
			if !strings.HasSuffix(key, keySuffixMeta) {
				continue
			}
			var meta SnapshotMetadata
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &meta)
			}); err != nil {
				m.logger.Warn("skipping corrupt metadata", slog.String("key", key), slog.Any("error", err))
				continue
			}
			results = append(results, &meta)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	slices.SortFunc(results, func(a, b *SnapshotMetadata) int {
		return cmp.Compare(b.CreatedAtMilli, a.CreatedAtMilli)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes a snapshot. If it was the latest for its root, the latest
// pointer is removed too.
func (m *SnapshotManager) Delete(ctx context.Context, snapshotID string) error {
	if snapshotID == "" {
		return fmt.Errorf("snapshot ID must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rootHash, err := m.readString(indexKey(snapshotID))
	if err != nil {
		return fmt.Errorf("looking up snapshot %s: %w", snapshotID, err)
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{
			dataKey(rootHash, snapshotID),
			metaKey(rootHash, snapshotID),
			indexKey(snapshotID),
		} {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}

		item, err := txn.Get(latestKey(rootHash))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading latest pointer: %w", err)
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("reading latest pointer: %w", err)
		}
		if string(current) == snapshotID {
			return txn.Delete(latestKey(rootHash))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", snapshotID, err)
	}

	m.logger.Info("snapshot deleted", slog.String("snapshot_id", snapshotID))
	return nil
}

// load reads, verifies and decodes one snapshot.
func (m *SnapshotManager) load(rootHash, snapshotID string) (*Graph, *SnapshotMetadata, error) {
	var payload, metaJSON []byte
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(rootHash, snapshotID))
		if err != nil {
			return err
		}
		if payload, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get(metaKey(rootHash, snapshotID))
		if err != nil {
			return err
		}
		metaJSON, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, snapshotID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading snapshot %s: %w", snapshotID, err)
	}

	var meta SnapshotMetadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling metadata for %s: %w", snapshotID, err)
	}
	if actual := hashBytes(payload); meta.ContentHash != "" && meta.ContentHash != actual {
		return nil, nil, fmt.Errorf("integrity check failed for %s: expected hash %s, got %s", snapshotID, meta.ContentHash, actual)
	}

	gr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing snapshot %s: %w", snapshotID, err)
	}
	defer gr.Close()

	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, nil, fmt.Errorf("reading decompressed data for %s: %w", snapshotID, err)
	}

	var sg SerializableGraph
	if err := json.Unmarshal(jsonData, &sg); err != nil {
		return nil, nil, fmt.Errorf("unmarshaling graph for %s: %w", snapshotID, err)
	}
	g, err := FromSerializable(&sg)
	if err != nil {
		return nil, nil, fmt.Errorf("reconstructing graph for %s: %w", snapshotID, err)
	}
	return g, &meta, nil
}

// readString reads a small string value, mapping a missing key to
// ErrSnapshotNotFound.
func (m *SnapshotManager) readString(key []byte) (string, error) {
	var value string
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrSnapshotNotFound
	}
	return value, err
}

// RootHash returns SHA256(root)[:16], the key prefix for a root's snapshots.
func RootHash(root string) string {
	return hashBytes([]byte(root))[:16]
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func dataKey(rootHash, id string) []byte {
	return []byte(keyPrefixSnap + rootHash + ":" + id + keySuffixData)
}

func metaKey(rootHash, id string) []byte {
	return []byte(keyPrefixSnap + rootHash + ":" + id + keySuffixMeta)
}

func latestKey(rootHash string) []byte {
	return []byte(keyPrefixSnap + rootHash + keySuffixLatest)
}

func indexKey(id string) []byte {
	return []byte(keyPrefixIndex + id)
}
