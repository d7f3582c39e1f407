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
	"crypto/sha256"
	"fmt"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
)

// CachedSyntaxSource memoizes parsed programs by content hash.
//
// Description:
//
//	Long-running callers (the HTTP service, watch mode) re-extract files
//	that rarely change. Programs are immutable once parsed, so a cached
//	Program is shared between calls. The key includes the path's
//	extension because .tsx content is parsed with a different grammar.
//	Failed parses are not cached.
//
// Thread Safety: Safe for concurrent use.
type CachedSyntaxSource struct {
	next  SyntaxSource
	cache *lru.Cache[string, *ast.Program]
}

// NewCachedSyntaxSource wraps next with an LRU cache of size entries.
func NewCachedSyntaxSource(next SyntaxSource, size int) (*CachedSyntaxSource, error) {
	cache, err := lru.New[string, *ast.Program](size)
	if err != nil {
		return nil, fmt.Errorf("creating parse cache: %w", err)
	}
	return &CachedSyntaxSource{next: next, cache: cache}, nil
}

// Parse returns a cached Program or parses content with the wrapped source.
// A cache hit returns a copy carrying filePath.
func (c *CachedSyntaxSource) Parse(ctx context.Context, content []byte, filePath string) (*ast.Program, error) {
	sum := sha256.Sum256(content)
	key := fmt.Sprintf("%x%s", sum, filepath.Ext(filePath))

	if prog, ok := c.cache.Get(key); ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hit := *prog
		hit.FilePath = filePath
		return &hit, nil
	}

	prog, err := c.next.Parse(ctx, content, filePath)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, prog)
	return prog, nil
}

// Len returns the number of cached programs.
func (c *CachedSyntaxSource) Len() int {
	return c.cache.Len()
}

// Purge empties the cache.
func (c *CachedSyntaxSource) Purge() {
	c.cache.Purge()
}
