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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
)

type countingSyntax struct {
	calls atomic.Int32
	next  SyntaxSource
}

func (c *countingSyntax) Parse(ctx context.Context, content []byte, path string) (*ast.Program, error) {
	c.calls.Add(1)
	return c.next.Parse(ctx, content, path)
}

func TestCachedSyntaxSource(t *testing.T) {
	inner := &countingSyntax{next: ast.NewParser()}
	cached, err := NewCachedSyntaxSource(inner, 8)
	require.NoError(t, err)

	ctx := context.Background()
	src := []byte(`class Foo { constructor(a: A) {} }`)

	first, err := cached.Parse(ctx, src, "a.ts")
	require.NoError(t, err)
	second, err := cached.Parse(ctx, src, "b.ts")
	require.NoError(t, err)

	assert.EqualValues(t, 1, inner.calls.Load())
	assert.Equal(t, "a.ts", first.FilePath)
	assert.Equal(t, "b.ts", second.FilePath)
	assert.Equal(t, first.Statements, second.Statements)

	_, err = cached.Parse(ctx, src, "c.tsx")
	require.NoError(t, err)
	assert.EqualValues(t, 2, inner.calls.Load(), "different grammar is a different key")
	assert.Equal(t, 2, cached.Len())

	cached.Purge()
	assert.Equal(t, 0, cached.Len())
}

func TestCachedSyntaxSource_ErrorsNotCached(t *testing.T) {
	inner := &countingSyntax{next: ast.NewParser()}
	cached, err := NewCachedSyntaxSource(inner, 8)
	require.NoError(t, err)

	bad := []byte(`class {`)
	for i := 0; i < 2; i++ {
		_, err := cached.Parse(context.Background(), bad, "bad.ts")
		require.True(t, errors.Is(err, ast.ErrSyntax))
	}
	assert.EqualValues(t, 2, inner.calls.Load())
}

func TestCachedSyntaxSource_WithExtractor(t *testing.T) {
	inner := &countingSyntax{next: ast.NewParser()}
	cached, err := NewCachedSyntaxSource(inner, 8)
	require.NoError(t, err)

	ex := New(WithSyntaxSource(cached), WithFileSource(diamond()))
	for i := 0; i < 3; i++ {
		_, err := ex.ExtractFile(context.Background(), "top.ts")
		require.NoError(t, err)
	}
	assert.EqualValues(t, 4, inner.calls.Load(), "each distinct file parsed once across calls")
}

func TestNewCachedSyntaxSource_InvalidSize(t *testing.T) {
	_, err := NewCachedSyntaxSource(ast.NewParser(), 0)
	assert.Error(t, err)
}
