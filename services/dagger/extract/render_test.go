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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
)

func TestRenderType(t *testing.T) {
	tests := []struct {
		name string
		in   ast.TypeExpr
		want string
	}{
		{"reference", ast.TypeReference{Name: "Foo"}, "Foo"},
		{"nested array", ast.ArrayType{Element: ast.ArrayType{Element: ast.KeywordType{Keyword: ast.KeywordNumber}}}, "number[][]"},
		{"union", ast.UnionType{Members: []ast.TypeExpr{ast.TypeReference{Name: "A"}, ast.KeywordType{Keyword: ast.KeywordNull}}}, "A | null"},
		{"intersection of union", ast.IntersectionType{Members: []ast.TypeExpr{
			ast.UnionType{Members: []ast.TypeExpr{ast.TypeReference{Name: "A"}, ast.TypeReference{Name: "B"}}},
			ast.TypeReference{Name: "C"},
		}}, "A | B & C"},
		{"literal", ast.TypeLiteral{}, "{TypeLiteral}"},
		{"bigint", ast.KeywordType{Keyword: ast.KeywordBigInt}, "bigint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderType_Unsupported(t *testing.T) {
	_, err := renderType(ast.ArrayType{Element: ast.UnknownType{Kind: "function_type"}})
	require.ErrorIs(t, err, ErrUnsupportedTypeExpression)
	assert.Contains(t, err.Error(), "function_type")
}

func TestRenderParam(t *testing.T) {
	tests := []struct {
		name string
		in   ast.Parameter
		want ParamResult
	}{
		{"identifier", ast.IdentifierParam{Name: "a", Annotation: ast.TypeReference{Name: "A"}}, ParamResult{"a", "A"}},
		{"identifier without annotation", ast.IdentifierParam{Name: "a"}, ParamResult{"a", NoAnnotation}},
		{"rest without annotation", ast.RestParam{Name: "xs"}, ParamResult{"...xs", NoAnnotation}},
		{"empty object pattern", ast.ObjectPatternParam{}, ParamResult{"{}", "{}"}},
		{"object pattern with rest", ast.ObjectPatternParam{Names: []string{"a", "...rest"}}, ParamResult{"{ a, ...rest }", "{}"}},
		{"empty array pattern", ast.ArrayPatternParam{}, ParamResult{"[]", "[]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := renderParam(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderClass_NoConstructor(t *testing.T) {
	got, err := renderClass(ast.ClassDeclaration{Members: []ast.ClassMember{
		ast.OtherMember{Kind: "public_field_definition"},
		ast.MethodDefinition{Name: "constructor", Static: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, AnonymousClassName, got.ClassName)
	assert.NotNil(t, got.Params)
	assert.Empty(t, got.Params)
}
