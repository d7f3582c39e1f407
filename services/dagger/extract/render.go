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
	"fmt"
	"strings"

	"github.com/AleutianAI/tsdagger/services/dagger/ast"
)

// NoAnnotation is the type text of a parameter declared without a type.
const NoAnnotation = ""

// Placeholder type texts.
const (
	typeLiteralText      = "{TypeLiteral}"
	objectPatternDefault = "{}"
	arrayPatternDefault  = "[]"
)

// ParseResult is the dependency record of one class.
type ParseResult struct {
	// ClassName is "?" for anonymous classes.
	ClassName string `json:"className"`

	// Params are the constructor parameters in declaration order. Never nil.
	Params []ParamResult `json:"params"`
}

// ParamResult is one rendered constructor parameter.
type ParamResult struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// AnonymousClassName is the ClassName of a class without a name.
const AnonymousClassName = "?"

// renderClass builds the ParseResult for one class declaration.
func renderClass(cls ast.ClassDeclaration) (ParseResult, error) {
	result := ParseResult{
		ClassName: cls.Name,
		Params:    make([]ParamResult, 0),
	}
	if result.ClassName == "" {
		result.ClassName = AnonymousClassName
	}

	ctor, ok := constructorOf(cls)
	if !ok {
		return result, nil
	}

	for i, p := range ctor.Params {
		rendered, err := renderParam(p)
		if err != nil {
			return ParseResult{}, fmt.Errorf("class %s parameter %d: %w", result.ClassName, i, err)
		}
		result.Params = append(result.Params, rendered)
	}
	return result, nil
}

// constructorOf returns the constructor implementation, or the first
// constructor signature when the class has no implementation (ambient
// classes).
func constructorOf(cls ast.ClassDeclaration) (ast.MethodDefinition, bool) {
	var (
		signature ast.MethodDefinition
		found     bool
	)
	for _, member := range cls.Members {
		m, ok := member.(ast.MethodDefinition)
		if !ok || !m.Constructor {
			continue
		}
		if !m.Signature {
			return m, true
		}
		if !found {
			signature, found = m, true
		}
	}
	return signature, found
}

// renderParam renders one parameter by syntactic shape.
func renderParam(p ast.Parameter) (ParamResult, error) {
	switch p := p.(type) {
	case ast.IdentifierParam:
		typ, err := renderAnnotation(p.Annotation, NoAnnotation)
		if err != nil {
			return ParamResult{}, err
		}
		return ParamResult{Name: p.Name, Type: typ}, nil

	case ast.RestParam:
		typ, err := renderAnnotation(p.Annotation, NoAnnotation)
		if err != nil {
			return ParamResult{}, err
		}
		return ParamResult{Name: "..." + p.Name, Type: typ}, nil

	case ast.ObjectPatternParam:
		typ, err := renderAnnotation(p.Annotation, objectPatternDefault)
		if err != nil {
			return ParamResult{}, err
		}
		name := "{}"
		if len(p.Names) > 0 {
			name = "{ " + strings.Join(p.Names, ", ") + " }"
		}
		return ParamResult{Name: name, Type: typ}, nil

	case ast.ArrayPatternParam:
		typ, err := renderAnnotation(p.Annotation, arrayPatternDefault)
		if err != nil {
			return ParamResult{}, err
		}
		return ParamResult{Name: "[" + strings.Join(p.Names, ", ") + "]", Type: typ}, nil

	case ast.UnknownParam:
		return ParamResult{}, fmt.Errorf("%w: %s", ErrUnsupportedParameterShape, p.Kind)

	default:
		return ParamResult{}, fmt.Errorf("%w: %T", ErrUnsupportedParameterShape, p)
	}
}

// renderAnnotation renders t, or returns fallback when t is absent.
func renderAnnotation(t ast.TypeExpr, fallback string) (string, error) {
	if t == nil {
		return fallback, nil
	}
	return renderType(t)
}

// renderType renders a type expression recursively.
func renderType(t ast.TypeExpr) (string, error) {
	switch t := t.(type) {
	case ast.TypeReference:
		return t.Name, nil
	case ast.ArrayType:
		elem, err := renderType(t.Element)
		if err != nil {
			return "", err
		}
		return elem + "[]", nil
	case ast.UnionType:
		return renderJoined(t.Members, " | ")
	case ast.IntersectionType:
		return renderJoined(t.Members, " & ")
	case ast.TypeLiteral:
		return typeLiteralText, nil
	case ast.KeywordType:
		return string(t.Keyword), nil
	case ast.UnknownType:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTypeExpression, t.Kind)
	case nil:
		return "", fmt.Errorf("%w: missing type", ErrUnsupportedTypeExpression)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedTypeExpression, t)
	}
}

func renderJoined(members []ast.TypeExpr, sep string) (string, error) {
	parts := make([]string, 0, len(members))
	for _, m := range members {
		s, err := renderType(m)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, sep), nil
}
