// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

// Program is the top-level statement list of one source file.
//
// Statements, members, parameters and type expressions are closed sets of
// variants. Consumers switch on the concrete type; the Unknown/Other
// variants carry the raw tree-sitter node kind for anything not modelled.
type Program struct {
	// FilePath is the path the content was parsed under. May be empty.
	FilePath string

	// Language is "typescript" or "tsx".
	Language string

	// Hash is the hex SHA-256 of the parsed content.
	Hash string

	// Statements in source order.
	Statements []Statement
}

// Statement is a top-level program statement.
type Statement interface {
	statementNode()
}

// ImportDeclaration is `import ... from 'source'` or `import 'source'`.
type ImportDeclaration struct {
	// Source is the module specifier without quotes.
	Source string

	// TypeOnly is true for `import type ...`.
	TypeOnly bool
}

// ClassDeclaration is a class declaration or class expression, including
// ambient `declare class` declarations.
type ClassDeclaration struct {
	// Name is empty for anonymous classes.
	Name string

	// Abstract is true for `abstract class`.
	Abstract bool

	// Decorators are decorator names in source order, without '@'.
	Decorators []string

	// Members in source order.
	Members []ClassMember
}

// ExportDeclaration wraps the declaration of an export statement.
type ExportDeclaration struct {
	// Default is true for `export default`.
	Default bool

	// Declaration is the exported declaration. Nil for export lists such
	// as `export { a } from './a'`.
	Declaration Statement
}

// OtherStatement is any statement that is not modelled.
type OtherStatement struct {
	// Kind is the tree-sitter node type.
	Kind string
}

func (ImportDeclaration) statementNode() {}
func (ClassDeclaration) statementNode()  {}
func (ExportDeclaration) statementNode() {}
func (OtherStatement) statementNode()    {}

// ClassMember is one element of a class body.
type ClassMember interface {
	memberNode()
}

// MethodDefinition is a method, including the constructor. Bodiless
// declarations (overloads, ambient classes) have Signature set.
type MethodDefinition struct {
	Name string

	// Constructor is true for the non-static method named "constructor".
	Constructor bool

	Static bool

	// Signature is true for a declaration without a body.
	Signature bool

	// Params in declaration order.
	Params []Parameter
}

// OtherMember is a field, signature, index signature or anything else.
type OtherMember struct {
	Kind string
}

func (MethodDefinition) memberNode() {}
func (OtherMember) memberNode()      {}

// Parameter is one formal parameter.
type Parameter interface {
	parameterNode()
}

// IdentifierParam is a plain named parameter, including optional
// parameters and constructor parameter properties.
type IdentifierParam struct {
	Name string

	// Annotation is nil when the parameter has no type annotation.
	Annotation TypeExpr
}

// RestParam is `...name: T`.
type RestParam struct {
	Name       string
	Annotation TypeExpr
}

// ObjectPatternParam is `{ a, b }: T`.
type ObjectPatternParam struct {
	// Names are the bound field names in source order. A rest element is
	// recorded as "...name".
	Names      []string
	Annotation TypeExpr
}

// ArrayPatternParam is `[a, b]: T`.
type ArrayPatternParam struct {
	Names      []string
	Annotation TypeExpr
}

// UnknownParam is a parameter shape that is not modelled, such as a
// parameter with a default value.
type UnknownParam struct {
	Kind string
}

func (IdentifierParam) parameterNode()    {}
func (RestParam) parameterNode()          {}
func (ObjectPatternParam) parameterNode() {}
func (ArrayPatternParam) parameterNode()  {}
func (UnknownParam) parameterNode()       {}

// TypeExpr is a type annotation expression.
type TypeExpr interface {
	typeNode()
}

// TypeReference is a named type. Generic arguments are dropped: Map<K, V>
// is a reference to "Map".
type TypeReference struct {
	Name string
}

// ArrayType is `T[]`.
type ArrayType struct {
	Element TypeExpr
}

// UnionType is `A | B | C`, flattened.
type UnionType struct {
	Members []TypeExpr
}

// IntersectionType is `A & B & C`, flattened.
type IntersectionType struct {
	Members []TypeExpr
}

// TypeLiteral is an inline object type `{ ... }`.
type TypeLiteral struct{}

// KeywordType is a primitive keyword type.
type KeywordType struct {
	Keyword Keyword
}

// UnknownType is a type expression that is not modelled.
type UnknownType struct {
	Kind string
}

func (TypeReference) typeNode()    {}
func (ArrayType) typeNode()        {}
func (UnionType) typeNode()        {}
func (IntersectionType) typeNode() {}
func (TypeLiteral) typeNode()      {}
func (KeywordType) typeNode()      {}
func (UnknownType) typeNode()      {}

// Keyword is a primitive type keyword.
type Keyword string

// Supported keywords.
const (
	KeywordNull      Keyword = "null"
	KeywordUndefined Keyword = "undefined"
	KeywordUnknown   Keyword = "unknown"
	KeywordAny       Keyword = "any"
	KeywordNumber    Keyword = "number"
	KeywordString    Keyword = "string"
	KeywordBigInt    Keyword = "bigint"
	KeywordBoolean   Keyword = "boolean"
	KeywordVoid      Keyword = "void"
)

var keywords = map[string]Keyword{
	"null":      KeywordNull,
	"undefined": KeywordUndefined,
	"unknown":   KeywordUnknown,
	"any":       KeywordAny,
	"number":    KeywordNumber,
	"string":    KeywordString,
	"bigint":    KeywordBigInt,
	"boolean":   KeywordBoolean,
	"void":      KeywordVoid,
}

// LookupKeyword returns the Keyword spelled text.
func LookupKeyword(text string) (Keyword, bool) {
	kw, ok := keywords[text]
	return kw, ok
}
