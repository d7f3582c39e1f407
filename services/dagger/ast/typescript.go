// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast turns TypeScript source text into a typed statement tree.
//
// Only the shapes needed to recover constructor dependencies are modelled:
// imports, classes (plain, abstract, exported), constructor parameters and
// their type annotations. Everything else is kept as an Other/Unknown
// variant tagged with its tree-sitter node type.
package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ParserOption configures a Parser instance.
type ParserOption func(*Parser)

// WithMaxFileSize sets the maximum content size the parser will accept.
//
// Parameters:
//   - bytes: Maximum size in bytes. Non-positive values are ignored.
//
// Example:
//
//	parser := NewParser(WithMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithMaxFileSize(bytes int64) ParserOption {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// Parser parses TypeScript source into a Program.
//
// Description:
//
//	Parser uses tree-sitter with the TypeScript grammar (TSX for .tsx
//	paths) and converts the concrete syntax tree into the closed variant
//	types of this package.
//
// Thread Safety:
//
//	Parser instances are safe for concurrent use. Each Parse call creates
//	its own tree-sitter parser internally.
type Parser struct {
	maxFileSize int64
}

// NewParser creates a Parser with the given options.
//
// Outputs:
//   - *Parser: Configured parser instance, never nil
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse converts TypeScript source into a Program.
//
// Description:
//
//	Validates the content, parses it with tree-sitter, and converts every
//	top-level statement. Unlike a symbol indexer this parser is strict: a
//	tree containing syntax errors is rejected, because a dependency graph
//	built from a partially understood file would be silently wrong.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - filePath: Path used for grammar selection and error messages. May be empty.
//
// Outputs:
//   - *Program: The converted program. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, ErrSyntax, or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *Parser) Parse(ctx context.Context, content []byte, filePath string) (*Program, error) {
	language := "typescript"
	if strings.HasSuffix(filePath, ".tsx") {
		language = "tsx"
	}

	ctx, span := startParseSpan(ctx, language, filePath, len(content))
	defer span.End()

	start := time.Now()
	fail := func(err error) (*Program, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordParseMetrics(language, time.Since(start), 0, false)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("parse canceled before start: %w", err))
	}

	if int64(len(content)) > p.maxFileSize {
		return fail(fmt.Errorf("%w: %s size %d exceeds limit %d", ErrFileTooLarge, displayPath(filePath), len(content), p.maxFileSize))
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		return fail(fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidContent, displayPath(filePath)))
	}

	hash := sha256.Sum256(content)

	parser := sitter.NewParser()
	if language == "tsx" {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return fail(fmt.Errorf("tree-sitter parse failed: %w", err))
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("parse canceled after tree-sitter: %w", err))
	}

	root := tree.RootNode()
	if root == nil {
		return fail(fmt.Errorf("%w: %s: tree-sitter returned nil root node", ErrSyntax, displayPath(filePath)))
	}
	if root.HasError() {
		return fail(fmt.Errorf("%w: %s near line %d", ErrSyntax, displayPath(filePath), firstErrorLine(root)))
	}

	prog := &Program{
		FilePath:   filePath,
		Language:   language,
		Hash:       hex.EncodeToString(hash[:]),
		Statements: make([]Statement, 0, int(root.NamedChildCount())),
	}

	c := converter{content: content}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child == nil || child.Type() == "comment" {
			continue
		}
		prog.Statements = append(prog.Statements, c.statement(child))
	}

	span.SetAttributes(attribute.Int("statements", len(prog.Statements)))
	recordParseMetrics(language, time.Since(start), len(prog.Statements), true)

	return prog, nil
}

func displayPath(filePath string) string {
	if filePath == "" {
		return "<source>"
	}
	return filePath
}

// firstErrorLine returns the 1-based line of the first ERROR or missing node.
func firstErrorLine(node *sitter.Node) int {
	if node.Type() == "ERROR" || node.IsMissing() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil && child.HasError() {
			return firstErrorLine(child)
		}
	}
	return int(node.StartPoint().Row) + 1
}

// converter maps tree-sitter nodes onto Program variants.
type converter struct {
	content []byte
}

func (c converter) text(node *sitter.Node) string {
	return string(c.content[node.StartByte():node.EndByte()])
}

// statement converts one top-level statement.
func (c converter) statement(node *sitter.Node) Statement {
	switch node.Type() {
	case "import_statement":
		return c.importStatement(node)
	case "class_declaration", "class":
		return c.class(node, nil)
	case "abstract_class_declaration":
		cls := c.class(node, nil)
		cls.Abstract = true
		return cls
	case "ambient_declaration":
		if cls, ok := c.ambientClass(node, nil); ok {
			return cls
		}
		return OtherStatement{Kind: node.Type()}
	case "export_statement":
		return c.exportStatement(node)
	default:
		return OtherStatement{Kind: node.Type()}
	}
}

// ambientClass unwraps `declare [abstract] class ...`. It reports false
// for any other ambient declaration.
func (c converter) ambientClass(node *sitter.Node, decorators []string) (ClassDeclaration, bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "class_declaration", "class":
			return c.class(child, decorators), true
		case "abstract_class_declaration":
			cls := c.class(child, decorators)
			cls.Abstract = true
			return cls, true
		}
	}
	return ClassDeclaration{}, false
}

// importStatement handles ES module import statements.
func (c converter) importStatement(node *sitter.Node) ImportDeclaration {
	var imp ImportDeclaration
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "type":
			imp.TypeOnly = true
		case "string":
			imp.Source = c.stringContent(child)
		}
	}
	return imp
}

// exportStatement unwraps `export [default] <declaration>`.
func (c converter) exportStatement(node *sitter.Node) ExportDeclaration {
	var (
		exp        ExportDeclaration
		decorators []string
	)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "decorator":
			if name := c.decoratorName(child); name != "" {
				decorators = append(decorators, name)
			}
		case "default":
			exp.Default = true
		case "class_declaration", "class":
			exp.Declaration = c.class(child, decorators)
		case "abstract_class_declaration":
			cls := c.class(child, decorators)
			cls.Abstract = true
			exp.Declaration = cls
		case "ambient_declaration":
			if cls, ok := c.ambientClass(child, decorators); ok {
				exp.Declaration = cls
			}
		}
	}

	if exp.Declaration != nil {
		return exp
	}
	if decl := node.ChildByFieldName("declaration"); decl != nil {
		exp.Declaration = OtherStatement{Kind: decl.Type()}
	} else if value := node.ChildByFieldName("value"); value != nil {
		exp.Declaration = OtherStatement{Kind: value.Type()}
	}
	return exp
}

// class converts a class declaration, abstract class declaration or class
// expression. Leading decorators from an enclosing export are prepended.
func (c converter) class(node *sitter.Node, decorators []string) ClassDeclaration {
	cls := ClassDeclaration{
		Decorators: append([]string(nil), decorators...),
		Members:    make([]ClassMember, 0),
	}

	var body *sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "decorator":
			if name := c.decoratorName(child); name != "" {
				cls.Decorators = append(cls.Decorators, name)
			}
		case "type_identifier", "identifier":
			if cls.Name == "" {
				cls.Name = c.text(child)
			}
		case "class_body":
			body = child
		}
	}

	if body != nil {
		for i := 0; i < int(body.NamedChildCount()); i++ {
			member := body.NamedChild(i)
			if member == nil || member.Type() == "comment" || member.Type() == "decorator" {
				continue
			}
			cls.Members = append(cls.Members, c.member(member))
		}
	}

	return cls
}

// member converts one class body element.
func (c converter) member(node *sitter.Node) ClassMember {
	var m MethodDefinition
	switch node.Type() {
	case "method_definition":
	case "method_signature":
		m.Signature = true
	default:
		return OtherMember{Kind: node.Type()}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "static":
			m.Static = true
		case "property_identifier":
			m.Name = c.text(child)
		case "string":
			// "constructor"(a: A) {} names the constructor too.
			m.Name = c.stringContent(child)
		case "formal_parameters":
			m.Params = c.params(child)
		}
	}
	m.Constructor = m.Name == "constructor" && !m.Static
	return m
}

// params converts a formal_parameters node, preserving order.
func (c converter) params(node *sitter.Node) []Parameter {
	params := make([]Parameter, 0, int(node.NamedChildCount()))
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "comment":
			continue
		case "required_parameter", "optional_parameter":
			params = append(params, c.param(child))
		default:
			params = append(params, UnknownParam{Kind: child.Type()})
		}
	}
	return params
}

// param converts a required_parameter or optional_parameter.
func (c converter) param(node *sitter.Node) Parameter {
	var annotation TypeExpr
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "type_annotation" {
			annotation = c.typeAnnotation(child)
		}
	}

	if value := node.ChildByFieldName("value"); value != nil {
		return UnknownParam{Kind: "assignment_pattern"}
	}

	pattern := node.ChildByFieldName("pattern")
	if pattern == nil {
		return UnknownParam{Kind: node.Type()}
	}

	switch pattern.Type() {
	case "identifier", "this":
		return IdentifierParam{Name: c.text(pattern), Annotation: annotation}
	case "rest_pattern":
		name, ok := c.restName(pattern)
		if !ok {
			return UnknownParam{Kind: "rest_pattern"}
		}
		return RestParam{Name: name, Annotation: annotation}
	case "object_pattern":
		names, ok := c.objectPatternNames(pattern)
		if !ok {
			return UnknownParam{Kind: "object_pattern"}
		}
		return ObjectPatternParam{Names: names, Annotation: annotation}
	case "array_pattern":
		names, ok := c.arrayPatternNames(pattern)
		if !ok {
			return UnknownParam{Kind: "array_pattern"}
		}
		return ArrayPatternParam{Names: names, Annotation: annotation}
	default:
		return UnknownParam{Kind: pattern.Type()}
	}
}

// restName returns the identifier bound by `...name`.
func (c converter) restName(node *sitter.Node) (string, bool) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "identifier" {
			return c.text(child), true
		}
	}
	return "", false
}

// objectPatternNames lists the names bound by an object pattern.
// Nested patterns are not supported.
func (c converter) objectPatternNames(node *sitter.Node) ([]string, bool) {
	names := make([]string, 0, int(node.NamedChildCount()))
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "comment":
		case "shorthand_property_identifier_pattern", "shorthand_property_identifier":
			names = append(names, c.text(child))
		case "pair_pattern":
			value := child.ChildByFieldName("value")
			if value == nil || value.Type() != "identifier" {
				return nil, false
			}
			names = append(names, c.text(value))
		case "object_assignment_pattern":
			left := child.ChildByFieldName("left")
			if left == nil {
				return nil, false
			}
			names = append(names, c.text(left))
		case "rest_pattern":
			name, ok := c.restName(child)
			if !ok {
				return nil, false
			}
			names = append(names, "..."+name)
		default:
			return nil, false
		}
	}
	return names, true
}

// arrayPatternNames lists the names bound by an array pattern.
func (c converter) arrayPatternNames(node *sitter.Node) ([]string, bool) {
	names := make([]string, 0, int(node.NamedChildCount()))
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "comment":
		case "identifier":
			names = append(names, c.text(child))
		case "assignment_pattern":
			left := child.ChildByFieldName("left")
			if left == nil || left.Type() != "identifier" {
				return nil, false
			}
			names = append(names, c.text(left))
		case "rest_pattern":
			name, ok := c.restName(child)
			if !ok {
				return nil, false
			}
			names = append(names, "..."+name)
		default:
			return nil, false
		}
	}
	return names, true
}

// typeAnnotation converts the type inside a `: T` annotation.
func (c converter) typeAnnotation(node *sitter.Node) TypeExpr {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "comment" {
			return c.typeExpr(child)
		}
	}
	return nil
}

// typeExpr converts a type node. Parentheses are transparent.
func (c converter) typeExpr(node *sitter.Node) TypeExpr {
	switch node.Type() {
	case "type_identifier", "nested_type_identifier":
		text := c.text(node)
		if kw, ok := LookupKeyword(text); ok {
			return KeywordType{Keyword: kw}
		}
		return TypeReference{Name: text}
	case "generic_type":
		if name := node.ChildByFieldName("name"); name != nil {
			return TypeReference{Name: c.text(name)}
		}
		return UnknownType{Kind: "generic_type"}
	case "predefined_type":
		text := c.text(node)
		if kw, ok := LookupKeyword(text); ok {
			return KeywordType{Keyword: kw}
		}
		return UnknownType{Kind: "predefined_type " + text}
	case "literal_type":
		if node.NamedChildCount() > 0 {
			inner := node.NamedChild(0)
			if kw, ok := LookupKeyword(inner.Type()); ok && (kw == KeywordNull || kw == KeywordUndefined) {
				return KeywordType{Keyword: kw}
			}
		}
		if kw, ok := LookupKeyword(c.text(node)); ok && (kw == KeywordNull || kw == KeywordUndefined) {
			return KeywordType{Keyword: kw}
		}
		return UnknownType{Kind: "literal_type"}
	case "array_type":
		if node.NamedChildCount() == 0 {
			return UnknownType{Kind: "array_type"}
		}
		return ArrayType{Element: c.typeExpr(node.NamedChild(0))}
	case "union_type":
		return UnionType{Members: c.flatten(node, "union_type")}
	case "intersection_type":
		return IntersectionType{Members: c.flatten(node, "intersection_type")}
	case "object_type":
		return TypeLiteral{}
	case "parenthesized_type":
		if node.NamedChildCount() == 0 {
			return UnknownType{Kind: "parenthesized_type"}
		}
		return c.typeExpr(node.NamedChild(0))
	default:
		return UnknownType{Kind: node.Type()}
	}
}

// flatten collects the operands of a left-nested union or intersection.
func (c converter) flatten(node *sitter.Node, kind string) []TypeExpr {
	members := make([]TypeExpr, 0, int(node.NamedChildCount()))
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		if child.Type() == kind {
			members = append(members, c.flatten(child, kind)...)
			continue
		}
		members = append(members, c.typeExpr(child))
	}
	return members
}

// decoratorName extracts the name from a decorator node.
// @Injectable and @Injectable() both yield "Injectable".
func (c converter) decoratorName(node *sitter.Node) string {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "identifier", "member_expression":
			return c.text(child)
		case "call_expression":
			if fn := child.ChildByFieldName("function"); fn != nil {
				return c.text(fn)
			}
		}
	}
	return ""
}

// stringContent extracts the content from a string node.
func (c converter) stringContent(node *sitter.Node) string {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.Type() == "string_fragment" {
			return c.text(child)
		}
	}
	// Fallback: strip quotes from raw content
	return strings.Trim(c.text(node), `"'`)
}
