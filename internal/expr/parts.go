// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"strings"
)

// A queryPart represents a section of a parsed statement. The parsed
// statement is represented as a list of queryParts.
type queryPart interface {
	// String returns a string representation of the part for debugging and
	// testing purposes.
	String() string

	// part is a marker method.
	part()
}

// inputPart represents a parsed input expression.
type inputPart struct {
	// name is the parameter key the value is fetched from.
	name string
	// slice is set for inputs of the form $name[:].
	slice bool
	raw   string
}

func (p *inputPart) String() string {
	if p.slice {
		return "inputPart[" + p.name + "[:]]"
	}
	return "inputPart[" + p.name + "]"
}

// Marker function for queryPart.
func (p *inputPart) part() {}

// bypassPart represents a part of the statement that is passed to the
// database verbatim.
type bypassPart struct {
	chunk string
}

func (p *bypassPart) String() string {
	return "bypassPart[" + p.chunk + "]"
}

// Marker function for queryPart.
func (p *bypassPart) part() {}

// ParsedExpr is the AST representation of a statement.
type ParsedExpr struct {
	parts []queryPart
}

// String returns a textual representation of the AST for debugging and
// testing purposes.
func (pe *ParsedExpr) String() string {
	var sb strings.Builder
	sb.WriteString("ParsedExpr[")
	for i, p := range pe.parts {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(p.String())
	}
	sb.WriteString("]")
	return sb.String()
}

// Inputs returns the keys referenced by input expressions, in order of first
// appearance.
func (pe *ParsedExpr) Inputs() []string {
	var names []string
	seen := map[string]bool{}
	for _, p := range pe.parts {
		if in, ok := p.(*inputPart); ok && !seen[in.name] {
			seen[in.name] = true
			names = append(names, in.name)
		}
	}
	return names
}
