package query

import (
	"fmt"
	"strings"
)

// Builder accumulates the clauses of one Cypher statement: MATCH fragments,
// a conjunctive WHERE predicate, OPTIONAL MATCH fragments, a RETURN clause,
// ordering and paging, and the parameter table. Constants are always bound
// by generated parameter name, never inlined into the statement text.
type Builder struct {
	matches         []string
	optionalMatches []string
	where           []string
	returns         []string
	orderBy         []string
	skipParam       string
	limitParam      string

	params   map[string]any
	paramSeq int

	pathSegments bool
}

// NewBuilder returns an empty statement builder.
func NewBuilder() *Builder {
	return &Builder{params: make(map[string]any)}
}

// AddMatch appends a MATCH pattern fragment.
func (b *Builder) AddMatch(pattern string) {
	b.matches = append(b.matches, pattern)
}

// ClearMatches discards every accumulated MATCH and OPTIONAL MATCH fragment.
// A path-segment traversal must be a complete, self-contained pattern; it
// cannot be layered on top of unrelated prior matches.
func (b *Builder) ClearMatches() {
	b.matches = nil
	b.optionalMatches = nil
}

// AddOptionalMatch appends an OPTIONAL MATCH fragment, which may carry its
// own embedded WHERE line.
func (b *Builder) AddOptionalMatch(pattern string) {
	b.optionalMatches = append(b.optionalMatches, pattern)
}

// AddWhere appends a predicate fragment; fragments join with AND.
func (b *Builder) AddWhere(fragment string) {
	b.where = append(b.where, fragment)
}

// AddReturn appends a RETURN expression.
func (b *Builder) AddReturn(expression string) {
	b.returns = append(b.returns, expression)
}

// SetReturns replaces the RETURN clause.
func (b *Builder) SetReturns(expressions ...string) {
	b.returns = append([]string{}, expressions...)
}

// AddOrderBy appends an ordering criterion.
func (b *Builder) AddOrderBy(expression string, descending bool) {
	if descending {
		expression += " DESC"
	}
	b.orderBy = append(b.orderBy, expression)
}

// SetSkip and SetLimit bind paging bounds as parameters.
func (b *Builder) SetSkip(n int)  { b.skipParam = b.BindParameter(n) }
func (b *Builder) SetLimit(n int) { b.limitParam = b.BindParameter(n) }

// BindParameter stores a value in the parameter table and returns its
// placeholder, e.g. "$p0".
func (b *Builder) BindParameter(v any) string {
	name := fmt.Sprintf("p%d", b.paramSeq)
	b.paramSeq++
	b.params[name] = v
	return "$" + name
}

// EnablePathSegmentLoading flags that the executor must return the full
// start/relationship/end triple for post-processing, not just the caller's
// projection.
func (b *Builder) EnablePathSegmentLoading() { b.pathSegments = true }

// PathSegmentLoadingEnabled reports whether the triple was requested.
func (b *Builder) PathSegmentLoadingEnabled() bool { return b.pathSegments }

// Build assembles the statement text and parameter table.
func (b *Builder) Build() (string, map[string]any, error) {
	if len(b.matches) == 0 {
		return "", nil, fmt.Errorf("query has no MATCH pattern")
	}
	if len(b.returns) == 0 {
		return "", nil, fmt.Errorf("query has no RETURN clause")
	}

	var sb strings.Builder
	for _, m := range b.matches {
		sb.WriteString("MATCH ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	if len(b.where) > 0 {
		sb.WriteString("WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
		sb.WriteString("\n")
	}
	for _, m := range b.optionalMatches {
		sb.WriteString("OPTIONAL MATCH ")
		sb.WriteString(m)
		sb.WriteString("\n")
	}
	sb.WriteString("RETURN ")
	sb.WriteString(strings.Join(b.returns, ", "))
	if len(b.orderBy) > 0 {
		sb.WriteString("\nORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}
	if b.skipParam != "" {
		sb.WriteString("\nSKIP ")
		sb.WriteString(b.skipParam)
	}
	if b.limitParam != "" {
		sb.WriteString("\nLIMIT ")
		sb.WriteString(b.limitParam)
	}
	return sb.String(), b.params, nil
}
