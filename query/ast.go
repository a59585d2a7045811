// Package query defines the query plan the mapper compiles to Cypher: an
// explicit expression and operator tree built by the typed queryable API.
// The tree is data, not behavior; compilation walks it strictly left to
// right and either produces a parameterized Cypher statement or fails fast
// with an unsupported-shape error. It never guesses.
package query

import (
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// Expr is a node in a predicate expression tree.
type Expr interface{ isExpr() }

// PropertyRef references a property of the current query element by Go field
// name or wire name.
type PropertyRef struct {
	Name string
}

func (PropertyRef) isExpr() {}

// Constant is a literal operand. Constants always compile to bound
// parameters, never inline literals.
type Constant struct {
	Value any
}

func (Constant) isExpr() {}

// BinaryOperator enumerates the binary operators with a Cypher rendering.
type BinaryOperator int

const (
	OpEqual BinaryOperator = iota
	OpNotEqual
	OpGreater
	OpGreaterOrEqual
	OpLess
	OpLessOrEqual
	OpAnd
	OpOr
	OpContains
	OpStartsWith
	OpEndsWith
	OpIn
)

// Binary combines two expressions with an operator.
type Binary struct {
	Op    BinaryOperator
	Left  Expr
	Right Expr
}

func (Binary) isExpr() {}

// NotExpr negates its operand.
type NotExpr struct {
	Operand Expr
}

func (NotExpr) isExpr() {}

// Prop references a property of the current query element.
func Prop(name string) PropertyRef { return PropertyRef{Name: name} }

// Eq, Ne, Gt, Ge, Lt, and Le build comparison predicates against a constant
// or another expression.
func (p PropertyRef) Eq(v any) Expr { return Binary{Op: OpEqual, Left: p, Right: operand(v)} }
func (p PropertyRef) Ne(v any) Expr { return Binary{Op: OpNotEqual, Left: p, Right: operand(v)} }
func (p PropertyRef) Gt(v any) Expr { return Binary{Op: OpGreater, Left: p, Right: operand(v)} }
func (p PropertyRef) Ge(v any) Expr { return Binary{Op: OpGreaterOrEqual, Left: p, Right: operand(v)} }
func (p PropertyRef) Lt(v any) Expr { return Binary{Op: OpLess, Left: p, Right: operand(v)} }
func (p PropertyRef) Le(v any) Expr { return Binary{Op: OpLessOrEqual, Left: p, Right: operand(v)} }

// Contains, StartsWith, and EndsWith build string predicates.
func (p PropertyRef) Contains(v any) Expr   { return Binary{Op: OpContains, Left: p, Right: operand(v)} }
func (p PropertyRef) StartsWith(v any) Expr { return Binary{Op: OpStartsWith, Left: p, Right: operand(v)} }
func (p PropertyRef) EndsWith(v any) Expr   { return Binary{Op: OpEndsWith, Left: p, Right: operand(v)} }

// In builds a membership predicate over a list of values.
func (p PropertyRef) In(values ...any) Expr {
	return Binary{Op: OpIn, Left: p, Right: Constant{Value: values}}
}

// And joins predicates conjunctively.
func And(left, right Expr) Expr { return Binary{Op: OpAnd, Left: left, Right: right} }

// Or joins predicates disjunctively.
func Or(left, right Expr) Expr { return Binary{Op: OpOr, Left: left, Right: right} }

// Not negates a predicate.
func Not(e Expr) Expr { return NotExpr{Operand: e} }

func operand(v any) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	return Constant{Value: v}
}

// Op is one operator in a query plan.
type Op interface{ isOp() }

// FilterOp narrows the current element set with a predicate.
type FilterOp struct {
	Predicate Expr
}

func (FilterOp) isOp() {}

// ProjectOp changes the result shape to a subset of properties. Detection is
// structural: the result type differs from the source element type.
type ProjectOp struct {
	// Fields are the projected property names in projection order.
	Fields []string
	// ResultType is the projected element type, when statically known.
	ResultType reflect.Type
}

func (ProjectOp) isOp() {}

// OrderKey is one ordering criterion.
type OrderKey struct {
	Property   string
	Descending bool
}

// OrderByOp orders the result set; later keys break ties of earlier ones.
type OrderByOp struct {
	Keys []OrderKey
}

func (OrderByOp) isOp() {}

// SkipOp drops the first Count results.
type SkipOp struct{ Count int }

func (SkipOp) isOp() {}

// TakeOp truncates the result set to Count results.
type TakeOp struct{ Count int }

func (TakeOp) isOp() {}

// CountOp replaces the result set with its cardinality.
type CountOp struct{}

func (CountOp) isOp() {}

// TraverseOp records a pending traversal: follow relationships of the given
// type from the current element to target nodes. The traversal is not
// compiled until a PathSegmentOp finalizes it into a complete pattern.
type TraverseOp struct {
	RelationshipType reflect.Type
	TargetType       reflect.Type
	Direction        model.RelationshipDirection
}

func (TraverseOp) isOp() {}

// PathSegmentOp finalizes a pending traversal into a self-contained
// (source)-[relationship]->(target) pattern and requests that all three
// components be returned, whatever the caller ultimately projects.
type PathSegmentOp struct{}

func (PathSegmentOp) isOp() {}

// Plan is one query: a typed source and an ordered operator chain. Append
// copies, so a shared prefix can branch safely the way the original
// traversal builder did.
type Plan struct {
	// SourceType is the statically requested element type.
	SourceType reflect.Type
	// SourceIsRelationship selects the relationship match form for the
	// source pattern.
	SourceIsRelationship bool
	Ops                  []Op
}

// NewPlan starts a plan over the given source type.
func NewPlan(sourceType reflect.Type, sourceIsRelationship bool) *Plan {
	return &Plan{SourceType: sourceType, SourceIsRelationship: sourceIsRelationship}
}

// Append returns a new plan with the operator added; the receiver is not
// modified.
func (p *Plan) Append(op Op) *Plan {
	ops := make([]Op, len(p.Ops), len(p.Ops)+1)
	copy(ops, p.Ops)
	return &Plan{
		SourceType:           p.SourceType,
		SourceIsRelationship: p.SourceIsRelationship,
		Ops:                  append(ops, op),
	}
}
