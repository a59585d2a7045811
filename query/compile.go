package query

import (
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/bridge"
	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
)

// Result column names shared between the compiler and the result processor.
// These are structural keys: a record missing the key its dispatch branch
// expects is malformed, not skippable.
const (
	ColumnNode              = "Node"
	ColumnComplexProperties = "ComplexProperties"
	ColumnStartNode         = "StartNode"
	ColumnRelationship      = "Relationship"
	ColumnEndNode           = "EndNode"
	ColumnCount             = "Count"
)

// ResultShape tells the result processor which dispatch branch the compiled
// query's records belong to.
type ResultShape int

const (
	// ShapeNodes returns one root node per record plus its flattened
	// complex-property tuples.
	ShapeNodes ResultShape = iota
	// ShapeRelationships returns a path-segment triple per record from
	// which the relationship is extracted.
	ShapeRelationships
	// ShapePathSegments returns the full start/relationship/end triple.
	ShapePathSegments
	// ShapeProjection returns per-column projected values.
	ShapeProjection
	// ShapeCount returns a single cardinality column.
	ShapeCount
)

// Compiled is the output of query compilation: statement text, bound
// parameters, and enough shape metadata for result processing.
type Compiled struct {
	Cypher     string
	Parameters map[string]any

	Shape ResultShape
	// RootType is the statically requested element type.
	RootType reflect.Type
	// RelationshipType and TargetType describe a finalized traversal.
	RelationshipType reflect.Type
	TargetType       reflect.Type
	// Projection lists the projected wire names for ShapeProjection, or the
	// post-processing projection applied on top of a path-segment triple.
	Projection []string
	// LoadsPathSegments reports that the executor returns the full triple.
	LoadsPathSegments bool
}

// Compile walks the plan's operators strictly in order and builds the Cypher
// statement. Any operator arrangement without a compilation rule fails here
// with UnsupportedQueryShape; compilation never emits a best-effort pattern.
func Compile(p *Plan, schemas *schema.Registry) (*Compiled, error) {
	if p == nil || p.SourceType == nil {
		return nil, gmerrors.NewUnsupportedQueryShape("empty plan", "a query needs a source type")
	}
	c := &compiler{
		b:          NewBuilder(),
		schemas:    schemas,
		aliases:    make(map[reflect.Type]string),
		aliasCount: make(map[string]int),
		plan:       p,
	}
	if err := c.visitSource(); err != nil {
		return nil, err
	}
	for _, op := range p.Ops {
		if err := c.visit(op); err != nil {
			return nil, err
		}
	}
	return c.finish()
}

// compiler holds the single-compilation state machine: the pattern builder,
// the alias scope, and the pending-traversal bookkeeping.
type compiler struct {
	b       *Builder
	schemas *schema.Registry
	plan    *Plan

	// aliases maps each entity type to its chosen alias. First seen wins
	// and stays stable for the rest of the compilation.
	aliases    map[reflect.Type]string
	aliasCount map[string]int

	current     string
	currentType reflect.Type

	pending   *TraverseOp
	finalized bool

	shape      ResultShape
	projection []string
	countAlias string

	relType reflect.Type
	tgtType reflect.Type
}

func (c *compiler) visitSource() error {
	t := derefType(c.plan.SourceType)
	if c.plan.SourceIsRelationship {
		return c.matchRelationshipSource(t)
	}

	alias := c.aliasFor(t)
	c.current = alias
	c.currentType = t
	c.shape = ShapeNodes
	c.b.AddMatch(fmt.Sprintf("(%s%s)", alias, labelFragment(c.schemaLabel(t))))
	return nil
}

// matchRelationshipSource compiles a relationship-rooted query. The match is
// always the full triple: endpoint ids and labels are needed to synthesize
// StartNodeId/EndNodeId and resolve polymorphic types during processing.
func (c *compiler) matchRelationshipSource(t reflect.Type) error {
	src := c.freshAlias("src")
	rel := c.freshAlias("rel")
	tgt := c.freshAlias("tgt")

	c.current = rel
	c.currentType = t
	c.shape = ShapeRelationships
	c.relType = t

	c.b.AddMatch(fmt.Sprintf("(%s)-[%s%s]->(%s)", src, rel, labelFragment(c.schemaLabel(t)), tgt))
	c.b.EnablePathSegmentLoading()
	c.b.SetReturns(
		fmt.Sprintf("%s AS %s", src, ColumnStartNode),
		fmt.Sprintf("%s AS %s", rel, ColumnRelationship),
		fmt.Sprintf("%s AS %s", tgt, ColumnEndNode),
	)
	return nil
}

func (c *compiler) visit(op Op) error {
	switch o := op.(type) {
	case FilterOp:
		return c.visitFilter(o)
	case OrderByOp:
		return c.visitOrderBy(o)
	case SkipOp:
		c.b.SetSkip(o.Count)
		return nil
	case TakeOp:
		c.b.SetLimit(o.Count)
		return nil
	case ProjectOp:
		return c.visitProject(o)
	case TraverseOp:
		return c.visitTraverse(o)
	case PathSegmentOp:
		return c.visitPathSegment()
	case CountOp:
		c.shape = ShapeCount
		c.countAlias = c.current
		return nil
	default:
		return gmerrors.NewUnsupportedQueryShape(fmt.Sprintf("%T", op), "operator has no compilation rule")
	}
}

func (c *compiler) visitFilter(o FilterOp) error {
	if c.finalized {
		return gmerrors.NewUnsupportedQueryShape("filter", "cannot filter after a path-segment pattern is finalized")
	}
	fragment, err := c.compileExpr(o.Predicate)
	if err != nil {
		return err
	}
	c.b.AddWhere(fragment)
	return nil
}

func (c *compiler) visitOrderBy(o OrderByOp) error {
	for _, key := range o.Keys {
		wire, err := c.resolveProperty(key.Property)
		if err != nil {
			return err
		}
		c.b.AddOrderBy(c.current+"."+wire, key.Descending)
	}
	return nil
}

func (c *compiler) visitProject(o ProjectOp) error {
	wires := make([]string, 0, len(o.Fields))
	for _, f := range o.Fields {
		wire, err := c.resolveProperty(f)
		if err != nil {
			return err
		}
		wires = append(wires, wire)
	}
	c.projection = wires

	if c.finalized || c.b.PathSegmentLoadingEnabled() {
		// The triple stays in the RETURN clause regardless of projection;
		// relationship reconstruction needs the bounding nodes. The
		// projection applies during post-processing instead.
		return nil
	}
	c.shape = ShapeProjection
	c.b.SetReturns()
	for _, wire := range wires {
		c.b.AddReturn(fmt.Sprintf("%s.%s AS %s", c.current, wire, wire))
	}
	return nil
}

func (c *compiler) visitTraverse(o TraverseOp) error {
	if c.finalized {
		return gmerrors.NewUnsupportedQueryShape("traverse", "path-segment pattern already finalized")
	}
	if c.pending != nil {
		return gmerrors.NewUnsupportedQueryShape("traverse", "a traversal is already pending; chain path segments one at a time")
	}
	if c.plan.SourceIsRelationship {
		return gmerrors.NewUnsupportedQueryShape("traverse", "traversal starts from a node query, not a relationship query")
	}
	c.pending = &o
	return nil
}

// visitPathSegment finalizes the pending traversal into one self-contained
// pattern. Prior matches are cleared first: the path segment is the whole
// pattern, and all three components are returned for post-processing even
// when the caller projects only one of them.
func (c *compiler) visitPathSegment() error {
	if c.finalized {
		return gmerrors.NewUnsupportedQueryShape("path segment", "pattern already finalized")
	}
	if c.pending == nil {
		return gmerrors.NewUnsupportedQueryShape("path segment", "no traversal precedes the path-segment operator")
	}

	src := derefType(c.plan.SourceType)
	relT := derefType(c.pending.RelationshipType)
	tgtT := derefType(c.pending.TargetType)

	srcAlias := c.aliasFor(src)
	// The far end always gets its own alias. For a self-referential
	// traversal this is what keeps the pattern from collapsing into a
	// self-loop; the type's first-seen alias stays bound to the source.
	tgtAlias := c.freshAlias("tgt")
	if tgtT != src {
		c.aliases[tgtT] = tgtAlias
	}
	relAlias := c.freshAlias("rel")

	pattern := fmt.Sprintf("(%s%s)", srcAlias, labelFragment(c.schemaLabel(src)))
	relFragment := fmt.Sprintf("[%s%s]", relAlias, labelFragment(c.schemaLabel(relT)))
	switch c.pending.Direction {
	case model.Incoming:
		pattern += fmt.Sprintf("<-%s-", relFragment)
	case model.Bidirectional:
		pattern += fmt.Sprintf("-%s-", relFragment)
	default:
		pattern += fmt.Sprintf("-%s->", relFragment)
	}
	pattern += fmt.Sprintf("(%s%s)", tgtAlias, labelFragment(c.schemaLabel(tgtT)))

	c.b.ClearMatches()
	c.b.AddMatch(pattern)
	c.b.EnablePathSegmentLoading()
	c.b.SetReturns(
		fmt.Sprintf("%s AS %s", srcAlias, ColumnStartNode),
		fmt.Sprintf("%s AS %s", relAlias, ColumnRelationship),
		fmt.Sprintf("%s AS %s", tgtAlias, ColumnEndNode),
	)

	c.shape = ShapePathSegments
	c.relType = relT
	c.tgtType = tgtT
	c.current = relAlias
	c.currentType = relT
	c.pending = nil
	c.finalized = true
	return nil
}

func (c *compiler) finish() (*Compiled, error) {
	if c.pending != nil {
		return nil, gmerrors.NewUnsupportedQueryShape("traverse", "traversal was never finalized into a path segment")
	}

	switch c.shape {
	case ShapeCount:
		c.b.SetReturns(fmt.Sprintf("count(%s) AS %s", c.countAlias, ColumnCount))
	case ShapeNodes:
		c.addComplexPropertyLoading()
	}

	cypher, params, err := c.b.Build()
	if err != nil {
		return nil, gmerrors.NewUnsupportedQueryShape("plan", "%s", err.Error())
	}
	return &Compiled{
		Cypher:            cypher,
		Parameters:        params,
		Shape:             c.shape,
		RootType:          derefType(c.plan.SourceType),
		RelationshipType:  c.relType,
		TargetType:        c.tgtType,
		Projection:        c.projection,
		LoadsPathSegments: c.b.PathSegmentLoadingEnabled(),
	}, nil
}

// addComplexPropertyLoading appends the bounded traversal that flattens every
// complex property reachable from the root into
// {ParentNode, Relationship, SequenceNumber, ChildNode} tuples.
func (c *compiler) addComplexPropertyLoading() {
	alias := c.current
	c.b.AddOptionalMatch(fmt.Sprintf(
		"cpPath = (%s)-[*1..%d]->(cpChild)\nWHERE all(cpRel IN relationships(cpPath) WHERE type(cpRel) STARTS WITH '%s')",
		alias, model.DefaultDepthAllowed, model.PropertyRelationshipPrefix))
	c.b.SetReturns(
		fmt.Sprintf("%s AS %s", alias, ColumnNode),
		fmt.Sprintf(
			"[cp IN collect(DISTINCT cpPath) | {ParentNode: nodes(cp)[-2], Relationship: relationships(cp)[-1], "+
				"%s: relationships(cp)[-1].%s, ChildNode: last(nodes(cp))}] AS %s",
			model.SequenceNumberKey, model.SequenceNumberKey, ColumnComplexProperties),
	)
}

func (c *compiler) compileExpr(e Expr) (string, error) {
	switch expr := e.(type) {
	case PropertyRef:
		wire, err := c.resolveProperty(expr.Name)
		if err != nil {
			return "", err
		}
		return c.current + "." + wire, nil
	case Constant:
		wire, err := bridge.ToWire(expr.Value)
		if err != nil {
			return "", gmerrors.NewUnsupportedQueryShape("constant", "%s", err.Error())
		}
		return c.b.BindParameter(wire), nil
	case Binary:
		return c.compileBinary(expr)
	case NotExpr:
		inner, err := c.compileExpr(expr.Operand)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	default:
		return "", gmerrors.NewUnsupportedQueryShape(fmt.Sprintf("%T", e), "expression has no compilation rule")
	}
}

func (c *compiler) compileBinary(expr Binary) (string, error) {
	left, err := c.compileExpr(expr.Left)
	if err != nil {
		return "", err
	}
	right, err := c.compileExpr(expr.Right)
	if err != nil {
		return "", err
	}
	switch expr.Op {
	case OpEqual:
		return left + " = " + right, nil
	case OpNotEqual:
		return left + " <> " + right, nil
	case OpGreater:
		return left + " > " + right, nil
	case OpGreaterOrEqual:
		return left + " >= " + right, nil
	case OpLess:
		return left + " < " + right, nil
	case OpLessOrEqual:
		return left + " <= " + right, nil
	case OpAnd:
		return "(" + left + " AND " + right + ")", nil
	case OpOr:
		return "(" + left + " OR " + right + ")", nil
	case OpContains:
		return left + " CONTAINS " + right, nil
	case OpStartsWith:
		return left + " STARTS WITH " + right, nil
	case OpEndsWith:
		return left + " ENDS WITH " + right, nil
	case OpIn:
		return left + " IN " + right, nil
	default:
		return "", gmerrors.NewUnsupportedQueryShape(fmt.Sprintf("operator %d", expr.Op), "operator has no compilation rule")
	}
}

// resolveProperty maps a Go field name or wire name to the stored property
// name for the current element type. Unknown names on schema-less (dynamic)
// targets pass through unchanged.
func (c *compiler) resolveProperty(name string) (string, error) {
	s := c.schemas.GetSchema(c.currentType)
	if s == nil {
		return name, nil
	}
	if p := s.Property(name); p != nil {
		return p.WireName, nil
	}
	for _, p := range s.Ordered {
		if p.FieldName == name {
			return p.WireName, nil
		}
	}
	return "", gmerrors.NewUnsupportedQueryShape(
		"property reference", "type %s has no property %q", c.currentType.String(), name)
}

func (c *compiler) schemaLabel(t reflect.Type) string {
	if s := c.schemas.GetSchema(t); s != nil {
		return s.Label
	}
	return ""
}

// aliasFor returns the stable alias for a type, assigning one on first use.
func (c *compiler) aliasFor(t reflect.Type) string {
	if alias, ok := c.aliases[t]; ok {
		return alias
	}
	alias := c.freshAlias("src")
	c.aliases[t] = alias
	return alias
}

func (c *compiler) freshAlias(base string) string {
	n := c.aliasCount[base]
	c.aliasCount[base]++
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s%d", base, n)
}

func labelFragment(label string) string {
	if label == "" {
		return ""
	}
	return ":" + label
}

func derefType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
