package neograph

import (
	"context"
	stderrors "errors"
	"fmt"
	"reflect"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/query"
)

// queryExpr aliases the predicate expression type so simple call sites do
// not need the query package import.
type queryExpr = query.Expr

// Prop starts a predicate against a property of the queried element,
// referenced by Go field name or wire name.
func Prop(name string) query.PropertyRef { return query.Prop(name) }

func propRef(name string) query.PropertyRef { return query.Prop(name) }

// And, Or, and Not combine predicates.
func And(left, right queryExpr) queryExpr { return query.And(left, right) }
func Or(left, right queryExpr) queryExpr  { return query.Or(left, right) }
func Not(e queryExpr) queryExpr           { return query.Not(e) }

// NodeQuery is an immutable, composable query over nodes of type T. Every
// combinator returns a new query; a shared prefix can branch freely.
type NodeQuery[T any] struct {
	g    *Graph
	plan *query.Plan
}

// Nodes starts a query over all nodes of type T.
func Nodes[T any](g *Graph) *NodeQuery[T] {
	return &NodeQuery[T]{
		g:    g,
		plan: query.NewPlan(reflect.TypeOf((*T)(nil)).Elem(), false),
	}
}

// Where narrows the query with a predicate. Multiple calls conjoin.
func (q *NodeQuery[T]) Where(pred queryExpr) *NodeQuery[T] {
	return &NodeQuery[T]{g: q.g, plan: q.plan.Append(query.FilterOp{Predicate: pred})}
}

// OrderBy sorts ascending by a property, replacing prior ordering intent
// for the new key; ThenBy adds tie-breaking keys.
func (q *NodeQuery[T]) OrderBy(property string) *NodeQuery[T] {
	return &NodeQuery[T]{g: q.g, plan: appendOrderKey(q.plan, query.OrderKey{Property: property})}
}

// OrderByDesc sorts descending by a property.
func (q *NodeQuery[T]) OrderByDesc(property string) *NodeQuery[T] {
	return &NodeQuery[T]{g: q.g, plan: appendOrderKey(q.plan, query.OrderKey{Property: property, Descending: true})}
}

// ThenBy adds an ascending tie-breaking sort key.
func (q *NodeQuery[T]) ThenBy(property string) *NodeQuery[T] { return q.OrderBy(property) }

// ThenByDesc adds a descending tie-breaking sort key.
func (q *NodeQuery[T]) ThenByDesc(property string) *NodeQuery[T] { return q.OrderByDesc(property) }

// Skip drops the first n results.
func (q *NodeQuery[T]) Skip(n int) *NodeQuery[T] {
	return &NodeQuery[T]{g: q.g, plan: q.plan.Append(query.SkipOp{Count: n})}
}

// Take truncates the result set to n results.
func (q *NodeQuery[T]) Take(n int) *NodeQuery[T] {
	return &NodeQuery[T]{g: q.g, plan: q.plan.Append(query.TakeOp{Count: n})}
}

// ToList executes the query and returns every match with complex
// properties loaded.
func (q *NodeQuery[T]) ToList(ctx context.Context) ([]*T, error) {
	return runEntities[T](ctx, q.g, q.plan)
}

// First returns the first match, or ErrNotFound when nothing matches.
func (q *NodeQuery[T]) First(ctx context.Context) (*T, error) {
	return first[T](ctx, q.g, q.plan)
}

// FirstOrDefault returns the first match, or nil when nothing matches.
func (q *NodeQuery[T]) FirstOrDefault(ctx context.Context) (*T, error) {
	return firstOrDefault[T](ctx, q.g, q.plan)
}

// SingleOrDefault returns the only match, nil when nothing matches, and an
// error when more than one element matches.
func (q *NodeQuery[T]) SingleOrDefault(ctx context.Context) (*T, error) {
	return singleOrDefault[T](ctx, q.g, q.plan)
}

// Count returns the cardinality of the query without loading entities.
func (q *NodeQuery[T]) Count(ctx context.Context) (int64, error) {
	return runCount(ctx, q.g, q.plan)
}

// RelationshipQuery is an immutable, composable query over relationships of
// type T. The compiled match always covers the full triple so endpoint ids
// can be synthesized onto the loaded structs.
type RelationshipQuery[T any] struct {
	g    *Graph
	plan *query.Plan
}

// Relationships starts a query over all relationships of type T.
func Relationships[T any](g *Graph) *RelationshipQuery[T] {
	return &RelationshipQuery[T]{
		g:    g,
		plan: query.NewPlan(reflect.TypeOf((*T)(nil)).Elem(), true),
	}
}

// Where narrows the query with a predicate against relationship properties.
func (q *RelationshipQuery[T]) Where(pred queryExpr) *RelationshipQuery[T] {
	return &RelationshipQuery[T]{g: q.g, plan: q.plan.Append(query.FilterOp{Predicate: pred})}
}

// OrderBy sorts ascending by a relationship property.
func (q *RelationshipQuery[T]) OrderBy(property string) *RelationshipQuery[T] {
	return &RelationshipQuery[T]{g: q.g, plan: appendOrderKey(q.plan, query.OrderKey{Property: property})}
}

// OrderByDesc sorts descending by a relationship property.
func (q *RelationshipQuery[T]) OrderByDesc(property string) *RelationshipQuery[T] {
	return &RelationshipQuery[T]{g: q.g, plan: appendOrderKey(q.plan, query.OrderKey{Property: property, Descending: true})}
}

// ThenBy adds an ascending tie-breaking sort key.
func (q *RelationshipQuery[T]) ThenBy(property string) *RelationshipQuery[T] { return q.OrderBy(property) }

// Skip drops the first n results.
func (q *RelationshipQuery[T]) Skip(n int) *RelationshipQuery[T] {
	return &RelationshipQuery[T]{g: q.g, plan: q.plan.Append(query.SkipOp{Count: n})}
}

// Take truncates the result set to n results.
func (q *RelationshipQuery[T]) Take(n int) *RelationshipQuery[T] {
	return &RelationshipQuery[T]{g: q.g, plan: q.plan.Append(query.TakeOp{Count: n})}
}

// ToList executes the query and returns every matching relationship.
func (q *RelationshipQuery[T]) ToList(ctx context.Context) ([]*T, error) {
	return runEntities[T](ctx, q.g, q.plan)
}

// First returns the first match, or ErrNotFound when nothing matches.
func (q *RelationshipQuery[T]) First(ctx context.Context) (*T, error) {
	return first[T](ctx, q.g, q.plan)
}

// FirstOrDefault returns the first match, or nil when nothing matches.
func (q *RelationshipQuery[T]) FirstOrDefault(ctx context.Context) (*T, error) {
	return firstOrDefault[T](ctx, q.g, q.plan)
}

// SingleOrDefault returns the only match, nil when nothing matches, and an
// error when more than one element matches.
func (q *RelationshipQuery[T]) SingleOrDefault(ctx context.Context) (*T, error) {
	return singleOrDefault[T](ctx, q.g, q.plan)
}

// Count returns the cardinality of the query without loading entities.
func (q *RelationshipQuery[T]) Count(ctx context.Context) (int64, error) {
	return runCount(ctx, q.g, q.plan)
}

// ProjectionQuery returns values of R built from a subset of properties
// instead of whole entities.
type ProjectionQuery[R any] struct {
	g    *Graph
	plan *query.Plan
}

// Select projects a node query onto a subset of properties. R is either a
// scalar type for single-field projections or a struct whose fields match
// the projected names.
func Select[T, R any](q *NodeQuery[T], fields ...string) *ProjectionQuery[R] {
	return &ProjectionQuery[R]{
		g: q.g,
		plan: q.plan.Append(query.ProjectOp{
			Fields:     fields,
			ResultType: reflect.TypeOf((*R)(nil)).Elem(),
		}),
	}
}

// SelectRelationships projects a relationship query onto a subset of
// properties. The match still loads the full triple; the projection applies
// after endpoint synthesis.
func SelectRelationships[T, R any](q *RelationshipQuery[T], fields ...string) *ProjectionQuery[R] {
	return &ProjectionQuery[R]{
		g: q.g,
		plan: q.plan.Append(query.ProjectOp{
			Fields:     fields,
			ResultType: reflect.TypeOf((*R)(nil)).Elem(),
		}),
	}
}

// ToList executes the projection and returns every row.
func (q *ProjectionQuery[R]) ToList(ctx context.Context) ([]R, error) {
	compiled, err := query.Compile(q.plan, q.g.schemas)
	if err != nil {
		return nil, err
	}
	records, err := q.g.runner.Run(ctx, compiled.Cypher, compiled.Parameters)
	if err != nil {
		return nil, err
	}

	proc := newProcessor(q.g.schemas)
	var rows []map[string]any
	switch {
	case compiled.Shape == query.ShapeProjection:
		rows, err = proc.processProjection(ctx, records, compiled.Projection)
	case compiled.LoadsPathSegments:
		var infos []*model.EntityInfo
		infos, err = proc.processRelationships(ctx, records, compiled.RootType)
		if err == nil {
			rows = projectInfos(infos, compiled.Projection)
		}
	default:
		return nil, gmerrors.NewUnsupportedQueryShape("projection", "compiled shape %d has no projection rule", compiled.Shape)
	}
	if err != nil && !isCancellation(err) {
		return nil, err
	}
	out, matErr := materializeRows[R](ctx, q.g.schemas, rows)
	if err != nil {
		return out, err
	}
	return out, matErr
}

// First returns the first projected row, or ErrNotFound when nothing
// matches.
func (q *ProjectionQuery[R]) First(ctx context.Context) (R, error) {
	var zero R
	rows, err := (&ProjectionQuery[R]{g: q.g, plan: q.plan.Append(query.TakeOp{Count: 1})}).ToList(ctx)
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, gmerrors.ErrNotFound
	}
	return rows[0], nil
}

// TraversalQuery is a finalized traversal from source nodes S across
// relationships R to target nodes E.
type TraversalQuery[S, R, E any] struct {
	g    *Graph
	plan *query.Plan
}

// Traverse follows relationships of type R from the query's current nodes
// to target nodes of type E, in the given direction (outgoing when
// omitted). The traversal compiles to one self-contained path pattern.
func Traverse[S, R, E any](q *NodeQuery[S], direction ...model.RelationshipDirection) *TraversalQuery[S, R, E] {
	dir := model.Outgoing
	if len(direction) > 0 {
		dir = direction[0]
	}
	plan := q.plan.
		Append(query.TraverseOp{
			RelationshipType: reflect.TypeOf((*R)(nil)).Elem(),
			TargetType:       reflect.TypeOf((*E)(nil)).Elem(),
			Direction:        dir,
		}).
		Append(query.PathSegmentOp{})
	return &TraversalQuery[S, R, E]{g: q.g, plan: plan}
}

// Segments executes the traversal and returns every matched path segment
// with all three components materialized.
func (t *TraversalQuery[S, R, E]) Segments(ctx context.Context) ([]*model.PathSegment[*S, *R, *E], error) {
	segments, err := t.run(ctx)
	if err != nil && !isCancellation(err) {
		return nil, err
	}
	out := make([]*model.PathSegment[*S, *R, *E], 0, len(segments))
	for _, seg := range segments {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		start, sErr := materializeEntity[S](t.g.serializers, seg.start)
		if sErr != nil {
			return out, sErr
		}
		rel, rErr := materializeEntity[R](t.g.serializers, seg.rel)
		if rErr != nil {
			return out, rErr
		}
		end, eErr := materializeEntity[E](t.g.serializers, seg.end)
		if eErr != nil {
			return out, eErr
		}
		out = append(out, &model.PathSegment[*S, *R, *E]{
			StartNode:    start,
			Relationship: rel,
			EndNode:      end,
		})
	}
	return out, err
}

// Relationships executes the traversal and returns only the connecting
// relationships, endpoint ids included.
func (t *TraversalQuery[S, R, E]) Relationships(ctx context.Context) ([]*R, error) {
	segments, err := t.run(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]*model.EntityInfo, len(segments))
	for i, seg := range segments {
		infos[i] = seg.rel
	}
	return materializeEntities[R](ctx, t.g.serializers, infos)
}

// TargetNodes executes the traversal and returns only the nodes at the far
// end of each segment.
func (t *TraversalQuery[S, R, E]) TargetNodes(ctx context.Context) ([]*E, error) {
	segments, err := t.run(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]*model.EntityInfo, len(segments))
	for i, seg := range segments {
		infos[i] = seg.end
	}
	return materializeEntities[E](ctx, t.g.serializers, infos)
}

func (t *TraversalQuery[S, R, E]) run(ctx context.Context) ([]segment, error) {
	compiled, err := query.Compile(t.plan, t.g.schemas)
	if err != nil {
		return nil, err
	}
	records, err := t.g.runner.Run(ctx, compiled.Cypher, compiled.Parameters)
	if err != nil {
		return nil, err
	}
	proc := newProcessor(t.g.schemas)
	return proc.processPathSegments(ctx, records, compiled.RootType, compiled.RelationshipType, compiled.TargetType)
}

func appendOrderKey(p *query.Plan, key query.OrderKey) *query.Plan {
	if n := len(p.Ops); n > 0 {
		if ob, ok := p.Ops[n-1].(query.OrderByOp); ok {
			ops := make([]query.Op, n)
			copy(ops, p.Ops)
			keys := make([]query.OrderKey, len(ob.Keys), len(ob.Keys)+1)
			copy(keys, ob.Keys)
			ops[n-1] = query.OrderByOp{Keys: append(keys, key)}
			return &query.Plan{
				SourceType:           p.SourceType,
				SourceIsRelationship: p.SourceIsRelationship,
				Ops:                  ops,
			}
		}
	}
	return p.Append(query.OrderByOp{Keys: []query.OrderKey{key}})
}

// runEntities compiles, executes, processes, and materializes an entity
// query. On cancellation the rows completed so far come back with the
// context error; every other failure discards partial work.
func runEntities[T any](ctx context.Context, g *Graph, plan *query.Plan) ([]*T, error) {
	compiled, err := query.Compile(plan, g.schemas)
	if err != nil {
		return nil, err
	}
	g.logger.Debug("executing query", "cypher", compiled.Cypher, "shape", int(compiled.Shape))
	records, err := g.runner.Run(ctx, compiled.Cypher, compiled.Parameters)
	if err != nil {
		return nil, err
	}

	proc := newProcessor(g.schemas)
	var infos []*model.EntityInfo
	switch compiled.Shape {
	case query.ShapeNodes:
		infos, err = proc.processNodes(ctx, records, compiled.RootType)
	case query.ShapeRelationships:
		infos, err = proc.processRelationships(ctx, records, compiled.RootType)
	default:
		return nil, gmerrors.NewUnsupportedQueryShape("entity query", "compiled shape %d has no entity rule", compiled.Shape)
	}
	if err != nil && !isCancellation(err) {
		return nil, err
	}
	out, matErr := materializeEntities[T](ctx, g.serializers, infos)
	if err != nil {
		return out, err
	}
	return out, matErr
}

func first[T any](ctx context.Context, g *Graph, plan *query.Plan) (*T, error) {
	items, err := runEntities[T](ctx, g, plan.Append(query.TakeOp{Count: 1}))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, gmerrors.ErrNotFound
	}
	return items[0], nil
}

func firstOrDefault[T any](ctx context.Context, g *Graph, plan *query.Plan) (*T, error) {
	items, err := runEntities[T](ctx, g, plan.Append(query.TakeOp{Count: 1}))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func singleOrDefault[T any](ctx context.Context, g *Graph, plan *query.Plan) (*T, error) {
	items, err := runEntities[T](ctx, g, plan.Append(query.TakeOp{Count: 2}))
	if err != nil {
		return nil, err
	}
	switch len(items) {
	case 0:
		return nil, nil
	case 1:
		return items[0], nil
	default:
		return nil, fmt.Errorf("query matched more than one element")
	}
}

func runCount(ctx context.Context, g *Graph, plan *query.Plan) (int64, error) {
	compiled, err := query.Compile(plan.Append(query.CountOp{}), g.schemas)
	if err != nil {
		return 0, err
	}
	records, err := g.runner.Run(ctx, compiled.Cypher, compiled.Parameters)
	if err != nil {
		return 0, err
	}
	return newProcessor(g.schemas).processCount(records)
}

func projectInfos(infos []*model.EntityInfo, fields []string) []map[string]any {
	rows := make([]map[string]any, len(infos))
	for i, info := range infos {
		row := make(map[string]any, len(fields))
		for _, f := range fields {
			row[f] = info.SimpleProperty(f)
		}
		rows[i] = row
	}
	return rows
}

func isCancellation(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
