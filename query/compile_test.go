package query

import (
	"reflect"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
)

type person struct {
	model.NodeBase
	Name     string `graph:"property:Name"`
	Nickname string `graph:"property:Alias"`
	Age      int    `graph:"property:Age"`
}

type city struct {
	model.NodeBase
	Name string `graph:"property:Name"`
}

type knows struct {
	model.RelationshipBase
	Since int64 `graph:"property:Since"`
}

func newTestRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	_, err := schema.RegisterNodeIn[person](reg, "Person")
	require.NoError(t, err)
	_, err = schema.RegisterNodeIn[city](reg, "City")
	require.NoError(t, err)
	_, err = schema.RegisterRelationshipIn[knows](reg, "KNOWS")
	require.NoError(t, err)
	return reg
}

func reflectTypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func TestCompileGolden(t *testing.T) {
	reg := newTestRegistry(t)

	cases := []struct {
		name string
		plan *Plan
	}{
		{
			name: "filtered_ordered_page",
			plan: NewPlan(reflectTypeOf[person](), false).
				Append(FilterOp{Predicate: Prop("Name").Eq("Alice")}).
				Append(OrderByOp{Keys: []OrderKey{{Property: "Name"}, {Property: "Age", Descending: true}}}).
				Append(SkipOp{Count: 5}).
				Append(TakeOp{Count: 10}),
		},
		{
			name: "count_filtered",
			plan: NewPlan(reflectTypeOf[person](), false).
				Append(FilterOp{Predicate: Prop("Age").Gt(30)}).
				Append(CountOp{}),
		},
		{
			name: "projection",
			plan: NewPlan(reflectTypeOf[person](), false).
				Append(ProjectOp{Fields: []string{"Name", "Age"}}),
		},
		{
			name: "relationship_source",
			plan: NewPlan(reflectTypeOf[knows](), true).
				Append(FilterOp{Predicate: Prop("Since").Ge(int64(10))}),
		},
		{
			name: "traversal_outgoing",
			plan: NewPlan(reflectTypeOf[person](), false).
				Append(FilterOp{Predicate: Prop("Name").Eq("Alice")}).
				Append(TraverseOp{
					RelationshipType: reflectTypeOf[knows](),
					TargetType:       reflectTypeOf[city](),
					Direction:        model.Outgoing,
				}).
				Append(PathSegmentOp{}),
		},
		{
			name: "traversal_self_incoming",
			plan: NewPlan(reflectTypeOf[person](), false).
				Append(TraverseOp{
					RelationshipType: reflectTypeOf[knows](),
					TargetType:       reflectTypeOf[person](),
					Direction:        model.Incoming,
				}).
				Append(PathSegmentOp{}),
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			compiled, err := Compile(tc.plan, reg)
			require.NoError(t, err)
			g.Assert(t, tc.name, []byte(compiled.Cypher+"\n"))
		})
	}
}

func TestCompileBindsConstantsAsParameters(t *testing.T) {
	reg := newTestRegistry(t)

	plan := NewPlan(reflectTypeOf[person](), false).
		Append(FilterOp{Predicate: And(Prop("Name").Eq("Alice"), Prop("Age").Gt(30))}).
		Append(SkipOp{Count: 5}).
		Append(TakeOp{Count: 10})

	compiled, err := Compile(plan, reg)
	require.NoError(t, err)

	assert.NotContains(t, compiled.Cypher, "Alice", "constants must never be inlined")
	assert.Equal(t, "Alice", compiled.Parameters["p0"])
	// Numeric constants pass through the value bridge on their way in.
	assert.Equal(t, int64(30), compiled.Parameters["p1"])
	assert.Equal(t, 5, compiled.Parameters["p2"])
	assert.Equal(t, 10, compiled.Parameters["p3"])
}

func TestCompileResolvesFieldAndWireNames(t *testing.T) {
	reg := newTestRegistry(t)

	for _, name := range []string{"Nickname", "Alias"} {
		plan := NewPlan(reflectTypeOf[person](), false).
			Append(FilterOp{Predicate: Prop(name).Eq("Al")})
		compiled, err := Compile(plan, reg)
		require.NoError(t, err)
		assert.Contains(t, compiled.Cypher, "src.Alias = $p0")
	}
}

func TestCompileUnknownPropertyFails(t *testing.T) {
	reg := newTestRegistry(t)

	plan := NewPlan(reflectTypeOf[person](), false).
		Append(FilterOp{Predicate: Prop("NoSuchField").Eq(1)})
	_, err := Compile(plan, reg)
	require.Error(t, err)
	assert.True(t, gmerrors.IsUnsupportedQueryShape(err))
}

func TestCompileShapeMetadata(t *testing.T) {
	reg := newTestRegistry(t)

	t.Run("nodes", func(t *testing.T) {
		compiled, err := Compile(NewPlan(reflectTypeOf[person](), false), reg)
		require.NoError(t, err)
		assert.Equal(t, ShapeNodes, compiled.Shape)
		assert.False(t, compiled.LoadsPathSegments)
	})

	t.Run("relationships", func(t *testing.T) {
		compiled, err := Compile(NewPlan(reflectTypeOf[knows](), true), reg)
		require.NoError(t, err)
		assert.Equal(t, ShapeRelationships, compiled.Shape)
		assert.True(t, compiled.LoadsPathSegments)
	})

	t.Run("path segments", func(t *testing.T) {
		plan := NewPlan(reflectTypeOf[person](), false).
			Append(TraverseOp{RelationshipType: reflectTypeOf[knows](), TargetType: reflectTypeOf[city]()}).
			Append(PathSegmentOp{})
		compiled, err := Compile(plan, reg)
		require.NoError(t, err)
		assert.Equal(t, ShapePathSegments, compiled.Shape)
		assert.Equal(t, reflectTypeOf[knows](), compiled.RelationshipType)
		assert.Equal(t, reflectTypeOf[city](), compiled.TargetType)
	})
}

func TestCompileRejectsInvalidShapes(t *testing.T) {
	reg := newTestRegistry(t)
	traverse := TraverseOp{RelationshipType: reflectTypeOf[knows](), TargetType: reflectTypeOf[city]()}

	t.Run("dangling traversal", func(t *testing.T) {
		_, err := Compile(NewPlan(reflectTypeOf[person](), false).Append(traverse), reg)
		require.Error(t, err)
		assert.True(t, gmerrors.IsUnsupportedQueryShape(err))
	})

	t.Run("path segment without traversal", func(t *testing.T) {
		_, err := Compile(NewPlan(reflectTypeOf[person](), false).Append(PathSegmentOp{}), reg)
		require.Error(t, err)
		assert.True(t, gmerrors.IsUnsupportedQueryShape(err))
	})

	t.Run("filter after finalized pattern", func(t *testing.T) {
		plan := NewPlan(reflectTypeOf[person](), false).
			Append(traverse).
			Append(PathSegmentOp{}).
			Append(FilterOp{Predicate: Prop("Name").Eq("x")})
		_, err := Compile(plan, reg)
		require.Error(t, err)
		assert.True(t, gmerrors.IsUnsupportedQueryShape(err))
	})

	t.Run("stacked traversals", func(t *testing.T) {
		plan := NewPlan(reflectTypeOf[person](), false).
			Append(traverse).
			Append(traverse)
		_, err := Compile(plan, reg)
		require.Error(t, err)
		assert.True(t, gmerrors.IsUnsupportedQueryShape(err))
	})

	t.Run("traversal from relationship source", func(t *testing.T) {
		plan := NewPlan(reflectTypeOf[knows](), true).Append(traverse)
		_, err := Compile(plan, reg)
		require.Error(t, err)
		assert.True(t, gmerrors.IsUnsupportedQueryShape(err))
	})
}

func TestPlanAppendDoesNotMutate(t *testing.T) {
	base := NewPlan(reflectTypeOf[person](), false).
		Append(FilterOp{Predicate: Prop("Age").Gt(18)})

	a := base.Append(TakeOp{Count: 1})
	b := base.Append(SkipOp{Count: 2})

	assert.Len(t, base.Ops, 1)
	assert.Len(t, a.Ops, 2)
	assert.Len(t, b.Ops, 2)
	assert.IsType(t, TakeOp{}, a.Ops[1])
	assert.IsType(t, SkipOp{}, b.Ops[1])
}
