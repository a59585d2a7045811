package neograph

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

func mergeResponse(elementID string) []*neo4j.Record {
	return []*neo4j.Record{
		record([]string{"n"}, []any{wireNode(elementID, []string{"Person"}, map[string]any{"Id": "p1"})}),
	}
}

func childResponse(childElementID string) []*neo4j.Record {
	return []*neo4j.Record{
		record([]string{"childId"}, []any{childElementID}),
	}
}

func TestCreateNodeAssignsIDAndWritesSubtree(t *testing.T) {
	runner := &fakeRunner{
		results: [][]*neo4j.Record{
			mergeResponse("e0"),    // root upsert
			nil,                    // stale subtree delete
			childResponse("e1"),    // Home
			childResponse("e2"),    // Home.Geo
			childResponse("e3"),    // Previous[0]
			childResponse("e4"),    // Previous[1]
		},
	}
	g := newTestGraph(t, runner)

	p := &testPerson{
		Name: "Alice",
		Age:  34,
		Tags: []string{"x"},
		Home: &testAddress{City: "Springfield", Geo: &geo{Lat: 1, Lng: 2}},
		Previous: []testAddress{
			{City: "first"},
			{City: "second"},
		},
	}
	require.NoError(t, g.CreateNode(context.Background(), p))

	// An id was assigned before the write.
	assert.NotEmpty(t, p.Id)
	require.Len(t, runner.executed, 6)

	assert.Contains(t, runner.executed[0].cypher, "MERGE")

	// The stale complex subtree goes before the new one is written.
	assert.Contains(t, runner.executed[1].cypher, "DETACH DELETE")
	assert.Equal(t, "e0", runner.executed[1].params["id"])
	assert.Equal(t, model.PropertyRelationshipPrefix, runner.executed[1].params["prefix"])

	// Complex children attach under property relationships, ordered by
	// sequence number, nesting under their own parents.
	type childWrite struct {
		relType  string
		parentID string
		seq      int64
		city     any
	}
	var writes []childWrite
	for _, q := range runner.executed[2:] {
		props := q.params["props"].(map[string]any)
		w := childWrite{
			parentID: q.params["parentId"].(string),
			seq:      q.params["seq"].(int64),
			city:     props["City"],
		}
		switch {
		case strings.Contains(q.cypher, "__PROPERTY__Home__"):
			w.relType = "Home"
		case strings.Contains(q.cypher, "__PROPERTY__Geo__"):
			w.relType = "Geo"
		case strings.Contains(q.cypher, "__PROPERTY__Previous__"):
			w.relType = "Previous"
		}
		writes = append(writes, w)
	}

	assert.Equal(t, childWrite{relType: "Home", parentID: "e0", seq: 0, city: "Springfield"}, writes[0])
	assert.Equal(t, childWrite{relType: "Geo", parentID: "e1", seq: 0, city: nil}, writes[1])
	assert.Equal(t, childWrite{relType: "Previous", parentID: "e0", seq: 0, city: "first"}, writes[2])
	assert.Equal(t, childWrite{relType: "Previous", parentID: "e0", seq: 1, city: "second"}, writes[3])
}

func TestCreateNodeKeepsExistingID(t *testing.T) {
	runner := &fakeRunner{results: [][]*neo4j.Record{mergeResponse("e0")}}
	g := newTestGraph(t, runner)

	p := &testPerson{Name: "Bob"}
	p.SetEntityID("fixed-id")
	require.NoError(t, g.CreateNode(context.Background(), p))
	assert.Equal(t, "fixed-id", p.Id)
}

func TestUpdateNodeNotFound(t *testing.T) {
	runner := &fakeRunner{} // MATCH returns no record
	g := newTestGraph(t, runner)

	p := &testPerson{Name: "Ghost"}
	p.SetEntityID("missing")
	err := g.UpdateNode(context.Background(), p)
	require.Error(t, err)
	assert.True(t, gmerrors.IsNotFound(err))
}

func TestUpdateNodeWithoutIDFails(t *testing.T) {
	g := newTestGraph(t, &fakeRunner{})
	err := g.UpdateNode(context.Background(), &testPerson{Name: "NoID"})
	require.Error(t, err)
}

func TestCreateRelationship(t *testing.T) {
	runner := &fakeRunner{
		results: [][]*neo4j.Record{
			{record([]string{"r"}, []any{wireRelationship("e9", "KNOWS", nil)})},
		},
	}
	g := newTestGraph(t, runner)

	k := &testKnows{Since: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	k.SetEndpoints("alice", "bob")
	require.NoError(t, g.CreateRelationship(context.Background(), k))

	assert.NotEmpty(t, k.Id)
	require.Len(t, runner.executed, 1)
	q := runner.executed[0]
	assert.Contains(t, q.cypher, "CREATE (a)-[r:`KNOWS` $props]->(b)")
	assert.Equal(t, "alice", q.params["startId"])
	assert.Equal(t, "bob", q.params["endId"])

	props := q.params["props"].(map[string]any)
	// Endpoint ids and direction live on the pattern, never in storage.
	assert.NotContains(t, props, model.StartNodeIDKey)
	assert.NotContains(t, props, model.EndNodeIDKey)
	assert.NotContains(t, props, model.DirectionKey)
	assert.Contains(t, props, model.MetadataKey)
	assert.Contains(t, props, "Since")
}

func TestCreateRelationshipIncomingFlipsArrow(t *testing.T) {
	runner := &fakeRunner{
		results: [][]*neo4j.Record{
			{record([]string{"r"}, []any{wireRelationship("e9", "KNOWS", nil)})},
		},
	}
	g := newTestGraph(t, runner)

	k := &testKnows{}
	k.SetEndpoints("alice", "bob")
	k.Direction = model.Incoming
	require.NoError(t, g.CreateRelationship(context.Background(), k))
	assert.Contains(t, runner.executed[0].cypher, "CREATE (a)<-[r:`KNOWS` $props]-(b)")
}

func TestCreateRelationshipRequiresEndpoints(t *testing.T) {
	g := newTestGraph(t, &fakeRunner{})
	err := g.CreateRelationship(context.Background(), &testKnows{})
	require.Error(t, err)
}

func TestCreateRelationshipNoEndpointMatch(t *testing.T) {
	g := newTestGraph(t, &fakeRunner{}) // CREATE returns no record
	k := &testKnows{}
	k.SetEndpoints("nope", "nada")
	err := g.CreateRelationship(context.Background(), k)
	require.Error(t, err)
}

func TestUpdateRelationshipNotFound(t *testing.T) {
	g := newTestGraph(t, &fakeRunner{})
	k := &testKnows{}
	k.SetEntityID("missing")
	err := g.UpdateRelationship(context.Background(), k)
	require.Error(t, err)
	assert.True(t, gmerrors.IsNotFound(err))
}

func TestDeleteNodeRemovesSubtreeFirst(t *testing.T) {
	runner := &fakeRunner{}
	g := newTestGraph(t, runner)

	require.NoError(t, DeleteNode[testPerson](context.Background(), g, "p1"))
	require.Len(t, runner.executed, 2)
	assert.Contains(t, runner.executed[0].cypher, "DETACH DELETE c")
	assert.Equal(t, "p1", runner.executed[0].params["id"])
	assert.Contains(t, runner.executed[1].cypher, "DETACH DELETE")
}

func TestDeleteRelationship(t *testing.T) {
	runner := &fakeRunner{}
	g := newTestGraph(t, runner)

	require.NoError(t, g.DeleteRelationship(context.Background(), "k1"))
	require.Len(t, runner.executed, 1)
	assert.Contains(t, runner.executed[0].cypher, "DELETE r")
	assert.Equal(t, "k1", runner.executed[0].params["id"])
}

func TestQueryDynamic(t *testing.T) {
	alice := wireNode("e1", []string{"Person"}, map[string]any{"Id": "alice", "Name": "Alice"})
	bob := wireNode("e2", []string{"Person"}, map[string]any{"Id": "bob", "Name": "Bob"})
	knows := neo4j.Relationship{
		ElementId:      "e3",
		StartElementId: "e1",
		EndElementId:   "e2",
		Type:           "KNOWS",
		Props:          map[string]any{"Id": "k1"},
	}

	runner := &fakeRunner{
		results: [][]*neo4j.Record{{
			record([]string{"a", "r", "b"}, []any{alice, knows, bob}),
			// The same elements again; de-duplication keeps one of each.
			record([]string{"a", "r", "b"}, []any{alice, knows, bob}),
		}},
	}
	g := newTestGraph(t, runner)

	result, err := g.QueryDynamic(context.Background(), "MATCH (a)-[r:KNOWS]->(b) RETURN a, r, b", nil)
	require.NoError(t, err)
	require.Len(t, result.Nodes, 2)
	require.Len(t, result.Relationships, 1)

	assert.Equal(t, "alice", result.Nodes[0].Id)
	rel := result.Relationships[0]
	assert.Equal(t, "k1", rel.Id)
	// Element ids resolve to entity ids when the endpoints are in the
	// same result.
	assert.Equal(t, "alice", rel.StartNodeId)
	assert.Equal(t, "bob", rel.EndNodeId)
}

func TestDynamicPropertyValue(t *testing.T) {
	node := &model.DynamicNode{
		Id:         "p1",
		Properties: map[string]any{"Name": "Alice", "Age": int64(34)},
	}

	name, ok, err := PropertyValue[string](node, "Name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Alice", name)

	// Typed reads convert the stored wire value on demand.
	age, ok, err := PropertyValue[int](node, "Age")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 34, age)

	_, ok, err = PropertyValue[string](node, "Missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = PropertyValue[int](node, "Name")
	require.Error(t, err)
	assert.True(t, ok)
}

func TestQueryDynamicNotFound(t *testing.T) {
	g := newTestGraph(t, &fakeRunner{})
	_, err := g.QueryDynamic(context.Background(), "MATCH (n) RETURN n", nil)
	require.Error(t, err)
	assert.True(t, gmerrors.IsNotFound(err))
}
