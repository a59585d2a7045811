package neograph

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/require"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/serializer"
)

type geo struct {
	Lat float64 `graph:"property:Lat"`
	Lng float64 `graph:"property:Lng"`
}

type testAddress struct {
	Street string `graph:"property:Street"`
	City   string `graph:"property:City"`
	Geo    *geo   `graph:"property:Geo"`
}

type testPerson struct {
	model.NodeBase
	Name     string        `graph:"property:Name"`
	Age      int           `graph:"property:Age"`
	Tags     []string      `graph:"property:Tags"`
	Home     *testAddress  `graph:"property:Home"`
	Previous []testAddress `graph:"property:Previous"`
}

type testManager struct {
	testPerson
	TeamSize int `graph:"property:TeamSize"`
}

type testKnows struct {
	model.RelationshipBase
	Since time.Time `graph:"property:Since"`
}

// executedQuery records one statement handed to the runner.
type executedQuery struct {
	cypher string
	params map[string]any
}

// fakeRunner scripts runner responses and captures every executed
// statement, standing in for a live database.
type fakeRunner struct {
	executed []executedQuery
	results  [][]*neo4j.Record
	errs     []error
}

func (f *fakeRunner) Run(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	f.executed = append(f.executed, executedQuery{cypher: query, params: params})
	call := len(f.executed) - 1
	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	var records []*neo4j.Record
	if call < len(f.results) {
		records = f.results[call]
	}
	return records, err
}

func newTestGraph(t *testing.T, runner DBRunner) *Graph {
	t.Helper()
	schemas := schema.NewRegistry()
	_, err := schema.RegisterNodeIn[testPerson](schemas, "Person")
	require.NoError(t, err)
	_, err = schema.RegisterNodeIn[testManager](schemas, "Manager")
	require.NoError(t, err)
	_, err = schema.RegisterRelationshipIn[testKnows](schemas, "KNOWS")
	require.NoError(t, err)

	return NewGraphWithRunner(runner,
		WithSchemaRegistry(schemas),
		WithSerializerRegistry(serializer.NewRegistry(schemas)),
	)
}

func record(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func metadataJSON(t *testing.T, g *Graph, entity reflect.Type) string {
	t.Helper()
	s := g.schemas.GetSchema(entity)
	require.NotNil(t, s)
	payload, err := json.Marshal(map[string]string{model.MetadataTypeKey: s.TypeIdentifier})
	require.NoError(t, err)
	return string(payload)
}

func wireNode(elementID string, labels []string, props map[string]any) neo4j.Node {
	if props == nil {
		props = map[string]any{}
	}
	return neo4j.Node{ElementId: elementID, Labels: labels, Props: props}
}

func wireRelationship(elementID, relType string, props map[string]any) neo4j.Relationship {
	if props == nil {
		props = map[string]any{}
	}
	return neo4j.Relationship{ElementId: elementID, Type: relType, Props: props}
}

// cpTuple builds one flattened complex-property tuple the way the node-load
// statement collects them.
func cpTuple(parent neo4j.Node, relType string, seq int64, child neo4j.Node) map[string]any {
	return map[string]any{
		"ParentNode": parent,
		"Relationship": neo4j.Relationship{
			ElementId: "r-" + child.ElementId,
			Type:      relType,
			Props:     map[string]any{model.SequenceNumberKey: seq},
		},
		model.SequenceNumberKey: seq,
		"ChildNode":             child,
	}
}
