package neograph

import (
	"context"
	"fmt"
	"reflect"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/bridge"
	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// DynamicEntity is the property surface shared by the dynamic node and
// relationship types.
type DynamicEntity interface {
	Property(name string) (any, bool)
}

// PropertyValue reads a property of a dynamic entity as T, converting the
// stored wire value through the value bridge on demand. The second return
// reports whether the property exists; conversion failures surface as
// ConversionError.
func PropertyValue[T any](e DynamicEntity, name string) (T, bool, error) {
	var zero T
	raw, ok := e.Property(name)
	if !ok || raw == nil {
		return zero, false, nil
	}
	v, err := bridge.FromWire(raw, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, true, err
	}
	return v.(T), true, nil
}

// GraphResult is the de-duplicated untyped view of an arbitrary graph
// query: every distinct node and relationship that appeared anywhere in
// the result, in first-seen order.
type GraphResult struct {
	Nodes         []*model.DynamicNode
	Relationships []*model.DynamicRelationship
}

// QueryDynamic executes a raw Cypher statement and maps every node and
// relationship in the result into the schema-less dynamic types. It is
// domain-agnostic: no struct registration is needed, property relationship
// subtrees are not reassembled, and properties stay as wire values.
//
// Returns ErrNotFound when the query runs successfully but yields zero
// records.
func (g *Graph) QueryDynamic(ctx context.Context, cypher string, params map[string]any) (*GraphResult, error) {
	records, err := g.runner.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("could not execute query: %w", err)
	}
	if len(records) == 0 {
		return nil, gmerrors.ErrNotFound
	}

	result := &GraphResult{}
	seenNodes := make(map[string]bool)
	seenRels := make(map[string]bool)
	elementToID := make(map[string]string)

	collect := func(value any) {
		switch v := value.(type) {
		case neo4j.Node:
			if seenNodes[v.ElementId] {
				return
			}
			seenNodes[v.ElementId] = true
			node := &model.DynamicNode{
				Labels:     v.Labels,
				Properties: v.Props,
			}
			if id, ok := v.Props[model.IdentityKey].(string); ok {
				node.Id = id
				elementToID[v.ElementId] = id
			} else {
				node.Id = v.ElementId
				elementToID[v.ElementId] = v.ElementId
			}
			result.Nodes = append(result.Nodes, node)
		case neo4j.Relationship:
			if seenRels[v.ElementId] {
				return
			}
			seenRels[v.ElementId] = true
			rel := &model.DynamicRelationship{
				Type:        v.Type,
				StartNodeId: v.StartElementId,
				EndNodeId:   v.EndElementId,
				Direction:   model.Outgoing,
				Properties:  v.Props,
			}
			if id, ok := v.Props[model.IdentityKey].(string); ok {
				rel.Id = id
			} else {
				rel.Id = v.ElementId
			}
			result.Relationships = append(result.Relationships, rel)
		}
	}

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		for _, value := range record.Values {
			// Queries returning collected paths or lists nest graph
			// elements one level down.
			if list, ok := value.([]any); ok {
				for _, item := range list {
					collect(item)
				}
				continue
			}
			collect(value)
		}
	}

	// Endpoint element ids resolve to entity ids when the endpoint node
	// came back in the same result.
	for _, rel := range result.Relationships {
		if id, ok := elementToID[rel.StartNodeId]; ok {
			rel.StartNodeId = id
		}
		if id, ok := elementToID[rel.EndNodeId]; ok {
			rel.EndNodeId = id
		}
	}
	return result, nil
}

// QueryDynamicBuilder executes a query assembled with the fluent builder
// and maps the result the same way as QueryDynamic.
func (g *Graph) QueryDynamicBuilder(ctx context.Context, qb *gocypher.QueryBuilder) (*GraphResult, error) {
	cypher, params, err := qb.Build()
	if err != nil {
		return nil, fmt.Errorf("could not build query: %w", err)
	}
	return g.QueryDynamic(ctx, cypher, params)
}
