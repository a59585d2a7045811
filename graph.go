package neograph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/saulfrancisco-ruizacevedo/gocypher"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/serializer"
)

// Graph is the central orchestrator of the mapper. It owns the executor, the
// schema and serializer registries, and provides CRUD operations, queryables,
// and transactions. A Graph is safe for concurrent use; per-call state lives
// in the compilation and processing pipelines, never on the Graph itself.
type Graph struct {
	runner      DBRunner
	driver      neo4j.DriverWithContext
	database    string
	schemas     *schema.Registry
	serializers *serializer.Registry
	logger      *slog.Logger
}

// Option configures a Graph at construction time.
type Option func(*Graph)

// WithLogger installs a structured logger; the default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) { g.logger = logger }
}

// WithSchemaRegistry replaces the process-wide default schema registry.
func WithSchemaRegistry(r *schema.Registry) Option {
	return func(g *Graph) { g.schemas = r }
}

// WithSerializerRegistry replaces the process-wide default serializer
// registry.
func WithSerializerRegistry(r *serializer.Registry) Option {
	return func(g *Graph) { g.serializers = r }
}

// NewGraph creates a Graph backed by the given executor.
func NewGraph(executor *Neo4jExecutor, opts ...Option) *Graph {
	g := &Graph{
		runner:      executor,
		schemas:     schema.DefaultRegistry,
		serializers: serializer.DefaultRegistry,
		logger:      slog.Default(),
	}
	if executor != nil {
		g.driver = executor.Driver
		g.database = executor.DBName
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewGraphWithRunner creates a Graph over a custom runner, typically a mock
// in tests. Explicit transactions are unavailable without a driver.
func NewGraphWithRunner(runner DBRunner, opts ...Option) *Graph {
	g := &Graph{
		runner:      runner,
		schemas:     schema.DefaultRegistry,
		serializers: serializer.DefaultRegistry,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// BeginTransaction opens an explicit transaction. Operations run through the
// Graph returned by WithTransaction until Commit or Rollback.
func (g *Graph) BeginTransaction(ctx context.Context) (*Transaction, error) {
	if g.driver == nil {
		return nil, fmt.Errorf("graph has no driver; explicit transactions need a Neo4jExecutor")
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.database,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		closeErr := session.Close(ctx)
		if closeErr != nil {
			g.logger.Warn("closing session after failed begin", "error", closeErr)
		}
		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}
	return &Transaction{session: session, tx: tx}, nil
}

// WithTransaction returns a Graph whose operations run inside the given
// transaction. The original Graph is not modified.
func (g *Graph) WithTransaction(tx *Transaction) *Graph {
	clone := *g
	clone.runner = tx
	return &clone
}

// CreateNode persists a node and its complex-property subtree. A node
// without an id is assigned one. Complex properties become auxiliary nodes
// connected by property relationships; collection order is recorded through
// sequence numbers on those relationships.
func (g *Graph) CreateNode(ctx context.Context, node model.Node) error {
	if node.EntityID() == "" {
		node.SetEntityID(uuid.NewString())
	}
	return g.writeNode(ctx, node, false)
}

// UpdateNode rewrites an existing node's properties and replaces its
// complex-property subtree. Returns ErrNotFound when no stored node carries
// the entity's id.
func (g *Graph) UpdateNode(ctx context.Context, node model.Node) error {
	if node.EntityID() == "" {
		return fmt.Errorf("cannot update a node without an id")
	}
	return g.writeNode(ctx, node, true)
}

func (g *Graph) writeNode(ctx context.Context, node model.Node, mustExist bool) error {
	t := derefValueType(node)
	s := g.schemas.GetSchema(t)
	if s == nil {
		return fmt.Errorf("type %s has no entity schema", t.String())
	}
	if s.Key == nil {
		return fmt.Errorf("type %s has no identity ('pk') property", t.String())
	}

	ser, err := g.serializers.Get(t)
	if err != nil {
		return err
	}
	info, err := ser.Serialize(node)
	if err != nil {
		return err
	}

	props := simpleWireProps(info)
	delete(props, s.Key.WireName)
	props[model.MetadataKey] = metadataFor(s)

	var elementID string
	if mustExist {
		elementID, err = g.matchAndSet(ctx, s, node.EntityID(), props)
	} else {
		elementID, err = g.mergeAndSet(ctx, s, node.EntityID(), props)
	}
	if err != nil {
		return err
	}

	if err := g.deleteComplexSubtree(ctx, elementID); err != nil {
		return err
	}
	return g.writeComplexProperties(ctx, elementID, info)
}

// mergeAndSet upserts the root node through the query builder and returns
// the stored node's element id.
func (g *Graph) mergeAndSet(ctx context.Context, s *schema.EntitySchema, id string, props map[string]any) (string, error) {
	setProps := make(map[string]any, len(props))
	for k, v := range props {
		setProps["n."+k] = v
	}
	query, params, err := gocypher.NewQueryBuilder().
		Merge(gocypher.N("n", s.Label).WithProperties(map[string]any{s.Key.WireName: id})).
		Set(setProps).
		Return("n").
		Build()
	if err != nil {
		return "", err
	}
	records, err := g.runner.Run(ctx, query, params)
	if err != nil {
		return "", err
	}
	return rootElementID(records)
}

func (g *Graph) matchAndSet(ctx context.Context, s *schema.EntitySchema, id string, props map[string]any) (string, error) {
	query := fmt.Sprintf("MATCH (n:`%s` {%s: $id})\nSET n += $props\nRETURN n", s.Label, s.Key.WireName)
	records, err := g.runner.Run(ctx, query, map[string]any{"id": id, "props": props})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", gmerrors.ErrNotFound
	}
	return rootElementID(records)
}

func rootElementID(records []*neo4j.Record) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("write returned no record")
	}
	v, ok := records[0].Get("n")
	if !ok {
		return "", fmt.Errorf("write returned no 'n' column")
	}
	node, ok := v.(neo4j.Node)
	if !ok {
		return "", fmt.Errorf("write returned %T, expected a node", v)
	}
	return node.ElementId, nil
}

// deleteComplexSubtree removes every auxiliary complex-property node
// transitively reachable from the entity, so a rewrite never leaves orphaned
// children behind.
func (g *Graph) deleteComplexSubtree(ctx context.Context, elementID string) error {
	query := fmt.Sprintf(
		"MATCH p = (n)-[*1..%d]->(c)\n"+
			"WHERE elementId(n) = $id AND all(pr IN relationships(p) WHERE type(pr) STARTS WITH $prefix)\n"+
			"DETACH DELETE c",
		model.DefaultDepthAllowed)
	_, err := g.runner.Run(ctx, query, map[string]any{
		"id":     elementID,
		"prefix": model.PropertyRelationshipPrefix,
	})
	return err
}

// writeComplexProperties persists the complex properties of an entity as
// auxiliary nodes, recursing through nested levels.
func (g *Graph) writeComplexProperties(ctx context.Context, parentElementID string, info *model.EntityInfo) error {
	wireNames := make([]string, 0, len(info.Complex))
	for wireName := range info.Complex {
		wireNames = append(wireNames, wireName)
	}
	sort.Strings(wireNames)

	for _, wireName := range wireNames {
		prop := info.Complex[wireName]
		relType := model.PropertyNameToRelationshipType(wireName)
		switch v := prop.Value.(type) {
		case *model.EntityInfo:
			if err := g.writeComplexChild(ctx, parentElementID, relType, 0, v); err != nil {
				return err
			}
		case model.EntityCollection:
			for i, child := range v.Entities {
				if err := g.writeComplexChild(ctx, parentElementID, relType, i, child); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("complex property %s stored as %s", wireName, prop.Value.Kind())
		}
	}
	return nil
}

func (g *Graph) writeComplexChild(ctx context.Context, parentElementID, relType string, seq int, child *model.EntityInfo) error {
	label := child.Label
	if s := g.schemas.GetSchema(child.Type); s != nil {
		label = s.Label
	}
	props := simpleWireProps(child)
	if s := g.schemas.GetSchema(child.Type); s != nil {
		props[model.MetadataKey] = metadataFor(s)
	}

	query := fmt.Sprintf(
		"MATCH (p) WHERE elementId(p) = $parentId\n"+
			"CREATE (p)-[:`%s` {%s: $seq}]->(c:`%s` $props)\n"+
			"RETURN elementId(c) AS childId",
		relType, model.SequenceNumberKey, label)
	records, err := g.runner.Run(ctx, query, map[string]any{
		"parentId": parentElementID,
		"seq":      int64(seq),
		"props":    props,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("complex property write for %s returned no record", relType)
	}
	childID, ok := records[0].Get("childId")
	if !ok {
		return fmt.Errorf("complex property write for %s returned no childId", relType)
	}
	idStr, ok := childID.(string)
	if !ok {
		return fmt.Errorf("complex property write for %s returned %T childId", relType, childID)
	}
	return g.writeComplexProperties(ctx, idStr, child)
}

// CreateRelationship persists a relationship between two existing nodes.
// Endpoint ids and direction travel on the pattern, not as stored
// properties; they are resynthesized from the path-segment triple on read.
func (g *Graph) CreateRelationship(ctx context.Context, rel model.Relationship) error {
	if rel.EntityID() == "" {
		rel.SetEntityID(uuid.NewString())
	}
	start, end := rel.Endpoints()
	if start == "" || end == "" {
		return fmt.Errorf("relationship %s needs both endpoint ids before it can be created", rel.EntityID())
	}

	t := derefValueType(rel)
	s := g.schemas.GetSchema(t)
	if s == nil {
		return fmt.Errorf("type %s has no entity schema", t.String())
	}
	ser, err := g.serializers.Get(t)
	if err != nil {
		return err
	}
	info, err := ser.Serialize(rel)
	if err != nil {
		return err
	}

	props := relationshipWireProps(info)
	props[model.MetadataKey] = metadataFor(s)

	direction := model.Outgoing
	if stored := info.SimpleProperty(model.DirectionKey); stored != nil {
		if token, ok := stored.(string); ok {
			direction = model.ParseDirection(token)
		}
	}
	relFragment := fmt.Sprintf("-[r:`%s` $props]->", s.Label)
	if direction == model.Incoming {
		relFragment = fmt.Sprintf("<-[r:`%s` $props]-", s.Label)
	}

	query := fmt.Sprintf(
		"MATCH (a {%s: $startId}), (b {%s: $endId})\nCREATE (a)%s(b)\nRETURN r",
		model.IdentityKey, model.IdentityKey, relFragment)
	records, err := g.runner.Run(ctx, query, map[string]any{
		"startId": start,
		"endId":   end,
		"props":   props,
	})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("relationship create matched no endpoint nodes (%s -> %s)", start, end)
	}
	return nil
}

// UpdateRelationship rewrites a stored relationship's properties. Returns
// ErrNotFound when the relationship does not exist.
func (g *Graph) UpdateRelationship(ctx context.Context, rel model.Relationship) error {
	if rel.EntityID() == "" {
		return fmt.Errorf("cannot update a relationship without an id")
	}
	t := derefValueType(rel)
	s := g.schemas.GetSchema(t)
	if s == nil {
		return fmt.Errorf("type %s has no entity schema", t.String())
	}
	ser, err := g.serializers.Get(t)
	if err != nil {
		return err
	}
	info, err := ser.Serialize(rel)
	if err != nil {
		return err
	}
	props := relationshipWireProps(info)
	delete(props, model.IdentityKey)

	query := fmt.Sprintf(
		"MATCH ()-[r:`%s` {%s: $id}]-()\nSET r += $props\nRETURN r",
		s.Label, model.IdentityKey)
	records, err := g.runner.Run(ctx, query, map[string]any{"id": rel.EntityID(), "props": props})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return gmerrors.ErrNotFound
	}
	return nil
}

// DeleteRelationship removes a stored relationship by id.
func (g *Graph) DeleteRelationship(ctx context.Context, id string) error {
	query := fmt.Sprintf("MATCH ()-[r {%s: $id}]-()\nDELETE r", model.IdentityKey)
	_, err := g.runner.Run(ctx, query, map[string]any{"id": id})
	return err
}

// DeleteNode removes a node of type T by id, together with its
// complex-property subtree and any relationships attached to it.
func DeleteNode[T any](ctx context.Context, g *Graph, id string) error {
	t := reflect.TypeOf((*T)(nil)).Elem()
	s := g.schemas.GetSchema(t)
	if s == nil || s.Key == nil {
		return fmt.Errorf("type %s has no entity schema with an identity property", t.String())
	}

	// The auxiliary subtree goes first; DETACH DELETE on the root alone
	// would sever but not remove the property nodes.
	subtree := fmt.Sprintf(
		"MATCH p = (n:`%s` {%s: $id})-[*1..%d]->(c)\n"+
			"WHERE all(pr IN relationships(p) WHERE type(pr) STARTS WITH $prefix)\n"+
			"DETACH DELETE c",
		s.Label, s.Key.WireName, model.DefaultDepthAllowed)
	if _, err := g.runner.Run(ctx, subtree, map[string]any{
		"id":     id,
		"prefix": model.PropertyRelationshipPrefix,
	}); err != nil {
		return err
	}

	query, params, err := gocypher.NewQueryBuilder().
		Match(gocypher.N("n", s.Label).WithProperties(map[string]any{s.Key.WireName: id})).
		DetachDelete("n").
		Build()
	if err != nil {
		return err
	}
	_, err = g.runner.Run(ctx, query, params)
	return err
}

// GetNode loads a node of type T by id, including its complex properties.
// Returns ErrNotFound when no node matches.
func GetNode[T any](ctx context.Context, g *Graph, id string) (*T, error) {
	return Nodes[T](g).Where(idPredicate(g, reflect.TypeOf((*T)(nil)).Elem(), id)).First(ctx)
}

// GetRelationship loads a relationship of type T by id. Returns ErrNotFound
// when no relationship matches.
func GetRelationship[T any](ctx context.Context, g *Graph, id string) (*T, error) {
	return Relationships[T](g).Where(idPredicate(g, reflect.TypeOf((*T)(nil)).Elem(), id)).First(ctx)
}

// metadataFor builds the reserved metadata property recording the written
// concrete type. Stored as a JSON string because the backing store cannot
// hold nested maps as property values; the processor accepts both forms.
func metadataFor(s *schema.EntitySchema) string {
	payload, err := json.Marshal(map[string]string{model.MetadataTypeKey: s.TypeIdentifier})
	if err != nil {
		return ""
	}
	return string(payload)
}

// simpleWireProps flattens an entity's simple properties into the map stored
// on the node or relationship. Nil values are dropped; absent and null are
// the same thing on the wire.
func simpleWireProps(info *model.EntityInfo) map[string]any {
	props := make(map[string]any, len(info.Simple))
	for wireName, p := range info.Simple {
		switch v := p.Value.(type) {
		case model.SimpleValue:
			if v.Value != nil {
				props[wireName] = v.Value
			}
		case model.SimpleCollection:
			values := make([]any, len(v.Values))
			for i, sv := range v.Values {
				values[i] = sv.Value
			}
			props[wireName] = values
		}
	}
	return props
}

// relationshipWireProps is simpleWireProps minus the endpoint properties,
// which live on the pattern rather than in storage.
func relationshipWireProps(info *model.EntityInfo) map[string]any {
	props := simpleWireProps(info)
	delete(props, model.StartNodeIDKey)
	delete(props, model.EndNodeIDKey)
	delete(props, model.DirectionKey)
	return props
}

func idPredicate(g *Graph, t reflect.Type, id string) queryExpr {
	wireName := model.IdentityKey
	if s := g.schemas.GetSchema(t); s != nil && s.Key != nil {
		wireName = s.Key.WireName
	}
	return propRef(wireName).Eq(id)
}

func derefValueType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
