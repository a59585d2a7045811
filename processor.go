package neograph

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/query"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
)

// processor turns driver records into serialized entity representations.
// Each dispatch branch expects the record layout its shape's compilation
// produced; a record missing a structural column is malformed, never
// skipped.
type processor struct {
	schemas *schema.Registry
}

func newProcessor(schemas *schema.Registry) *processor {
	return &processor{schemas: schemas}
}

// segment is one processed path-segment triple. The relationship info
// already carries the synthesized endpoint ids.
type segment struct {
	start *model.EntityInfo
	rel   *model.EntityInfo
	end   *model.EntityInfo
}

// processNodes handles the node shape: one root node per record plus the
// flattened complex-property tuples collected alongside it. On
// cancellation the rows processed so far are returned with the context
// error.
func (p *processor) processNodes(ctx context.Context, records []*neo4j.Record, static reflect.Type) ([]*model.EntityInfo, error) {
	infos := make([]*model.EntityInfo, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return infos, err
		}
		raw, ok := record.Get(query.ColumnNode)
		if !ok {
			return infos, gmerrors.NewMalformedRecord(query.ColumnNode, record.Keys)
		}
		node, ok := raw.(neo4j.Node)
		if !ok {
			return infos, gmerrors.NewMalformedRecord(query.ColumnNode, record.Keys)
		}

		info := p.nodeToInfo(node, static)

		tuples, ok := record.Get(query.ColumnComplexProperties)
		if !ok {
			return infos, gmerrors.NewMalformedRecord(query.ColumnComplexProperties, record.Keys)
		}
		if err := p.attachComplexProperties(info, node.ElementId, tuples, static); err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// complexEdge is one flattened parent-to-child tuple before reassembly.
type complexEdge struct {
	parentID string
	property string
	sequence int64
	childID  string
}

// attachComplexProperties reassembles the complex-property tree from the
// flattened tuples. Children sort by sequence number within each property;
// whether a property is singular or a collection follows the parent's
// schema, with collection as the fallback when more than one child arrived.
func (p *processor) attachComplexProperties(root *model.EntityInfo, rootID string, tuples any, static reflect.Type) error {
	list, ok := tuples.([]any)
	if !ok {
		return gmerrors.NewMalformedRecord(query.ColumnComplexProperties, nil)
	}

	byID := map[string]*model.EntityInfo{rootID: root}
	var edges []complexEdge
	for _, t := range list {
		tuple, ok := t.(map[string]any)
		if !ok {
			continue
		}
		parent, okP := tuple["ParentNode"].(neo4j.Node)
		rel, okR := tuple["Relationship"].(neo4j.Relationship)
		child, okC := tuple["ChildNode"].(neo4j.Node)
		if !okP || !okR || !okC {
			// collect() over an empty optional match leaves a null tuple.
			continue
		}
		if !model.IsPropertyRelationshipType(rel.Type) {
			continue
		}
		if _, seen := byID[child.ElementId]; !seen {
			byID[child.ElementId] = p.nodeToInfo(child, nil)
		}
		seq := int64(0)
		if n, ok := tuple[model.SequenceNumberKey].(int64); ok {
			seq = n
		} else if n, ok := rel.Props[model.SequenceNumberKey].(int64); ok {
			seq = n
		}
		edges = append(edges, complexEdge{
			parentID: parent.ElementId,
			property: model.RelationshipTypeToPropertyName(rel.Type),
			sequence: seq,
			childID:  child.ElementId,
		})
	}

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].parentID != edges[j].parentID {
			return edges[i].parentID < edges[j].parentID
		}
		if edges[i].property != edges[j].property {
			return edges[i].property < edges[j].property
		}
		return edges[i].sequence < edges[j].sequence
	})

	type group struct {
		parentID string
		property string
		children []*model.EntityInfo
	}
	var groups []group
	for _, e := range edges {
		child, ok := byID[e.childID]
		if !ok {
			continue
		}
		if n := len(groups); n > 0 && groups[n-1].parentID == e.parentID && groups[n-1].property == e.property {
			groups[n-1].children = append(groups[n-1].children, child)
			continue
		}
		groups = append(groups, group{parentID: e.parentID, property: e.property, children: []*model.EntityInfo{child}})
	}

	for _, grp := range groups {
		parent, ok := byID[grp.parentID]
		if !ok {
			continue
		}
		p.setComplex(parent, grp.property, grp.children)
	}
	return nil
}

func (p *processor) setComplex(parent *model.EntityInfo, propName string, children []*model.EntityInfo) {
	singular := len(children) == 1
	var declared reflect.Type
	if s := p.schemas.GetSchema(parent.Type); s != nil {
		if ps := s.Property(propName); ps != nil {
			singular = ps.Kind == model.KindComplex
			declared = ps.Type
		}
	}
	if singular {
		parent.Complex[propName] = model.Property{
			Value:        children[0],
			DeclaredType: declared,
			WireName:     propName,
		}
		return
	}
	var elem reflect.Type
	if len(children) > 0 {
		elem = children[0].Type
	}
	parent.Complex[propName] = model.Property{
		Value:        model.EntityCollection{ElementType: elem, Entities: children},
		DeclaredType: declared,
		WireName:     propName,
	}
}

// processRelationships handles relationship-rooted queries. The compiled
// query always returns the full triple; the endpoint ids a relationship
// struct carries are synthesized here from the bounding nodes.
func (p *processor) processRelationships(ctx context.Context, records []*neo4j.Record, static reflect.Type) ([]*model.EntityInfo, error) {
	infos := make([]*model.EntityInfo, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return infos, err
		}
		info, err := p.relationshipFromRecord(record, static)
		if err != nil {
			return infos, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// processPathSegments handles finalized traversals: every record carries
// the start node, relationship, and end node of one matched segment.
func (p *processor) processPathSegments(ctx context.Context, records []*neo4j.Record, srcType, relType, tgtType reflect.Type) ([]segment, error) {
	segments := make([]segment, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return segments, err
		}
		start, ok := nodeColumn(record, query.ColumnStartNode)
		if !ok {
			return segments, gmerrors.NewMalformedRecord(query.ColumnStartNode, record.Keys)
		}
		end, ok := nodeColumn(record, query.ColumnEndNode)
		if !ok {
			return segments, gmerrors.NewMalformedRecord(query.ColumnEndNode, record.Keys)
		}
		rel, err := p.relationshipFromRecord(record, relType)
		if err != nil {
			return segments, err
		}
		segments = append(segments, segment{
			start: p.nodeToInfo(start, srcType),
			rel:   rel,
			end:   p.nodeToInfo(end, tgtType),
		})
	}
	return segments, nil
}

func (p *processor) relationshipFromRecord(record *neo4j.Record, static reflect.Type) (*model.EntityInfo, error) {
	raw, ok := record.Get(query.ColumnRelationship)
	if !ok {
		return nil, gmerrors.NewMalformedRecord(query.ColumnRelationship, record.Keys)
	}
	rel, ok := raw.(neo4j.Relationship)
	if !ok {
		return nil, gmerrors.NewMalformedRecord(query.ColumnRelationship, record.Keys)
	}
	start, ok := nodeColumn(record, query.ColumnStartNode)
	if !ok {
		return nil, gmerrors.NewMalformedRecord(query.ColumnStartNode, record.Keys)
	}
	end, ok := nodeColumn(record, query.ColumnEndNode)
	if !ok {
		return nil, gmerrors.NewMalformedRecord(query.ColumnEndNode, record.Keys)
	}
	return p.relationshipToInfo(rel, start, end, static), nil
}

// relationshipToInfo builds the serialized form of a stored relationship.
// StartNodeId, EndNodeId, and Direction are not stored properties; they are
// synthesized from the bounding nodes, with direction defaulting to
// outgoing the way every relationship is written.
func (p *processor) relationshipToInfo(rel neo4j.Relationship, start, end neo4j.Node, static reflect.Type) *model.EntityInfo {
	t := p.resolveType(static, []string{rel.Type}, rel.Props)
	info := model.NewEntityInfo(t, rel.Type)
	for key, value := range rel.Props {
		if key == model.MetadataKey {
			continue
		}
		info.Simple[key] = simpleWireProperty(key, value)
	}
	if startID, ok := start.Props[model.IdentityKey]; ok {
		info.Simple[model.StartNodeIDKey] = simpleWireProperty(model.StartNodeIDKey, startID)
	}
	if endID, ok := end.Props[model.IdentityKey]; ok {
		info.Simple[model.EndNodeIDKey] = simpleWireProperty(model.EndNodeIDKey, endID)
	}
	if _, ok := info.Simple[model.DirectionKey]; !ok {
		info.Simple[model.DirectionKey] = simpleWireProperty(model.DirectionKey, model.Outgoing.String())
	}
	return info
}

// processProjection handles the projection shape: one value per projected
// column, no entity reconstruction.
func (p *processor) processProjection(ctx context.Context, records []*neo4j.Record, fields []string) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		row := make(map[string]any, len(fields))
		for _, field := range fields {
			value, ok := record.Get(field)
			if !ok {
				return rows, gmerrors.NewMalformedRecord(field, record.Keys)
			}
			row[field] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// processCount extracts the single cardinality column.
func (p *processor) processCount(records []*neo4j.Record) (int64, error) {
	if len(records) == 0 {
		return 0, gmerrors.NewMalformedRecord(query.ColumnCount, nil)
	}
	raw, ok := records[0].Get(query.ColumnCount)
	if !ok {
		return 0, gmerrors.NewMalformedRecord(query.ColumnCount, records[0].Keys)
	}
	count, ok := raw.(int64)
	if !ok {
		return 0, gmerrors.NewMalformedRecord(query.ColumnCount, records[0].Keys)
	}
	return count, nil
}

// nodeToInfo builds the serialized form of a stored node. Wire properties
// pass through untouched; value conversion happens later against the
// resolved type's schema.
func (p *processor) nodeToInfo(node neo4j.Node, static reflect.Type) *model.EntityInfo {
	t := p.resolveType(static, node.Labels, node.Props)
	label := ""
	if len(node.Labels) > 0 {
		label = node.Labels[0]
	}
	if s := p.schemas.GetSchema(t); s != nil {
		label = s.Label
	}
	info := model.NewEntityInfo(t, label)
	info.ActualLabels = node.Labels
	for key, value := range node.Props {
		if key == model.MetadataKey {
			continue
		}
		info.Simple[key] = simpleWireProperty(key, value)
	}
	return info
}

// resolveType picks the most specific registered type for a stored entity.
// The metadata identifier wins, then a registered label, then the
// statically requested type. Metadata naming a type that is not assignable
// to the request is ignored rather than failed; the store may hold a
// sibling type the caller never asked for.
func (p *processor) resolveType(static reflect.Type, labels []string, props map[string]any) reflect.Type {
	if identity := metadataIdentity(props); identity != "" {
		if t, ok := p.schemas.TypeForIdentity(identity, static); ok {
			return t
		}
	}
	for _, label := range labels {
		if t, ok := p.schemas.TypeForLabel(label, static); ok {
			return t
		}
	}
	return static
}

// metadataIdentity reads the type identifier out of the reserved metadata
// property. The value is stored as a JSON string, but a map form is
// accepted too for stores written by other clients.
func metadataIdentity(props map[string]any) string {
	raw, ok := props[model.MetadataKey]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		var decoded map[string]string
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return ""
		}
		return decoded[model.MetadataTypeKey]
	case map[string]any:
		if id, ok := v[model.MetadataTypeKey].(string); ok {
			return id
		}
	}
	return ""
}

func simpleWireProperty(wireName string, value any) model.Property {
	return model.Property{
		Value:    model.SimpleValue{Value: value},
		WireName: wireName,
	}
}

func nodeColumn(record *neo4j.Record, column string) (neo4j.Node, bool) {
	raw, ok := record.Get(column)
	if !ok {
		return dbtype.Node{}, false
	}
	node, ok := raw.(neo4j.Node)
	return node, ok
}
