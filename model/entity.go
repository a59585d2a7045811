// Package model defines the entity taxonomy of the graph mapper: nodes,
// relationships, path segments, their dynamic (schema-less) variants, and the
// intermediate property representation that bridges typed Go structs and the
// wire-level Neo4j property format.
package model

import "strings"

// RelationshipDirection defines the direction of a relationship relative to
// the node that declares or traverses it.
type RelationshipDirection int

const (
	// Outgoing follows the relationship arrow from start to end.
	Outgoing RelationshipDirection = iota
	// Incoming reverses the relationship arrow.
	Incoming
	// Bidirectional matches the relationship regardless of arrow direction.
	Bidirectional
)

// String returns the wire form of the direction. The tokens match data
// written by earlier versions of the library, so they must not change.
func (d RelationshipDirection) String() string {
	switch d {
	case Incoming:
		return "Incoming"
	case Bidirectional:
		return "Bidirectional"
	default:
		return "Outgoing"
	}
}

// ParseDirection converts a stored direction token back to its typed form.
// Unrecognized or empty tokens default to Outgoing, matching how data written
// without an explicit direction has always been read back.
func ParseDirection(s string) RelationshipDirection {
	switch strings.ToLower(s) {
	case "incoming":
		return Incoming
	case "bidirectional", "both":
		return Bidirectional
	default:
		return Outgoing
	}
}

// Entity is the minimal contract shared by nodes and relationships: a stable
// string identity under the wire property "Id".
type Entity interface {
	EntityID() string
	SetEntityID(id string)
}

// Node marks a type as a graph node. Concrete node types embed NodeBase.
type Node interface {
	Entity
	IsNode()
}

// Relationship marks a type as a graph relationship. Concrete relationship
// types embed RelationshipBase. Relationships are flat: they carry only
// simple properties, never nested complex values.
type Relationship interface {
	Entity
	Endpoints() (startNodeID, endNodeID string)
	SetEndpoints(startNodeID, endNodeID string)
	IsRelationship()
}

// NodeBase supplies the identity property every node type needs.
// Embed it in a domain struct:
//
//	type Person struct {
//	    model.NodeBase
//	    Name string `graph:"property:Name"`
//	    Age  int    `graph:"property:Age"`
//	}
type NodeBase struct {
	// Id is the unique identifier of the node, stored under the wire
	// property "Id".
	Id string `graph:"property:Id,pk"`
}

// EntityID returns the node's identity.
func (n *NodeBase) EntityID() string { return n.Id }

// SetEntityID assigns the node's identity.
func (n *NodeBase) SetEntityID(id string) { n.Id = id }

// IsNode marks the embedding type as a node.
func (*NodeBase) IsNode() {}

// RelationshipBase supplies the identity, endpoint ids, and direction that
// every relationship type carries. StartNodeId, EndNodeId, and Direction are
// synthesized from the path-segment triple when reading, since the stored
// relationship does not always carry them directly.
type RelationshipBase struct {
	Id          string                `graph:"property:Id,pk"`
	StartNodeId string                `graph:"property:StartNodeId"`
	EndNodeId   string                `graph:"property:EndNodeId"`
	Direction   RelationshipDirection `graph:"property:Direction"`
}

// EntityID returns the relationship's identity.
func (r *RelationshipBase) EntityID() string { return r.Id }

// SetEntityID assigns the relationship's identity.
func (r *RelationshipBase) SetEntityID(id string) { r.Id = id }

// Endpoints returns the ids of the nodes this relationship connects.
func (r *RelationshipBase) Endpoints() (string, string) {
	return r.StartNodeId, r.EndNodeId
}

// SetEndpoints assigns the ids of the nodes this relationship connects.
func (r *RelationshipBase) SetEndpoints(start, end string) {
	r.StartNodeId = start
	r.EndNodeId = end
}

// IsRelationship marks the embedding type as a relationship.
func (*RelationshipBase) IsRelationship() {}

// PathSegment is the read-only triple produced by traversal queries: a start
// node, the connecting relationship, and the end node. The type parameters
// are pointer-to-struct entity types. Path segments are never persisted.
type PathSegment[S, R, E any] struct {
	StartNode    S
	Relationship R
	EndNode      E
}

// Point is a three-dimensional cartesian point. The value bridge converts it
// to and from the driver's spatial Point3D type.
type Point struct {
	X float64
	Y float64
	Z float64
}
