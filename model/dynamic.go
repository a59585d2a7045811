package model

import "sort"

// DynamicNode is the untyped node variant used when the caller does not know
// the concrete type ahead of time. Its properties are schema-less and all
// treated as simple wire values; typed reads go through the value bridge
// lazily via the accessor helpers on the provider side.
type DynamicNode struct {
	Id         string
	Labels     []string
	Properties map[string]any
}

// EntityID returns the node's identity.
func (n *DynamicNode) EntityID() string { return n.Id }

// SetEntityID assigns the node's identity.
func (n *DynamicNode) SetEntityID(id string) { n.Id = id }

// IsNode marks DynamicNode as a node.
func (*DynamicNode) IsNode() {}

// PropertyNames returns the node's property names in sorted order, giving
// deterministic iteration over the otherwise unordered map.
func (n *DynamicNode) PropertyNames() []string {
	names := make([]string, 0, len(n.Properties))
	for name := range n.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Property returns the raw wire value of a property and whether it exists.
func (n *DynamicNode) Property(name string) (any, bool) {
	v, ok := n.Properties[name]
	return v, ok
}

// DynamicRelationship is the untyped relationship variant.
type DynamicRelationship struct {
	Id          string
	Type        string
	StartNodeId string
	EndNodeId   string
	Direction   RelationshipDirection
	Properties  map[string]any
}

// EntityID returns the relationship's identity.
func (r *DynamicRelationship) EntityID() string { return r.Id }

// SetEntityID assigns the relationship's identity.
func (r *DynamicRelationship) SetEntityID(id string) { r.Id = id }

// Endpoints returns the ids of the nodes this relationship connects.
func (r *DynamicRelationship) Endpoints() (string, string) {
	return r.StartNodeId, r.EndNodeId
}

// SetEndpoints assigns the ids of the nodes this relationship connects.
func (r *DynamicRelationship) SetEndpoints(start, end string) {
	r.StartNodeId = start
	r.EndNodeId = end
}

// IsRelationship marks DynamicRelationship as a relationship.
func (*DynamicRelationship) IsRelationship() {}

// PropertyNames returns the relationship's property names in sorted order.
func (r *DynamicRelationship) PropertyNames() []string {
	names := make([]string, 0, len(r.Properties))
	for name := range r.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Property returns the raw wire value of a property and whether it exists.
func (r *DynamicRelationship) Property(name string) (any, bool) {
	v, ok := r.Properties[name]
	return v, ok
}
