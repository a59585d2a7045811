package model

import "strings"

// Wire-level conventions shared with data written by prior versions of this
// library. Changing any of these tokens breaks compatibility with existing
// graphs, so they are constants rather than configuration.
const (
	// PropertyRelationshipPrefix and PropertyRelationshipSuffix bracket a
	// property name to form the type of the auxiliary relationship that
	// links a node to one of its complex-property nodes.
	PropertyRelationshipPrefix = "__PROPERTY__"
	PropertyRelationshipSuffix = "__"

	// SequenceNumberKey is the simple integer property stored on each
	// auxiliary relationship to preserve collection order; the backing
	// store does not guarantee relationship-return order.
	SequenceNumberKey = "SequenceNumber"

	// MetadataKey is the reserved property under which a nested map of
	// entity metadata is stored alongside regular properties.
	MetadataKey = "__metadata__"

	// MetadataTypeKey is the key inside the metadata map holding the fully
	// qualified identifier of the concrete type written, used for
	// polymorphic type recovery when reading.
	MetadataTypeKey = "type"

	// IdentityKey is the wire name of the identity property.
	IdentityKey = "Id"

	// StartNodeIDKey, EndNodeIDKey, and DirectionKey are the wire names of
	// the relationship endpoint properties. They are synthesized during
	// result processing rather than stored on the relationship itself.
	StartNodeIDKey = "StartNodeId"
	EndNodeIDKey   = "EndNodeId"
	DirectionKey   = "Direction"

	// DefaultDepthAllowed bounds complex-property traversal when loading a
	// node, preventing unbounded pattern expansion.
	DefaultDepthAllowed = 5
)

// PropertyNameToRelationshipType derives the auxiliary relationship type
// used to store a complex property, e.g. "Address" -> "__PROPERTY__Address__".
func PropertyNameToRelationshipType(propertyName string) string {
	return PropertyRelationshipPrefix + propertyName + PropertyRelationshipSuffix
}

// RelationshipTypeToPropertyName recovers the property name from an auxiliary
// relationship type. Types that do not follow the convention are returned
// unchanged.
func RelationshipTypeToPropertyName(relationshipType string) string {
	if IsPropertyRelationshipType(relationshipType) {
		return relationshipType[len(PropertyRelationshipPrefix) : len(relationshipType)-len(PropertyRelationshipSuffix)]
	}
	return relationshipType
}

// IsPropertyRelationshipType reports whether a relationship type follows the
// complex-property naming convention.
func IsPropertyRelationshipType(relationshipType string) bool {
	return strings.HasPrefix(relationshipType, PropertyRelationshipPrefix) &&
		strings.HasSuffix(relationshipType, PropertyRelationshipSuffix) &&
		len(relationshipType) > len(PropertyRelationshipPrefix)+len(PropertyRelationshipSuffix)
}
