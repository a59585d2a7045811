// Package schema maps entity types to property schemas describing how each
// property is stored: simple, collection-of-simple, complex (nested entity),
// or collection-of-complex, plus identity, nullability, and index metadata.
// Schemas are derived from `graph` struct tags and cached process-wide; the
// registry also serves as the explicit type universe used for polymorphic
// label resolution when reading query results.
package schema

import (
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// PropertySchema describes how one struct field is stored on the wire.
type PropertySchema struct {
	// FieldName is the Go struct field name.
	FieldName string
	// WireName is the property name on the stored node or relationship,
	// defaulting to the field name.
	WireName string
	// Kind classifies the property's storage shape.
	Kind model.PropertyKind
	// Type is the declared Go type of the field.
	Type reflect.Type
	// ElementType is the element type for collection kinds, nil otherwise.
	ElementType reflect.Type
	// Nullable reports whether the property may legally be absent from the
	// stored representation.
	Nullable bool
	// Required forces presence even for otherwise nullable shapes.
	Required bool
	// IsKey marks the identity property.
	IsKey bool
	// IsUnique, IsIndexed, and IsFullText carry constraint and index hints
	// consumed by the external schema management subsystem.
	IsUnique   bool
	IsIndexed  bool
	IsFullText bool
	// Index is the field's index path within the struct, usable with
	// reflect.Value.FieldByIndex across embedded bases.
	Index []int
}

// EntitySchema describes one registered entity type.
type EntitySchema struct {
	// Type is the concrete struct type (not a pointer).
	Type reflect.Type
	// Label is the node label or relationship type name. Defaults to the
	// struct's name.
	Label string
	// TypeIdentifier is the fully qualified identifier written under the
	// __metadata__ property for polymorphic recovery.
	TypeIdentifier string
	// IsRelationship reports whether the type is a relationship. The
	// properties of a relationship must all be simple: relationships are
	// flat by design.
	IsRelationship bool
	// Properties maps wire names to property schemas.
	Properties map[string]*PropertySchema
	// Ordered lists properties in declaration order, embedded base fields
	// first. Serialization walks this list, never the map.
	Ordered []*PropertySchema
	// Key is the identity property.
	Key *PropertySchema
}

// ElementOrType returns the entity type behind the property: the element
// type for collections and complex properties, otherwise the declared type
// with any pointer stripped.
func (p *PropertySchema) ElementOrType() reflect.Type {
	if p.ElementType != nil {
		return p.ElementType
	}
	t := p.Type
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// Property returns the schema of a property by wire name, or nil.
func (s *EntitySchema) Property(wireName string) *PropertySchema {
	return s.Properties[wireName]
}

// ComplexProperties returns the complex and complex-collection properties in
// declaration order.
func (s *EntitySchema) ComplexProperties() []*PropertySchema {
	var out []*PropertySchema
	for _, p := range s.Ordered {
		if p.Kind == model.KindComplex || p.Kind == model.KindComplexCollection {
			out = append(out, p)
		}
	}
	return out
}

// typeIdentifier builds the fully qualified identifier stored in entity
// metadata for a type.
func typeIdentifier(t reflect.Type) string {
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
