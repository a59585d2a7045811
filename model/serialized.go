package model

import "reflect"

// PropertyKind classifies how a property is represented on the wire. Every
// property of a registered entity type falls into exactly one kind; the
// schema and the serializer must agree on the classification.
type PropertyKind int

const (
	// KindSimple is a single scalar stored directly on the node or
	// relationship.
	KindSimple PropertyKind = iota
	// KindSimpleCollection is an ordered sequence of scalars stored
	// directly on the node or relationship.
	KindSimpleCollection
	// KindComplex is a nested entity stored as an auxiliary node connected
	// by a property relationship.
	KindComplex
	// KindComplexCollection is an ordered sequence of nested entities,
	// each stored as an auxiliary node; order is preserved through the
	// SequenceNumber property on the connecting relationships.
	KindComplexCollection
)

// String returns a short name for the kind, used in error messages.
func (k PropertyKind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindSimpleCollection:
		return "simple collection"
	case KindComplex:
		return "complex"
	case KindComplexCollection:
		return "complex collection"
	default:
		return "unknown"
	}
}

// Serialized is the closed set of intermediate property values. Exactly four
// types implement it: SimpleValue, SimpleCollection, EntityInfo, and
// EntityCollection.
type Serialized interface {
	Kind() PropertyKind
}

// SimpleValue holds one scalar already converted to its wire representation.
type SimpleValue struct {
	// Value is the wire-level scalar (int64, float64, string, bool, []byte,
	// a driver temporal or spatial type, or nil).
	Value any
	// Type is the Go type the value was converted from, when known.
	Type reflect.Type
}

// Kind implements Serialized.
func (SimpleValue) Kind() PropertyKind { return KindSimple }

// SimpleCollection holds an ordered sequence of scalars. Order is significant
// and must round-trip.
type SimpleCollection struct {
	Values      []SimpleValue
	ElementType reflect.Type
}

// Kind implements Serialized.
func (SimpleCollection) Kind() PropertyKind { return KindSimpleCollection }

// EntityInfo is the intermediate representation of one entity: the serialized
// form produced when writing a typed object, and the reconstruction target
// when processing raw query records. It is pure data, owned by the pipeline
// stage that created it.
type EntityInfo struct {
	// Type is the concrete Go type of the entity, when resolved.
	Type reflect.Type
	// Label is the node label or relationship type name.
	Label string
	// ActualLabels carries every label found on the wire entity, used for
	// polymorphic resolution.
	ActualLabels []string
	// Simple maps wire property names to simple and simple-collection
	// properties.
	Simple map[string]Property
	// Complex maps wire property names to complex and complex-collection
	// properties.
	Complex map[string]Property
}

// Kind implements Serialized.
func (*EntityInfo) Kind() PropertyKind { return KindComplex }

// NewEntityInfo returns an EntityInfo with allocated property maps.
func NewEntityInfo(t reflect.Type, label string) *EntityInfo {
	return &EntityInfo{
		Type:    t,
		Label:   label,
		Simple:  map[string]Property{},
		Complex: map[string]Property{},
	}
}

// SimpleProperty returns the wire value of a simple property, or nil when the
// property is absent.
func (e *EntityInfo) SimpleProperty(wireName string) any {
	p, ok := e.Simple[wireName]
	if !ok {
		return nil
	}
	if sv, ok := p.Value.(SimpleValue); ok {
		return sv.Value
	}
	return nil
}

// EntityCollection holds an ordered sequence of nested entities. Order must
// round-trip; when persisted it is carried by the SequenceNumber property on
// each auxiliary relationship.
type EntityCollection struct {
	ElementType reflect.Type
	Entities    []*EntityInfo
}

// Kind implements Serialized.
func (EntityCollection) Kind() PropertyKind { return KindComplexCollection }

// Property wraps a Serialized value with the metadata needed to move it
// between a typed struct field and the wire format.
type Property struct {
	// Value is the serialized payload.
	Value Serialized
	// DeclaredType is the Go type of the originating struct field.
	DeclaredType reflect.Type
	// FieldName is the Go struct field name.
	FieldName string
	// WireName is the property name on the stored node or relationship.
	WireName string
	// Nullable reports whether the property may legally be absent.
	Nullable bool
}
