package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// tagName is the struct tag key holding persistence metadata. The grammar is
// comma-separated components: "property:WireName" renames the stored
// property, "pk" marks the identity, and "required", "unique", "index", and
// "fulltext" set the corresponding flags. A bare "-" excludes the field.
//
//	type Person struct {
//	    model.NodeBase
//	    Name    string   `graph:"property:Name,index"`
//	    Email   string   `graph:"property:Email,unique"`
//	    Scratch string   `graph:"-"`
//	}
//
// Untagged exported fields participate under their own name.
const tagName = "graph"

// deriveSchema inspects a struct type and extracts its entity schema from
// graph struct tags. It is the schema registry's cache-miss path; callers go
// through Registry.Get, never here directly.
func deriveSchema(typ reflect.Type) (*EntitySchema, error) {
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.String())
	}

	s := &EntitySchema{
		Type:           typ,
		Label:          typ.Name(),
		TypeIdentifier: typeIdentifier(typ),
		IsRelationship: isRelationshipType(typ),
		Properties:     make(map[string]*PropertySchema),
	}

	if err := collectFields(typ, nil, s); err != nil {
		return nil, err
	}

	// Complex-property types need no identity of their own; only types
	// registered as nodes or relationships must carry a 'pk' property,
	// which Registry.Register enforces.
	if s.IsRelationship {
		for _, p := range s.Ordered {
			if p.Kind == model.KindComplex || p.Kind == model.KindComplexCollection {
				return nil, fmt.Errorf(
					"relationship %s declares complex property %s; relationships carry only simple properties",
					typ.Name(), p.FieldName)
			}
		}
	}
	return s, nil
}

// collectFields walks the struct's fields in declaration order, descending
// into embedded bases first so that base properties come outward-in.
func collectFields(typ reflect.Type, indexPrefix []int, s *EntitySchema) error {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		index := append(append([]int{}, indexPrefix...), i)

		if field.Anonymous {
			base := field.Type
			if base.Kind() == reflect.Ptr {
				base = base.Elem()
			}
			if base.Kind() == reflect.Struct {
				if err := collectFields(base, index, s); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get(tagName)
		if tag == "-" {
			continue
		}

		prop, err := parseFieldTag(field, tag)
		if err != nil {
			return fmt.Errorf("struct %s: %w", typ.Name(), err)
		}
		prop.Index = index

		if existing, dup := s.Properties[prop.WireName]; dup {
			return fmt.Errorf("struct %s: fields %s and %s map to the same property %q",
				typ.Name(), existing.FieldName, prop.FieldName, prop.WireName)
		}
		s.Properties[prop.WireName] = prop
		s.Ordered = append(s.Ordered, prop)
		if prop.IsKey {
			if s.Key != nil {
				return fmt.Errorf("struct %s: both %s and %s are marked 'pk'",
					typ.Name(), s.Key.FieldName, prop.FieldName)
			}
			s.Key = prop
		}
	}
	return nil
}

// parseFieldTag parses one field's graph tag into a property schema.
func parseFieldTag(field reflect.StructField, tag string) (*PropertySchema, error) {
	prop := &PropertySchema{
		FieldName: field.Name,
		WireName:  field.Name,
		Type:      field.Type,
	}

	if tag != "" {
		for _, part := range strings.Split(tag, ",") {
			switch {
			case part == "pk":
				prop.IsKey = true
			case part == "required":
				prop.Required = true
			case part == "unique":
				prop.IsUnique = true
			case part == "index":
				prop.IsIndexed = true
			case part == "fulltext":
				prop.IsFullText = true
			case strings.HasPrefix(part, "property:"):
				name := strings.TrimPrefix(part, "property:")
				if name == "" {
					return nil, fmt.Errorf("field %s has an empty 'property' tag component", field.Name)
				}
				prop.WireName = name
			case part == "":
				// trailing comma
			default:
				return nil, fmt.Errorf("field %s has unknown tag component %q", field.Name, part)
			}
		}
	}

	kind, elem, err := classify(field.Type)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", field.Name, err)
	}
	prop.Kind = kind
	prop.ElementType = elem
	prop.Nullable = isNullableShape(field.Type) && !prop.Required
	return prop, nil
}

// classify determines a field type's storage shape. Exactly one of the four
// kinds applies to every supported type; unsupported types error out at
// derivation time rather than surfacing later as a write failure.
func classify(t reflect.Type) (model.PropertyKind, reflect.Type, error) {
	if t.Kind() == reflect.Ptr {
		return classify(t.Elem())
	}

	if IsSimpleType(t) {
		return model.KindSimple, nil, nil
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elem := t.Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if IsSimpleType(elem) {
			return model.KindSimpleCollection, elem, nil
		}
		if elem.Kind() == reflect.Struct {
			return model.KindComplexCollection, elem, nil
		}
		return 0, nil, fmt.Errorf("collection element type %s is not storable", elem.String())
	case reflect.Struct:
		return model.KindComplex, t, nil
	default:
		return 0, nil, fmt.Errorf("type %s is not storable", t.String())
	}
}

// IsSimpleType reports whether a type stores directly as a scalar property.
// Named types over basic kinds (string or numeric enums) count as simple.
func IsSimpleType(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		return IsSimpleType(t.Elem())
	}
	switch t {
	case reflect.TypeOf(time.Time{}),
		reflect.TypeOf(time.Duration(0)),
		reflect.TypeOf(uuid.UUID{}),
		reflect.TypeOf(model.Point{}),
		reflect.TypeOf([]byte(nil)),
		reflect.TypeOf(dbtype.Date{}),
		reflect.TypeOf(dbtype.LocalTime{}),
		reflect.TypeOf(dbtype.Time{}),
		reflect.TypeOf(dbtype.LocalDateTime{}),
		reflect.TypeOf(dbtype.Duration{}),
		reflect.TypeOf(dbtype.Point2D{}),
		reflect.TypeOf(dbtype.Point3D{}):
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// isNullableShape reports whether the Go shape can represent absence.
func isNullableShape(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

// isRelationshipType reports whether the struct embeds a relationship base,
// directly or through another embedded struct.
func isRelationshipType(t reflect.Type) bool {
	relType := reflect.TypeOf((*model.Relationship)(nil)).Elem()
	return reflect.PtrTo(t).Implements(relType)
}
