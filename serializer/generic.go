package serializer

import (
	"fmt"
	"reflect"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/bridge"
	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
)

// genericSerializer walks the entity's property schema in declaration order,
// bridging simple values and recursing through the registry for complex ones.
// It is the runtime equivalent of a generated per-type serializer.
type genericSerializer struct {
	schema   *schema.EntitySchema
	registry *Registry
	builder  Builder
}

func (g *genericSerializer) Serialize(v any) (*model.EntityInfo, error) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, fmt.Errorf("cannot serialize nil %s", g.schema.Type.String())
		}
		rv = rv.Elem()
	}
	if rv.Type() != g.schema.Type {
		return nil, fmt.Errorf("serializer for %s given %s", g.schema.Type.String(), rv.Type().String())
	}

	info := model.NewEntityInfo(g.schema.Type, g.schema.Label)
	info.ActualLabels = []string{g.schema.Label}

	for _, prop := range g.schema.Ordered {
		fv := rv.FieldByIndex(prop.Index)
		switch prop.Kind {
		case model.KindSimple:
			wire, err := bridge.ToWire(fv.Interface())
			if err != nil {
				return nil, fmt.Errorf("property %s of %s: %w", prop.FieldName, g.schema.Type.Name(), err)
			}
			info.Simple[prop.WireName] = wrap(prop, model.SimpleValue{Value: wire, Type: prop.Type})

		case model.KindSimpleCollection:
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Slice && fv.IsNil() {
				continue
			}
			values := make([]model.SimpleValue, fv.Len())
			for i := 0; i < fv.Len(); i++ {
				wire, err := bridge.ToWire(fv.Index(i).Interface())
				if err != nil {
					return nil, fmt.Errorf("property %s[%d] of %s: %w", prop.FieldName, i, g.schema.Type.Name(), err)
				}
				values[i] = model.SimpleValue{Value: wire, Type: prop.ElementType}
			}
			info.Simple[prop.WireName] = wrap(prop, model.SimpleCollection{
				Values:      values,
				ElementType: prop.ElementType,
			})

		case model.KindComplex:
			if fv.Kind() == reflect.Ptr && fv.IsNil() {
				continue
			}
			nested, err := g.serializeNested(prop.ElementOrType(), fv.Interface())
			if err != nil {
				return nil, err
			}
			info.Complex[prop.WireName] = wrap(prop, nested)

		case model.KindComplexCollection:
			if fv.Kind() == reflect.Ptr {
				if fv.IsNil() {
					continue
				}
				fv = fv.Elem()
			}
			if fv.Kind() == reflect.Slice && fv.IsNil() {
				continue
			}
			coll := model.EntityCollection{ElementType: prop.ElementType}
			coll.Entities = make([]*model.EntityInfo, 0, fv.Len())
			for i := 0; i < fv.Len(); i++ {
				nested, err := g.serializeNested(prop.ElementType, fv.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				coll.Entities = append(coll.Entities, nested)
			}
			info.Complex[prop.WireName] = wrap(prop, coll)
		}
	}
	return info, nil
}

func (g *genericSerializer) serializeNested(t reflect.Type, v any) (*model.EntityInfo, error) {
	nested, err := g.registry.Get(t)
	if err != nil {
		return nil, err
	}
	return nested.Serialize(v)
}

func (g *genericSerializer) Deserialize(info *model.EntityInfo) (any, error) {
	if g.builder != nil {
		return g.builder(info)
	}

	pv := reflect.New(g.schema.Type)
	target := pv.Elem()

	for _, prop := range g.schema.Ordered {
		field := target.FieldByIndex(prop.Index)
		switch prop.Kind {
		case model.KindSimple, model.KindSimpleCollection:
			raw, present := rawSimple(info, prop.WireName)
			if !present || raw == nil {
				if prop.Required {
					return nil, gmerrors.NewRequiredPropertyMissing(g.schema.Type, prop.FieldName)
				}
				continue
			}
			converted, err := bridge.FromWire(raw, prop.Type)
			if err != nil {
				return nil, fmt.Errorf("property %s of %s: %w", prop.FieldName, g.schema.Type.Name(), err)
			}
			field.Set(reflect.ValueOf(converted))

		case model.KindComplex:
			p, ok := info.Complex[prop.WireName]
			if !ok {
				if prop.Required {
					return nil, gmerrors.NewRequiredPropertyMissing(g.schema.Type, prop.FieldName)
				}
				continue
			}
			nestedInfo, ok := p.Value.(*model.EntityInfo)
			if !ok {
				return nil, fmt.Errorf("property %s of %s: stored as %s, schema says complex",
					prop.FieldName, g.schema.Type.Name(), p.Value.Kind())
			}
			out, err := g.deserializeNested(prop.ElementOrType(), nestedInfo)
			if err != nil {
				return nil, err
			}
			if err := setMaybePointer(field, out); err != nil {
				return nil, fmt.Errorf("property %s of %s: %w", prop.FieldName, g.schema.Type.Name(), err)
			}

		case model.KindComplexCollection:
			p, ok := info.Complex[prop.WireName]
			if !ok {
				if prop.Required {
					return nil, gmerrors.NewRequiredPropertyMissing(g.schema.Type, prop.FieldName)
				}
				continue
			}
			coll, ok := p.Value.(model.EntityCollection)
			if !ok {
				// A single entity where a collection was declared still
				// loads, as a one-element collection.
				if single, isSingle := p.Value.(*model.EntityInfo); isSingle {
					coll = model.EntityCollection{ElementType: prop.ElementType, Entities: []*model.EntityInfo{single}}
				} else {
					return nil, fmt.Errorf("property %s of %s: stored as %s, schema says complex collection",
						prop.FieldName, g.schema.Type.Name(), p.Value.Kind())
				}
			}
			out, err := g.deserializeCollection(prop, coll)
			if err != nil {
				return nil, err
			}
			field.Set(out)
		}
	}
	return pv.Interface(), nil
}

func (g *genericSerializer) deserializeNested(t reflect.Type, info *model.EntityInfo) (any, error) {
	et := t
	if info.Type != nil {
		// The processor may have resolved a more specific type than the
		// declared one.
		et = info.Type
	}
	nested, err := g.registry.Get(et)
	if err != nil {
		return nil, err
	}
	return nested.Deserialize(info)
}

// deserializeCollection materializes an entity collection into the declared
// collection shape, element order preserved.
func (g *genericSerializer) deserializeCollection(prop *schema.PropertySchema, coll model.EntityCollection) (reflect.Value, error) {
	var out reflect.Value
	switch prop.Type.Kind() {
	case reflect.Slice:
		out = reflect.MakeSlice(prop.Type, len(coll.Entities), len(coll.Entities))
	case reflect.Array:
		if prop.Type.Len() != len(coll.Entities) {
			return reflect.Value{}, fmt.Errorf("property %s of %s: %d stored entities for array of length %d",
				prop.FieldName, g.schema.Type.Name(), len(coll.Entities), prop.Type.Len())
		}
		out = reflect.New(prop.Type).Elem()
	default:
		return reflect.Value{}, fmt.Errorf("property %s of %s: unsupported collection shape %s",
			prop.FieldName, g.schema.Type.Name(), prop.Type.String())
	}

	for i, entity := range coll.Entities {
		elem, err := g.deserializeNested(prop.ElementType, entity)
		if err != nil {
			return reflect.Value{}, err
		}
		if err := setMaybePointer(out.Index(i), elem); err != nil {
			return reflect.Value{}, fmt.Errorf("property %s[%d] of %s: %w", prop.FieldName, i, g.schema.Type.Name(), err)
		}
	}
	return out, nil
}

// rawSimple extracts the wire value of a simple or simple-collection
// property. The serializer writes SimpleValue/SimpleCollection wrappers; the
// result processor stores driver values inside a SimpleValue, including
// []any for stored collections. Both shapes normalize here.
func rawSimple(info *model.EntityInfo, wireName string) (any, bool) {
	p, ok := info.Simple[wireName]
	if !ok {
		return nil, false
	}
	switch v := p.Value.(type) {
	case model.SimpleValue:
		return v.Value, true
	case model.SimpleCollection:
		out := make([]any, len(v.Values))
		for i, sv := range v.Values {
			out[i] = sv.Value
		}
		return out, true
	}
	return nil, false
}

// setMaybePointer assigns a *T produced by a nested serializer into a field
// declared either as T or *T.
func setMaybePointer(field reflect.Value, ptr any) error {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Ptr {
		return fmt.Errorf("nested serializer produced non-pointer %s", pv.Type().String())
	}
	switch {
	case pv.Type().AssignableTo(field.Type()):
		field.Set(pv)
	case pv.Elem().Type().AssignableTo(field.Type()):
		field.Set(pv.Elem())
	default:
		return fmt.Errorf("cannot assign %s to field of type %s", pv.Type().String(), field.Type().String())
	}
	return nil
}

func wrap(prop *schema.PropertySchema, value model.Serialized) model.Property {
	return model.Property{
		Value:        value,
		DeclaredType: prop.Type,
		FieldName:    prop.FieldName,
		WireName:     prop.WireName,
		Nullable:     prop.Nullable,
	}
}
