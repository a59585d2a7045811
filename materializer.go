package neograph

import (
	"context"
	"reflect"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/bridge"
	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/serializer"
)

// materializeEntities turns processed entity infos into typed values. Every
// info delegates to the serializer registered for its resolved type, so a
// polymorphic store hands back the most specific registered struct even when
// the caller asked for a base type. On cancellation the rows materialized so
// far come back with the context error.
func materializeEntities[T any](ctx context.Context, serializers *serializer.Registry, infos []*model.EntityInfo) ([]*T, error) {
	out := make([]*T, 0, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		v, err := materializeEntity[T](serializers, info)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func materializeEntity[T any](serializers *serializer.Registry, info *model.EntityInfo) (*T, error) {
	static := reflect.TypeOf((*T)(nil)).Elem()
	t := info.Type
	if t == nil {
		t = static
	}
	ser, err := serializers.Get(t)
	if err != nil {
		return nil, err
	}
	v, err := ser.Deserialize(info)
	if err != nil {
		return nil, err
	}
	if typed, ok := v.(*T); ok {
		return typed, nil
	}
	// The store resolved a more specific type than the caller requested.
	// The typed API still returns the requested shape, so deserialize the
	// shared properties into it.
	if t != static {
		if ser, err = serializers.Get(static); err == nil {
			if v, err = ser.Deserialize(info); err == nil {
				if typed, ok := v.(*T); ok {
					return typed, nil
				}
			}
		}
	}
	return nil, gmerrors.NewCannotMaterialize(static, info.Label)
}

// materializeRows turns projection rows into values of R. A single-column
// row materializes straight into a scalar R through the value bridge; a
// multi-column row needs a struct R whose fields match the projected
// columns by wire name or field name, case-insensitively.
func materializeRows[R any](ctx context.Context, schemas *schema.Registry, rows []map[string]any) ([]R, error) {
	rType := reflect.TypeOf((*R)(nil)).Elem()
	out := make([]R, 0, len(rows))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		v, err := materializeRow[R](schemas, rType, row)
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func materializeRow[R any](schemas *schema.Registry, rType reflect.Type, row map[string]any) (R, error) {
	var zero R

	if schema.IsSimpleType(rType) || rType.Kind() != reflect.Struct {
		if len(row) != 1 {
			return zero, gmerrors.NewCannotMaterialize(rType, "")
		}
		for _, value := range row {
			v, err := bridge.FromWire(value, rType)
			if err != nil {
				return zero, err
			}
			return v.(R), nil
		}
	}

	target := reflect.New(rType).Elem()
	for column, value := range row {
		field, ok := matchField(rType, column)
		if !ok {
			return zero, gmerrors.NewCannotMaterialize(rType, column)
		}
		converted, err := bridge.FromWire(value, field.Type)
		if err != nil {
			return zero, err
		}
		if converted != nil {
			target.FieldByIndex(field.Index).Set(reflect.ValueOf(converted))
		}
	}
	return target.Interface().(R), nil
}

// matchField finds the struct field a projected column lands in: tag wire
// name first, then field name, both case-insensitive.
func matchField(t reflect.Type, column string) (reflect.StructField, bool) {
	lower := strings.ToLower(column)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if wire := tagWireName(f); wire != "" && strings.ToLower(wire) == lower {
			return f, true
		}
	}
	return t.FieldByNameFunc(func(name string) bool {
		return strings.ToLower(name) == lower
	})
}

func tagWireName(f reflect.StructField) string {
	tag, ok := f.Tag.Lookup("graph")
	if !ok {
		return ""
	}
	for _, part := range strings.Split(tag, ",") {
		if rest, ok := strings.CutPrefix(part, "property:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
