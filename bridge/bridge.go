// Package bridge converts between native Go values and the wire-level value
// types understood by the Neo4j driver. The forward direction widens numerics
// to the wire's canonical width and maps temporal, spatial, and identifier
// types onto their driver representations; the reverse direction rebuilds
// typed Go values from whatever wire subtype the store returned.
package bridge

import (
	"math"
	"net/url"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

// SRIDCartesian3D is the spatial reference id of the wire's 3-D cartesian
// coordinate system, used when converting model.Point.
const SRIDCartesian3D uint32 = 9157

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	uuidType     = reflect.TypeOf(uuid.UUID{})
	urlType      = reflect.TypeOf(url.URL{})
	pointType    = reflect.TypeOf(model.Point{})
	bytesType    = reflect.TypeOf([]byte(nil))
	dirType      = reflect.TypeOf(model.Outgoing)
)

// ToWire converts a Go value into the representation sent to the store as a
// query parameter or stored property. Unsupported types fail with
// UnsupportedType rather than being stringified blindly.
func ToWire(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch concrete := rv.Interface().(type) {
	case time.Time:
		return concrete, nil
	case time.Duration:
		return dbtype.Duration{
			Seconds: int64(concrete / time.Second),
			Nanos:   int(concrete % time.Second),
		}, nil
	case uuid.UUID:
		return concrete.String(), nil
	case url.URL:
		return concrete.String(), nil
	case model.Point:
		return dbtype.Point3D{X: concrete.X, Y: concrete.Y, Z: concrete.Z, SpatialRefId: SRIDCartesian3D}, nil
	case model.RelationshipDirection:
		// Stored as its wire token so older data and other runtimes can
		// read it without this package's enum values.
		return concrete.String(), nil
	case []byte:
		return concrete, nil
	case dbtype.Date, dbtype.LocalTime, dbtype.Time, dbtype.LocalDateTime,
		dbtype.Duration, dbtype.Point2D, dbtype.Point3D:
		return concrete, nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		// Covers named string types (string enums) as well.
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, gmerrors.NewConversion(v, reflect.TypeOf(int64(0)), nil)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			converted, err := ToWire(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = converted
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, gmerrors.NewUnsupportedType(rv.Type())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			converted, err := ToWire(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = converted
		}
		return out, nil
	}
	return nil, gmerrors.NewUnsupportedType(rv.Type())
}

// FromWire converts a wire value returned by the store into the requested Go
// type. A stored null becomes the target's zero value for non-pointer targets
// and nil for pointer targets; presence enforcement belongs to the caller.
func FromWire(w any, target reflect.Type) (any, error) {
	if target == nil {
		return w, nil
	}
	if target.Kind() == reflect.Ptr {
		if w == nil {
			return reflect.Zero(target).Interface(), nil
		}
		inner, err := FromWire(w, target.Elem())
		if err != nil {
			return nil, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(reflect.ValueOf(inner))
		return p.Interface(), nil
	}
	if w == nil {
		return reflect.Zero(target).Interface(), nil
	}
	if target.Kind() == reflect.Interface {
		if reflect.TypeOf(w).Implements(target) || target.NumMethod() == 0 {
			return w, nil
		}
		return nil, gmerrors.NewConversion(w, target, nil)
	}

	switch target {
	case timeType:
		return timeFromWire(w, target)
	case durationType:
		return durationFromWire(w, target)
	case uuidType:
		s, ok := w.(string)
		if !ok {
			return nil, gmerrors.NewConversion(w, target, nil)
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, gmerrors.NewConversion(w, target, err)
		}
		return id, nil
	case urlType:
		s, ok := w.(string)
		if !ok {
			return nil, gmerrors.NewConversion(w, target, nil)
		}
		u, err := url.Parse(s)
		if err != nil {
			return nil, gmerrors.NewConversion(w, target, err)
		}
		return *u, nil
	case pointType:
		p, ok := w.(dbtype.Point3D)
		if !ok {
			return nil, gmerrors.NewConversion(w, target, nil)
		}
		return model.Point{X: p.X, Y: p.Y, Z: p.Z}, nil
	case bytesType:
		if b, ok := w.([]byte); ok {
			return b, nil
		}
		return nil, gmerrors.NewConversion(w, target, nil)
	case dirType:
		switch d := w.(type) {
		case string:
			return model.ParseDirection(d), nil
		case int64:
			return model.RelationshipDirection(d), nil
		}
		return nil, gmerrors.NewConversion(w, target, nil)
	}

	wv := reflect.ValueOf(w)
	if wv.Type() == target {
		return w, nil
	}

	switch target.Kind() {
	case reflect.Bool:
		if b, ok := w.(bool); ok {
			return reflect.ValueOf(b).Convert(target).Interface(), nil
		}
	case reflect.String:
		// String enums come back as plain strings.
		if s, ok := w.(string); ok {
			return reflect.ValueOf(s).Convert(target).Interface(), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		// Numeric enums accept the wire's integer form; conversions use Go
		// semantics, so narrowing wraps rather than saturating.
		switch wv.Kind() {
		case reflect.Int64, reflect.Int, reflect.Float64, reflect.Float32:
			return wv.Convert(target).Interface(), nil
		}
	case reflect.Slice:
		return sliceFromWire(w, target)
	case reflect.Array:
		return arrayFromWire(w, target)
	case reflect.Map:
		return mapFromWire(w, target)
	}

	if wv.Type().AssignableTo(target) {
		return w, nil
	}
	return nil, gmerrors.NewConversion(w, target, nil)
}

// timeFromWire maps each of the wire's temporal subtypes onto time.Time
// individually; the wire distinguishes them but the target type does not.
func timeFromWire(w any, target reflect.Type) (any, error) {
	switch t := w.(type) {
	case time.Time:
		return t, nil
	case dbtype.LocalDateTime:
		return time.Time(t), nil
	case dbtype.Date:
		return time.Time(t), nil
	case dbtype.LocalTime:
		return time.Time(t), nil
	case dbtype.Time:
		return time.Time(t), nil
	}
	return nil, gmerrors.NewConversion(w, target, nil)
}

func durationFromWire(w any, target reflect.Type) (any, error) {
	d, ok := w.(dbtype.Duration)
	if !ok {
		return nil, gmerrors.NewConversion(w, target, nil)
	}
	if d.Months != 0 {
		// A month has no fixed length; time.Duration cannot represent it.
		return nil, gmerrors.NewConversion(w, target, nil)
	}
	return time.Duration(d.Days)*24*time.Hour +
		time.Duration(d.Seconds)*time.Second +
		time.Duration(d.Nanos), nil
}

func sliceFromWire(w any, target reflect.Type) (any, error) {
	src, err := wireElements(w, target)
	if err != nil {
		return nil, err
	}
	out := reflect.MakeSlice(target, len(src), len(src))
	for i, e := range src {
		converted, err := FromWire(e, target.Elem())
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(reflect.ValueOf(converted))
	}
	return out.Interface(), nil
}

func arrayFromWire(w any, target reflect.Type) (any, error) {
	src, err := wireElements(w, target)
	if err != nil {
		return nil, err
	}
	if len(src) != target.Len() {
		return nil, gmerrors.NewConversion(w, target, nil)
	}
	out := reflect.New(target).Elem()
	for i, e := range src {
		converted, err := FromWire(e, target.Elem())
		if err != nil {
			return nil, err
		}
		out.Index(i).Set(reflect.ValueOf(converted))
	}
	return out.Interface(), nil
}

func mapFromWire(w any, target reflect.Type) (any, error) {
	if target.Key().Kind() != reflect.String {
		return nil, gmerrors.NewConversion(w, target, nil)
	}
	src, ok := w.(map[string]any)
	if !ok {
		return nil, gmerrors.NewConversion(w, target, nil)
	}
	out := reflect.MakeMapWithSize(target, len(src))
	for k, e := range src {
		converted, err := FromWire(e, target.Elem())
		if err != nil {
			return nil, err
		}
		out.SetMapIndex(reflect.ValueOf(k).Convert(target.Key()), reflect.ValueOf(converted))
	}
	return out.Interface(), nil
}

// wireElements normalizes the wire's collection forms into a []any. The
// driver hands back []any, but values that already passed through ToWire in
// process keep their original slice type.
func wireElements(w any, target reflect.Type) ([]any, error) {
	if s, ok := w.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(w)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, gmerrors.NewConversion(w, target, nil)
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
