// Package serializer converts typed entities to and from the intermediate
// property representation. A schema-driven generic serializer covers every
// registered type; applications can override it per type, or register a
// builder function that replaces reflective construction for types that need
// custom initialization. Construction strategy is therefore decided once at
// registration time, not re-derived per call.
package serializer

import (
	"fmt"
	"reflect"
	"sync"

	gmerrors "github.com/saulfrancisco-ruizacevedo/go-neograph/errors"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
	"github.com/saulfrancisco-ruizacevedo/go-neograph/schema"
)

// EntitySerializer is the per-type conversion contract between typed objects
// and the intermediate property representation.
type EntitySerializer interface {
	// Serialize converts a typed entity (value or pointer) into its
	// intermediate representation.
	Serialize(v any) (*model.EntityInfo, error)
	// Deserialize reconstructs a typed entity from its intermediate
	// representation, returning a pointer to the concrete type.
	Deserialize(info *model.EntityInfo) (any, error)
}

// Builder constructs an entity from its intermediate representation,
// replacing the generic reflective strategy for one type.
type Builder func(info *model.EntityInfo) (any, error)

// Registry is the process-wide serializer registry. Generic serializers are
// derived lazily from the schema registry and cached; explicit registrations
// always win over derivation.
type Registry struct {
	schemas *schema.Registry

	mu          sync.Mutex
	serializers sync.Map // reflect.Type -> EntitySerializer
	builders    map[reflect.Type]Builder
}

// NewRegistry returns a serializer registry backed by the given schema
// registry.
func NewRegistry(schemas *schema.Registry) *Registry {
	return &Registry{
		schemas:  schemas,
		builders: make(map[reflect.Type]Builder),
	}
}

// DefaultRegistry backs graphs constructed without an explicit registry.
var DefaultRegistry = NewRegistry(schema.DefaultRegistry)

// Register installs a hand-written serializer for a type, replacing any
// derived one.
func (r *Registry) Register(t reflect.Type, s EntitySerializer) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.serializers.Store(t, s)
}

// RegisterBuilder installs a construction function used by the generic
// serializer in place of reflective construction.
func (r *Registry) RegisterBuilder(t reflect.Type, b Builder) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	r.mu.Lock()
	r.builders[t] = b
	r.mu.Unlock()
	// Force re-derivation so the builder takes effect for cached entries.
	r.serializers.Delete(t)
}

// Lookup returns the serializer for a type, or nil when none is registered
// and none can be derived.
func (r *Registry) Lookup(t reflect.Type) EntitySerializer {
	s, err := r.Get(t)
	if err != nil {
		return nil
	}
	return s
}

// Get returns the serializer for a type, deriving a generic one on first use.
// Types without a valid schema fail with MissingSerializer.
func (r *Registry) Get(t reflect.Type) (EntitySerializer, error) {
	if t == nil {
		return nil, gmerrors.NewMissingSerializer(nil)
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := r.serializers.Load(t); ok {
		return cached.(EntitySerializer), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.serializers.Load(t); ok {
		return cached.(EntitySerializer), nil
	}
	entitySchema, err := r.schemas.Get(t)
	if err != nil {
		return nil, gmerrors.NewMissingSerializer(t)
	}
	s := &genericSerializer{
		schema:   entitySchema,
		registry: r,
		builder:  r.builders[t],
	}
	r.serializers.Store(t, s)
	return s, nil
}

// Register installs a hand-written serializer for T in the default registry.
func Register[T any](s EntitySerializer) {
	DefaultRegistry.Register(reflect.TypeOf((*T)(nil)).Elem(), s)
}

// RegisterBuilder installs a typed construction function for T in the default
// registry.
func RegisterBuilder[T any](build func(info *model.EntityInfo) (*T, error)) {
	DefaultRegistry.RegisterBuilder(reflect.TypeOf((*T)(nil)).Elem(), func(info *model.EntityInfo) (any, error) {
		return build(info)
	})
}

// Serialize converts an entity through the default registry.
func Serialize(v any) (*model.EntityInfo, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot serialize nil entity")
	}
	s, err := DefaultRegistry.Get(reflect.TypeOf(v))
	if err != nil {
		return nil, err
	}
	return s.Serialize(v)
}

// Deserialize reconstructs a typed entity through the default registry.
func Deserialize[T any](info *model.EntityInfo) (*T, error) {
	s, err := DefaultRegistry.Get(reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}
	out, err := s.Deserialize(info)
	if err != nil {
		return nil, err
	}
	typed, ok := out.(*T)
	if !ok {
		return nil, fmt.Errorf("serializer for %T produced %T", (*T)(nil), out)
	}
	return typed, nil
}
