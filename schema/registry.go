package schema

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry is the process-wide schema and type registry. Schema derivation is
// lazy and cached, so lookups are idempotent and safe to call repeatedly even
// on the result-processing hot path. Explicitly registered types additionally
// join the label-to-type map consulted during polymorphic resolution; lazy
// derivation alone does not, because resolution must only ever consider types
// the application deliberately declared.
type Registry struct {
	// schemas caches derived schemas keyed by struct type. A sync.Map fits
	// the read-mostly access pattern: derive once, look up per call.
	schemas sync.Map // reflect.Type -> *EntitySchema

	// mu guards concurrent duplicate derivation and the registration maps.
	mu         sync.Mutex
	byLabel    map[string]reflect.Type
	byIdentity map[string]reflect.Type
	registered []reflect.Type
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byLabel:    make(map[string]reflect.Type),
		byIdentity: make(map[string]reflect.Type),
	}
}

// DefaultRegistry is the registry used when a Graph is constructed without an
// explicit one.
var DefaultRegistry = NewRegistry()

// Get returns the schema for a type, deriving and caching it on first use.
func (r *Registry) Get(t reflect.Type) (*EntitySchema, error) {
	if t == nil {
		return nil, fmt.Errorf("schema lookup for nil type")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := r.schemas.Load(t); ok {
		return cached.(*EntitySchema), nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the lock so concurrent first lookups derive once.
	if cached, ok := r.schemas.Load(t); ok {
		return cached.(*EntitySchema), nil
	}
	s, err := deriveSchema(t)
	if err != nil {
		return nil, err
	}
	r.schemas.Store(t, s)
	r.byIdentity[s.TypeIdentifier] = t
	return s, nil
}

// GetSchema returns the schema for a type, or nil when the type is not a
// valid entity. This is the lookup shape consumed by collaborators that treat
// absence as "not an entity" rather than an error.
func (r *Registry) GetSchema(t reflect.Type) *EntitySchema {
	s, err := r.Get(t)
	if err != nil {
		return nil
	}
	return s
}

// CanDeserialize reports whether a valid schema exists for the type.
func (r *Registry) CanDeserialize(t reflect.Type) bool {
	return r.GetSchema(t) != nil
}

// Register adds a type to the registry under an explicit label (empty means
// the struct's name) and enrolls it in the polymorphic type universe.
func (r *Registry) Register(t reflect.Type, label string) (*EntitySchema, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	s, err := r.Get(t)
	if err != nil {
		return nil, err
	}
	if s.Key == nil {
		return nil, fmt.Errorf("no primary key ('pk') property defined for struct %s", t.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if label != "" && label != s.Label {
		s.Label = label
	}
	if existing, ok := r.byLabel[s.Label]; ok && existing != t {
		return nil, fmt.Errorf("label %q already registered for type %s", s.Label, existing.String())
	}
	if _, ok := r.byLabel[s.Label]; !ok {
		r.byLabel[s.Label] = t
		r.registered = append(r.registered, t)
	}
	r.byIdentity[s.TypeIdentifier] = t
	return s, nil
}

// TypeForLabel resolves a node label or relationship type name to a
// registered type assignable to the requested type. It returns false when no
// registered type matches, leaving the caller to fall back to the statically
// requested type.
func (r *Registry) TypeForLabel(label string, requested reflect.Type) (reflect.Type, bool) {
	r.mu.Lock()
	t, ok := r.byLabel[label]
	r.mu.Unlock()
	if !ok || !AssignableTo(t, requested) {
		return nil, false
	}
	return t, true
}

// TypeForIdentity resolves a stored fully qualified type identifier (from the
// __metadata__ property) to a registered type assignable to the requested
// type. Unassignable identities are ignored, never an error: metadata written
// by another application's type universe must not break reads here.
func (r *Registry) TypeForIdentity(identity string, requested reflect.Type) (reflect.Type, bool) {
	r.mu.Lock()
	t, ok := r.byIdentity[identity]
	r.mu.Unlock()
	if !ok || !AssignableTo(t, requested) {
		return nil, false
	}
	return t, true
}

// RegisteredTypes returns the explicitly registered types in registration
// order.
func (r *Registry) RegisteredTypes() []reflect.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]reflect.Type, len(r.registered))
	copy(out, r.registered)
	return out
}

// AssignableTo reports whether a value of the candidate struct type could be
// returned to a caller that asked for the requested type. Interface requests
// check against the pointer form, since entity methods use pointer receivers.
func AssignableTo(candidate, requested reflect.Type) bool {
	if requested == nil || candidate == requested {
		return true
	}
	if requested.Kind() == reflect.Ptr && requested.Elem() == candidate {
		return true
	}
	if requested.Kind() == reflect.Interface {
		return reflect.PtrTo(candidate).Implements(requested) || candidate.Implements(requested)
	}
	return candidate.AssignableTo(requested)
}

// RegisterNode registers a node type in the default registry.
//
//	schema.RegisterNode[Person]()
//	schema.RegisterNode[Manager]("Manager")
func RegisterNode[T any](label ...string) (*EntitySchema, error) {
	return registerIn(DefaultRegistry, reflect.TypeOf((*T)(nil)).Elem(), label)
}

// RegisterRelationship registers a relationship type in the default registry
// under its relationship type name.
func RegisterRelationship[T any](relationshipType ...string) (*EntitySchema, error) {
	return registerIn(DefaultRegistry, reflect.TypeOf((*T)(nil)).Elem(), relationshipType)
}

// RegisterNodeIn and RegisterRelationshipIn register into an explicit
// registry, for applications that keep more than one type universe.
func RegisterNodeIn[T any](r *Registry, label ...string) (*EntitySchema, error) {
	return registerIn(r, reflect.TypeOf((*T)(nil)).Elem(), label)
}

func RegisterRelationshipIn[T any](r *Registry, relationshipType ...string) (*EntitySchema, error) {
	return registerIn(r, reflect.TypeOf((*T)(nil)).Elem(), relationshipType)
}

func registerIn(r *Registry, t reflect.Type, label []string) (*EntitySchema, error) {
	name := ""
	if len(label) > 0 {
		name = label[0]
	}
	return r.Register(t, name)
}
