package config

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// BuilderFn builds one component from resolved keyword arguments. The
// sectionName is provided for components that want to carry their
// configured name (datasets, runners).
type BuilderFn func(sectionName string, kwargs map[string]any) (any, error)

// Registry maps `class` type tags to component builders. It implements
// Factory for the resolver: an explicit lookup table, with unknown tags
// rejected, instead of any dynamic class loading.
type Registry struct {
	builders map[string]BuilderFn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]BuilderFn)}
}

// Register installs a builder for the given type tag. Registering the same
// tag twice is a programming error and panics.
func (r *Registry) Register(typeTag string, builder BuilderFn) {
	if _, found := r.builders[typeTag]; found {
		exceptions.Panicf("component %q registered twice", typeTag)
	}
	r.builders[typeTag] = builder
}

// Has reports whether a builder is registered for the tag.
func (r *Registry) Has(typeTag string) bool {
	_, found := r.builders[typeTag]
	return found
}

// Build implements Factory. Builder errors, and builder panics, are wrapped
// in a ComponentConstructionError naming the failing section.
func (r *Registry) Build(typeTag, sectionName string, kwargs map[string]any) (any, error) {
	builder, found := r.builders[typeTag]
	if !found {
		return nil, &UnknownComponentError{TypeTag: typeTag}
	}
	var instance any
	err := exceptions.TryCatch[error](func() {
		var buildErr error
		instance, buildErr = builder(sectionName, kwargs)
		if buildErr != nil {
			panic(buildErr)
		}
	})
	if err != nil {
		return nil, &ComponentConstructionError{Section: sectionName, TypeTag: typeTag, Err: err}
	}
	if instance == nil {
		return nil, &ComponentConstructionError{
			Section: sectionName, TypeTag: typeTag,
			Err: errors.New("builder returned nil"),
		}
	}
	return instance, nil
}
