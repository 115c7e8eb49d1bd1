package config

import (
	"reflect"
	"strings"

	"k8s.io/klog/v2"
)

// Factory builds a component from a type tag and its already-resolved
// keyword arguments. It is how the resolver stays free of any knowledge
// about concrete component types. See Registry for the standard
// implementation.
type Factory interface {
	Build(typeTag, sectionName string, kwargs map[string]any) (any, error)
}

// Attributes lets a resolved object answer dotted references
// (`<section.attr>`) directly. Objects that do not implement it are
// inspected by reflection over their exported fields and methods instead.
type Attributes interface {
	Attribute(name string) (any, bool)
}

// Resolver instantiates a Graph into live objects. Each section is built
// exactly once, however many dependents reference it, and every dependency
// is built strictly before its dependent.
type Resolver struct {
	graph     *Graph
	factory   Factory
	instances map[string]any
}

// Resolve validates the reference structure of the graph reachable from the
// given roots and then instantiates it, returning the instances keyed by
// section name. Validation runs first, so a graph with an unresolved
// reference or a reference cycle fails before any component is constructed.
func Resolve(graph *Graph, factory Factory, roots ...string) (map[string]any, error) {
	r := &Resolver{
		graph:     graph,
		factory:   factory,
		instances: make(map[string]any),
	}
	if err := r.validate(roots); err != nil {
		return nil, err
	}
	for _, root := range roots {
		if _, err := r.resolveSection(root); err != nil {
			return nil, err
		}
	}
	return r.instances, nil
}

// validate walks reference edges only (no construction), checking that
// every referenced name exists and that there are no cycles.
func (r *Resolver) validate(roots []string) error {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var stack []string

	var visit func(name, from string) error
	visit = func(name, from string) error {
		section := r.graph.Section(name)
		if section == nil {
			return &UnresolvedReferenceError{Name: name, From: from}
		}
		if onStack[name] {
			// Report the cycle from its first occurrence on the stack.
			cycle := []string{name}
			for i := len(stack) - 1; i >= 0; i-- {
				cycle = append(cycle, stack[i])
				if stack[i] == name {
					break
				}
			}
			// The stack was walked backwards, restore forward order.
			for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
				cycle[i], cycle[j] = cycle[j], cycle[i]
			}
			return &CyclicReferenceError{Cycle: cycle}
		}
		if visited[name] {
			return nil
		}
		onStack[name] = true
		stack = append(stack, name)
		for _, param := range section.Params {
			for _, target := range referencedNames(param.Value) {
				if err := visit(target, name); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		delete(onStack, name)
		visited[name] = true
		return nil
	}

	for _, root := range roots {
		if err := visit(root, ""); err != nil {
			return err
		}
	}
	return nil
}

func referencedNames(v Value) []string {
	switch val := v.(type) {
	case Ref:
		return []string{val.Name}
	case AttrRef:
		return []string{val.Name}
	case List:
		var names []string
		for _, elem := range val.Elems {
			names = append(names, referencedNames(elem)...)
		}
		return names
	case Tuple:
		var names []string
		for _, elem := range val.Elems {
			names = append(names, referencedNames(elem)...)
		}
		return names
	}
	return nil
}

func (r *Resolver) resolveSection(name string) (any, error) {
	if instance, found := r.instances[name]; found {
		return instance, nil
	}
	section := r.graph.Section(name)

	kwargs := make(map[string]any, len(section.Params))
	for _, param := range section.Params {
		resolved, err := r.resolveValue(param.Value)
		if err != nil {
			return nil, err
		}
		kwargs[param.Key] = resolved
	}

	var instance any
	if section.TypeTag == "" {
		// Plain sections (e.g. [main]) resolve to their parameter map.
		instance = kwargs
	} else {
		built, err := r.factory.Build(section.TypeTag, name, kwargs)
		if err != nil {
			return nil, err
		}
		instance = built
	}
	klog.V(1).Infof("Resolved section %q (class %q)", name, section.TypeTag)
	r.instances[name] = instance
	return instance, nil
}

func (r *Resolver) resolveValue(v Value) (any, error) {
	switch val := v.(type) {
	case Literal:
		return val.Val, nil
	case Ref:
		return r.resolveSection(val.Name)
	case AttrRef:
		target, err := r.resolveSection(val.Name)
		if err != nil {
			return nil, err
		}
		return lookupAttrPath(target, val.Name, val.Path)
	case List:
		return r.resolveElems(val.Elems)
	case Tuple:
		return r.resolveElems(val.Elems)
	}
	return nil, nil
}

// resolveElems resolves container elements left to right.
func (r *Resolver) resolveElems(elems []Value) ([]any, error) {
	resolved := make([]any, 0, len(elems))
	for _, elem := range elems {
		item, err := r.resolveValue(elem)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, item)
	}
	return resolved, nil
}

func lookupAttrPath(obj any, sectionName string, path []string) (any, error) {
	current := obj
	for _, attr := range path {
		next, found := lookupAttr(current, attr)
		if !found {
			return nil, &AttributeResolutionError{Section: sectionName, Attribute: attr}
		}
		current = next
	}
	return current, nil
}

// lookupAttr reads one attribute from a resolved object: through the
// Attributes interface if implemented, by key for maps, and otherwise by
// reflection over exported fields and niladic methods, matching the
// snake_case attribute against its CamelCase Go name.
func lookupAttr(obj any, attr string) (any, bool) {
	if provider, ok := obj.(Attributes); ok {
		if v, found := provider.Attribute(attr); found {
			return v, true
		}
	}
	if m, ok := obj.(map[string]any); ok {
		v, found := m[attr]
		return v, found
	}

	goName := CamelCase(attr)
	value := reflect.ValueOf(obj)
	if method := value.MethodByName(goName); method.IsValid() {
		if t := method.Type(); t.NumIn() == 0 && t.NumOut() == 1 {
			return method.Call(nil)[0].Interface(), true
		}
	}
	for value.Kind() == reflect.Pointer {
		if value.IsNil() {
			return nil, false
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil, false
	}
	field := value.FieldByName(goName)
	if !field.IsValid() || !field.CanInterface() {
		return nil, false
	}
	return field.Interface(), true
}

// CamelCase converts a snake_case configuration name to the corresponding
// exported Go name: "buffer_size" -> "BufferSize".
func CamelCase(snake string) string {
	parts := strings.Split(snake, "_")
	var b strings.Builder
	for _, part := range parts {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}
