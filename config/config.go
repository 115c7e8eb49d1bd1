// Package config implements the declarative experiment configuration model:
// a graph of named sections with typed parameters that may reference each
// other, a parser for the INI-style configuration language, and a resolver
// that instantiates the graph into live objects in dependency order.
//
// Parsing and resolution are strictly separated: a parsed Graph holds only
// values and references, and no component is constructed (and so no side
// effect happens) until Resolve is called. This allows reference validation
// to run before anything touches the filesystem.
package config

// Value is a parameter value in a section: a literal, a reference to
// another section, a dotted attribute reference, or a list/tuple of values.
type Value interface {
	value()
}

// Literal holds a plain value: string, int, float64, bool or nil.
type Literal struct {
	Val any
}

// Ref references another section by name (`<name>` in the config text).
type Ref struct {
	Name string
}

// AttrRef references an attribute of another section's resolved object
// (`<name.attr>` or deeper `<name.attr.sub>` in the config text). The
// attribute lookup happens only after the referenced section is built.
type AttrRef struct {
	Name string
	Path []string
}

// List is an ordered `[...]` container of values.
type List struct {
	Elems []Value
}

// Tuple is an ordered `(...)` container of values.
type Tuple struct {
	Elems []Value
}

func (Literal) value() {}
func (Ref) value()     {}
func (AttrRef) value() {}
func (List) value()    {}
func (Tuple) value()   {}

// Param is one `key=value` entry of a section.
type Param struct {
	Key   string
	Value Value
}

// Section is one named `[name]` block of the configuration. TypeTag holds
// the value of the `class` key (empty for plain sections, e.g. `[main]`,
// which resolve to a map instead of a constructed component). Params keeps
// declaration order.
type Section struct {
	Name    string
	TypeTag string
	Params  []Param

	byKey map[string]int
}

// Set adds or replaces a parameter, keeping first-declaration order.
func (s *Section) Set(key string, v Value) {
	if s.byKey == nil {
		s.byKey = make(map[string]int)
	}
	if idx, found := s.byKey[key]; found {
		s.Params[idx].Value = v
		return
	}
	s.byKey[key] = len(s.Params)
	s.Params = append(s.Params, Param{Key: key, Value: v})
}

// Get returns the value for key, if present.
func (s *Section) Get(key string) (Value, bool) {
	idx, found := s.byKey[key]
	if !found {
		return nil, false
	}
	return s.Params[idx].Value, true
}

// Graph is the in-memory configuration: all sections indexed by name, in
// declaration order. It is the input to Resolve.
type Graph struct {
	sections map[string]*Section
	order    []string
}

// NewGraph returns an empty configuration graph.
func NewGraph() *Graph {
	return &Graph{sections: make(map[string]*Section)}
}

// Add registers a section. It returns a DuplicateNameError if a section
// with the same name was already added.
func (g *Graph) Add(s *Section) error {
	if _, found := g.sections[s.Name]; found {
		return &DuplicateNameError{Name: s.Name}
	}
	g.sections[s.Name] = s
	g.order = append(g.order, s.Name)
	return nil
}

// Section returns the named section, or nil if absent.
func (g *Graph) Section(name string) *Section {
	return g.sections[name]
}

// Names returns all section names in declaration order.
func (g *Graph) Names() []string {
	return g.order
}

// NumSections returns the number of sections in the graph.
func (g *Graph) NumSections() int {
	return len(g.sections)
}
