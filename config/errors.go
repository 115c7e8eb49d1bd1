package config

import (
	"fmt"
	"strings"
)

// SyntaxError reports a malformed section header, key or literal in the
// configuration text, along with the line it occurred on (1-based).
type SyntaxError struct {
	Line    int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("config syntax error at line %d: %s", e.Line, e.Message)
}

// DuplicateNameError reports a section name declared more than once.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("section %q is declared more than once", e.Name)
}

// UnresolvedReferenceError reports a reference to a section name that is
// not present in the graph.
type UnresolvedReferenceError struct {
	Name string // The missing section.
	From string // The section whose parameter referenced it.
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("section %q references undefined section %q", e.From, e.Name)
}

// CyclicReferenceError reports a reference cycle. Cycle holds the section
// names along the cycle, starting and ending on the same name.
type CyclicReferenceError struct {
	Cycle []string
}

func (e *CyclicReferenceError) Error() string {
	return fmt.Sprintf("cyclic reference: %s", strings.Join(e.Cycle, " -> "))
}

// AttributeResolutionError reports a dotted reference (`<section.attr>`)
// whose attribute could not be found on the resolved object.
type AttributeResolutionError struct {
	Section   string
	Attribute string
}

func (e *AttributeResolutionError) Error() string {
	return fmt.Sprintf("section %q resolved, but it has no attribute %q", e.Section, e.Attribute)
}

// UnknownComponentError reports a section `class` value for which no
// builder is registered.
type UnknownComponentError struct {
	TypeTag string
}

func (e *UnknownComponentError) Error() string {
	return fmt.Sprintf("no component registered for class %q", e.TypeTag)
}

// ComponentConstructionError wraps a failure (error or panic) raised by a
// component builder while constructing a section.
type ComponentConstructionError struct {
	Section string
	TypeTag string
	Err     error
}

func (e *ComponentConstructionError) Error() string {
	return fmt.Sprintf("building section %q (class %q): %v", e.Section, e.TypeTag, e.Err)
}

func (e *ComponentConstructionError) Unwrap() error { return e.Err }
