package config

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders the graph back in the configuration syntax, suitable for
// writing a snapshot of the effective configuration (after overrides) next
// to the experiment results.
func (g *Graph) String() string {
	var b strings.Builder
	for i, name := range g.Names() {
		if i > 0 {
			b.WriteByte('\n')
		}
		section := g.Section(name)
		fmt.Fprintf(&b, "[%s]\n", name)
		if section.TypeTag != "" {
			fmt.Fprintf(&b, "class=%s\n", section.TypeTag)
		}
		for _, param := range section.Params {
			fmt.Fprintf(&b, "%s=%s\n", param.Key, formatValue(param.Value))
		}
	}
	return b.String()
}

func formatValue(v Value) string {
	switch v := v.(type) {
	case Literal:
		return formatLiteral(v.Val)
	case Ref:
		return "<" + v.Name + ">"
	case AttrRef:
		return "<" + v.Name + "." + strings.Join(v.Path, ".") + ">"
	case List:
		return "[" + formatElems(v.Elems) + "]"
	case Tuple:
		return "(" + formatElems(v.Elems) + ")"
	}
	return fmt.Sprintf("%v", v)
}

func formatElems(elems []Value) string {
	parts := make([]string, len(elems))
	for i, elem := range elems {
		parts[i] = formatValue(elem)
	}
	return strings.Join(parts, ", ")
}

func formatLiteral(val any) string {
	switch val := val.(type) {
	case nil:
		return "None"
	case bool:
		if val {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(val)
	case float64:
		// Whole values keep a decimal point so they re-parse as floats.
		s := strconv.FormatFloat(val, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	case string:
		return strconv.Quote(val)
	}
	return fmt.Sprintf("%v", val)
}
