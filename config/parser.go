package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseFile reads and parses a configuration file into a Graph.
func ParseFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open configuration file %q", path)
	}
	defer func() { _ = f.Close() }()
	g, err := Parse(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "while parsing %q", path)
	}
	return g, nil
}

// ParseString parses configuration text into a Graph.
func ParseString(text string) (*Graph, error) {
	return Parse(strings.NewReader(text))
}

// Parse reads INI-style configuration text: `[section]` headers followed by
// `key=value` lines. Lines starting with `;` or `#` are comments. No object
// is constructed during parsing.
func Parse(r io.Reader) (*Graph, error) {
	graph := NewGraph()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var current *Section
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == ';' || line[0] == '#' {
			continue
		}

		if line[0] == '[' {
			if !strings.HasSuffix(line, "]") {
				return nil, &SyntaxError{Line: lineNo, Message: "unterminated section header"}
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if !isIdentifier(name) {
				return nil, &SyntaxError{Line: lineNo, Message: "invalid section name " + strconv.Quote(name)}
			}
			current = &Section{Name: name}
			if err := graph.Add(current); err != nil {
				return nil, err
			}
			continue
		}

		if current == nil {
			return nil, &SyntaxError{Line: lineNo, Message: "parameter outside of any section"}
		}
		key, raw, found := strings.Cut(line, "=")
		if !found {
			return nil, &SyntaxError{Line: lineNo, Message: "expected key=value"}
		}
		key = strings.TrimSpace(key)
		if !isIdentifier(key) {
			return nil, &SyntaxError{Line: lineNo, Message: "invalid parameter name " + strconv.Quote(key)}
		}
		value, err := parseValue(raw, lineNo)
		if err != nil {
			return nil, err
		}
		if key == "class" {
			tag, ok := value.(Literal)
			str, isStr := tag.Val.(string)
			if !ok || !isStr || str == "" {
				return nil, &SyntaxError{Line: lineNo, Message: "class must be a plain name"}
			}
			current.TypeTag = str
			continue
		}
		current.Set(key, value)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed reading configuration")
	}
	return graph, nil
}

// ApplyOverride applies one command-line override of the form
// `section.key=value` (or `key=value`, implying the `main` section) to an
// already parsed graph.
func (g *Graph) ApplyOverride(spec string) error {
	target, raw, found := strings.Cut(spec, "=")
	if !found {
		return errors.Errorf("invalid override %q: expected [section.]key=value", spec)
	}
	target = strings.TrimSpace(target)
	sectionName, key := "main", target
	if dot := strings.LastIndex(target, "."); dot >= 0 {
		sectionName, key = target[:dot], target[dot+1:]
	}
	section := g.Section(sectionName)
	if section == nil {
		return errors.Errorf("override %q: unknown section %q", spec, sectionName)
	}
	if !isIdentifier(key) {
		return errors.Errorf("override %q: invalid parameter name %q", spec, key)
	}
	value, err := parseValue(raw, 0)
	if err != nil {
		return errors.WithMessagef(err, "override %q", spec)
	}
	if key == "class" {
		return errors.Errorf("override %q: class cannot be overridden", spec)
	}
	section.Set(key, value)
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		alpha := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !alpha && (i == 0 || r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// valueParser is a tiny recursive-descent parser over a single value
// expression (everything to the right of a `=`).
type valueParser struct {
	s    string
	pos  int
	line int
}

func parseValue(raw string, line int) (Value, error) {
	p := &valueParser{s: raw, line: line}
	v, err := p.parse(nil)
	if err != nil {
		return nil, err
	}
	p.skipSpaces()
	if p.pos != len(p.s) {
		return nil, p.errorf("unexpected trailing text %q", p.s[p.pos:])
	}
	return v, nil
}

func (p *valueParser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.line, Message: errors.Errorf(format, args...).Error()}
}

func (p *valueParser) skipSpaces() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

// parse reads one value. Inside containers, delim holds the bytes that end
// a bare token (the separator and the closing bracket); at the top level it
// is nil and a bare token extends to the end of the line.
func (p *valueParser) parse(delim []byte) (Value, error) {
	p.skipSpaces()
	if p.pos >= len(p.s) {
		return nil, p.errorf("missing value")
	}
	switch c := p.s[p.pos]; c {
	case '"', '\'':
		return p.parseQuoted(c)
	case '<':
		return p.parseReference()
	case '[':
		return p.parseContainer(']')
	case '(':
		return p.parseContainer(')')
	default:
		return p.parseBare(delim)
	}
}

func (p *valueParser) parseQuoted(quote byte) (Value, error) {
	p.pos++ // Consume the opening quote.
	var b strings.Builder
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		switch c {
		case quote:
			p.pos++
			return Literal{Val: b.String()}, nil
		case '\\':
			if p.pos+1 >= len(p.s) {
				return nil, p.errorf("dangling escape in string")
			}
			p.pos++
			switch e := p.s[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
		p.pos++
	}
	return nil, p.errorf("unterminated string")
}

func (p *valueParser) parseReference() (Value, error) {
	end := strings.IndexByte(p.s[p.pos:], '>')
	if end < 0 {
		return nil, p.errorf("unterminated reference")
	}
	inner := p.s[p.pos+1 : p.pos+end]
	p.pos += end + 1
	parts := strings.Split(inner, ".")
	for _, part := range parts {
		if !isIdentifier(part) {
			return nil, p.errorf("invalid reference <%s>", inner)
		}
	}
	if len(parts) == 1 {
		return Ref{Name: parts[0]}, nil
	}
	return AttrRef{Name: parts[0], Path: parts[1:]}, nil
}

func (p *valueParser) parseContainer(closing byte) (Value, error) {
	p.pos++ // Consume the opening bracket.
	var elems []Value
	delim := []byte{',', closing}
	for {
		p.skipSpaces()
		if p.pos >= len(p.s) {
			return nil, p.errorf("unterminated container, expected %q", string(closing))
		}
		if p.s[p.pos] == closing {
			p.pos++
			break
		}
		elem, err := p.parse(delim)
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
		p.skipSpaces()
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++ // Trailing commas are fine.
		}
	}
	if closing == ')' {
		return Tuple{Elems: elems}, nil
	}
	return List{Elems: elems}, nil
}

func (p *valueParser) parseBare(delim []byte) (Value, error) {
	start := p.pos
scan:
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		for _, d := range delim {
			if c == d {
				break scan
			}
		}
		p.pos++
	}
	token := strings.TrimSpace(p.s[start:p.pos])
	if token == "" {
		return nil, p.errorf("missing value")
	}
	switch token {
	case "True":
		return Literal{Val: true}, nil
	case "False":
		return Literal{Val: false}, nil
	case "None":
		return Literal{Val: nil}, nil
	}
	if i, err := strconv.ParseInt(token, 10, 64); err == nil {
		return Literal{Val: int(i)}, nil
	}
	if f, err := strconv.ParseFloat(token, 64); err == nil {
		return Literal{Val: f}, nil
	}
	// Anything else is an unquoted string: class paths, file names, etc.
	return Literal{Val: token}, nil
}
