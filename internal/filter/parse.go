// Package filter compiles and evaluates subscription filters.
//
// Filters use the LDAP search filter syntax (RFC 1960) common to event
// admin systems:
//
//	(&(kind=order)(|(total>=100)(priority=high))(!(test=*)))
//
// Supported operators are equality (=), approximate equality (~=), ordering
// (>=, <=), presence (attr=*) and substring matches (attr=ab*cd*). Values may
// escape '(', ')', '*' and '\' with a backslash.
//
// Attribute names are case sensitive. A dotted name that is not a property
// itself is resolved as a path into a structured property value, so
// (order.total>=100) reads the total field of the "order" property.
package filter

import (
	"fmt"
	"strings"
)

// SyntaxError describes why an expression failed to compile.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("filter: %s at position %d in %q", e.Msg, e.Pos, e.Expr)
}

type parser struct {
	expr string
	pos  int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Expr: p.expr, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.expr) && p.expr[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.expr) {
		return 0
	}
	return p.expr[p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.peek() != c {
		if p.pos >= len(p.expr) {
			return p.errorf("expected %q, got end of input", c)
		}
		return p.errorf("expected %q, got %q", c, p.peek())
	}
	p.pos++
	return nil
}

func (p *parser) parseFilter() (node, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.skipSpace()

	var (
		n   node
		err error
	)
	switch p.peek() {
	case '&':
		p.pos++
		var children []node
		children, err = p.parseList()
		n = andNode(children)
	case '|':
		p.pos++
		var children []node
		children, err = p.parseList()
		n = orNode(children)
	case '!':
		p.pos++
		var child node
		child, err = p.parseFilter()
		n = notNode{child: child}
	default:
		n, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}

	if err := p.expect(')'); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) parseList() ([]node, error) {
	var children []node
	for {
		p.skipSpace()
		if p.peek() != '(' {
			break
		}
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	if len(children) == 0 {
		return nil, p.errorf("empty filter list")
	}
	return children, nil
}

func (p *parser) parseItem() (node, error) {
	start := p.pos
	for p.pos < len(p.expr) {
		c := p.expr[p.pos]
		if c == '=' || c == '~' || c == '>' || c == '<' || c == '(' || c == ')' {
			break
		}
		p.pos++
	}
	attr := strings.TrimSpace(p.expr[start:p.pos])
	if attr == "" {
		return nil, p.errorf("missing attribute name")
	}

	var op operator
	switch {
	case strings.HasPrefix(p.expr[p.pos:], "~="):
		op, p.pos = opApprox, p.pos+2
	case strings.HasPrefix(p.expr[p.pos:], ">="):
		op, p.pos = opGreaterEq, p.pos+2
	case strings.HasPrefix(p.expr[p.pos:], "<="):
		op, p.pos = opLessEq, p.pos+2
	case strings.HasPrefix(p.expr[p.pos:], "="):
		op, p.pos = opEqual, p.pos+1
	default:
		return nil, p.errorf("expected operator after %q", attr)
	}

	parts, err := p.parseValue()
	if err != nil {
		return nil, err
	}

	if op != opEqual {
		if len(parts) > 1 {
			return nil, p.errorf("wildcard not allowed with %s", op)
		}
		return compareNode{attr: attr, op: op, value: parts[0]}, nil
	}
	switch {
	case len(parts) == 2 && parts[0] == "" && parts[1] == "":
		return presentNode{attr: attr}, nil
	case len(parts) > 1:
		return newSubstringNode(attr, parts), nil
	default:
		return compareNode{attr: attr, op: opEqual, value: parts[0]}, nil
	}
}

// parseValue reads an assertion value up to the closing parenthesis and
// splits it on unescaped '*'.
func (p *parser) parseValue() ([]string, error) {
	var (
		parts []string
		cur   strings.Builder
	)
	for {
		if p.pos >= len(p.expr) {
			return nil, p.errorf("unterminated value")
		}
		c := p.expr[p.pos]
		switch c {
		case ')':
			parts = append(parts, cur.String())
			return parts, nil
		case '(':
			return nil, p.errorf("unescaped '(' in value")
		case '*':
			parts = append(parts, cur.String())
			cur.Reset()
			p.pos++
		case '\\':
			p.pos++
			if p.pos >= len(p.expr) {
				return nil, p.errorf("dangling escape")
			}
			cur.WriteByte(p.expr[p.pos])
			p.pos++
		default:
			cur.WriteByte(c)
			p.pos++
		}
	}
}
