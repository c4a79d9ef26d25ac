package filter

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/casualjim/strix/pkg/jsonx"
	"github.com/tidwall/match"
)

// Properties is the read side of an event property bag.
type Properties interface {
	Get(key string) (any, bool)
}

// Filter is a compiled filter expression. It is immutable and safe for
// concurrent use.
type Filter struct {
	expr string
	root node
}

// Compile parses expr. The whole expression must be a single parenthesized filter.
func Compile(expr string) (*Filter, error) {
	p := &parser{expr: expr}
	root, err := p.parseFilter()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(expr) {
		return nil, p.errorf("unexpected trailing input")
	}
	return &Filter{expr: expr, root: root}, nil
}

// MustCompile is like Compile but panics on a syntax error.
func MustCompile(expr string) *Filter {
	f, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// Match evaluates the filter against props. A nil filter matches everything.
func (f *Filter) Match(props Properties) bool {
	if f == nil {
		return true
	}
	return f.root.match(props)
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

type operator int

const (
	opEqual operator = iota
	opApprox
	opGreaterEq
	opLessEq
)

func (o operator) String() string {
	switch o {
	case opEqual:
		return "="
	case opApprox:
		return "~="
	case opGreaterEq:
		return ">="
	case opLessEq:
		return "<="
	default:
		return "?"
	}
}

type node interface {
	match(Properties) bool
}

type andNode []node

func (n andNode) match(p Properties) bool {
	for _, c := range n {
		if !c.match(p) {
			return false
		}
	}
	return true
}

type orNode []node

func (n orNode) match(p Properties) bool {
	for _, c := range n {
		if c.match(p) {
			return true
		}
	}
	return false
}

type notNode struct {
	child node
}

func (n notNode) match(p Properties) bool {
	return !n.child.match(p)
}

type presentNode struct {
	attr string
}

func (n presentNode) match(p Properties) bool {
	_, ok := lookup(p, n.attr)
	return ok
}

type compareNode struct {
	attr  string
	op    operator
	value string
}

func (n compareNode) match(p Properties) bool {
	v, ok := lookup(p, n.attr)
	if !ok {
		return false
	}
	return anyElement(v, func(elem any) bool {
		return compare(elem, n.op, n.value)
	})
}

type substringNode struct {
	attr    string
	parts   []string
	pattern string // glob for tidwall/match, empty when it cannot express parts
}

func newSubstringNode(attr string, parts []string) substringNode {
	n := substringNode{attr: attr, parts: parts}
	// match treats '?' as a wildcard too, so literal text with glob
	// metacharacters goes through the slow path.
	if !strings.ContainsAny(strings.Join(parts, ""), `*?\`) {
		n.pattern = strings.Join(parts, "*")
	}
	return n
}

func (n substringNode) match(p Properties) bool {
	v, ok := lookup(p, n.attr)
	if !ok {
		return false
	}
	return anyElement(v, func(elem any) bool {
		s, ok := elem.(string)
		if !ok {
			if elem == nil {
				return false
			}
			s = fmt.Sprint(elem)
		}
		if n.pattern != "" {
			return match.Match(s, n.pattern)
		}
		return matchParts(s, n.parts)
	})
}

func matchParts(s string, parts []string) bool {
	first, last := parts[0], parts[len(parts)-1]
	if !strings.HasPrefix(s, first) {
		return false
	}
	s = s[len(first):]
	for _, mid := range parts[1 : len(parts)-1] {
		i := strings.Index(s, mid)
		if i < 0 {
			return false
		}
		s = s[i+len(mid):]
	}
	return strings.HasSuffix(s, last)
}

// lookup resolves attr directly, then as a dotted path into a structured value.
func lookup(p Properties, attr string) (any, bool) {
	if p == nil {
		return nil, false
	}
	if v, ok := p.Get(attr); ok {
		return v, true
	}
	for i := strings.IndexByte(attr, '.'); i > 0; {
		if v, ok := p.Get(attr[:i]); ok {
			return jsonx.Path(v, attr[i+1:])
		}
		next := strings.IndexByte(attr[i+1:], '.')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, false
}

// anyElement applies fn to v, or to each element when v is a slice or array.
func anyElement(v any, fn func(any) bool) bool {
	switch v.(type) {
	case nil, string, []byte:
		return fn(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fn(v)
	}
	for i := 0; i < rv.Len(); i++ {
		if fn(rv.Index(i).Interface()) {
			return true
		}
	}
	return false
}

func compare(v any, op operator, raw string) bool {
	switch tv := v.(type) {
	case nil:
		return false
	case string:
		return compareStrings(tv, op, raw)
	case []byte:
		return compareStrings(string(tv), op, raw)
	case bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil || (op != opEqual && op != opApprox) {
			return false
		}
		return tv == b
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		want, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if ferr != nil {
				return false
			}
			return ordered(float64(rv.Int()), f, op)
		}
		return ordered(rv.Int(), want, op)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		want, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if ferr != nil {
				return false
			}
			return ordered(float64(rv.Uint()), f, op)
		}
		return ordered(rv.Uint(), want, op)
	case reflect.Float32, reflect.Float64:
		want, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return false
		}
		return ordered(rv.Float(), want, op)
	}

	if s, ok := v.(fmt.Stringer); ok {
		return compareStrings(s.String(), op, raw)
	}
	return compareStrings(fmt.Sprint(v), op, raw)
}

func compareStrings(s string, op operator, raw string) bool {
	switch op {
	case opApprox:
		return normalize(s) == normalize(raw)
	default:
		return ordered(s, raw, op)
	}
}

func ordered[T int64 | uint64 | float64 | string](have, want T, op operator) bool {
	switch op {
	case opEqual, opApprox:
		return have == want
	case opGreaterEq:
		return have >= want
	case opLessEq:
		return have <= want
	default:
		return false
	}
}

// normalize implements approximate matching: case and whitespace are ignored.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
