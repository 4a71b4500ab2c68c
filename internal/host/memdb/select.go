package memdb

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mohammed-shakir/raceway-cad/internal/filter"
)

type predicate func(entity) bool

// compile turns serialized filter tokens back into a predicate. Top level
// tokens are implicitly conjoined, as the host does.
func compile(tokens []filter.Token) (predicate, error) {
	if err := filter.Balanced(tokens); err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	var terms []predicate
	for p.pos < len(p.tokens) {
		t, err := p.term()
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return all(terms), nil
}

type parser struct {
	tokens []filter.Token
	pos    int
}

func (p *parser) term() (predicate, error) {
	t := p.tokens[p.pos]
	p.pos++
	if t.Code != filter.CodeOperator {
		return leaf(t)
	}
	op := filter.Op(strings.TrimPrefix(t.Value, "<"))
	var children []predicate
	for {
		if p.pos >= len(p.tokens) {
			return nil, fmt.Errorf("unterminated %s group", op)
		}
		next := p.tokens[p.pos]
		if next.Code == filter.CodeOperator && strings.HasSuffix(next.Value, ">") {
			p.pos++
			break
		}
		c, err := p.term()
		if err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	switch op {
	case filter.OpAnd:
		return all(children), nil
	case filter.OpOr:
		return anyOf(children), nil
	case filter.OpNot:
		inner := children[0]
		return func(e entity) bool { return !inner(e) }, nil
	}
	return nil, fmt.Errorf("unknown operator %q", t.Value)
}

func all(ps []predicate) predicate {
	return func(e entity) bool {
		for _, p := range ps {
			if !p(e) {
				return false
			}
		}
		return true
	}
}

func anyOf(ps []predicate) predicate {
	return func(e entity) bool {
		for _, p := range ps {
			if p(e) {
				return true
			}
		}
		return false
	}
}

func leaf(t filter.Token) (predicate, error) {
	m, err := wildcard(t.Value)
	if err != nil {
		return nil, err
	}
	switch t.Code {
	case filter.CodeType:
		return func(e entity) bool { return m(e.dxfName()) }, nil
	case filter.CodeBlockName:
		return func(e entity) bool {
			r, ok := e.(*blockRef)
			return ok && m(r.name)
		}, nil
	case filter.CodeLayer:
		return func(e entity) bool { return m(e.Layer()) }, nil
	}
	return nil, fmt.Errorf("unsupported group code %d", t.Code)
}

// wildcard compiles a host wildcard pattern: comma separated alternatives,
// case insensitive, with * ? # @ and a leading ~ for negation.
func wildcard(pattern string) (func(string) bool, error) {
	var pos, neg []*regexp.Regexp
	for _, alt := range strings.Split(pattern, ",") {
		negate := strings.HasPrefix(alt, "~")
		alt = strings.TrimPrefix(alt, "~")
		var b strings.Builder
		b.WriteString("(?i)^")
		escaped := false
		for _, r := range alt {
			if escaped {
				b.WriteString(regexp.QuoteMeta(string(r)))
				escaped = false
				continue
			}
			switch r {
			case '`':
				escaped = true
			case '*':
				b.WriteString(".*")
			case '?':
				b.WriteString(".")
			case '#':
				b.WriteString("[0-9]")
			case '@':
				b.WriteString("[A-Za-z]")
			default:
				b.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		b.WriteString("$")
		re, err := regexp.Compile(b.String())
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		if negate {
			neg = append(neg, re)
		} else {
			pos = append(pos, re)
		}
	}
	return func(s string) bool {
		for _, re := range neg {
			if re.MatchString(s) {
				return false
			}
		}
		if len(pos) == 0 {
			return true
		}
		for _, re := range pos {
			if re.MatchString(s) {
				return true
			}
		}
		return false
	}, nil
}
