// Package filter builds compound selection filters and serializes them to
// the flat, group-delimited token form the host evaluates.
package filter

import (
	"errors"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var ErrInvalidFilter = errors.New("invalid filter")

// Code is a DXF group code.
type Code int

const (
	CodeType      Code = 0
	CodeBlockName Code = 2
	CodeLayer     Code = 8
	CodeOperator  Code = -4
)

// Entity type names understood by the host.
const (
	TypeInsert   = "INSERT"
	TypePolyline = "LWPOLYLINE"
	TypeLine     = "LINE"
	TypeMText    = "MTEXT"
)

type Op string

const (
	OpAnd Op = "AND"
	OpOr  Op = "OR"
	OpNot Op = "NOT"
)

// Expr is a node of a filter expression: a Leaf or a Group.
type Expr interface {
	leaves() int
}

type Leaf struct {
	Code  Code
	Value string
}

func (Leaf) leaves() int { return 1 }

func (l Leaf) token() Token { return Token(l) }

type Group struct {
	Op       Op
	Children []Expr
}

func (g Group) leaves() int {
	n := 0
	for _, c := range g.Children {
		if c != nil {
			n += c.leaves()
		}
	}
	return n
}

func Type(entityType string) Leaf { return Leaf{Code: CodeType, Value: entityType} }
func BlockName(name string) Leaf  { return Leaf{Code: CodeBlockName, Value: name} }
func Layer(name string) Leaf      { return Leaf{Code: CodeLayer, Value: name} }

// And conjoins xs. Nested AND groups are flattened so that
// And(And(a, b), c) and And(a, b, c) serialize identically.
func And(xs ...Expr) Group { return join(OpAnd, xs) }

// Or disjoins xs with the same flattening rule as And.
func Or(xs ...Expr) Group { return join(OpOr, xs) }

func Not(x Expr) Group { return Group{Op: OpNot, Children: []Expr{x}} }

func join(op Op, xs []Expr) Group {
	g := Group{Op: op}
	for _, x := range xs {
		switch v := x.(type) {
		case nil:
		case Group:
			if v.Op == op {
				g.Children = append(g.Children, v.Children...)
				continue
			}
			g.Children = append(g.Children, v)
		default:
			g.Children = append(g.Children, v)
		}
	}
	return g
}

// Leaves counts the leaf conditions in e.
func Leaves(e Expr) int {
	if e == nil {
		return 0
	}
	return e.leaves()
}

// Empty reports whether e selects on nothing. Sessions short-circuit empty
// filters without calling the host.
func Empty(e Expr) bool { return Leaves(e) == 0 }

// BuildTypeFilter selects entities of a single type.
func BuildTypeFilter(entityType string) (Expr, error) {
	t := strings.TrimSpace(entityType)
	if t == "" {
		return nil, fmt.Errorf("%w: empty entity type", ErrInvalidFilter)
	}
	return And(Type(strings.ToUpper(t))), nil
}

// BuildBlockNameFilter selects block references whose name matches any of
// names. Duplicate names collapse.
func BuildBlockNameFilter(names []string) (Expr, error) {
	inner, err := anyOf(BlockName, "block name", names)
	if err != nil {
		return nil, err
	}
	return And(Type(TypeInsert), inner), nil
}

// BuildLayerFilter selects entities on any of layers.
func BuildLayerFilter(layers []string) (Expr, error) {
	inner, err := anyOf(Layer, "layer", layers)
	if err != nil {
		return nil, err
	}
	return And(inner), nil
}

func anyOf(leaf func(string) Leaf, what string, values []string) (Group, error) {
	if len(values) == 0 {
		return Group{}, fmt.Errorf("%w: no %s given", ErrInvalidFilter, what)
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	or := Group{Op: OpOr}
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return Group{}, fmt.Errorf("%w: empty %s", ErrInvalidFilter, what)
		}
		if !seen.Add(v) {
			continue
		}
		or.Children = append(or.Children, leaf(v))
	}
	return or, nil
}
