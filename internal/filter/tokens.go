package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Token is one (code, value) pair of the serialized filter.
type Token struct {
	Code  Code
	Value string
}

func (t Token) String() string { return strconv.Itoa(int(t.Code)) + "=" + t.Value }

func openMarker(op Op) Token  { return Token{Code: CodeOperator, Value: "<" + string(op)} }
func closeMarker(op Op) Token { return Token{Code: CodeOperator, Value: string(op) + ">"} }

// Tokens serializes e depth first. Every group, including a single child
// group, is emitted between its opening and closing markers. Groups without
// leaves are dropped.
func Tokens(e Expr) []Token {
	var out []Token
	appendTokens(&out, e)
	return out
}

func appendTokens(out *[]Token, e Expr) {
	switch v := e.(type) {
	case nil:
	case Leaf:
		*out = append(*out, v.token())
	case Group:
		if v.leaves() == 0 {
			return
		}
		*out = append(*out, openMarker(v.Op))
		for _, c := range v.Children {
			appendTokens(out, c)
		}
		*out = append(*out, closeMarker(v.Op))
	}
}

// Balanced verifies that every opening marker is closed by the matching
// marker in the right order and that NOT groups hold exactly one operand.
func Balanced(ts []Token) error {
	type frame struct {
		op       Op
		operands int
	}
	var stack []frame
	operand := func() {
		if n := len(stack); n > 0 {
			stack[n-1].operands++
		}
	}
	for i, t := range ts {
		if t.Code != CodeOperator {
			operand()
			continue
		}
		switch {
		case strings.HasPrefix(t.Value, "<"):
			op := Op(strings.TrimPrefix(t.Value, "<"))
			if !validOp(op) {
				return fmt.Errorf("%w: token %d: unknown operator %q", ErrInvalidFilter, i, t.Value)
			}
			stack = append(stack, frame{op: op})
		case strings.HasSuffix(t.Value, ">"):
			op := Op(strings.TrimSuffix(t.Value, ">"))
			if len(stack) == 0 {
				return fmt.Errorf("%w: token %d: %q closes nothing", ErrInvalidFilter, i, t.Value)
			}
			top := stack[len(stack)-1]
			if top.op != op {
				return fmt.Errorf("%w: token %d: %q closes <%s", ErrInvalidFilter, i, t.Value, top.op)
			}
			if top.op == OpNot && top.operands != 1 {
				return fmt.Errorf("%w: token %d: NOT takes one operand, got %d", ErrInvalidFilter, i, top.operands)
			}
			stack = stack[:len(stack)-1]
			operand()
		default:
			return fmt.Errorf("%w: token %d: malformed operator %q", ErrInvalidFilter, i, t.Value)
		}
	}
	if len(stack) > 0 {
		return fmt.Errorf("%w: %d unclosed group(s)", ErrInvalidFilter, len(stack))
	}
	return nil
}

func validOp(op Op) bool {
	return op == OpAnd || op == OpOr || op == OpNot
}

// Fingerprint hashes the serialized form of e.
func Fingerprint(e Expr) uint64 {
	d := xxhash.New()
	for _, t := range Tokens(e) {
		_, _ = d.WriteString(t.String())
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
