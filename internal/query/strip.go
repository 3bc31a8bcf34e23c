package query

import (
	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/seq"
)

// AsSequenceStripper removes AsSequence conversions inside lambdas whose
// operand is already assignable to the converted type, such as a named
// slice type of the same element. Inlining wraps every such source; the
// stripper makes the result match what a hand-written query looks like.
//
// A conversion that is the lambda's own result is kept, since removing it
// would change the lambda's type.
type AsSequenceStripper struct{}

// Name identifies the pass.
func (AsSequenceStripper) Name() string {
	return "assequence"
}

// Rewrite strips redundant AsSequence calls below the first lambda.
func (AsSequenceStripper) Rewrite(n ast.Node) (ast.Node, error) {
	return ast.Rewrite(n, func(n ast.Node) (ast.Node, bool, error) {
		q, ok := n.(*ast.Quote)
		if !ok {
			return nil, false, nil
		}
		out, err := stripQuote(q)
		return out, err == nil, err
	})
}

func stripQuote(q *ast.Quote) (ast.Node, error) {
	root := q.Body
	body, err := ast.Rewrite(root, func(n ast.Node) (ast.Node, bool, error) {
		if n == root {
			return nil, false, nil
		}
		return strip(n)
	})
	if err != nil || body == root {
		return q, err
	}
	return ast.Lambda(body, q.Params...), nil
}

func strip(n ast.Node) (ast.Node, bool, error) {
	switch n := n.(type) {
	case *ast.Quote:
		out, err := stripQuote(n)
		return out, err == nil, err
	case *ast.Call:
		if n.Method != seq.AsSequence {
			return nil, false, nil
		}
		operand := n.Args[0]
		if !seq.IsSequence(operand.Type()) || !operand.Type().AssignableTo(n.Type()) {
			return nil, false, nil
		}
		inner, err := ast.Rewrite(operand, strip)
		return inner, err == nil, err
	}
	return nil, false, nil
}
