// Package eval computes the values of query sub-trees.
//
// Two tiers cooperate. Partial.Evaluate interprets the shapes that appear
// as combinator arguments and predicate-object constructions (constants,
// captured variables, member reads, conversions, indexing, quoted lambdas)
// without compiling anything. Every other shape is compiled into a closure
// tree with Compile and run with no parameters.
//
// A sub-tree that references a lambda parameter it does not bind has no
// value on its own. Both tiers report it as *UnboundParameterError, which
// unwraps to ErrInvalidOperation; expansion passes rely on that distinction
// to defer such arguments instead of failing.
package eval

//go:generate mockgen -destination=mock/mock_evaluator.go -package=mock github.com/roach88/qexpand/internal/eval Evaluator

import (
	"github.com/roach88/qexpand/internal/ast"
)

// Evaluator produces the value of a parameter-free sub-tree.
type Evaluator interface {
	Evaluate(n ast.Node) (any, error)
}

// Partial is the default Evaluator.
type Partial struct{}

var _ Evaluator = Partial{}

// Evaluate returns the value of n.
//
// A Quote evaluates to itself: the value of a quoted lambda is its tree.
func (Partial) Evaluate(n ast.Node) (any, error) {
	return Evaluate(n)
}

// Evaluate is Partial{}.Evaluate.
func Evaluate(n ast.Node) (any, error) {
	switch n := n.(type) {
	case *ast.Constant:
		return n.Value, nil

	case *ast.Member:
		target, err := Evaluate(n.Target)
		if err != nil {
			return nil, err
		}
		return readMember(target, n)

	case *ast.Convert:
		v, err := Evaluate(n.Operand)
		if err != nil {
			return nil, err
		}
		return convertValue(v, n.Type())

	case *ast.Index:
		target, err := Evaluate(n.Target)
		if err != nil {
			return nil, err
		}
		args := make([]any, len(n.Args))
		for i, a := range n.Args {
			if args[i], err = Evaluate(a); err != nil {
				return nil, err
			}
		}
		return index(target, args, n.Type())

	case *ast.Unary:
		if n.Op == ast.OpLen {
			v, err := Evaluate(n.Operand)
			if err != nil {
				return nil, err
			}
			return length(v)
		}

	case *ast.Quote:
		return n, nil
	}

	p, err := Compile(n)
	if err != nil {
		return nil, err
	}
	return p.Run()
}
