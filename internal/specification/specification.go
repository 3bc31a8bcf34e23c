// Package specification implements reusable predicate objects.
//
// A specification is a boolean predicate over T that can both test a value
// in memory and describe itself as a quoted lambda. Specifications compose
// with And, Or and Not; composition merges the two trees under one shared
// parameter, so a composed specification is a single lambda:
//
//	active := specification.New[*Post]("active", func(p *ast.Param) ast.Node {
//		return ast.Eq(ast.Field(p, "IsDeleted"), ast.Const(false))
//	})
//	titled := specification.New[*Post]("titled", ...)
//	both := specification.And[*Post](active, titled)
//	// p => ((p.IsDeleted == false) && (p.Title == "go"))
//
// Inside a query tree a specification appears either as a conversion to
// func(T) bool (see Use and Embed) or as an explicit ToAST call (see
// Extract). The Expander replaces both with the specification's tree.
package specification

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/eval"
	"github.com/roach88/qexpand/internal/rebind"
)

// Specification is a predicate over T that can describe itself as a tree.
type Specification[T any] interface {
	IsSatisfiedBy(candidate T) (bool, error)
	ToAST() *ast.Quote
}

// Predicate is the standard Specification implementation: a named quoted
// lambda, compiled on first use.
type Predicate[T any] struct {
	name  string
	quote *ast.Quote

	once sync.Once
	prog *eval.Program
	err  error
}

var _ Specification[int] = (*Predicate[int])(nil)

// New builds a predicate from a body over a fresh parameter of type T.
func New[T any](name string, build func(p *ast.Param) ast.Node) *Predicate[T] {
	p := ast.ParamOf[T]("p")
	body := build(p)
	if body.Type().Kind() != reflect.Bool {
		panic(fmt.Sprintf("specification: %s body is %s, not bool", name, body.Type()))
	}
	return &Predicate[T]{name: name, quote: ast.Lambda(body, p)}
}

// FromQuote wraps an existing func(T) bool lambda.
func FromQuote[T any](name string, q *ast.Quote) (*Predicate[T], error) {
	elem, ok := ast.IsPredicate(q.Type())
	if !ok || elem != ast.TypeOf[T]() {
		return nil, fmt.Errorf("specification %s: lambda is %s, not func(%s) bool", name, q.Type(), ast.TypeOf[T]())
	}
	return &Predicate[T]{name: name, quote: q}, nil
}

// ToAST returns the predicate's lambda.
func (s *Predicate[T]) ToAST() *ast.Quote {
	return s.quote
}

// IsSatisfiedBy evaluates the predicate in memory. The lambda is compiled
// once; Predicate is safe for concurrent use.
func (s *Predicate[T]) IsSatisfiedBy(candidate T) (bool, error) {
	s.once.Do(func() {
		s.prog, s.err = eval.Compile(s.quote.Body, s.quote.Params...)
	})
	if s.err != nil {
		return false, fmt.Errorf("specification %s: %w", s.name, s.err)
	}
	out, err := s.prog.Run(candidate)
	if err != nil {
		return false, fmt.Errorf("specification %s: %w", s.name, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("specification %s: result is %T, not bool", s.name, out)
	}
	return b, nil
}

// Name returns the predicate name.
func (s *Predicate[T]) Name() string {
	return s.name
}

func (s *Predicate[T]) String() string {
	return s.name + ": " + ast.String(s.quote)
}

// And is satisfied when both l and r are.
func And[T any](l, r Specification[T]) *Predicate[T] {
	return combine("("+nameOf(l)+" and "+nameOf(r)+")", l, r, ast.And)
}

// Or is satisfied when either l or r is.
func Or[T any](l, r Specification[T]) *Predicate[T] {
	return combine("("+nameOf(l)+" or "+nameOf(r)+")", l, r, ast.Or)
}

// Not is satisfied when s is not.
func Not[T any](s Specification[T]) *Predicate[T] {
	q := s.ToAST()
	return &Predicate[T]{name: "not " + nameOf(s), quote: ast.Lambda(ast.Not(q.Body), q.Params...)}
}

func combine[T any](name string, l, r Specification[T], op func(a, b ast.Node) *ast.Binary) *Predicate[T] {
	lq, rq := l.ToAST(), r.ToAST()
	p := lq.Params[0]
	right, err := rebind.ReplaceParams(rq.Body, map[*ast.Param]ast.Node{rq.Params[0]: p})
	if err != nil {
		// Parameters of identical type always substitute cleanly.
		panic(err)
	}
	return &Predicate[T]{name: name, quote: ast.Lambda(op(lq.Body, right), p)}
}

func nameOf(v any) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}
