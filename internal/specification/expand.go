package specification

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/combinator"
	"github.com/roach88/qexpand/internal/eval"
)

var expressibleType = ast.TypeOf[ast.Expressible]()

// ToAST is the method of an explicit extraction call, spec.ToAST(), in a
// query tree. The call's type is func(T) bool where T is taken from the
// target's IsSatisfiedBy method.
var ToAST = &ast.Method{
	Owner: "specification",
	Name:  "ToAST",
	Returns: func(operands []reflect.Type) reflect.Type {
		elem, ok := ElemOf(operands[0])
		if !ok {
			panic(fmt.Sprintf("specification: %s is not a specification", operands[0]))
		}
		return ast.Predicate(elem)
	},
}

// ElemOf returns T for a type implementing Specification[T].
func ElemOf(t reflect.Type) (reflect.Type, bool) {
	if !t.Implements(expressibleType) {
		return nil, false
	}
	m, ok := t.MethodByName("IsSatisfiedBy")
	if !ok {
		return nil, false
	}
	in := 1
	if t.Kind() == reflect.Interface {
		in = 0
	}
	if m.Type.NumIn() != in+1 {
		return nil, false
	}
	return m.Type.In(in), true
}

// Use embeds a specification value in a tree as an implicit conversion to
// func(T) bool.
func Use[T any](s Specification[T]) *ast.Convert {
	return ast.ConvertTo(ast.TypedConst(s, reflect.TypeOf(s)), ast.Predicate(ast.TypeOf[T]()))
}

// Embed converts a tree that produces a specification, such as a
// constructor call or a captured variable, to func(T) bool.
func Embed(n ast.Node) *ast.Convert {
	elem, ok := ElemOf(n.Type())
	if !ok {
		panic(fmt.Sprintf("specification: %s is not a specification", n.Type()))
	}
	return ast.ConvertTo(n, ast.Predicate(elem))
}

// Extract builds the explicit n.ToAST() call.
func Extract(n ast.Node) *ast.Call {
	return ast.NewCall(n, ToAST)
}

// OpenParameterError reports a specification whose construction depends
// on a lambda parameter. A specification's tree must be fixed when the
// query is expanded, so this is a hard failure.
type OpenParameterError struct {
	Node ast.Node
	Err  error
}

func (e *OpenParameterError) Error() string {
	return fmt.Sprintf("specification %s depends on a lambda parameter: %v", ast.String(e.Node), e.Err)
}

func (e *OpenParameterError) Unwrap() error {
	return e.Err
}

// DepthError reports specifications nested deeper than the expander
// allows, typically a specification whose tree embeds itself.
type DepthError struct {
	Specification string
	MaxDepth      int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("expanding specification %s exceeded max depth %d", e.Specification, e.MaxDepth)
}

// Expander replaces embedded specifications with their trees.
type Expander struct {
	eval     eval.Evaluator
	maxDepth int
	logger   *zap.Logger
}

// Option configures an Expander.
type Option func(*Expander)

// WithEvaluator sets the evaluator used to obtain specification instances.
func WithEvaluator(ev eval.Evaluator) Option {
	return func(e *Expander) { e.eval = ev }
}

// WithMaxDepth bounds nested specification expansion.
func WithMaxDepth(n int) Option {
	return func(e *Expander) { e.maxDepth = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Expander) { e.logger = l }
}

// NewExpander returns a specification expander.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{eval: eval.Partial{}, maxDepth: combinator.DefaultMaxDepth, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name identifies the pass.
func (e *Expander) Name() string {
	return "specification"
}

// Rewrite returns n with every embedded specification replaced by its
// tree, recursively.
func (e *Expander) Rewrite(n ast.Node) (ast.Node, error) {
	return e.rewrite(n, 0)
}

func (e *Expander) rewrite(n ast.Node, depth int) (ast.Node, error) {
	return ast.Rewrite(n, func(n ast.Node) (ast.Node, bool, error) {
		instance, ok := match(n)
		if !ok {
			return nil, false, nil
		}
		out, err := e.expand(n, instance, depth)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	})
}

func match(n ast.Node) (ast.Node, bool) {
	switch n := n.(type) {
	case *ast.Convert:
		if _, ok := ast.IsPredicate(n.Type()); ok && n.Operand.Type().Implements(expressibleType) {
			return n.Operand, true
		}
	case *ast.Call:
		if n.Method == ToAST && n.Target != nil {
			return n.Target, true
		}
	}
	return nil, false
}

func (e *Expander) expand(n, instance ast.Node, depth int) (ast.Node, error) {
	if depth >= e.maxDepth {
		return nil, &DepthError{Specification: ast.String(instance), MaxDepth: e.maxDepth}
	}
	v, err := e.eval.Evaluate(instance)
	if err != nil {
		if eval.IsUnbound(err) {
			return nil, &OpenParameterError{Node: instance, Err: err}
		}
		return nil, fmt.Errorf("evaluate specification %s: %w", ast.String(instance), err)
	}
	s, ok := v.(ast.Expressible)
	if !ok || reflect.ValueOf(v).Kind() == reflect.Pointer && reflect.ValueOf(v).IsNil() {
		return nil, fmt.Errorf("specification %s evaluated to %T", ast.String(instance), v)
	}
	q := s.ToAST()
	if q == nil {
		return nil, fmt.Errorf("specification %s produced no tree", ast.String(instance))
	}
	if q.Type() != n.Type() {
		return nil, fmt.Errorf("specification %s is %s, used as %s", ast.String(instance), q.Type(), n.Type())
	}
	out, err := e.rewrite(q, depth+1)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("expanded specification",
		zap.String("specification", nameOf(v)),
		zap.String("expansion", ast.String(out)),
	)
	return out, nil
}
