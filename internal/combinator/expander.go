package combinator

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/roach88/qexpand/internal/ast"
	"github.com/roach88/qexpand/internal/eval"
	"github.com/roach88/qexpand/internal/rebind"
	"github.com/roach88/qexpand/internal/seq"
)

// DefaultMaxDepth bounds nested inlining.
const DefaultMaxDepth = 64

// UnregisteredError reports a combinator call whose method is not in the
// expander's registry.
type UnregisteredError struct {
	Method *ast.Method
}

func (e *UnregisteredError) Error() string {
	return fmt.Sprintf("combinator %s is not registered", e.Method)
}

// DepthError reports inlining that nested deeper than the expander allows,
// typically a recursive combinator whose recursion does not terminate.
type DepthError struct {
	Combinator string
	MaxDepth   int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("expanding %s exceeded max depth %d", e.Combinator, e.MaxDepth)
}

// Expander inlines combinator calls.
type Expander struct {
	registry *Registry
	eval     eval.Evaluator
	ids      IDGenerator
	maxDepth int
	logger   *zap.Logger
}

// Option configures an Expander.
type Option func(*Expander)

// WithEvaluator sets the evaluator used for arguments.
func WithEvaluator(ev eval.Evaluator) Option {
	return func(e *Expander) { e.eval = ev }
}

// WithIDs sets the placeholder ID generator.
func WithIDs(ids IDGenerator) Option {
	return func(e *Expander) { e.ids = ids }
}

// WithMaxDepth bounds nested inlining.
func WithMaxDepth(n int) Option {
	return func(e *Expander) { e.maxDepth = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Expander) { e.logger = l }
}

// NewExpander returns an expander over reg. A nil reg uses Default().
func NewExpander(reg *Registry, opts ...Option) *Expander {
	if reg == nil {
		reg = Default()
	}
	e := &Expander{
		registry: reg,
		eval:     eval.Partial{},
		ids:      UUIDv7Generator{},
		maxDepth: DefaultMaxDepth,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name identifies the pass.
func (e *Expander) Name() string {
	return "combinator"
}

// Rewrite returns n with every combinator call inlined, including calls
// introduced by other expansions.
func (e *Expander) Rewrite(n ast.Node) (ast.Node, error) {
	return e.expand(n, 0)
}

func (e *Expander) expand(n ast.Node, depth int) (ast.Node, error) {
	return ast.Rewrite(n, func(n ast.Node) (ast.Node, bool, error) {
		call, ok := n.(*ast.Call)
		if !ok || !call.Method.Expandable {
			return nil, false, nil
		}
		def, ok := e.registry.Lookup(call.Method)
		if !ok {
			return nil, false, &UnregisteredError{Method: call.Method}
		}
		if depth >= e.maxDepth {
			return nil, false, &DepthError{Combinator: def.String(), MaxDepth: e.maxDepth}
		}
		inlined, err := e.inline(def, call)
		if err != nil {
			return nil, false, err
		}
		out, err := e.expand(inlined, depth+1)
		if err != nil {
			return nil, false, err
		}
		return out, true, nil
	})
}

func (e *Expander) inline(def *Def, call *ast.Call) (ast.Node, error) {
	if len(call.Args) == 0 {
		return nil, fmt.Errorf("%s: call has no source", def)
	}
	src := call.Args[0]
	elem := def.elemOf(src.Type())

	ph := &Placeholder{ID: e.ids.Generate(), elem: elem}
	phNode := ast.TypedConst(ph, seq.Of(elem))

	args := newArgs(def, elem)
	var deferred []rebind.Replacement
	for i, p := range def.Params {
		if i+1 >= len(call.Args) {
			if !p.HasDefault {
				return nil, fmt.Errorf("%s: missing argument %s", def, p.Name)
			}
			args.set(p.Name, p.Default, paramType(p, nil, p.Default), nil)
			continue
		}
		actual := call.Args[i+1]
		t := paramType(p, actual, nil)
		v, err := e.eval.Evaluate(actual)
		if err != nil {
			if !eval.IsUnbound(err) {
				return nil, fmt.Errorf("%s: evaluate argument %s: %w", def, p.Name, err)
			}
			args.set(p.Name, standIn(p, t), t, actual)
			args.deferred[p.Name] = true
			deferred = append(deferred, rebind.Replacement{Name: p.Name, Node: actual})
			continue
		}
		args.set(p.Name, v, t, actual)
	}

	body, err := def.Body(phNode, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def, err)
	}
	if body == nil {
		return nil, fmt.Errorf("%s: body returned no tree", def)
	}

	if !seq.IsCanonical(src.Type(), elem) {
		src = seq.NewAsSequence(src)
	}

	rb := rebind.New(ph, src, deferred)
	rb.Closure = args.refs
	out, err := rb.Rebind(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def, err)
	}
	if baked := args.bakedNames(rb.Unconsumed()); len(baked) > 0 {
		return nil, &rebind.AmbiguousReplacementError{Combinator: def.String(), Names: baked}
	}
	e.logger.Debug("inlined combinator",
		zap.String("combinator", def.String()),
		zap.Int("deferred", len(deferred)),
		zap.String("expansion", ast.String(out)),
	)
	return out, nil
}

func paramType(p Param, actual ast.Node, def any) reflect.Type {
	switch {
	case p.Type != nil:
		return p.Type
	case actual != nil:
		return actual.Type()
	case def != nil:
		return reflect.TypeOf(def)
	}
	return reflect.TypeOf((*any)(nil)).Elem()
}

// standIn is the value a body sees for an argument that depends on a
// lambda parameter: the declared default, else the zero value.
func standIn(p Param, t reflect.Type) any {
	if p.HasDefault {
		return p.Default
	}
	return reflect.Zero(t).Interface()
}
