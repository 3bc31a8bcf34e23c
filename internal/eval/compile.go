package eval

import (
	"fmt"
	"reflect"

	"github.com/roach88/qexpand/internal/ast"
)

// Lambda is the executable form of a quoted lambda.
type Lambda func(args ...any) (any, error)

// Program is a compiled tree, ready to run with values for its parameters.
type Program struct {
	node   ast.Node
	params []*ast.Param
	run    compiled
}

type compiled func(env *frame) (any, error)

type frame struct {
	params []*ast.Param
	args   []any
	parent *frame
}

func (f *frame) lookup(p *ast.Param) (any, bool) {
	for ; f != nil; f = f.parent {
		for i, fp := range f.params {
			if fp == p {
				return f.args[i], true
			}
		}
	}
	return nil, false
}

// Compile turns body into a Program over params.
//
// Every parameter referenced in body must be one of params or be bound by
// a lambda inside body; otherwise Compile fails with an
// *UnboundParameterError before anything runs.
func Compile(body ast.Node, params ...*ast.Param) (*Program, error) {
	bound := make(map[*ast.Param]bool, len(params))
	for _, p := range params {
		bound[p] = true
	}
	for _, p := range ast.FreeParams(body) {
		if !bound[p] {
			return nil, &UnboundParameterError{Param: p, Node: body}
		}
	}
	run, err := compile(body)
	if err != nil {
		return nil, err
	}
	return &Program{node: body, params: params, run: run}, nil
}

// Run executes the program with one argument per parameter.
func (p *Program) Run(args ...any) (any, error) {
	if len(args) != len(p.params) {
		return nil, fmt.Errorf("program takes %d arguments, got %d", len(p.params), len(args))
	}
	return p.run(&frame{params: p.params, args: args})
}

// Lambda returns the program as a Lambda.
func (p *Program) Lambda() Lambda {
	return p.Run
}

func compile(n ast.Node) (compiled, error) {
	switch n := n.(type) {
	case *ast.Constant:
		v := n.Value
		return func(*frame) (any, error) { return v, nil }, nil

	case *ast.Param:
		return func(f *frame) (any, error) {
			v, ok := f.lookup(n)
			if !ok {
				return nil, &UnboundParameterError{Param: n, Node: n}
			}
			return v, nil
		}, nil

	case *ast.Member:
		target, err := compile(n.Target)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) {
			v, err := target(f)
			if err != nil {
				return nil, err
			}
			return readMember(v, n)
		}, nil

	case *ast.Index:
		target, err := compile(n.Target)
		if err != nil {
			return nil, err
		}
		args, err := compileList(n.Args)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) {
			v, err := target(f)
			if err != nil {
				return nil, err
			}
			vals, err := runList(args, f)
			if err != nil {
				return nil, err
			}
			return index(v, vals, n.Type())
		}, nil

	case *ast.Convert:
		operand, err := compile(n.Operand)
		if err != nil {
			return nil, err
		}
		return func(f *frame) (any, error) {
			v, err := operand(f)
			if err != nil {
				return nil, err
			}
			return convertValue(v, n.Type())
		}, nil

	case *ast.Unary:
		return compileUnary(n)

	case *ast.Binary:
		return compileBinary(n)

	case *ast.Call:
		return compileCall(n)

	case *ast.Quote:
		body, err := compile(n.Body)
		if err != nil {
			return nil, err
		}
		params := n.Params
		return func(f *frame) (any, error) {
			return Lambda(func(args ...any) (any, error) {
				if len(args) != len(params) {
					return nil, fmt.Errorf("lambda takes %d arguments, got %d", len(params), len(args))
				}
				return body(&frame{params: params, args: args, parent: f})
			}), nil
		}, nil
	}
	return nil, &UnsupportedNodeError{Node: n, Reason: fmt.Sprintf("unknown node %T", n)}
}

func compileList(nodes []ast.Node) ([]compiled, error) {
	out := make([]compiled, len(nodes))
	for i, n := range nodes {
		c, err := compile(n)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func runList(cs []compiled, f *frame) ([]any, error) {
	out := make([]any, len(cs))
	for i, c := range cs {
		v, err := c(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func compileUnary(n *ast.Unary) (compiled, error) {
	operand, err := compile(n.Operand)
	if err != nil {
		return nil, err
	}
	return func(f *frame) (any, error) {
		v, err := operand(f)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case ast.OpNot:
			b, ok := v.(bool)
			if !ok {
				return nil, fmt.Errorf("! applied to %T", v)
			}
			return reflect.ValueOf(!b).Convert(n.Type()).Interface(), nil
		case ast.OpNegate:
			return negate(v, n.Type())
		case ast.OpLen:
			return length(v)
		}
		return nil, &UnsupportedNodeError{Node: n, Reason: "unknown unary operator"}
	}, nil
}

func compileBinary(n *ast.Binary) (compiled, error) {
	left, err := compile(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := compile(n.Right)
	if err != nil {
		return nil, err
	}

	if n.Op.IsLogical() {
		return func(f *frame) (any, error) {
			l, err := left(f)
			if err != nil {
				return nil, err
			}
			lb, ok := l.(bool)
			if !ok {
				return nil, fmt.Errorf("%s applied to %T", n.Op, l)
			}
			if (n.Op == ast.OpAndAlso && !lb) || (n.Op == ast.OpOrElse && lb) {
				return lb, nil
			}
			r, err := right(f)
			if err != nil {
				return nil, err
			}
			rb, ok := r.(bool)
			if !ok {
				return nil, fmt.Errorf("%s applied to %T", n.Op, r)
			}
			return rb, nil
		}, nil
	}

	return func(f *frame) (any, error) {
		l, err := left(f)
		if err != nil {
			return nil, err
		}
		r, err := right(f)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case ast.OpEq, ast.OpNe:
			eq, err := equalValues(l, r)
			if err != nil {
				return nil, err
			}
			return eq == (n.Op == ast.OpEq), nil
		case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
			c, err := compareValues(l, r)
			if err != nil {
				return nil, err
			}
			switch n.Op {
			case ast.OpLt:
				return c < 0, nil
			case ast.OpLe:
				return c <= 0, nil
			case ast.OpGt:
				return c > 0, nil
			default:
				return c >= 0, nil
			}
		}
		return arith(n.Op, l, r, n.Type())
	}, nil
}

func compileCall(n *ast.Call) (compiled, error) {
	ops, err := compileList(n.Operands())
	if err != nil {
		return nil, err
	}
	if b, ok := builtins[n.Method]; ok {
		return func(f *frame) (any, error) {
			args, err := runList(ops, f)
			if err != nil {
				return nil, err
			}
			return b(n, args)
		}, nil
	}

	switch {
	case n.Method.Fn != nil:
		fv := reflect.ValueOf(n.Method.Fn)
		if fv.Kind() != reflect.Func || fv.Type().NumIn() != len(ops) {
			return nil, &UnsupportedNodeError{Node: n, Reason: fmt.Sprintf("%s implementation does not take %d arguments", n.Method, len(ops))}
		}
		return func(f *frame) (any, error) {
			args, err := runList(ops, f)
			if err != nil {
				return nil, err
			}
			return callFunc(fv, args)
		}, nil

	case n.Target != nil:
		return func(f *frame) (any, error) {
			args, err := runList(ops, f)
			if err != nil {
				return nil, err
			}
			recv := reflect.ValueOf(args[0])
			if !recv.IsValid() {
				return nil, fmt.Errorf("call %s: %w", n.Method.Name, ErrNilReference)
			}
			mv := recv.MethodByName(n.Method.Name)
			if !mv.IsValid() {
				return nil, &UnsupportedNodeError{Node: n, Reason: fmt.Sprintf("%s has no method %s", recv.Type(), n.Method.Name)}
			}
			return callFunc(mv, args[1:])
		}, nil

	case n.Method.Expandable:
		return nil, &UnsupportedNodeError{Node: n, Reason: "combinator must be expanded before execution"}
	}
	return nil, &UnsupportedNodeError{Node: n, Reason: fmt.Sprintf("%s has no implementation", n.Method)}
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func callFunc(fv reflect.Value, args []any) (any, error) {
	ft := fv.Type()
	if ft.NumIn() != len(args) {
		return nil, fmt.Errorf("%s takes %d arguments, got %d", ft, ft.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		v, err := valueOf(a, ft.In(i))
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	out := fv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			err, _ := out[0].Interface().(error)
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		if ft.Out(len(out)-1) == errorType && !out[len(out)-1].IsNil() {
			return nil, out[len(out)-1].Interface().(error)
		}
		return out[0].Interface(), nil
	}
}

// asLambda adapts anything usable as a function argument of a sequence
// operator: compiled lambdas, quoted lambdas, predicate objects and Go
// functions.
func asLambda(v any) (Lambda, error) {
	switch v := v.(type) {
	case nil:
		return nil, fmt.Errorf("lambda: %w", ErrNilReference)
	case Lambda:
		return v, nil
	case *ast.Quote:
		p, err := Compile(v.Body, v.Params...)
		if err != nil {
			return nil, err
		}
		return p.Lambda(), nil
	case ast.Expressible:
		q := v.ToAST()
		if q == nil {
			return nil, fmt.Errorf("lambda: %T produced no tree", v)
		}
		return asLambda(q)
	}
	fv := reflect.ValueOf(v)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("lambda: %T is not callable", v)
	}
	return func(args ...any) (any, error) { return callFunc(fv, args) }, nil
}
